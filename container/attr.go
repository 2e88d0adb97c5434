package container

import (
	"encoding"
	"encoding/json"
	"fmt"
	"reflect"
)

// attrClass is the storage class an attribute value is encoded as.
type attrClass int

const (
	attrNull attrClass = iota
	attrString
	attrInt
	attrFloat
	attrBool
)

// attrValue is an attribute value normalized for HDF5. Exactly one of the
// slices is used, selected by class.
type attrValue struct {
	class  attrClass
	scalar bool
	strs   []string
	ints   []int64
	floats []float64
	bools  []int8
}

func (a attrValue) len() int {
	switch a.class {
	case attrString:
		return len(a.strs)
	case attrInt:
		return len(a.ints)
	case attrFloat:
		return len(a.floats)
	case attrBool:
		return len(a.bools)
	default:
		return 0
	}
}

// encodeAttr normalizes value. Strings, booleans, integers and floats are
// kept as scalars, slices and arrays of them as 1-D lists. Empty lists and
// nil become null attributes and anything else is stored as JSON text.
func encodeAttr(value any) (attrValue, error) {
	if value == nil {
		return attrValue{class: attrNull}, nil
	}
	if tm, ok := value.(encoding.TextMarshaler); ok {
		text, err := tm.MarshalText()
		if err != nil {
			return attrValue{}, err
		}
		return attrValue{class: attrString, scalar: true, strs: []string{string(text)}}, nil
	}

	rv := reflect.ValueOf(value)
	if a, ok := appendElem(attrValue{scalar: true}, rv); ok {
		return a, nil
	}

	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		if rv.Len() == 0 {
			return attrValue{class: attrNull}, nil
		}
		a := attrValue{}
		list := true
		for i := range rv.Len() {
			var ok bool
			if a, ok = appendElem(a, rv.Index(i)); !ok {
				list = false
				break
			}
		}
		if list {
			return a, nil
		}
	}

	text, err := json.Marshal(value)
	if err != nil {
		return attrValue{}, fmt.Errorf("unsupported attribute value %T: %w", value, err)
	}
	return attrValue{class: attrString, scalar: true, strs: []string{string(text)}}, nil
}

// appendElem appends one basic value to a, failing when its type is not a
// basic type or differs from what a already holds.
func appendElem(a attrValue, v reflect.Value) (attrValue, bool) {
	if v.Kind() == reflect.Interface {
		v = v.Elem()
	}
	var class attrClass
	switch v.Kind() {
	case reflect.String:
		class = attrString
		a.strs = append(a.strs, v.String())
	case reflect.Bool:
		class = attrBool
		var b int8
		if v.Bool() {
			b = 1
		}
		a.bools = append(a.bools, b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		class = attrInt
		a.ints = append(a.ints, v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		class = attrInt
		a.ints = append(a.ints, int64(v.Uint()))
	case reflect.Float32, reflect.Float64:
		class = attrFloat
		a.floats = append(a.floats, v.Float())
	default:
		return a, false
	}
	if a.class != attrNull && a.class != class {
		return a, false
	}
	a.class = class
	return a, true
}
