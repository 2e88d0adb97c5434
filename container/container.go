// Package container writes the compiled dataset container: an HDF5 file
// whose root group carries the run configuration as attributes and one
// dataset per feature array.
package container

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/zeebo/errs"
	"gonum.org/v1/hdf5"
)

var (
	// CreateError is returned when the container cannot be opened for
	// writing, including when another compile holds its lock.
	CreateError = errs.Class("container create")
	// Error wraps failures writing to an open container.
	Error = errs.Class("container")
)

// LockSuffix is appended to the container path to name its lock file.
const LockSuffix = ".lock"

// File is an open container. It is not safe for concurrent use.
type File struct {
	path string
	lock string
	file *hdf5.File
	root *hdf5.Group
}

// Create takes the lock for path and creates the container there,
// truncating any previous one.
func Create(path string) (_ *File, err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, CreateError.Wrap(err)
	}

	lock := path + LockSuffix
	lf, err := os.OpenFile(lock, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if errors.Is(err, fs.ErrExist) {
		return nil, CreateError.Wrap(fmt.Errorf("%s is locked by %s; remove %s if that process is gone: %w",
			path, lockHolder(lock), lock, err))
	}
	if err != nil {
		return nil, CreateError.Wrap(fmt.Errorf("failed to lock %s: %w", path, err))
	}
	_, _ = fmt.Fprintf(lf, "%d\n", os.Getpid())
	if err := lf.Close(); err != nil {
		return nil, CreateError.Wrap(errs.Combine(err, os.Remove(lock)))
	}
	defer func() {
		if err != nil {
			_ = os.Remove(lock)
		}
	}()

	f, err := hdf5.CreateFile(path, hdf5.F_ACC_TRUNC)
	if err != nil {
		return nil, CreateError.Wrap(fmt.Errorf("failed to create %s: %w", path, err))
	}
	root, err := f.OpenGroup("/")
	if err != nil {
		return nil, CreateError.Wrap(errs.Combine(err, f.Close()))
	}

	return &File{path: path, lock: lock, file: f, root: root}, nil
}

// lockHolder describes the process recorded in an existing lock file.
func lockHolder(lock string) string {
	b, err := os.ReadFile(lock)
	if err != nil {
		return "an unknown process"
	}
	pid := strings.TrimSpace(string(b))
	if pid == "" {
		return "an unknown process"
	}
	return "pid " + pid
}

// Path returns the container's location on disk.
func (c *File) Path() string { return c.path }

// SetAttr stores value as a root attribute named name.
func (c *File) SetAttr(name string, value any) error {
	a, err := encodeAttr(value)
	if err != nil {
		return Error.Wrap(fmt.Errorf("attribute %q: %w", name, err))
	}
	return Error.Wrap(c.writeAttr(name, a))
}

func (c *File) writeAttr(name string, a attrValue) error {
	var (
		space *hdf5.Dataspace
		err   error
	)
	switch {
	case a.class == attrNull:
		space, err = hdf5.CreateDataspace(hdf5.S_NULL)
	case a.scalar:
		space, err = hdf5.CreateDataspace(hdf5.S_SCALAR)
	default:
		space, err = hdf5.CreateSimpleDataspace([]uint{uint(a.len())}, nil)
	}
	if err != nil {
		return fmt.Errorf("attribute %q: %w", name, err)
	}
	defer space.Close()

	dtype, buf, err := attrBuffer(a)
	if err != nil {
		return fmt.Errorf("attribute %q: %w", name, err)
	}
	if a.class == attrString {
		defer dtype.Close()
	}

	attr, err := c.root.CreateAttribute(name, dtype, space)
	if err != nil {
		return fmt.Errorf("failed to create attribute %q: %w", name, err)
	}
	defer attr.Close()

	if buf == nil {
		return nil
	}
	if err := attr.Write(buf, dtype); err != nil {
		return fmt.Errorf("failed to write attribute %q: %w", name, err)
	}
	return nil
}

// attrBuffer returns the HDF5 type of a and a pointer to its first element,
// or a nil pointer for null attributes. Strings are fixed length and null
// terminated, padded to the longest one.
func attrBuffer(a attrValue) (*hdf5.Datatype, any, error) {
	switch a.class {
	case attrString:
		size := 1
		for _, s := range a.strs {
			size = max(size, len(s)+1)
		}
		buf := make([]byte, size*len(a.strs))
		for i, s := range a.strs {
			copy(buf[i*size:], s)
		}
		dtype, err := hdf5.T_C_S1.Copy()
		if err != nil {
			return nil, nil, err
		}
		if err := dtype.SetSize(size); err != nil {
			dtype.Close()
			return nil, nil, err
		}
		return dtype, &buf[0], nil
	case attrInt:
		return hdf5.T_NATIVE_INT64, &a.ints[0], nil
	case attrFloat:
		return hdf5.T_NATIVE_DOUBLE, &a.floats[0], nil
	case attrBool:
		return hdf5.T_NATIVE_INT8, &a.bools[0], nil
	default:
		return hdf5.T_NATIVE_INT8, nil, nil
	}
}

// WriteTensor stores t as a dataset named name with t's dimensions.
func (c *File) WriteTensor(name string, t *tensors.Tensor) error {
	dims := t.Shape().Dimensions
	flat, dtype, err := flatten(t.Value())
	if err != nil {
		return Error.Wrap(fmt.Errorf("entry %q: %w", name, err))
	}

	var space *hdf5.Dataspace
	if len(dims) == 0 {
		space, err = hdf5.CreateDataspace(hdf5.S_SCALAR)
	} else {
		udims := make([]uint, len(dims))
		for i, d := range dims {
			udims[i] = uint(d)
		}
		space, err = hdf5.CreateSimpleDataspace(udims, nil)
	}
	if err != nil {
		return Error.Wrap(fmt.Errorf("entry %q: %w", name, err))
	}
	defer space.Close()

	ds, err := c.root.CreateDataset(name, dtype, space)
	if err != nil {
		return Error.Wrap(fmt.Errorf("failed to create entry %q: %w", name, err))
	}
	defer ds.Close()

	if flat.Len() == 0 {
		return nil
	}
	if err := ds.Write(flat.Index(0).Addr().Interface()); err != nil {
		return Error.Wrap(fmt.Errorf("failed to write entry %q: %w", name, err))
	}
	return nil
}

var nativeTypes = map[reflect.Kind]*hdf5.Datatype{
	reflect.Float32: hdf5.T_NATIVE_FLOAT,
	reflect.Float64: hdf5.T_NATIVE_DOUBLE,
	reflect.Int8:    hdf5.T_NATIVE_INT8,
	reflect.Int16:   hdf5.T_NATIVE_INT16,
	reflect.Int32:   hdf5.T_NATIVE_INT32,
	reflect.Int64:   hdf5.T_NATIVE_INT64,
	reflect.Uint8:   hdf5.T_NATIVE_UINT8,
	reflect.Uint16:  hdf5.T_NATIVE_UINT16,
	reflect.Uint32:  hdf5.T_NATIVE_UINT32,
	reflect.Uint64:  hdf5.T_NATIVE_UINT64,
}

// flatten turns the nested Go slices of a tensor value into one flat slice
// in row-major order and returns the matching HDF5 type.
func flatten(value any) (reflect.Value, *hdf5.Datatype, error) {
	rv := reflect.ValueOf(value)
	elem := rv.Type()
	for elem.Kind() == reflect.Slice {
		elem = elem.Elem()
	}
	dtype, ok := nativeTypes[elem.Kind()]
	if !ok {
		return reflect.Value{}, nil, fmt.Errorf("unsupported element type %s", elem)
	}

	flat := reflect.MakeSlice(reflect.SliceOf(elem), 0, 0)
	var walk func(v reflect.Value)
	walk = func(v reflect.Value) {
		if v.Kind() != reflect.Slice {
			flat = reflect.Append(flat, v)
			return
		}
		if v.Type().Elem().Kind() != reflect.Slice {
			flat = reflect.AppendSlice(flat, v)
			return
		}
		for i := range v.Len() {
			walk(v.Index(i))
		}
	}
	walk(rv)
	return flat, dtype, nil
}

// Close releases the HDF5 handles and the lock. It is safe to call more
// than once.
func (c *File) Close() error {
	if c.file == nil {
		return nil
	}
	err := errs.Combine(c.root.Close(), c.file.Close(), os.Remove(c.lock))
	c.root, c.file = nil, nil
	return Error.Wrap(err)
}
