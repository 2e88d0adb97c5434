package container

import (
	"bytes"
	"fmt"

	"github.com/zeebo/errs"
	"gonum.org/v1/hdf5"
)

// maxStringLen bounds each string read back from an attribute. Longer
// values are truncated.
const maxStringLen = 4096

// Reader gives read access to a compiled container.
type Reader struct {
	file *hdf5.File
	root *hdf5.Group
}

// Open opens the container at path read-only.
func Open(path string) (*Reader, error) {
	f, err := hdf5.OpenFile(path, hdf5.F_ACC_RDONLY)
	if err != nil {
		return nil, Error.Wrap(fmt.Errorf("failed to open %s: %w", path, err))
	}
	root, err := f.OpenGroup("/")
	if err != nil {
		return nil, Error.Wrap(errs.Combine(err, f.Close()))
	}
	return &Reader{file: f, root: root}, nil
}

// Entries returns the names of the container's arrays.
func (r *Reader) Entries() ([]string, error) {
	n, err := r.root.NumObjects()
	if err != nil {
		return nil, Error.Wrap(err)
	}
	names := make([]string, 0, n)
	for i := range n {
		name, err := r.root.ObjectNameByIndex(i)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		names = append(names, name)
	}
	return names, nil
}

// Float32s reads the float32 entry name and its dimensions.
func (r *Reader) Float32s(name string) ([]float32, []uint, error) {
	var out []float32
	dims, err := r.read(name, func(n int, ds *hdf5.Dataset) error {
		out = make([]float32, n)
		return ds.Read(&out)
	})
	return out, dims, err
}

// Int64s reads the int64 entry name and its dimensions.
func (r *Reader) Int64s(name string) ([]int64, []uint, error) {
	var out []int64
	dims, err := r.read(name, func(n int, ds *hdf5.Dataset) error {
		out = make([]int64, n)
		return ds.Read(&out)
	})
	return out, dims, err
}

func (r *Reader) read(name string, fn func(n int, ds *hdf5.Dataset) error) ([]uint, error) {
	ds, err := r.root.OpenDataset(name)
	if err != nil {
		return nil, Error.Wrap(fmt.Errorf("entry %q: %w", name, err))
	}
	defer ds.Close()

	space := ds.Space()
	defer space.Close()
	dims, _, err := space.SimpleExtentDims()
	if err != nil {
		return nil, Error.Wrap(fmt.Errorf("entry %q: %w", name, err))
	}
	n := space.SimpleExtentNPoints()
	if n == 0 {
		return dims, nil
	}
	if err := fn(n, ds); err != nil {
		return nil, Error.Wrap(fmt.Errorf("failed to read entry %q: %w", name, err))
	}
	return dims, nil
}

// Strings reads a string or string list attribute. Null attributes read
// as an empty list.
func (r *Reader) Strings(name string) ([]string, error) {
	dtype, err := hdf5.T_C_S1.Copy()
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer dtype.Close()
	if err := dtype.SetSize(maxStringLen); err != nil {
		return nil, Error.Wrap(err)
	}

	var buf []byte
	n, err := r.readAttr(name, func(n int, attr *hdf5.Attribute) error {
		buf = make([]byte, n*maxStringLen)
		return attr.Read(&buf[0], dtype)
	})
	if err != nil {
		return nil, err
	}

	out := make([]string, n)
	for i := range n {
		s := buf[i*maxStringLen : (i+1)*maxStringLen]
		if end := bytes.IndexByte(s, 0); end >= 0 {
			s = s[:end]
		}
		out[i] = string(s)
	}
	return out, nil
}

// Int64Attr reads an integer or boolean attribute as int64 values.
func (r *Reader) Int64Attr(name string) ([]int64, error) {
	var out []int64
	_, err := r.readAttr(name, func(n int, attr *hdf5.Attribute) error {
		out = make([]int64, n)
		return attr.Read(&out[0], hdf5.T_NATIVE_INT64)
	})
	return out, err
}

// Float64Attr reads a numeric attribute as float64 values.
func (r *Reader) Float64Attr(name string) ([]float64, error) {
	var out []float64
	_, err := r.readAttr(name, func(n int, attr *hdf5.Attribute) error {
		out = make([]float64, n)
		return attr.Read(&out[0], hdf5.T_NATIVE_DOUBLE)
	})
	return out, err
}

func (r *Reader) readAttr(name string, fn func(n int, attr *hdf5.Attribute) error) (int, error) {
	attr, err := r.root.OpenAttribute(name)
	if err != nil {
		return 0, Error.Wrap(fmt.Errorf("attribute %q: %w", name, err))
	}
	defer attr.Close()

	space := attr.Space()
	defer space.Close()
	n := space.SimpleExtentNPoints()
	if n == 0 {
		return 0, nil
	}
	if err := fn(n, attr); err != nil {
		return 0, Error.Wrap(fmt.Errorf("failed to read attribute %q: %w", name, err))
	}
	return n, nil
}

// Close releases the file handles.
func (r *Reader) Close() error {
	return Error.Wrap(errs.Combine(r.root.Close(), r.file.Close()))
}
