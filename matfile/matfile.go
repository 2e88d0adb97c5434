// Package matfile reads and writes the MATLAB v7.3 slice files of the
// FigShare brain tumour dataset. v7.3 files are HDF5 containers holding a
// single cjdata struct:
//
//	cjdata/PID        patient id, MATLAB char array (uint16)
//	cjdata/label      tumour class (1 meningioma, 2 glioma, 3 pituitary)
//	cjdata/image      slice intensities
//	cjdata/tumorMask  binary tumour mask
//
// MATLAB stores arrays column-major, so HDF5 dimensions are the MATLAB
// dimensions reversed. Read transposes back to [row][col].
package matfile

import (
	"fmt"
	"strings"

	"gonum.org/v1/hdf5"
)

// Slice is one decoded FigShare file.
type Slice struct {
	PID       string
	Label     int64
	Image     [][]float32
	TumorMask [][]float32
}

// ReadPID returns only the patient id of the file at path.
func ReadPID(path string) (string, error) {
	f, err := hdf5.OpenFile(path, hdf5.F_ACC_RDONLY)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	return readPID(f)
}

// Read decodes the full slice file at path.
func Read(path string) (*Slice, error) {
	f, err := hdf5.OpenFile(path, hdf5.F_ACC_RDONLY)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	s := &Slice{}
	if s.PID, err = readPID(f); err != nil {
		return nil, err
	}

	label, _, err := readNumeric(f, "/cjdata/label")
	if err != nil {
		return nil, err
	}
	if len(label) != 1 {
		return nil, fmt.Errorf("cjdata/label: expected a scalar, got %d values", len(label))
	}
	s.Label = int64(label[0])

	if s.Image, err = readMatrix(f, "/cjdata/image"); err != nil {
		return nil, err
	}
	if s.TumorMask, err = readMatrix(f, "/cjdata/tumorMask"); err != nil {
		return nil, err
	}
	return s, nil
}

func readPID(f *hdf5.File) (string, error) {
	ds, err := f.OpenDataset("/cjdata/PID")
	if err != nil {
		return "", fmt.Errorf("cjdata/PID: %w", err)
	}
	defer ds.Close()

	space := ds.Space()
	defer space.Close()

	chars := make([]uint16, space.SimpleExtentNPoints())
	if len(chars) == 0 {
		return "", fmt.Errorf("cjdata/PID is empty")
	}
	if err := ds.Read(&chars); err != nil {
		return "", fmt.Errorf("failed to read cjdata/PID: %w", err)
	}

	var b strings.Builder
	for _, c := range chars {
		if c == 0 {
			break
		}
		b.WriteRune(rune(c))
	}
	return strings.TrimSpace(b.String()), nil
}

// readMatrix reads a 2-D MATLAB array and returns it as [row][col].
func readMatrix(f *hdf5.File, name string) ([][]float32, error) {
	flat, dims, err := readNumeric(f, name)
	if err != nil {
		return nil, err
	}
	if len(dims) != 2 {
		return nil, fmt.Errorf("%s: expected 2 dimensions, got %d", name, len(dims))
	}

	cols, rows := int(dims[0]), int(dims[1])
	out := make([][]float32, rows)
	for r := range rows {
		out[r] = make([]float32, cols)
		for c := range cols {
			out[r][c] = flat[c*rows+r]
		}
	}
	return out, nil
}

// readNumeric reads any integer or floating point dataset as float32 in HDF5
// (C) order along with its dimensions.
func readNumeric(f *hdf5.File, name string) ([]float32, []uint, error) {
	ds, err := f.OpenDataset(name)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", name, err)
	}
	defer ds.Close()

	space := ds.Space()
	defer space.Close()
	dims, _, err := space.SimpleExtentDims()
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", name, err)
	}
	n := space.SimpleExtentNPoints()

	dtype, err := ds.Datatype()
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", name, err)
	}
	defer dtype.Close()

	out := make([]float32, n)
	switch class, size := dtype.Class(), dtype.Size(); {
	case class == hdf5.T_FLOAT && size == 4:
		if err := ds.Read(&out); err != nil {
			return nil, nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
	case class == hdf5.T_FLOAT && size == 8:
		buf := make([]float64, n)
		if err := ds.Read(&buf); err != nil {
			return nil, nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		for i, v := range buf {
			out[i] = float32(v)
		}
	case class == hdf5.T_INTEGER && size == 1:
		buf := make([]uint8, n)
		if err := ds.Read(&buf); err != nil {
			return nil, nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		for i, v := range buf {
			out[i] = float32(v)
		}
	case class == hdf5.T_INTEGER && size == 2:
		buf := make([]int16, n)
		if err := ds.Read(&buf); err != nil {
			return nil, nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		for i, v := range buf {
			out[i] = float32(v)
		}
	case class == hdf5.T_INTEGER && size == 4:
		buf := make([]int32, n)
		if err := ds.Read(&buf); err != nil {
			return nil, nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		for i, v := range buf {
			out[i] = float32(v)
		}
	default:
		return nil, nil, fmt.Errorf("%s: unsupported element type (class %v, %d bytes)", name, class, size)
	}
	return out, dims, nil
}
