package matfile

import (
	"fmt"

	"gonum.org/v1/hdf5"
)

// Write stores s at path in the same layout MATLAB uses for v7.3 files, so
// tooling and tests can produce FigShare-shaped inputs.
func Write(path string, s *Slice) error {
	f, err := hdf5.CreateFile(path, hdf5.F_ACC_TRUNC)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	g, err := f.CreateGroup("cjdata")
	if err != nil {
		return fmt.Errorf("failed to create cjdata: %w", err)
	}
	defer g.Close()

	pid := make([]uint16, len(s.PID))
	for i, r := range s.PID {
		pid[i] = uint16(r)
	}
	if err := writeDataset(g, "PID", hdf5.T_NATIVE_UINT16, []uint{uint(len(pid)), 1}, &pid); err != nil {
		return err
	}

	label := []float64{float64(s.Label)}
	if err := writeDataset(g, "label", hdf5.T_NATIVE_DOUBLE, []uint{1, 1}, &label); err != nil {
		return err
	}

	for name, m := range map[string][][]float32{"image": s.Image, "tumorMask": s.TumorMask} {
		flat, dims := columnMajor(m)
		if err := writeDataset(g, name, hdf5.T_NATIVE_FLOAT, dims, &flat); err != nil {
			return err
		}
	}
	return nil
}

func writeDataset(g *hdf5.Group, name string, dtype *hdf5.Datatype, dims []uint, data any) error {
	space, err := hdf5.CreateSimpleDataspace(dims, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	defer space.Close()

	ds, err := g.CreateDataset(name, dtype, space)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}
	defer ds.Close()

	if err := ds.Write(data); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// columnMajor flattens m [row][col] the way MATLAB lays it out and returns
// the matching (reversed) HDF5 dimensions.
func columnMajor(m [][]float32) ([]float32, []uint) {
	rows := len(m)
	cols := 0
	if rows > 0 {
		cols = len(m[0])
	}
	flat := make([]float32, rows*cols)
	for r := range rows {
		for c := range cols {
			flat[c*rows+r] = m[r][c]
		}
	}
	return flat, []uint{uint(cols), uint(rows)}
}
