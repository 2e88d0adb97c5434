package features

import (
	"fmt"

	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// Feature names produced by the SliceExtractor.
const (
	ImageFeature  = "image"
	KSpaceFeature = "k_space"
	LabelFeature  = "label"
)

// Batch maps feature names to one tensor each. The leading dimension of
// every tensor is the number of subjects in the batch.
type Batch map[string]*tensors.Tensor

// Names returns the batch's feature names.
func (b Batch) Names() []string {
	names := make([]string, 0, len(b))
	for name := range b {
		names = append(names, name)
	}
	return names
}

// SliceStack collects same-shaped 2-D slices into one [n,H,W] buffer.
type SliceStack struct {
	Buf    []float32
	N      int
	Height int
	Width  int
}

// Add appends a slice, failing if its shape differs from the first one.
func (s *SliceStack) Add(img [][]float32) error {
	if len(img) == 0 || len(img[0]) == 0 {
		return fmt.Errorf("empty slice at example %d", s.N)
	}
	if s.N == 0 {
		s.Height, s.Width = len(img), len(img[0])
	} else if len(img) != s.Height {
		return fmt.Errorf("inconsistent slice height at example %d: expected %d, got %d", s.N, s.Height, len(img))
	}
	for r, row := range img {
		if len(row) != s.Width {
			return fmt.Errorf("inconsistent slice width at example %d row %d: expected %d, got %d", s.N, r, s.Width, len(row))
		}
		s.Buf = append(s.Buf, row...)
	}
	s.N++
	return nil
}

// ToGomlxTensor converts the stack to an [n,H,W] float32 tensor.
func (s *SliceStack) ToGomlxTensor() *tensors.Tensor {
	if s.N == 0 {
		return tensors.FromAnyValue(make([][][]float32, 0))
	}
	data := make([][][]float32, s.N)
	idx := 0
	for i := range s.N {
		data[i] = make([][]float32, s.Height)
		for r := range s.Height {
			data[i][r] = s.Buf[idx : idx+s.Width]
			idx += s.Width
		}
	}
	return tensors.FromAnyValue(data)
}
