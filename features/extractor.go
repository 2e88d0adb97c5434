package features

import (
	"fmt"
	"iter"
	"slices"
	"sort"

	"github.com/gomlx/gomlx/pkg/core/tensors"

	"github.com/Noofbiz/mriData/datasets"
	"github.com/Noofbiz/mriData/volume"
)

// Extractor turns an ordered list of subjects into a finite, ordered
// sequence of feature batches. A non-nil error ends the sequence.
type Extractor interface {
	Extract(subjects []string, kind datasets.Kind, root string, data datasets.Collection) iter.Seq2[Batch, error]
}

// Factory builds an Extractor from the compile parameters.
type Factory func(params map[string]any) (Extractor, error)

// NewExtractor is the default Factory.
func NewExtractor(params map[string]any) (Extractor, error) {
	return New(params)
}

// segScan is the BraTS modality holding the tumour segmentation.
const segScan = "seg"

// SliceExtractor reads one 2-D slice per subject and emits the image, its
// k-space and a label per batch.
type SliceExtractor struct {
	opts Options
}

// New builds a SliceExtractor from params, see ParseOptions.
func New(params map[string]any) (*SliceExtractor, error) {
	opts, err := ParseOptions(params)
	if err != nil {
		return nil, err
	}
	return NewWithOptions(opts), nil
}

// NewWithOptions builds a SliceExtractor from already parsed options.
func NewWithOptions(opts Options) *SliceExtractor {
	opts.BatchSize = max(opts.BatchSize, 1)
	return &SliceExtractor{opts: opts}
}

// Options returns the extractor's options.
func (e *SliceExtractor) Options() Options { return e.opts }

// Extract implements Extractor. Subjects are grouped into batches of
// BatchSize in the order given.
func (e *SliceExtractor) Extract(subjects []string, kind datasets.Kind, root string, data datasets.Collection) iter.Seq2[Batch, error] {
	return func(yield func(Batch, error) bool) {
		classes, err := e.classes(kind, data)
		if err != nil {
			yield(nil, err)
			return
		}
		for chunk := range slices.Chunk(subjects, e.opts.BatchSize) {
			b, err := e.batch(chunk, kind, root, data, classes)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(b, nil) {
				return
			}
		}
	}
}

// classes maps every distinct value of the ADNI label column to its index
// in sorted order. It returns nil when no labels are requested.
func (e *SliceExtractor) classes(kind datasets.Kind, data datasets.Collection) (map[string]int64, error) {
	if kind != datasets.ADNI || e.opts.LabelColumn == "" {
		return nil, nil
	}
	values, ok := data.Column(e.opts.LabelColumn)
	if !ok {
		return nil, datasets.MissingColumn.New("%s: label column %q", kind, e.opts.LabelColumn)
	}
	if _, ok := data.(datasets.SubjectRows); !ok {
		return nil, fmt.Errorf("%T does not expose subject rows", data)
	}

	sort.Strings(values)
	values = slices.Compact(values)
	classes := make(map[string]int64, len(values))
	for i, v := range values {
		classes[v] = int64(i)
	}
	return classes, nil
}

func (e *SliceExtractor) batch(subjects []string, kind datasets.Kind, root string, data datasets.Collection, classes map[string]int64) (Batch, error) {
	var (
		images, kspace, segs SliceStack
		labels               []int64
	)

	for _, subject := range subjects {
		var img [][]float32
		switch kind {
		case datasets.FigShare:
			s, err := volume.FigShareSlice(data, subject)
			if err != nil {
				return nil, fmt.Errorf("subject %q: %w", subject, err)
			}
			img = s.Image
			labels = append(labels, s.Label)

		case datasets.ADNI:
			var err error
			img, err = volume.SubjectSlice(kind, root, subject, e.opts.ScanType, e.opts.SliceIx, data)
			if err != nil {
				return nil, fmt.Errorf("subject %q: %w", subject, err)
			}
			if classes != nil {
				row, ok := data.(datasets.SubjectRows).Row(subject)
				if !ok {
					return nil, fmt.Errorf("subject %q: no metadata row", subject)
				}
				labels = append(labels, classes[row[e.opts.LabelColumn]])
			}

		case datasets.BraTS:
			var err error
			img, err = volume.SubjectSlice(kind, root, subject, e.opts.ScanType, e.opts.SliceIx, data)
			if err != nil {
				return nil, fmt.Errorf("subject %q: %w", subject, err)
			}
			seg, err := volume.SubjectSlice(kind, root, subject, segScan, e.opts.SliceIx, data)
			if err != nil {
				return nil, fmt.Errorf("subject %q segmentation: %w", subject, err)
			}
			if err := segs.Add(seg); err != nil {
				return nil, fmt.Errorf("subject %q segmentation: %w", subject, err)
			}

		default:
			return nil, datasets.UnsupportedDataset.New("%s", kind)
		}

		if err := images.Add(img); err != nil {
			return nil, fmt.Errorf("subject %q: %w", subject, err)
		}
		if e.opts.KSpace {
			if err := kspace.Add(KSpace(img)); err != nil {
				return nil, fmt.Errorf("subject %q k-space: %w", subject, err)
			}
		}
	}

	b := Batch{ImageFeature: images.ToGomlxTensor()}
	if e.opts.KSpace {
		b[KSpaceFeature] = kspace.ToGomlxTensor()
	}
	switch {
	case segs.N > 0:
		b[LabelFeature] = segs.ToGomlxTensor()
	case len(labels) > 0:
		b[LabelFeature] = tensors.FromAnyValue(labels)
	}
	return b, nil
}
