package features

import (
	"github.com/spf13/cast"

	"github.com/Noofbiz/mriData/datasets"
)

// Option keys read from the compile parameters.
const (
	SliceIxKey     = "slice_ix"
	ScanTypeKey    = "scan_type"
	BatchSizeKey   = "batch_size"
	KSpaceKey      = "k_space"
	LabelColumnKey = "label_column"
)

// Options controls what the SliceExtractor produces.
type Options struct {
	// SliceIx selects the axial slice. Values in [0, 1) are a fraction of
	// the axis, larger values are an absolute index.
	SliceIx float64
	// ScanType is the modality tag of the volume to read, e.g. T1 or flair.
	ScanType string
	// BatchSize is the number of subjects per batch.
	BatchSize int
	// KSpace adds the k_space feature.
	KSpace bool
	// LabelColumn is the ADNI metadata column used for class labels. Empty
	// disables labels for ADNI.
	LabelColumn string
}

// DefaultOptions returns the options used for absent parameters. One
// subject per batch keeps FigShare's mixed 256 and 512 pixel slices apart.
func DefaultOptions() Options {
	return Options{
		SliceIx:   0.5,
		ScanType:  "T1",
		BatchSize: 1,
		KSpace:    true,
	}
}

// ParseOptions reads the recognized option keys from params and ignores the
// rest. Malformed values fail with datasets.MissingParam.
func ParseOptions(params map[string]any) (Options, error) {
	opts := DefaultOptions()
	var err error

	if v, ok := params[SliceIxKey]; ok {
		if opts.SliceIx, err = cast.ToFloat64E(v); err != nil || opts.SliceIx < 0 {
			return Options{}, datasets.MissingParam.New("%s: invalid value %v", SliceIxKey, v)
		}
	}
	if v, ok := params[ScanTypeKey]; ok {
		if opts.ScanType, err = cast.ToStringE(v); err != nil || opts.ScanType == "" {
			return Options{}, datasets.MissingParam.New("%s: invalid value %v", ScanTypeKey, v)
		}
	}
	if v, ok := params[BatchSizeKey]; ok {
		if opts.BatchSize, err = cast.ToIntE(v); err != nil || opts.BatchSize < 1 {
			return Options{}, datasets.MissingParam.New("%s: invalid value %v", BatchSizeKey, v)
		}
	}
	if v, ok := params[KSpaceKey]; ok {
		if opts.KSpace, err = cast.ToBoolE(v); err != nil {
			return Options{}, datasets.MissingParam.New("%s: invalid value %v", KSpaceKey, v)
		}
	}
	if v, ok := params[LabelColumnKey]; ok {
		if opts.LabelColumn, err = cast.ToStringE(v); err != nil {
			return Options{}, datasets.MissingParam.New("%s: invalid value %v", LabelColumnKey, v)
		}
	}
	return opts, nil
}
