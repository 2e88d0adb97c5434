package datasets

import "github.com/zeebo/errs"

// Configuration errors. They are raised before any I/O happens.
var (
	// UnsupportedDataset is returned for a dataset kind outside the closed set.
	UnsupportedDataset = errs.Class("unsupported dataset")
	// MissingEntry is returned when a kind in use has no registry entry.
	MissingEntry = errs.Class("missing registry entry")
	// UnknownDataset is returned when a kind is referenced before it was loaded.
	UnknownDataset = errs.Class("unknown dataset")
	// MissingColumn is returned when a configured key column is absent.
	MissingColumn = errs.Class("missing column")
	// InvalidSplit is returned for split fractions outside [0, 1] or summing above 1.
	InvalidSplit = errs.Class("invalid split")
	// MissingParam is returned when a required compile parameter is absent or malformed.
	MissingParam = errs.Class("missing parameter")
)

// LoadError wraps failures reading a dataset's source files.
var LoadError = errs.Class("load")

var configClasses = []*errs.Class{
	&UnsupportedDataset,
	&MissingEntry,
	&UnknownDataset,
	&MissingColumn,
	&InvalidSplit,
	&MissingParam,
}

// IsConfigError reports whether err belongs to one of the configuration
// error classes, as opposed to a data or I/O failure.
func IsConfigError(err error) bool {
	for _, class := range configClasses {
		if class.Has(err) {
			return true
		}
	}
	return false
}
