package datasets

import "path/filepath"

// Entry is the static configuration of a single dataset kind.
type Entry struct {
	// DataPath is the root directory holding the imaging files.
	DataPath string
	// MetadataPath is the metadata table for table-backed kinds. Empty for
	// file-backed kinds.
	MetadataPath string
	// Columns lists the metadata column indices to retain. Nil keeps every
	// column.
	Columns []int
	// KeyColumn names the column holding the unique subject identifier.
	KeyColumn string
}

// Registry maps every dataset kind in use to its configuration. It is a
// plain value so callers and tests can build one with synthetic paths.
type Registry map[Kind]Entry

// DefaultRegistry returns the layout the datasets are distributed in, rooted
// at root:
//
//	root/ADNI/dataset_metadata.csv
//	root/ADNI/MRI data/
//	root/1512427/
//	root/BRATS/
func DefaultRegistry(root string) Registry {
	return Registry{
		ADNI: {
			MetadataPath: filepath.Join(root, "ADNI", "dataset_metadata.csv"),
			DataPath:     filepath.Join(root, "ADNI", "MRI data"),
			Columns:      []int{0, 3, 4, 6},
			KeyColumn:    "Subject",
		},
		FigShare: {
			DataPath:  filepath.Join(root, "1512427"),
			KeyColumn: "Patient ID",
		},
		BraTS: {
			DataPath:  filepath.Join(root, "BRATS"),
			KeyColumn: "Subject",
		},
	}
}

// Entry returns the configuration for kind.
func (r Registry) Entry(kind Kind) (Entry, error) {
	if !kind.Valid() {
		return Entry{}, UnsupportedDataset.New("%s", kind)
	}
	e, ok := r[kind]
	if !ok {
		return Entry{}, MissingEntry.New("%s", kind)
	}
	return e, nil
}

// Load reads the metadata table or builds the file map for kind using its
// registry entry.
func (r Registry) Load(kind Kind) (Collection, error) {
	e, err := r.Entry(kind)
	if err != nil {
		return nil, err
	}

	switch kind {
	case ADNI:
		return ReadTable(kind, e.MetadataPath, e.Columns, e.KeyColumn)
	case FigShare:
		return FigShareFileMap(e.DataPath, e.KeyColumn)
	case BraTS:
		return BraTSFileMap(e.DataPath, e.KeyColumn)
	default:
		return nil, UnsupportedDataset.New("%s", kind)
	}
}
