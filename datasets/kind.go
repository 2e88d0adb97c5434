package datasets

import (
	"strconv"
	"strings"
)

// Kind identifies one of the imaging-data sources the package understands.
// The set is closed: adding a source means adding a Kind, a loader case in
// Load and an entry in DefaultRegistry.
type Kind int

const (
	// ADNI is the clinical trial archive. Metadata comes from a CSV table and
	// volumes are NIfTI files under the data path.
	ADNI Kind = iota
	// FigShare is the public brain tumour repository (dataset 1512427) made
	// of MATLAB v7.3 slice files.
	FigShare
	// BraTS is the tumour segmentation archive, one directory per subject.
	BraTS

	numKinds
)

var kindNames = [numKinds]string{
	ADNI:     "ADNI",
	FigShare: "FigShare",
	BraTS:    "BRATS",
}

// Kinds returns every supported kind in declaration order.
func Kinds() []Kind {
	return []Kind{ADNI, FigShare, BraTS}
}

// Valid reports whether k is one of the supported kinds.
func (k Kind) Valid() bool {
	return k >= 0 && k < numKinds
}

func (k Kind) String() string {
	if !k.Valid() {
		return "Kind(" + strconv.Itoa(int(k)) + ")"
	}
	return kindNames[k]
}

// ParseKind maps a dataset name to its Kind, ignoring case.
func ParseKind(name string) (Kind, error) {
	for k, n := range kindNames {
		if strings.EqualFold(strings.TrimSpace(name), n) {
			return Kind(k), nil
		}
	}
	return 0, UnsupportedDataset.New("%q", name)
}

// MarshalText implements encoding.TextMarshaler so kinds can be used as
// config values and map keys.
func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, UnsupportedDataset.New("%d", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
