package manager

import (
	"strings"

	"github.com/spf13/cast"

	"github.com/Noofbiz/mriData/datasets"
)

// Recognized compile parameter keys. Every other key is an extraction
// option passed through to the extractor.
const (
	DatasetParam      = "dataset"
	DatabaseNameParam = "database_name"
	MaxSubjectsParam  = "max_subjects"
)

// SubjectsAttrPrefix prefixes the container attribute holding each split.
const SubjectsAttrPrefix = "subjects_"

// Params is the compile configuration. All keys are written verbatim to
// the container.
type Params map[string]any

// Kind returns the dataset to compile.
func (p Params) Kind() (datasets.Kind, error) {
	v, ok := p[DatasetParam]
	if !ok {
		return 0, datasets.MissingParam.New("%s", DatasetParam)
	}
	if k, ok := v.(datasets.Kind); ok {
		if !k.Valid() {
			return 0, datasets.UnsupportedDataset.New("%s", k)
		}
		return k, nil
	}
	name, err := cast.ToStringE(v)
	if err != nil {
		return 0, datasets.MissingParam.New("%s: %v", DatasetParam, err)
	}
	return datasets.ParseKind(name)
}

// DatabaseName returns the output name of the container.
func (p Params) DatabaseName() (string, error) {
	name, err := cast.ToStringE(p[DatabaseNameParam])
	if err != nil || name == "" {
		return "", datasets.MissingParam.New("%s", DatabaseNameParam)
	}
	if strings.ContainsAny(name, `/\`) {
		return "", datasets.MissingParam.New("%s: %q must be a plain file name", DatabaseNameParam, name)
	}
	return name, nil
}

// MaxSubjects returns the per split cap on extracted subjects. Zero means
// no cap.
func (p Params) MaxSubjects() (int, error) {
	v, ok := p[MaxSubjectsParam]
	if !ok {
		return 0, nil
	}
	n, err := cast.ToIntE(v)
	if err != nil || n < 0 {
		return 0, datasets.MissingParam.New("%s: invalid value %v", MaxSubjectsParam, v)
	}
	return n, nil
}

// validate checks the recognized keys and rejects keys that would collide
// with the split attributes.
func (p Params) validate() error {
	for key := range p {
		if strings.HasPrefix(key, SubjectsAttrPrefix) {
			for _, name := range SplitNames {
				if key == SubjectsAttrPrefix+name {
					return datasets.MissingParam.New("%q is reserved for the %s subjects", key, name)
				}
			}
		}
	}
	if _, err := p.Kind(); err != nil {
		return err
	}
	if _, err := p.DatabaseName(); err != nil {
		return err
	}
	_, err := p.MaxSubjects()
	return err
}
