package manager

import (
	"fmt"
	"maps"
	"path/filepath"
	"slices"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"go.uber.org/zap"

	"github.com/Noofbiz/mriData/datasets"
)

// Container is the sink Compile writes to.
type Container interface {
	SetAttr(name string, value any) error
	WriteTensor(name string, t *tensors.Tensor) error
	Close() error
}

// ContainerFactory creates a container at path, truncating any existing
// file.
type ContainerFactory func(path string) (Container, error)

// OutputPath returns where the container for params is written.
func (m *Manager) OutputPath(params Params) (string, error) {
	name, err := params.DatabaseName()
	if err != nil {
		return "", err
	}
	return filepath.Join(m.outputDir, name+".h5"), nil
}

// EntryName names the array of one feature of one batch of a split.
func EntryName(split, feature string, batch int) string {
	return fmt.Sprintf("%s_%s_%d", split, feature, batch)
}

// Compile extracts the features of every split of the dataset named in
// params and writes them to a new container. The params become the
// container's attributes along with the subjects of each split.
//
// Extractor errors are returned as is. The container is closed on every
// path but a failed compile leaves it incomplete on disk.
func (m *Manager) Compile(params Params) (err error) {
	if err := params.validate(); err != nil {
		return err
	}
	kind, _ := params.Kind()
	maxSubjects, _ := params.MaxSubjects()

	data, ok := m.collections[kind]
	if !ok {
		return datasets.UnknownDataset.New("%s", kind)
	}
	splits := m.splits[kind]
	entry, err := m.registry.Entry(kind)
	if err != nil {
		return err
	}
	path, err := m.OutputPath(params)
	if err != nil {
		return err
	}

	extractor, err := m.newExtractor(params)
	if err != nil {
		return err
	}

	c, err := m.newContainer(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := c.Close(); cerr != nil {
			if err == nil {
				err = cerr
				return
			}
			m.log.Warn("failed to close container", zap.String("path", path), zap.Error(cerr))
		}
	}()

	log := m.log.With(zap.Stringer("dataset", kind), zap.String("path", path))
	log.Info("compiling")

	for _, key := range slices.Sorted(maps.Keys(params)) {
		log.Info("param", zap.String("key", key), zap.Any("value", params[key]))
		if err := c.SetAttr(key, params[key]); err != nil {
			return err
		}
	}

	for _, name := range SplitNames {
		subjects, _ := splits.Get(name)
		if err := c.SetAttr(SubjectsAttrPrefix+name, subjects); err != nil {
			return err
		}
		if maxSubjects > 0 && len(subjects) > maxSubjects {
			subjects = subjects[:maxSubjects]
		}

		log.Info("extracting", zap.String("split", name), zap.Int("subjects", len(subjects)))
		batch := 0
		for b, err := range extractor.Extract(subjects, kind, entry.DataPath, data) {
			if err != nil {
				return err
			}
			for _, feature := range slices.Sorted(maps.Keys(b)) {
				entryName := EntryName(name, feature, batch)
				log.Debug("writing entry", zap.String("entry", entryName), zap.Ints("shape", b[feature].Shape().Dimensions))
				if err := c.WriteTensor(entryName, b[feature]); err != nil {
					return err
				}
			}
			batch++
		}
	}

	log.Info("compiled")
	return nil
}
