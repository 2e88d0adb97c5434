// Package manager aggregates the imaging datasets, partitions their subjects
// and compiles extracted features into a container file.
package manager

import (
	"maps"

	"go.uber.org/zap"

	"github.com/Noofbiz/mriData/container"
	"github.com/Noofbiz/mriData/datasets"
	"github.com/Noofbiz/mriData/features"
)

// DefaultOutputDir is where containers are written unless WithOutputDir is
// given.
const DefaultOutputDir = "experiments"

// Manager owns the loaded dataset collections and their splits. It is not
// safe for concurrent use.
type Manager struct {
	registry     datasets.Registry
	log          *zap.Logger
	outputDir    string
	splitOpts    SplitOptions
	newExtractor features.Factory
	newContainer ContainerFactory

	collections map[datasets.Kind]datasets.Collection
	splits      map[datasets.Kind]Splits
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. The default discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// WithOutputDir sets the directory containers are written to.
func WithOutputDir(dir string) Option {
	return func(m *Manager) { m.outputDir = dir }
}

// WithSplitOptions sets the fractions and seed used when AddDatasets
// splits a newly loaded dataset.
func WithSplitOptions(opts SplitOptions) Option {
	return func(m *Manager) { m.splitOpts = opts }
}

// WithExtractor replaces the feature extractor factory.
func WithExtractor(f features.Factory) Option {
	return func(m *Manager) { m.newExtractor = f }
}

// WithContainer replaces the container factory.
func WithContainer(f ContainerFactory) Option {
	return func(m *Manager) { m.newContainer = f }
}

// New returns a Manager configured from registry with nothing loaded.
func New(registry datasets.Registry, opts ...Option) *Manager {
	m := &Manager{
		registry:     registry,
		log:          zap.NewNop(),
		outputDir:    DefaultOutputDir,
		splitOpts:    DefaultSplitOptions(),
		newExtractor: features.NewExtractor,
		newContainer: createContainer,
		collections:  make(map[datasets.Kind]datasets.Collection),
		splits:       make(map[datasets.Kind]Splits),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AddDatasets loads every kind and splits its subjects using the
// registry's key column. All kinds are checked before anything is loaded,
// so a configuration error leaves the manager untouched. Re-adding a kind
// replaces its collection and split.
func (m *Manager) AddDatasets(kinds ...datasets.Kind) error {
	if err := m.splitOpts.Validate(); err != nil {
		return err
	}
	entries := make([]datasets.Entry, len(kinds))
	for i, kind := range kinds {
		e, err := m.registry.Entry(kind)
		if err != nil {
			return err
		}
		entries[i] = e
	}

	for i, kind := range kinds {
		m.log.Info("loading dataset", zap.Stringer("dataset", kind))
		data, err := m.registry.Load(kind)
		if err != nil {
			return err
		}
		splits, err := splitCollection(kind, data, entries[i].KeyColumn, m.splitOpts)
		if err != nil {
			return err
		}
		m.collections[kind] = data
		m.splits[kind] = splits
		m.logSplits(kind, splits)
	}
	return nil
}

// Split repartitions a loaded dataset using keyColumn, replacing its
// previous split.
func (m *Manager) Split(kind datasets.Kind, keyColumn string, opts SplitOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	data, ok := m.collections[kind]
	if !ok {
		return datasets.UnknownDataset.New("%s", kind)
	}
	splits, err := splitCollection(kind, data, keyColumn, opts)
	if err != nil {
		return err
	}
	m.splits[kind] = splits
	m.logSplits(kind, splits)
	return nil
}

func splitCollection(kind datasets.Kind, data datasets.Collection, keyColumn string, opts SplitOptions) (Splits, error) {
	ids, ok := data.Column(keyColumn)
	if !ok {
		return Splits{}, datasets.MissingColumn.New("%s: %q", kind, keyColumn)
	}
	return partition(ids, opts), nil
}

func (m *Manager) logSplits(kind datasets.Kind, s Splits) {
	m.log.Info("split dataset",
		zap.Stringer("dataset", kind),
		zap.Int("train", len(s.Train)),
		zap.Int("validation", len(s.Validation)),
		zap.Int("test", len(s.Test)))
}

// Splits returns the current split of kind.
func (m *Manager) Splits(kind datasets.Kind) (Splits, bool) {
	s, ok := m.splits[kind]
	return s, ok
}

// DataCollection returns the loaded collections by kind. The map is a
// copy; the collections themselves are shared and read-only.
func (m *Manager) DataCollection() map[datasets.Kind]datasets.Collection {
	return maps.Clone(m.collections)
}

// Data returns the column of kind, or false if kind is not loaded or has
// no such column.
func (m *Manager) Data(kind datasets.Kind, column string) ([]string, bool) {
	data, ok := m.collections[kind]
	if !ok {
		return nil, false
	}
	return data.Column(column)
}

// Keys returns the column names of kind, or false if kind is not loaded.
func (m *Manager) Keys(kind datasets.Kind) ([]string, bool) {
	data, ok := m.collections[kind]
	if !ok {
		return nil, false
	}
	return data.Keys(), true
}

func createContainer(path string) (Container, error) {
	c, err := container.Create(path)
	if err != nil {
		return nil, err
	}
	return c, nil
}
