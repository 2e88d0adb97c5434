package manager

import (
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Noofbiz/mriData/container"
	"github.com/Noofbiz/mriData/datasets"
	"github.com/Noofbiz/mriData/features"
	"github.com/Noofbiz/mriData/matfile"
	"github.com/Noofbiz/mriData/volume"
)

// writeMetadata writes an ADNI style metadata table with n subjects.
func writeMetadata(t *testing.T, dir string, n int) string {
	t.Helper()
	path := filepath.Join(dir, "dataset_metadata.csv")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	_, err = fmt.Fprintln(f, "Subject,Visit,Site,Group,Sex,Weight,Age")
	require.NoError(t, err)
	groups := []string{"CN", "MCI", "AD"}
	for i := range n {
		_, err = fmt.Fprintf(f, "%03d_S_%04d,bl,%d,%s,M,70,%d\n", i%100, i, i%100, groups[i%3], 60+i%30)
		require.NoError(t, err)
	}
	return path
}

func adniRegistry(t *testing.T, n int) datasets.Registry {
	t.Helper()
	dir := t.TempDir()
	return datasets.Registry{
		datasets.ADNI: {
			MetadataPath: writeMetadata(t, dir, n),
			DataPath:     filepath.Join(dir, "MRI data"),
			Columns:      []int{0, 3, 4, 6},
			KeyColumn:    "Subject",
		},
	}
}

type fakeExtractor struct {
	calls  [][]string
	failOn int
	err    error
}

func (f *fakeExtractor) Extract(subjects []string, kind datasets.Kind, root string, data datasets.Collection) iter.Seq2[features.Batch, error] {
	call := len(f.calls)
	f.calls = append(f.calls, subjects)
	return func(yield func(features.Batch, error) bool) {
		if f.err != nil && call == f.failOn {
			yield(nil, f.err)
			return
		}
		for chunk := range slices.Chunk(subjects, 2) {
			img := make([][]float32, len(chunk))
			labels := make([]int64, len(chunk))
			for i := range chunk {
				img[i] = []float32{float32(i), 1}
			}
			b := features.Batch{
				features.ImageFeature: tensors.FromAnyValue(img),
				features.LabelFeature: tensors.FromAnyValue(labels),
			}
			if !yield(b, nil) {
				return
			}
		}
	}
}

type fakeContainer struct {
	path    string
	attrs   map[string]any
	entries []string
	closed  bool
}

func (c *fakeContainer) SetAttr(name string, value any) error {
	if _, ok := c.attrs[name]; ok {
		return fmt.Errorf("attribute %q exists", name)
	}
	c.attrs[name] = value
	return nil
}

func (c *fakeContainer) WriteTensor(name string, t *tensors.Tensor) error {
	c.entries = append(c.entries, name)
	return nil
}

func (c *fakeContainer) Close() error {
	c.closed = true
	return nil
}

func withFakes(ex *fakeExtractor, out **fakeContainer) []Option {
	return []Option{
		WithExtractor(func(map[string]any) (features.Extractor, error) { return ex, nil }),
		WithContainer(func(path string) (Container, error) {
			*out = &fakeContainer{path: path, attrs: make(map[string]any)}
			return *out, nil
		}),
	}
}

func requirePartition(t *testing.T, ids []string, s Splits) {
	t.Helper()
	all := slices.Concat(s.Train, s.Validation, s.Test)
	require.ElementsMatch(t, ids, all)
	require.Len(t, all, len(ids), "subjects must not repeat across splits")
}

func TestAddDatasetsSplitsSubjects(t *testing.T) {
	reg := adniRegistry(t, 100)
	opts := DefaultSplitOptions().Seeded(42)

	m := New(reg, WithSplitOptions(opts), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, m.AddDatasets(datasets.ADNI))

	s, ok := m.Splits(datasets.ADNI)
	require.True(t, ok)
	require.Len(t, s.Train, 60)
	require.Len(t, s.Validation, 20)
	require.Len(t, s.Test, 20)

	ids, ok := m.Data(datasets.ADNI, "Subject")
	require.True(t, ok)
	requirePartition(t, ids, s)

	again := New(reg, WithSplitOptions(opts))
	require.NoError(t, again.AddDatasets(datasets.ADNI))
	s2, _ := again.Splits(datasets.ADNI)
	require.Equal(t, s, s2, "same seed must give the same split")
}

func TestSplitSizes(t *testing.T) {
	for _, m := range []int{0, 1, 2, 5, 7, 13, 99} {
		ids := make([]string, m)
		for i := range ids {
			ids[i] = fmt.Sprint(i)
		}
		s := partition(ids, DefaultSplitOptions().Seeded(int64(m)))
		require.Len(t, s.Train, int(0.6*float64(m)), "m=%d", m)
		require.Len(t, s.Validation, int(0.2*float64(m)), "m=%d", m)
		require.Equal(t, m-len(s.Train)-len(s.Validation), len(s.Test), "m=%d", m)
		requirePartition(t, ids, s)
	}
}

func TestSplitReplacesPrevious(t *testing.T) {
	m := New(adniRegistry(t, 30), WithSplitOptions(DefaultSplitOptions().Seeded(1)))
	require.NoError(t, m.AddDatasets(datasets.ADNI))

	require.NoError(t, m.Split(datasets.ADNI, "Subject", SplitOptions{Train: 0.5, Valid: 0.5}))
	s, _ := m.Splits(datasets.ADNI)
	require.Len(t, s.Train, 15)
	require.Len(t, s.Validation, 15)
	require.Empty(t, s.Test)

	err := m.Split(datasets.ADNI, "Patient ID", DefaultSplitOptions())
	require.True(t, datasets.MissingColumn.Has(err))

	err = m.Split(datasets.BraTS, "Subject", DefaultSplitOptions())
	require.True(t, datasets.UnknownDataset.Has(err))
	require.True(t, datasets.IsConfigError(err))
}

func TestInvalidSplitOptions(t *testing.T) {
	for _, opts := range []SplitOptions{
		{Train: 0.8, Valid: 0.3},
		{Train: -0.1, Valid: 0.2},
		{Train: 0.6, Valid: 1.2},
	} {
		require.True(t, datasets.InvalidSplit.Has(opts.Validate()), "%+v", opts)
	}

	m := New(adniRegistry(t, 10), WithSplitOptions(SplitOptions{Train: 0.9, Valid: 0.2}))
	err := m.AddDatasets(datasets.ADNI)
	require.True(t, datasets.InvalidSplit.Has(err))
	_, ok := m.Keys(datasets.ADNI)
	require.False(t, ok)
}

func TestAddDatasetsRejectsBatchAtomically(t *testing.T) {
	m := New(adniRegistry(t, 10))

	err := m.AddDatasets(datasets.ADNI, datasets.Kind(7))
	require.True(t, datasets.UnsupportedDataset.Has(err))
	require.Empty(t, m.DataCollection())

	err = m.AddDatasets(datasets.ADNI, datasets.BraTS)
	require.True(t, datasets.MissingEntry.Has(err))
	require.True(t, datasets.IsConfigError(err))
	require.Empty(t, m.DataCollection())
}

func TestAddDatasetsLoadError(t *testing.T) {
	reg := datasets.Registry{datasets.BraTS: {DataPath: filepath.Join(t.TempDir(), "missing"), KeyColumn: "Subject"}}
	m := New(reg)
	err := m.AddDatasets(datasets.BraTS)
	require.True(t, datasets.LoadError.Has(err))
	require.False(t, datasets.IsConfigError(err))
	_, ok := m.Splits(datasets.BraTS)
	require.False(t, ok)
}

func TestAccessors(t *testing.T) {
	m := New(adniRegistry(t, 10))

	_, ok := m.Keys(datasets.ADNI)
	require.False(t, ok)
	_, ok = m.Data(datasets.ADNI, "Subject")
	require.False(t, ok)

	require.NoError(t, m.AddDatasets(datasets.ADNI))

	keys, ok := m.Keys(datasets.ADNI)
	require.True(t, ok)
	require.Equal(t, []string{"Subject", "Group", "Sex", "Age"}, keys)

	group, ok := m.Data(datasets.ADNI, "Group")
	require.True(t, ok)
	require.Len(t, group, 10)

	_, ok = m.Data(datasets.ADNI, "Weight")
	require.False(t, ok)

	collection := m.DataCollection()
	require.Len(t, collection, 1)
	delete(collection, datasets.ADNI)
	_, ok = m.Keys(datasets.ADNI)
	require.True(t, ok, "the returned map is a copy")
}

func TestCompile(t *testing.T) {
	ex := &fakeExtractor{}
	var c *fakeContainer
	out := t.TempDir()
	m := New(adniRegistry(t, 10), append(withFakes(ex, &c),
		WithOutputDir(out),
		WithSplitOptions(DefaultSplitOptions().Seeded(3)))...)
	require.NoError(t, m.AddDatasets(datasets.ADNI))

	params := Params{
		DatasetParam:      "ADNI",
		DatabaseNameParam: "test_db",
		MaxSubjectsParam:  2,
		"slice_ix":        0.5,
	}
	require.NoError(t, m.Compile(params))

	require.Equal(t, filepath.Join(out, "test_db.h5"), c.path)
	require.True(t, c.closed)

	s, _ := m.Splits(datasets.ADNI)
	require.Equal(t, "ADNI", c.attrs[DatasetParam])
	require.Equal(t, 0.5, c.attrs["slice_ix"])
	require.Equal(t, s.Train, c.attrs["subjects_train"])
	require.Equal(t, s.Validation, c.attrs["subjects_validation"])
	require.Equal(t, s.Test, c.attrs["subjects_test"])

	// max_subjects caps what the extractor sees, not the recorded split
	require.Equal(t, [][]string{s.Train[:2], s.Validation[:2], s.Test[:2]}, ex.calls)

	require.Equal(t, []string{
		"train_image_0", "train_label_0",
		"validation_image_0", "validation_label_0",
		"test_image_0", "test_label_0",
	}, c.entries)
}

func TestCompileBatchIndices(t *testing.T) {
	ex := &fakeExtractor{}
	var c *fakeContainer
	m := New(adniRegistry(t, 10), withFakes(ex, &c)...)
	require.NoError(t, m.AddDatasets(datasets.ADNI))
	require.NoError(t, m.Compile(Params{DatasetParam: datasets.ADNI, DatabaseNameParam: "db"}))

	// 6 train subjects in batches of 2
	require.Contains(t, c.entries, "train_image_2")
	require.NotContains(t, c.entries, "train_image_3")
	require.Contains(t, c.entries, "validation_label_0")
	require.Contains(t, c.entries, "test_label_0")
}

func TestCompileExtractorFailure(t *testing.T) {
	boom := errors.New("decode failed")
	ex := &fakeExtractor{failOn: 1, err: boom}
	var c *fakeContainer
	m := New(adniRegistry(t, 10), withFakes(ex, &c)...)
	require.NoError(t, m.AddDatasets(datasets.ADNI))

	err := m.Compile(Params{DatasetParam: "ADNI", DatabaseNameParam: "db"})
	require.Same(t, boom, err, "extractor errors are returned unmodified")
	require.True(t, c.closed)
	require.Contains(t, c.entries, "train_image_0")
	for _, e := range c.entries {
		require.NotContains(t, e, "validation")
		require.NotContains(t, e, "test")
	}
}

func TestCompileExtractorFailureReleasesContainer(t *testing.T) {
	boom := errors.New("decode failed")
	ex := &fakeExtractor{failOn: 1, err: boom}
	out := t.TempDir()
	m := New(adniRegistry(t, 10),
		WithLogger(zaptest.NewLogger(t)),
		WithOutputDir(out),
		WithExtractor(func(map[string]any) (features.Extractor, error) { return ex, nil }))
	require.NoError(t, m.AddDatasets(datasets.ADNI))

	err := m.Compile(Params{DatasetParam: "ADNI", DatabaseNameParam: "db"})
	require.Same(t, boom, err)

	path := filepath.Join(out, "db.h5")
	require.NoFileExists(t, path+container.LockSuffix)

	// the partial container was closed cleanly and stays readable
	r, err := container.Open(path)
	require.NoError(t, err)
	entries, err := r.Entries()
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.Contains(t, entries, "train_image_0")
	for _, e := range entries {
		require.NotContains(t, e, "validation")
	}

	// the next compile is not blocked by a leftover lock
	ex.err = nil
	require.NoError(t, m.Compile(Params{DatasetParam: "ADNI", DatabaseNameParam: "db"}))
	require.NoFileExists(t, path+container.LockSuffix)
}

func TestCompileConfigErrors(t *testing.T) {
	ex := &fakeExtractor{}
	var c *fakeContainer
	m := New(adniRegistry(t, 10), withFakes(ex, &c)...)

	err := m.Compile(Params{DatasetParam: "ADNI", DatabaseNameParam: "db"})
	require.True(t, datasets.UnknownDataset.Has(err))

	require.NoError(t, m.AddDatasets(datasets.ADNI))
	for _, params := range []Params{
		{DatabaseNameParam: "db"},
		{DatasetParam: "OASIS", DatabaseNameParam: "db"},
		{DatasetParam: "ADNI"},
		{DatasetParam: "ADNI", DatabaseNameParam: "../db"},
		{DatasetParam: "ADNI", DatabaseNameParam: "db", MaxSubjectsParam: -1},
		{DatasetParam: "ADNI", DatabaseNameParam: "db", "subjects_train": []string{"x"}},
	} {
		err := m.Compile(params)
		require.True(t, datasets.IsConfigError(err), "%v: %v", params, err)
	}
	require.Nil(t, c, "no container is opened for a configuration error")
	require.Empty(t, ex.calls)
}

func TestCompileContainer(t *testing.T) {
	root := t.TempDir()
	img := [][]float32{{1, 2, 3}, {4, 5, 6}}
	for i := range 5 {
		s := &matfile.Slice{PID: fmt.Sprintf("P%d", i), Label: int64(i%3 + 1), Image: img, TumorMask: img}
		require.NoError(t, matfile.Write(filepath.Join(root, fmt.Sprintf("%d.mat", i+1)), s))
	}
	reg := datasets.Registry{datasets.FigShare: {DataPath: root, KeyColumn: "Patient ID"}}

	out := t.TempDir()
	m := New(reg, WithOutputDir(out), WithSplitOptions(DefaultSplitOptions().Seeded(7)))
	require.NoError(t, m.AddDatasets(datasets.FigShare))
	require.NoError(t, m.Compile(Params{
		DatasetParam:      "FigShare",
		DatabaseNameParam: "figshare",
		"k_space":         false,
	}))

	path := filepath.Join(out, "figshare.h5")
	require.NoFileExists(t, path+container.LockSuffix)

	r, err := container.Open(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, r.Close()) }()

	s, _ := m.Splits(datasets.FigShare)
	train, err := r.Strings("subjects_train")
	require.NoError(t, err)
	require.Equal(t, s.Train, train)
	validation, err := r.Strings("subjects_validation")
	require.NoError(t, err)
	require.Equal(t, s.Validation, validation)

	name, err := r.Strings(DatabaseNameParam)
	require.NoError(t, err)
	require.Equal(t, []string{"figshare"}, name)

	entries, err := r.Entries()
	require.NoError(t, err)
	// 3 train, 1 validation, 1 test subjects, one per batch
	require.Len(t, entries, 10)
	require.Contains(t, entries, "train_image_2")
	require.Contains(t, entries, "test_label_0")

	data, dims, err := r.Float32s("validation_image_0")
	require.NoError(t, err)
	// stored [x][y], matching volume slices
	require.Equal(t, []uint{1, 3, 2}, dims)
	require.Equal(t, []float32{1, 4, 2, 5, 3, 6}, data)
}

func TestCompileLocked(t *testing.T) {
	out := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(out, "db.h5"+container.LockSuffix), nil, 0644))

	m := New(adniRegistry(t, 10), WithOutputDir(out), WithExtractor(func(map[string]any) (features.Extractor, error) {
		return &fakeExtractor{}, nil
	}))
	require.NoError(t, m.AddDatasets(datasets.ADNI))
	err := m.Compile(Params{DatasetParam: "ADNI", DatabaseNameParam: "db"})
	require.True(t, container.CreateError.Has(err))
}

func TestViewSubject(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "HGG", "Brats18_A")
	require.NoError(t, os.MkdirAll(dir, 0755))
	data := make([]float32, 4*4*4)
	for i := range data {
		data[i] = float32(i)
	}
	v, err := volume.New([]int{4, 4, 4}, data, [4][4]float64{{1, 0, 0, 0}, {0, 1, 0, 0}, {0, 0, 1, 0}, {0, 0, 0, 1}})
	require.NoError(t, err)
	require.NoError(t, volume.Save(filepath.Join(dir, "Brats18_A_flair.nii.gz"), v))

	m := New(datasets.Registry{datasets.BraTS: {DataPath: root, KeyColumn: "Subject"}})

	out := filepath.Join(t.TempDir(), "view.png")
	err = m.ViewSubject(datasets.BraTS, "Brats18_A", 0.5, "flair", out)
	require.True(t, datasets.UnknownDataset.Has(err))

	require.NoError(t, m.AddDatasets(datasets.BraTS))
	require.NoError(t, m.ViewSubject(datasets.BraTS, "Brats18_A", 0.5, "flair", out))
	require.FileExists(t, out)

	err = m.ViewSubject(datasets.BraTS, "Brats18_A", 0.5, "t2", out)
	require.ErrorIs(t, err, volume.ErrNotFound)
}
