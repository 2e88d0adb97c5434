package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Noofbiz/mriData/datasets"
	"github.com/Noofbiz/mriData/manager"
)

func TestBuildParams(t *testing.T) {
	path := filepath.Join(t.TempDir(), "params.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
dataset: BRATS
database_name: brats_t1
scan_type: t1
slice_ix: 0.4
k_space: false
`), 0644))
	t.Setenv("MRIDATA_DATABASE_NAME", "brats_env")

	v, err := newViper(path)
	require.NoError(t, err)

	params, err := buildParams(v, []string{"batch_size=4", "Label_Column=Group"})
	require.NoError(t, err)

	kind, err := params.Kind()
	require.NoError(t, err)
	require.Equal(t, datasets.BraTS, kind)

	name, err := params.DatabaseName()
	require.NoError(t, err)
	require.Equal(t, "brats_env", name)

	require.Equal(t, "t1", params["scan_type"])
	require.Equal(t, 0.4, params["slice_ix"])
	require.Equal(t, false, params["k_space"])
	require.Equal(t, int64(4), params["batch_size"])
	require.Equal(t, "Group", params["label_column"])
	require.NotContains(t, params, manager.MaxSubjectsParam)

	_, err = buildParams(v, []string{"no-value"})
	require.Error(t, err)
}

func TestNewViperMissingFile(t *testing.T) {
	_, err := newViper(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestParseValue(t *testing.T) {
	require.Equal(t, int64(12), parseValue("12"))
	require.Equal(t, 0.5, parseValue("0.5"))
	require.Equal(t, true, parseValue("true"))
	require.Equal(t, "T1", parseValue("T1"))
}
