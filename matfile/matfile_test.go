package matfile

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "1.mat")
	in := &Slice{
		PID:   "100360",
		Label: 2,
		Image: [][]float32{
			{1, 2, 3},
			{4, 5, 6},
		},
		TumorMask: [][]float32{
			{0, 1, 0},
			{0, 1, 1},
		},
	}
	require.NoError(t, Write(path, in))

	pid, err := ReadPID(path)
	require.NoError(t, err)
	require.Equal(t, "100360", pid)

	out, err := Read(path)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestReadMissingFile(t *testing.T) {
	_, err := ReadPID(filepath.Join(t.TempDir(), "missing.mat"))
	require.Error(t, err)
}
