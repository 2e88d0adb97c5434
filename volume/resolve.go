package volume

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/Noofbiz/mriData/datasets"
	"github.com/Noofbiz/mriData/matfile"
)

// ErrNotFound is returned when no file matches a subject and scan type.
var ErrNotFound = errors.New("volume not found")

var errStop = errors.New("stop walk")

// Find walks dir for the first NIfTI file whose path mentions both subject
// and scanType, ignoring case.
func Find(dir, subject, scanType string) (string, error) {
	subject, scanType = strings.ToLower(subject), strings.ToLower(scanType)

	var found string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !datasets.IsNIfTI(path) {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		lower := strings.ToLower(rel)
		if strings.Contains(lower, subject) && strings.Contains(lower, scanType) {
			found = path
			return errStop
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		return "", fmt.Errorf("failed to search %s: %w", dir, err)
	}
	if found == "" {
		return "", fmt.Errorf("%w: subject %q scan %q under %s", ErrNotFound, subject, scanType, dir)
	}
	return found, nil
}

// Extract decodes the scanType volume of subject stored under root, the
// ADNI layout.
func Extract(root, subject, scanType string) (*Volume, error) {
	path, err := Find(root, subject, scanType)
	if err != nil {
		return nil, err
	}
	return Load(path)
}

// pickScan returns the file whose name carries the "_<scan>." modality tag,
// the BraTS naming convention.
func pickScan(files []string, scanType string) (string, error) {
	tag := "_" + strings.ToLower(scanType) + "."
	for _, f := range files {
		if strings.Contains(strings.ToLower(filepath.Base(f)), tag) {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: no %q scan among %d files", ErrNotFound, scanType, len(files))
}

// Open locates and decodes the volume of subject for a volumetric dataset
// kind. data is the kind's loaded collection.
func Open(kind datasets.Kind, root, subject, scanType string, data datasets.Collection) (*Volume, error) {
	switch kind {
	case datasets.ADNI:
		return Extract(root, subject, scanType)
	case datasets.BraTS:
		files, err := subjectFiles(data, subject)
		if err != nil {
			return nil, err
		}
		path, err := pickScan(files, scanType)
		if err != nil {
			return nil, fmt.Errorf("subject %q: %w", subject, err)
		}
		return Load(path)
	case datasets.FigShare:
		return nil, fmt.Errorf("%s subjects are stored as 2-D slices, not volumes", kind)
	default:
		return nil, datasets.UnsupportedDataset.New("%s", kind)
	}
}

// SubjectSlice returns the 2-D image of subject at slice ix. FigShare
// subjects are already slices, so ix and scanType are ignored and the first
// slice file is used.
func SubjectSlice(kind datasets.Kind, root, subject, scanType string, ix float64, data datasets.Collection) ([][]float32, error) {
	if kind == datasets.FigShare {
		s, err := FigShareSlice(data, subject)
		if err != nil {
			return nil, err
		}
		return s.Image, nil
	}

	v, err := Open(kind, root, subject, scanType, data)
	if err != nil {
		return nil, err
	}
	return v.Slice(ix)
}

// FigShareSlice decodes the first slice file of a FigShare subject. Image
// and TumorMask are re-indexed from [row][col] to [x][y] so they share the
// layout of Volume.Slice.
func FigShareSlice(data datasets.Collection, subject string) (*matfile.Slice, error) {
	files, err := subjectFiles(data, subject)
	if err != nil {
		return nil, err
	}
	s, err := matfile.Read(files[0])
	if err != nil {
		return nil, err
	}
	s.Image = transpose(s.Image)
	s.TumorMask = transpose(s.TumorMask)
	return s, nil
}

// transpose turns a [row][col] matrix into [col][row].
func transpose(m [][]float32) [][]float32 {
	if len(m) == 0 {
		return m
	}
	out := make([][]float32, len(m[0]))
	for c := range out {
		out[c] = make([]float32, len(m))
		for r := range m {
			out[c][r] = m[r][c]
		}
	}
	return out
}

func subjectFiles(data datasets.Collection, subject string) ([]string, error) {
	fm, ok := data.(datasets.SubjectFiles)
	if !ok {
		return nil, fmt.Errorf("%T does not map subjects to files", data)
	}
	files, ok := fm.Files(subject)
	if !ok {
		return nil, fmt.Errorf("%w: unknown subject %q", ErrNotFound, subject)
	}
	return files, nil
}
