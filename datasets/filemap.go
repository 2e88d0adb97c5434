package datasets

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Noofbiz/mriData/matfile"
)

// FilesColumn is the implicit column of a FileMap listing each subject's files.
const FilesColumn = "files"

// FileMap maps subject identifiers to the imaging files that belong to them.
type FileMap struct {
	kind  Kind
	key   string
	ids   []string
	files map[string][]string
}

// NewFileMap builds a FileMap from subject -> files. Every subject needs at
// least one file.
func NewFileMap(kind Kind, key string, files map[string][]string) (*FileMap, error) {
	if len(files) == 0 {
		return nil, LoadError.New("%s: no subjects found", kind)
	}
	m := &FileMap{
		kind:  kind,
		key:   key,
		ids:   make([]string, 0, len(files)),
		files: make(map[string][]string, len(files)),
	}
	for id, paths := range files {
		if len(paths) == 0 {
			return nil, LoadError.New("%s: subject %q has no files", kind, id)
		}
		sorted := append([]string(nil), paths...)
		sort.Strings(sorted)
		m.files[id] = sorted
		m.ids = append(m.ids, id)
	}
	sort.Strings(m.ids)
	return m, nil
}

// Kind implements Collection.
func (m *FileMap) Kind() Kind { return m.kind }

// KeyColumn returns the name of the subject identifier column.
func (m *FileMap) KeyColumn() string { return m.key }

// Keys returns the implicit schema: the subject column and the files column.
func (m *FileMap) Keys() []string { return []string{m.key, FilesColumn} }

// Column returns the subject ids, or each subject's files joined with the
// OS path list separator, in subject order.
func (m *FileMap) Column(name string) ([]string, bool) {
	switch name {
	case m.key:
		return append([]string(nil), m.ids...), true
	case FilesColumn:
		out := make([]string, len(m.ids))
		for i, id := range m.ids {
			out[i] = strings.Join(m.files[id], string(os.PathListSeparator))
		}
		return out, true
	default:
		return nil, false
	}
}

// Len returns the number of subjects.
func (m *FileMap) Len() int { return len(m.ids) }

// Files returns the subject's files in sorted order.
func (m *FileMap) Files(subject string) ([]string, bool) {
	f, ok := m.files[subject]
	if !ok {
		return nil, false
	}
	return append([]string(nil), f...), true
}

// IsNIfTI reports whether path looks like a NIfTI volume.
func IsNIfTI(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".nii") || strings.HasSuffix(lower, ".nii.gz")
}

// BraTSFileMap walks root and treats every directory directly holding NIfTI
// files as one subject named after the directory.
func BraTSFileMap(root, key string) (*FileMap, error) {
	files := make(map[string][]string)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !IsNIfTI(path) {
			return nil
		}
		subject := filepath.Base(filepath.Dir(path))
		files[subject] = append(files[subject], path)
		return nil
	})
	if err != nil {
		return nil, LoadError.Wrap(fmt.Errorf("failed to walk %s: %w", root, err))
	}
	return NewFileMap(BraTS, key, files)
}

// FigShareFileMap walks root for MATLAB slice files and groups them by the
// patient id stored inside each file.
func FigShareFileMap(root, key string) (*FileMap, error) {
	files := make(map[string][]string)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".mat") {
			return nil
		}
		pid, err := matfile.ReadPID(path)
		if err != nil {
			return err
		}
		files[pid] = append(files[pid], path)
		return nil
	})
	if err != nil {
		return nil, LoadError.Wrap(fmt.Errorf("failed to build file map from %s: %w", root, err))
	}
	return NewFileMap(FigShare, key, files)
}
