package manager

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Noofbiz/mriData/datasets"
	"github.com/Noofbiz/mriData/view"
	"github.com/Noofbiz/mriData/volume"
)

// ViewSubject renders slice sliceIx of the subject's scanType volume to
// out. FigShare subjects are single slices and ignore sliceIx and
// scanType.
func (m *Manager) ViewSubject(kind datasets.Kind, subject string, sliceIx float64, scanType, out string) error {
	data, ok := m.collections[kind]
	if !ok {
		return datasets.UnknownDataset.New("%s", kind)
	}
	entry, err := m.registry.Entry(kind)
	if err != nil {
		return err
	}

	img, err := volume.SubjectSlice(kind, entry.DataPath, subject, scanType, sliceIx, data)
	if err != nil {
		return err
	}

	title := fmt.Sprintf("%s %s %s", kind, subject, scanType)
	if err := view.Render(img, title, out); err != nil {
		return err
	}
	m.log.Info("rendered subject", zap.Stringer("dataset", kind), zap.String("subject", subject), zap.String("out", out))
	return nil
}
