package volume

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

const (
	headerSize = 348
	// dataOffset is where Save places voxel data: header plus the 4-byte
	// extension flag.
	dataOffset = headerSize + 4
)

// NIfTI-1 datatype codes.
const (
	dtUint8   = 2
	dtInt16   = 4
	dtInt32   = 8
	dtFloat32 = 16
	dtFloat64 = 64
	dtInt8    = 256
	dtUint16  = 512
	dtUint32  = 768
)

// Header is the on-disk NIfTI-1 header. Field order and sizes match the
// 348-byte layout so it can be decoded with encoding/binary.
type Header struct {
	SizeofHdr     int32
	LegacyType    [10]byte
	DBName        [18]byte
	Extents       int32
	SessionError  int16
	Regular       byte
	DimInfo       byte
	Dim           [8]int16
	IntentP1      float32
	IntentP2      float32
	IntentP3      float32
	IntentCode    int16
	Datatype      int16
	Bitpix        int16
	SliceStart    int16
	Pixdim        [8]float32
	VoxOffset     float32
	SclSlope      float32
	SclInter      float32
	SliceEnd      int16
	SliceCode     byte
	XYZTUnits     byte
	CalMax        float32
	CalMin        float32
	SliceDuration float32
	TOffset       float32
	GLMax         int32
	GLMin         int32
	Descrip       [80]byte
	AuxFile       [24]byte
	QformCode     int16
	SformCode     int16
	QuaternB      float32
	QuaternC      float32
	QuaternD      float32
	QOffsetX      float32
	QOffsetY      float32
	QOffsetZ      float32
	SrowX         [4]float32
	SrowY         [4]float32
	SrowZ         [4]float32
	IntentName    [16]byte
	Magic         [4]byte
}

// decodeHeader detects the byte order from sizeof_hdr and decodes the header.
func decodeHeader(raw []byte) (*Header, binary.ByteOrder, error) {
	if len(raw) < headerSize {
		return nil, nil, fmt.Errorf("file too short for a NIfTI header: %d bytes", len(raw))
	}

	var order binary.ByteOrder
	switch {
	case binary.LittleEndian.Uint32(raw) == headerSize:
		order = binary.LittleEndian
	case binary.BigEndian.Uint32(raw) == headerSize:
		order = binary.BigEndian
	default:
		return nil, nil, fmt.Errorf("not a NIfTI-1 file")
	}

	h := &Header{}
	if err := binary.Read(bytes.NewReader(raw[:headerSize]), order, h); err != nil {
		return nil, nil, fmt.Errorf("failed to decode header: %w", err)
	}
	if string(h.Magic[:3]) != "n+1" {
		return nil, nil, fmt.Errorf("unsupported NIfTI magic %q (only single-file images)", h.Magic[:3])
	}
	return h, order, nil
}

// bytesPerVoxel returns the storage size of the header's datatype.
func (h *Header) bytesPerVoxel() (int, error) {
	switch h.Datatype {
	case dtUint8, dtInt8:
		return 1, nil
	case dtInt16, dtUint16:
		return 2, nil
	case dtInt32, dtUint32, dtFloat32:
		return 4, nil
	case dtFloat64:
		return 8, nil
	default:
		return 0, fmt.Errorf("unsupported NIfTI datatype %d", h.Datatype)
	}
}

// affine returns the voxel-to-world transform, preferring the sform, then
// the qform, then plain voxel scaling.
func (h *Header) affine() [4][4]float64 {
	var a [4][4]float64
	a[3][3] = 1

	switch {
	case h.SformCode > 0:
		for i, row := range [3][4]float32{h.SrowX, h.SrowY, h.SrowZ} {
			for j, v := range row {
				a[i][j] = float64(v)
			}
		}
	case h.QformCode > 0:
		b, c, d := float64(h.QuaternB), float64(h.QuaternC), float64(h.QuaternD)
		aq := math.Sqrt(math.Max(0, 1-(b*b+c*c+d*d)))
		qfac := 1.0
		if h.Pixdim[0] < 0 {
			qfac = -1
		}
		r := [3][3]float64{
			{aq*aq + b*b - c*c - d*d, 2 * (b*c - aq*d), 2 * (b*d + aq*c)},
			{2 * (b*c + aq*d), aq*aq + c*c - b*b - d*d, 2 * (c*d - aq*b)},
			{2 * (b*d - aq*c), 2 * (c*d + aq*b), aq*aq + d*d - b*b - c*c},
		}
		scale := [3]float64{float64(h.Pixdim[1]), float64(h.Pixdim[2]), float64(h.Pixdim[3]) * qfac}
		for i := range 3 {
			for j := range 3 {
				a[i][j] = r[i][j] * scale[j]
			}
		}
		a[0][3], a[1][3], a[2][3] = float64(h.QOffsetX), float64(h.QOffsetY), float64(h.QOffsetZ)
	default:
		for i := range 3 {
			a[i][i] = float64(h.Pixdim[i+1])
		}
	}
	return a
}
