// Package volume decodes NIfTI-1 imaging volumes, cuts 2-D slices out of
// them, and locates the volume or slice belonging to a dataset subject.
package volume

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// Volume is a decoded image. Data is stored x-fastest as in the file and
// already has the intensity scaling applied.
type Volume struct {
	Header Header
	// Dims holds the size of each used dimension (x, y, z, t...).
	Dims []int
	Data []float32
	// Affine maps voxel indices to world coordinates.
	Affine [4][4]float64
}

// Load reads a .nii or .nii.gz file.
func Load(path string) (*Volume, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open volume %s: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}

	v, err := Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}

// Decode reads a single-file NIfTI-1 image from r.
func Decode(r io.Reader) (*Volume, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read volume: %w", err)
	}

	h, order, err := decodeHeader(raw)
	if err != nil {
		return nil, err
	}

	rank := int(h.Dim[0])
	if rank < 1 || rank > 7 {
		return nil, fmt.Errorf("invalid dimension count %d", rank)
	}

	size, err := h.bytesPerVoxel()
	if err != nil {
		return nil, err
	}
	offset := int(h.VoxOffset)
	if offset < headerSize {
		offset = dataOffset
	}
	if offset > len(raw) {
		return nil, fmt.Errorf("voxel offset %d beyond end of file (%d bytes)", offset, len(raw))
	}

	// capacity bounds the voxel count so the running product cannot overflow.
	capacity := (len(raw) - offset) / size
	dims := make([]int, rank)
	n := 1
	for i := range rank {
		dims[i] = int(h.Dim[i+1])
		if dims[i] < 1 {
			return nil, fmt.Errorf("invalid size %d for dimension %d", dims[i], i)
		}
		if dims[i] > capacity/n {
			return nil, fmt.Errorf("truncated voxel data: dimensions %v exceed %d bytes after offset %d",
				h.Dim[1:rank+1], len(raw)-offset, offset)
		}
		n *= dims[i]
	}

	data := make([]float32, n)
	if err := convert(data, raw[offset:offset+n*size], h.Datatype, order); err != nil {
		return nil, err
	}

	if h.SclSlope != 0 && !(h.SclSlope == 1 && h.SclInter == 0) {
		for i := range data {
			data[i] = data[i]*h.SclSlope + h.SclInter
		}
	}

	return &Volume{
		Header: *h,
		Dims:   dims,
		Data:   data,
		Affine: h.affine(),
	}, nil
}

func convert(dst []float32, src []byte, datatype int16, order binary.ByteOrder) error {
	for i := range dst {
		switch datatype {
		case dtUint8:
			dst[i] = float32(src[i])
		case dtInt8:
			dst[i] = float32(int8(src[i]))
		case dtInt16:
			dst[i] = float32(int16(order.Uint16(src[i*2:])))
		case dtUint16:
			dst[i] = float32(order.Uint16(src[i*2:]))
		case dtInt32:
			dst[i] = float32(int32(order.Uint32(src[i*4:])))
		case dtUint32:
			dst[i] = float32(order.Uint32(src[i*4:]))
		case dtFloat32:
			dst[i] = math.Float32frombits(order.Uint32(src[i*4:]))
		case dtFloat64:
			dst[i] = float32(math.Float64frombits(order.Uint64(src[i*8:])))
		default:
			return fmt.Errorf("unsupported NIfTI datatype %d", datatype)
		}
	}
	return nil
}

// New builds a float32 volume with the given spatial dimensions and affine.
func New(dims []int, data []float32, affine [4][4]float64) (*Volume, error) {
	n := 1
	for _, d := range dims {
		n *= d
	}
	if len(dims) == 0 || len(dims) > 7 || n != len(data) {
		return nil, fmt.Errorf("data length %d does not match dimensions %v", len(data), dims)
	}

	v := &Volume{Dims: append([]int(nil), dims...), Data: data, Affine: affine}
	h := &v.Header
	h.SizeofHdr = headerSize
	h.Regular = 'r'
	h.Dim[0] = int16(len(dims))
	h.Pixdim[0] = 1
	for i, d := range dims {
		h.Dim[i+1] = int16(d)
		h.Pixdim[i+1] = 1
	}
	for i := range 3 {
		col := math.Sqrt(affine[0][i]*affine[0][i] + affine[1][i]*affine[1][i] + affine[2][i]*affine[2][i])
		if col > 0 {
			h.Pixdim[i+1] = float32(col)
		}
	}
	h.Datatype = dtFloat32
	h.Bitpix = 32
	h.VoxOffset = dataOffset
	h.SclSlope = 1
	h.SformCode = 1
	copy(h.Magic[:], "n+1\x00")
	return v, nil
}

// Save writes v as a float32 single-file NIfTI-1 image. Paths ending in .gz
// are compressed.
func Save(path string, v *Volume) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create volume %s: %w", path, err)
	}

	var w io.Writer = f
	var gz *gzip.Writer
	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		gz = gzip.NewWriter(f)
		w = gz
	}

	err = Encode(w, v)
	if gz != nil {
		if cerr := gz.Close(); err == nil {
			err = cerr
		}
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}

// Encode writes v to w in little-endian float32 form.
func Encode(w io.Writer, v *Volume) error {
	h := v.Header
	h.SizeofHdr = headerSize
	h.Datatype = dtFloat32
	h.Bitpix = 32
	h.VoxOffset = dataOffset
	h.SclSlope, h.SclInter = 1, 0
	h.SformCode = max(h.SformCode, 1)
	for j := range 4 {
		h.SrowX[j] = float32(v.Affine[0][j])
		h.SrowY[j] = float32(v.Affine[1][j])
		h.SrowZ[j] = float32(v.Affine[2][j])
	}

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, &h); err != nil {
		return fmt.Errorf("failed to encode header: %w", err)
	}
	// No extensions.
	buf.Write([]byte{0, 0, 0, 0})
	if err := binary.Write(&buf, binary.LittleEndian, v.Data); err != nil {
		return fmt.Errorf("failed to encode voxels: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// Slice returns the axial (z) slice at ix as [x][y]. An ix in [0, 1) is a
// fraction of the z extent; larger values are absolute slice indices. 4-D
// volumes are sliced at their first time point.
func (v *Volume) Slice(ix float64) ([][]float32, error) {
	if len(v.Dims) < 2 {
		return nil, fmt.Errorf("cannot slice a %d-D volume", len(v.Dims))
	}
	nx, ny, nz := v.Dims[0], v.Dims[1], 1
	if len(v.Dims) > 2 {
		nz = v.Dims[2]
	}

	z := int(ix)
	if ix >= 0 && ix < 1 {
		z = int(ix * float64(nz))
	}
	if z < 0 || z >= nz {
		return nil, fmt.Errorf("slice index %v outside [0, %d)", ix, nz)
	}

	out := make([][]float32, nx)
	base := z * nx * ny
	for x := range nx {
		out[x] = make([]float32, ny)
		for y := range ny {
			out[x][y] = v.Data[base+y*nx+x]
		}
	}
	return out, nil
}
