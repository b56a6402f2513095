// Package nifti reads single-file NIfTI-1 and NIfTI-2 volumes, optionally gzipped.
package nifti

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/klauspost/compress/gzip"
)

// Header sizes double as the version marker in the first four bytes.
const (
	nifti1HeaderSize = 348
	nifti2HeaderSize = 540
)

// NIfTI datatype codes.
const (
	DTUint8   int16 = 2
	DTInt16   int16 = 4
	DTInt32   int16 = 8
	DTFloat32 int16 = 16
	DTFloat64 int16 = 64
	DTInt8    int16 = 256
	DTUint16  int16 = 512
	DTUint32  int16 = 768
	DTInt64   int16 = 1024
	DTUint64  int16 = 1280
)

var bytesPerVoxel = map[int16]int{
	DTUint8:   1,
	DTInt16:   2,
	DTInt32:   4,
	DTFloat32: 4,
	DTFloat64: 8,
	DTInt8:    1,
	DTUint16:  2,
	DTUint32:  4,
	DTInt64:   8,
	DTUint64:  8,
}

// Image is a decoded volume. Data holds the scaled voxel values in file order,
// with the first dimension varying fastest.
type Image struct {
	Version  int
	Dims     []int     // dim[1..dim[0]]
	PixDim   []float64 // pixdim[1..dim[0]]
	Datatype int16
	SclSlope float64
	SclInter float64
	Data     []float64
}

// NumVoxels returns the product of all dimensions.
func (img *Image) NumVoxels() int {
	n := 1
	for _, d := range img.Dims {
		n *= d
	}
	return n
}

// NDim returns the number of dimensions.
func (img *Image) NDim() int {
	return len(img.Dims)
}

// header is the part of both header versions the reader needs.
type header struct {
	version   int
	dims      []int64
	pixdim    []float64
	datatype  int16
	voxOffset int64
	slope     float64
	inter     float64
	magic     []byte
}

// Load reads a NIfTI file from disk. Gzip is detected from the stream, not the name.
func Load(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	br := bufio.NewReader(f)
	var r io.Reader = br
	size := int64(-1)
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		defer func() { _ = gz.Close() }()
		r = gz
		size = -1
	}
	return decode(r, size)
}

// Decode reads a NIfTI header and its voxel data from r.
func Decode(r io.Reader) (*Image, error) {
	return decode(r, -1)
}

// decode reads an image from r. A non-negative size is the length of the
// uncompressed stream and bounds what the header may declare.
func decode(r io.Reader, size int64) (*Image, error) {
	head := make([]byte, 4)
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	order, hdrSize, err := detectOrder(head)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, hdrSize)
	copy(buf, head)
	if _, err := io.ReadFull(r, buf[4:]); err != nil {
		return nil, fmt.Errorf("truncated header: %w", err)
	}

	var h header
	if hdrSize == nifti1HeaderSize {
		h = parseNifti1(buf, order)
	} else {
		h = parseNifti2(buf, order)
	}
	if err := h.validate(); err != nil {
		return nil, err
	}

	img := &Image{
		Version:  h.version,
		Datatype: h.datatype,
		SclSlope: h.slope,
		SclInter: h.inter,
	}
	bpv := int64(bytesPerVoxel[h.datatype])
	nvox, err := voxelCount(h.dims, bpv)
	if err != nil {
		return nil, err
	}
	for i, d := range h.dims {
		img.Dims = append(img.Dims, int(d))
		img.PixDim = append(img.PixDim, h.pixdim[i])
	}
	dataLen := nvox * bpv
	if size >= 0 && (h.voxOffset > size || dataLen > size-h.voxOffset) {
		return nil, fmt.Errorf("truncated voxel data: header declares %d bytes at offset %d in a %d-byte file",
			dataLen, h.voxOffset, size)
	}

	if skip := h.voxOffset - int64(hdrSize); skip > 0 {
		if _, err := io.CopyN(io.Discard, r, skip); err != nil {
			return nil, fmt.Errorf("failed to reach voxel data: %w", err)
		}
	}

	// The buffer grows with what the stream delivers, so a lying header
	// fails on the short read instead of on the allocation.
	raw, err := io.ReadAll(io.LimitReader(r, dataLen))
	if err != nil {
		return nil, fmt.Errorf("failed to read voxel data: %w", err)
	}
	if int64(len(raw)) < dataLen {
		return nil, fmt.Errorf("truncated voxel data: got %d of %d bytes", len(raw), dataLen)
	}
	img.Data = convert(raw, h.datatype, order, int(nvox))

	if h.slope != 0 && !math.IsNaN(h.slope) && (h.slope != 1 || h.inter != 0) {
		for i, v := range img.Data {
			img.Data[i] = v*h.slope + h.inter
		}
	}
	return img, nil
}

// voxelCount multiplies the dims, failing when the voxel data would not fit in
// an int-sized buffer.
func voxelCount(dims []int64, bpv int64) (int64, error) {
	limit := int64(math.MaxInt) / bpv
	n := int64(1)
	for _, d := range dims {
		if d > limit/n {
			return 0, fmt.Errorf("dims %v are too large", dims)
		}
		n *= d
	}
	return n, nil
}

func detectOrder(head []byte) (binary.ByteOrder, int, error) {
	for _, order := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		switch size := int(int32(order.Uint32(head))); size {
		case nifti1HeaderSize, nifti2HeaderSize:
			return order, size, nil
		}
	}
	return nil, 0, fmt.Errorf("not a NIfTI file: unexpected header size")
}

func parseNifti1(buf []byte, order binary.ByteOrder) header {
	h := header{version: 1, magic: buf[344:348]}
	ndim := int(int16(order.Uint16(buf[40:])))
	if ndim < 1 || ndim > 7 {
		h.dims = nil
		h.datatype = -1
		return h
	}
	for i := 1; i <= ndim; i++ {
		h.dims = append(h.dims, int64(int16(order.Uint16(buf[40+2*i:]))))
		h.pixdim = append(h.pixdim, float64(math.Float32frombits(order.Uint32(buf[76+4*i:]))))
	}
	h.datatype = int16(order.Uint16(buf[70:]))
	h.voxOffset = int64(math.Float32frombits(order.Uint32(buf[108:])))
	h.slope = float64(math.Float32frombits(order.Uint32(buf[112:])))
	h.inter = float64(math.Float32frombits(order.Uint32(buf[116:])))
	return h
}

func parseNifti2(buf []byte, order binary.ByteOrder) header {
	h := header{version: 2, magic: buf[4:12]}
	ndim := int(int64(order.Uint64(buf[16:])))
	if ndim < 1 || ndim > 7 {
		h.datatype = -1
		return h
	}
	for i := 1; i <= ndim; i++ {
		h.dims = append(h.dims, int64(order.Uint64(buf[16+8*i:])))
		h.pixdim = append(h.pixdim, math.Float64frombits(order.Uint64(buf[104+8*i:])))
	}
	h.datatype = int16(order.Uint16(buf[12:]))
	h.voxOffset = int64(order.Uint64(buf[168:]))
	h.slope = math.Float64frombits(order.Uint64(buf[176:]))
	h.inter = math.Float64frombits(order.Uint64(buf[184:]))
	return h
}

func (h header) validate() error {
	switch h.version {
	case 1:
		if bytes.Equal(h.magic, []byte("ni1\x00")) {
			return fmt.Errorf("separate .hdr/.img pairs are not supported")
		}
		if !bytes.Equal(h.magic, []byte("n+1\x00")) {
			return fmt.Errorf("bad NIfTI-1 magic %q", h.magic)
		}
	case 2:
		if !bytes.HasPrefix(h.magic, []byte("n+2\x00")) {
			return fmt.Errorf("bad NIfTI-2 magic %q", h.magic)
		}
	}
	if len(h.dims) == 0 {
		return fmt.Errorf("dim[0] must be between 1 and 7")
	}
	for i, d := range h.dims {
		if d < 1 {
			return fmt.Errorf("dim[%d] is %d", i+1, d)
		}
	}
	if _, ok := bytesPerVoxel[h.datatype]; !ok {
		return fmt.Errorf("unsupported datatype %d", h.datatype)
	}
	minOffset := int64(nifti1HeaderSize)
	if h.version == 2 {
		minOffset = nifti2HeaderSize
	}
	if h.voxOffset < minOffset {
		return fmt.Errorf("vox_offset %d points inside the header", h.voxOffset)
	}
	return nil
}

func convert(raw []byte, datatype int16, order binary.ByteOrder, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		switch datatype {
		case DTUint8:
			out[i] = float64(raw[i])
		case DTInt8:
			out[i] = float64(int8(raw[i]))
		case DTInt16:
			out[i] = float64(int16(order.Uint16(raw[2*i:])))
		case DTUint16:
			out[i] = float64(order.Uint16(raw[2*i:]))
		case DTInt32:
			out[i] = float64(int32(order.Uint32(raw[4*i:])))
		case DTUint32:
			out[i] = float64(order.Uint32(raw[4*i:]))
		case DTFloat32:
			out[i] = float64(math.Float32frombits(order.Uint32(raw[4*i:])))
		case DTInt64:
			out[i] = float64(int64(order.Uint64(raw[8*i:])))
		case DTUint64:
			out[i] = float64(order.Uint64(raw[8*i:]))
		case DTFloat64:
			out[i] = math.Float64frombits(order.Uint64(raw[8*i:]))
		}
	}
	return out
}
