package nifti

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// nifti1VoxOffset leaves room for the empty extension block after the header.
const nifti1VoxOffset = 352

// Encode writes img as a little-endian single-file NIfTI-1 volume.
// Data is written raw, so SclSlope and SclInter describe how a reader scales it.
// Only the uint8, int16, float32 and float64 datatypes are written.
func Encode(w io.Writer, img *Image) error {
	if len(img.Dims) == 0 || len(img.Dims) > 7 {
		return fmt.Errorf("image must have between 1 and 7 dimensions")
	}
	if img.NumVoxels() != len(img.Data) {
		return fmt.Errorf("dims describe %d voxels but data has %d", img.NumVoxels(), len(img.Data))
	}
	datatype := img.Datatype
	if datatype == 0 {
		datatype = DTFloat64
	}
	bpv, ok := bytesPerVoxel[datatype]
	if !ok {
		return fmt.Errorf("unsupported datatype %d", datatype)
	}

	le := binary.LittleEndian
	hdr := make([]byte, nifti1VoxOffset)
	le.PutUint32(hdr[0:], nifti1HeaderSize)
	le.PutUint16(hdr[40:], uint16(len(img.Dims)))
	for i, d := range img.Dims {
		le.PutUint16(hdr[42+2*i:], uint16(d))
	}
	le.PutUint16(hdr[70:], uint16(datatype))
	le.PutUint16(hdr[72:], uint16(bpv*8))
	le.PutUint32(hdr[76:], math.Float32bits(1))
	for i := range img.Dims {
		pd := 1.0
		if i < len(img.PixDim) {
			pd = img.PixDim[i]
		}
		le.PutUint32(hdr[80+4*i:], math.Float32bits(float32(pd)))
	}
	le.PutUint32(hdr[108:], math.Float32bits(nifti1VoxOffset))
	le.PutUint32(hdr[112:], math.Float32bits(float32(img.SclSlope)))
	le.PutUint32(hdr[116:], math.Float32bits(float32(img.SclInter)))
	copy(hdr[344:], "n+1\x00")

	body := make([]byte, len(img.Data)*bpv)
	for i, v := range img.Data {
		switch datatype {
		case DTUint8:
			body[i] = uint8(v)
		case DTInt16:
			le.PutUint16(body[2*i:], uint16(int16(v)))
		case DTFloat32:
			le.PutUint32(body[4*i:], math.Float32bits(float32(v)))
		case DTFloat64:
			le.PutUint64(body[8*i:], math.Float64bits(v))
		default:
			return fmt.Errorf("writing datatype %d is not supported", datatype)
		}
	}

	if _, err := w.Write(hdr); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

// Save writes img to path, gzipping when the name ends in .gz.
func Save(path string, img *Image) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	bw := bufio.NewWriter(f)
	if strings.HasSuffix(path, ".gz") {
		gz := gzip.NewWriter(bw)
		if err := Encode(gz, img); err != nil {
			return err
		}
		if err := gz.Close(); err != nil {
			return err
		}
	} else if err := Encode(bw, img); err != nil {
		return err
	}
	return bw.Flush()
}
