package nifti

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	img := &Image{
		Dims:     []int{2, 2, 2},
		PixDim:   []float64{3, 3, 3.5},
		Datatype: DTFloat32,
		Data:     []float64{0, 1, 2, 3, 4, 5, 6, 7.5},
	}

	for _, name := range []string{"brain.nii", "brain.nii.gz"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, Save(path, img))

			got, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, 1, got.Version)
			assert.Equal(t, []int{2, 2, 2}, got.Dims)
			assert.InDeltaSlice(t, []float64{3, 3, 3.5}, got.PixDim, 1e-6)
			assert.Equal(t, DTFloat32, got.Datatype)
			assert.InDeltaSlice(t, img.Data, got.Data, 1e-6)
			assert.Equal(t, 8, got.NumVoxels())
			assert.Equal(t, 3, got.NDim())
		})
	}
}

func TestGzipDetectedFromContent(t *testing.T) {
	dir := t.TempDir()
	gzPath := filepath.Join(dir, "src.nii.gz")
	require.NoError(t, Save(gzPath, &Image{Dims: []int{3}, Data: []float64{1, 2, 3}}))

	// A gzipped file without the .gz name still loads
	renamed := filepath.Join(dir, "plain.nii")
	require.NoError(t, os.Rename(gzPath, renamed))
	got, err := Load(renamed)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, got.Data)
}

func TestScaling(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, &Image{
		Dims:     []int{4},
		Datatype: DTInt16,
		SclSlope: 2,
		SclInter: -1,
		Data:     []float64{0, 1, -2, 100},
	}))

	got, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, []float64{-1, 1, -5, 199}, got.Data)
}

func TestZeroSlopeMeansNoScaling(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, &Image{Dims: []int{2}, Datatype: DTUint8, SclInter: 5, Data: []float64{7, 9}}))

	got, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, []float64{7, 9}, got.Data)
}

// nifti2Volume builds a big-endian NIfTI-2 file with int32 voxels.
func nifti2Volume(dims []int64, data []int32) []byte {
	be := binary.BigEndian
	hdr := make([]byte, nifti2HeaderSize+4)
	be.PutUint32(hdr[0:], nifti2HeaderSize)
	copy(hdr[4:], "n+2\x00\r\n\x1a\n")
	be.PutUint16(hdr[12:], uint16(DTInt32))
	be.PutUint16(hdr[14:], 32)
	be.PutUint64(hdr[16:], uint64(len(dims)))
	for i, d := range dims {
		be.PutUint64(hdr[24+8*i:], uint64(d))
		be.PutUint64(hdr[112+8*i:], math.Float64bits(2))
	}
	be.PutUint64(hdr[168:], uint64(len(hdr)))
	body := make([]byte, 4*len(data))
	for i, v := range data {
		be.PutUint32(body[4*i:], uint32(v))
	}
	return append(hdr, body...)
}

func TestDecodeNifti2BigEndian(t *testing.T) {
	raw := nifti2Volume([]int64{2, 1, 1, 3}, []int32{1, -2, 3, -4, 5, -6})

	got, err := Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version)
	assert.Equal(t, []int{2, 1, 1, 3}, got.Dims)
	assert.Equal(t, []float64{2, 2, 2, 2}, got.PixDim)
	assert.Equal(t, []float64{1, -2, 3, -4, 5, -6}, got.Data)
}

func TestDecodeErrors(t *testing.T) {
	t.Run("not nifti", func(t *testing.T) {
		_, err := Decode(bytes.NewReader([]byte("GIF89a....")))
		assert.ErrorContains(t, err, "not a NIfTI file")
	})

	t.Run("truncated header", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Encode(&buf, &Image{Dims: []int{2}, Data: []float64{1, 2}}))
		_, err := Decode(bytes.NewReader(buf.Bytes()[:100]))
		assert.ErrorContains(t, err, "truncated header")
	})

	t.Run("truncated data", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Encode(&buf, &Image{Dims: []int{4}, Data: []float64{1, 2, 3, 4}}))
		_, err := Decode(bytes.NewReader(buf.Bytes()[:buf.Len()-4]))
		assert.ErrorContains(t, err, "truncated voxel data")
	})

	t.Run("unsupported datatype", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Encode(&buf, &Image{Dims: []int{1}, Data: []float64{1}}))
		raw := buf.Bytes()
		binary.LittleEndian.PutUint16(raw[70:], 32) // complex64
		_, err := Decode(bytes.NewReader(raw))
		assert.ErrorContains(t, err, "unsupported datatype")
	})

	t.Run("header and image pair", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Encode(&buf, &Image{Dims: []int{1}, Data: []float64{1}}))
		raw := buf.Bytes()
		copy(raw[344:], "ni1\x00")
		_, err := Decode(bytes.NewReader(raw))
		assert.ErrorContains(t, err, "not supported")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.nii"))
		assert.Error(t, err)
	})
}

// oversizedVolume encodes a small 2x2x2 volume, then claims 32767 voxels per axis.
func oversizedVolume(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, &Image{Dims: []int{2, 2, 2}, Data: make([]float64, 8)}))
	raw := buf.Bytes()
	for i := 1; i <= 3; i++ {
		binary.LittleEndian.PutUint16(raw[40+2*i:], 32767)
	}
	return raw
}

func TestOversizedDims(t *testing.T) {
	t.Run("stream", func(t *testing.T) {
		_, err := Decode(bytes.NewReader(oversizedVolume(t)))
		assert.ErrorContains(t, err, "truncated voxel data")
	})

	t.Run("plain file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "liar.nii")
		require.NoError(t, os.WriteFile(path, oversizedVolume(t), 0o644))
		_, err := Load(path)
		assert.ErrorContains(t, err, "byte file")
	})

	t.Run("gzip file", func(t *testing.T) {
		var gz bytes.Buffer
		zw := gzip.NewWriter(&gz)
		_, err := zw.Write(oversizedVolume(t))
		require.NoError(t, err)
		require.NoError(t, zw.Close())

		path := filepath.Join(t.TempDir(), "liar.nii.gz")
		require.NoError(t, os.WriteFile(path, gz.Bytes(), 0o644))
		_, err = Load(path)
		assert.ErrorContains(t, err, "truncated voxel data")
	})

	t.Run("nifti2 overflow", func(t *testing.T) {
		raw := nifti2Volume([]int64{1 << 40, 1 << 40}, []int32{1})
		_, err := Decode(bytes.NewReader(raw))
		assert.ErrorContains(t, err, "too large")
	})
}

func TestEncodeRejectsBadImages(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, Encode(&buf, &Image{Dims: []int{3}, Data: []float64{1}}))
	assert.Error(t, Encode(&buf, &Image{}))
	assert.Error(t, Encode(&buf, &Image{Dims: []int{1}, Datatype: DTInt64, Data: []float64{1}}))
}
