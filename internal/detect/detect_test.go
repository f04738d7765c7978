package detect

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/ostafen/weever/internal/device"
	"github.com/ostafen/weever/internal/werrors"
	"github.com/stretchr/testify/require"
)

func fatImage(name string) []byte {
	img := make([]byte, 4096)
	copy(img[54:], name)
	return img
}

func TestDetectFAT(t *testing.T) {
	v, err := Detect(device.NewMemDevice(fatImage("FAT12   "), 0), 0)
	require.NoError(t, err)
	require.Equal(t, FAT12, v)

	v, err = Detect(device.NewMemDevice(fatImage("FAT16   "), 0), 0)
	require.NoError(t, err)
	require.Equal(t, FAT16, v)
}

func TestDetectFAT32(t *testing.T) {
	img := make([]byte, 4096)
	copy(img[82:], "FAT32   ")

	v, err := Detect(device.NewMemDevice(img, 0), 0)
	require.NoError(t, err)
	require.Equal(t, FAT32, v)

	// Version word 1 means FAT+, which has no backend.
	binary.LittleEndian.PutUint16(img[42:], 1)
	_, err = Detect(device.NewMemDevice(img, 0), 0)
	require.True(t, werrors.Is(err, werrors.UnsupportedFilesystem))
	require.Contains(t, err.Error(), "FAT+")
}

func TestDetectEXT4(t *testing.T) {
	img := make([]byte, 4096)
	binary.LittleEndian.PutUint16(img[1024+56:], 0xEF53)

	v, err := Detect(device.NewMemDevice(img, 0), 0)
	require.NoError(t, err)
	require.Equal(t, EXT4, v)
}

func TestDetectAPFS(t *testing.T) {
	img := make([]byte, 4096)
	copy(img[32:], "NXSB")

	v, err := Detect(device.NewMemDevice(img, 0), 0)
	require.NoError(t, err)
	require.Equal(t, APFS, v)
}

func TestDetectZeroImageUnsupported(t *testing.T) {
	img := make([]byte, 1<<20)

	_, err := Detect(device.NewMemDevice(img, 0), 0)
	require.True(t, werrors.Is(err, werrors.UnsupportedFilesystem))
}

func TestSeekerDetectPreservesOffset(t *testing.T) {
	img := make([]byte, 1<<20)
	rs := bytes.NewReader(img)

	const start = 17
	_, err := rs.Seek(start, io.SeekStart)
	require.NoError(t, err)

	_, err = SeekerDetect(rs)
	require.True(t, werrors.Is(err, werrors.UnsupportedFilesystem))

	pos, err := rs.Seek(0, io.SeekCurrent)
	require.NoError(t, err)
	require.Equal(t, int64(start), pos)
}

func TestSeekerDetectProbesFromCurrentOffset(t *testing.T) {
	// A FAT16 signature placed relative to a nonzero base must be
	// found when the caller's cursor sits at that base.
	img := make([]byte, 1<<20)
	const base = 2048
	copy(img[base+54:], "FAT16   ")

	rs := bytes.NewReader(img)
	_, err := rs.Seek(base, io.SeekStart)
	require.NoError(t, err)

	v, err := SeekerDetect(rs)
	require.NoError(t, err)
	require.Equal(t, FAT16, v)

	pos, _ := rs.Seek(0, io.SeekCurrent)
	require.Equal(t, int64(base), pos)
}
