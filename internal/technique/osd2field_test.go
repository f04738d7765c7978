package technique

import (
	"bytes"
	"testing"

	"github.com/ostafen/weever/internal/device"
	"github.com/ostafen/weever/internal/ext4fs"
	"github.com/ostafen/weever/internal/werrors"
	"github.com/stretchr/testify/require"
)

func newExt4Fixture(t *testing.T, cfg ext4fs.Ext4ImageConfig) (*device.MemDevice, *ext4fs.Parser) {
	t.Helper()
	img := ext4fs.BuildExt4Image(cfg)
	dev := device.NewMemDevice(img, 0)
	p, err := ext4fs.NewParser(dev, 0)
	require.NoError(t, err)
	return dev, p
}

func TestOSD2RoundTrip(t *testing.T) {
	dev, p := newExt4Fixture(t, ext4fs.Ext4ImageConfig{BlockSize: 4096, InodeCount: 1024})
	osd2 := NewOSD2Field(dev, p)

	// A 400-byte payload, all zero except byte 200 = 0x01: 200 two-byte
	// chunks, the 101st of which is 0x01 0x00.
	payload := make([]byte, 400)
	payload[200] = 0x01

	m, err := osd2.Write(bytes.NewReader(payload), nil)
	require.NoError(t, err)

	md := m.(*OSD2Metadata)
	require.Len(t, md.InodeNumbers, 200)
	require.Equal(t, uint32(400), md.Length)
	// Inodes are consumed in order starting at 1; all slots start
	// zeroed on a fresh image.
	require.Equal(t, uint32(1), md.InodeNumbers[0])
	require.Equal(t, uint32(200), md.InodeNumbers[199])

	var out bytes.Buffer
	require.NoError(t, osd2.Read(m, &out))
	require.Equal(t, payload, out.Bytes())
}

func TestOSD2SkipsPreoccupiedSlots(t *testing.T) {
	dev, p := newExt4Fixture(t, ext4fs.Ext4ImageConfig{BlockSize: 4096, InodeCount: 64})
	osd2 := NewOSD2Field(dev, p)

	// Occupy inode 2's slot before hiding.
	off, err := p.OSD2Offset(2)
	require.NoError(t, err)
	_, err = dev.WriteAt([]byte{0xDE, 0xAD}, off)
	require.NoError(t, err)

	m, err := osd2.Write(bytes.NewReader([]byte{1, 2, 3, 4}), nil)
	require.NoError(t, err)

	md := m.(*OSD2Metadata)
	require.Equal(t, []uint32{1, 3}, md.InodeNumbers)

	var out bytes.Buffer
	require.NoError(t, osd2.Read(m, &out))
	require.Equal(t, []byte{1, 2, 3, 4}, out.Bytes())
}

func TestOSD2OddLengthPayload(t *testing.T) {
	dev, p := newExt4Fixture(t, ext4fs.Ext4ImageConfig{BlockSize: 4096, InodeCount: 64})
	osd2 := NewOSD2Field(dev, p)

	payload := []byte("hello")
	m, err := osd2.Write(bytes.NewReader(payload), nil)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, osd2.Read(m, &out))
	require.Equal(t, payload, out.Bytes())
}

func TestOSD2CapacityBoundary(t *testing.T) {
	dev, p := newExt4Fixture(t, ext4fs.Ext4ImageConfig{BlockSize: 4096, InodeCount: 64})
	osd2 := NewOSD2Field(dev, p)

	// Exactly capacity succeeds.
	m, err := osd2.Write(bytes.NewReader(make([]byte, 128)), nil)
	require.NoError(t, err)
	require.NoError(t, osd2.Clear(m))

	// One byte past capacity fails.
	_, err = osd2.Write(bytes.NewReader(make([]byte, 129)), nil)
	require.True(t, werrors.Is(err, werrors.InsufficientSpace))

	// Zero-length payload succeeds with empty metadata.
	m, err = osd2.Write(bytes.NewReader(nil), nil)
	require.NoError(t, err)
	require.Empty(t, m.(*OSD2Metadata).InodeNumbers)
}

func TestOSD2ClearIdempotent(t *testing.T) {
	dev, p := newExt4Fixture(t, ext4fs.Ext4ImageConfig{BlockSize: 4096, InodeCount: 64})
	osd2 := NewOSD2Field(dev, p)

	snapshot := make([]byte, len(dev.Data))
	copy(snapshot, dev.Data)

	m, err := osd2.Write(bytes.NewReader([]byte("payload")), nil)
	require.NoError(t, err)

	require.NoError(t, osd2.Clear(m))
	require.Equal(t, snapshot, dev.Data)

	require.NoError(t, osd2.Clear(m))
	require.Equal(t, snapshot, dev.Data)
}

func TestOSD2Info(t *testing.T) {
	dev, p := newExt4Fixture(t, ext4fs.Ext4ImageConfig{BlockSize: 4096, InodeCount: 64})
	osd2 := NewOSD2Field(dev, p)

	info, err := osd2.Info(nil)
	require.NoError(t, err)
	require.Equal(t, uint64(128), info.Capacity)
	require.Zero(t, info.Used)

	m, err := osd2.Write(bytes.NewReader([]byte("hi")), nil)
	require.NoError(t, err)

	info, err = osd2.Info(m)
	require.NoError(t, err)
	require.Equal(t, uint64(2), info.Used)
}

func TestOSD2CancelledWrite(t *testing.T) {
	dev, p := newExt4Fixture(t, ext4fs.Ext4ImageConfig{BlockSize: 4096, InodeCount: 64})
	osd2 := NewOSD2Field(dev, p)

	cancel := make(chan struct{})
	close(cancel)

	m, err := osd2.Write(bytes.NewReader(make([]byte, 32)), cancel)
	require.ErrorIs(t, err, ErrCancelled)
	// The partial metadata is still usable for Clear.
	require.NoError(t, osd2.Clear(m))
}
