package technique

import (
	"bytes"
	"testing"

	"github.com/ostafen/weever/internal/apfsfs"
	"github.com/ostafen/weever/internal/device"
	"github.com/ostafen/weever/internal/werrors"
	"github.com/stretchr/testify/require"
)

func newAPFSFixture(t *testing.T, vols ...apfsfs.TestVolume) (*device.MemDevice, *apfsfs.Parser) {
	t.Helper()
	img := apfsfs.BuildAPFSImage(vols...)
	dev := device.NewMemDevice(img, 0)
	p, err := apfsfs.NewParser(dev, 0)
	require.NoError(t, err)
	return dev, p
}

func TestAPFSInodePadRoundTrip(t *testing.T) {
	dev, p := newAPFSFixture(t,
		apfsfs.TestVolume{InodeRecords: 4},
		apfsfs.TestVolume{InodeRecords: 2},
	)
	pad := NewAPFSInodePadding(dev, p)

	payload := []byte("hidden across volumes, 42 bytes of payload")
	m, err := pad.Write(bytes.NewReader(payload), nil)
	require.NoError(t, err)

	md := m.(*APFSInodePadMetadata)
	require.Len(t, md.Locations, 6) // ceil(42/8)
	require.Equal(t, uint64(len(payload)), md.Length)

	var out bytes.Buffer
	require.NoError(t, pad.Read(m, &out))
	require.Equal(t, payload, out.Bytes())
}

func TestAPFSInodePadCapacityBoundary(t *testing.T) {
	dev, p := newAPFSFixture(t, apfsfs.TestVolume{InodeRecords: 3})
	pad := NewAPFSInodePadding(dev, p)

	info, err := pad.Info(nil)
	require.NoError(t, err)
	require.Equal(t, uint64(24), info.Capacity)

	m, err := pad.Write(bytes.NewReader(make([]byte, 24)), nil)
	require.NoError(t, err)
	require.NoError(t, pad.Clear(m))

	_, err = pad.Write(bytes.NewReader(make([]byte, 25)), nil)
	require.True(t, werrors.Is(err, werrors.InsufficientSpace))

	m, err = pad.Write(bytes.NewReader(nil), nil)
	require.NoError(t, err)
	require.Empty(t, m.(*APFSInodePadMetadata).Locations)
}

func TestAPFSInodePadSkipsOccupiedFields(t *testing.T) {
	dev, p := newAPFSFixture(t, apfsfs.TestVolume{InodeRecords: 3})
	pad := NewAPFSInodePadding(dev, p)

	inodes, err := p.AllInodes()
	require.NoError(t, err)

	// Dirty the first inode's pad field.
	first := inodes[0]
	_, err = dev.WriteAt([]byte{1}, first.BlockAddr+int64(first.Offset)+84)
	require.NoError(t, err)

	m, err := pad.Write(bytes.NewReader([]byte("12345678")), nil)
	require.NoError(t, err)

	md := m.(*APFSInodePadMetadata)
	require.Len(t, md.Locations, 1)
	require.Equal(t, inodes[1].Offset+84, md.Locations[0].Offset)
}

func TestAPFSInodePadClearIdempotent(t *testing.T) {
	dev, p := newAPFSFixture(t, apfsfs.TestVolume{InodeRecords: 2})
	pad := NewAPFSInodePadding(dev, p)

	snapshot := make([]byte, len(dev.Data))
	copy(snapshot, dev.Data)

	m, err := pad.Write(bytes.NewReader([]byte("abcdefgh")), nil)
	require.NoError(t, err)

	require.NoError(t, pad.Clear(m))
	require.Equal(t, snapshot, dev.Data)
	require.NoError(t, pad.Clear(m))
	require.Equal(t, snapshot, dev.Data)
}
