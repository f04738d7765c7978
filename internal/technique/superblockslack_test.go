package technique

import (
	"bytes"
	"testing"

	"github.com/ostafen/weever/internal/ext4fs"
	"github.com/ostafen/weever/internal/werrors"
	"github.com/stretchr/testify/require"
)

func TestSuperblockSlackRoundTrip(t *testing.T) {
	dev, p := newExt4Fixture(t, ext4fs.Ext4ImageConfig{BlockSize: 4096, InodeCount: 64})
	sb := NewSuperblockSlack(dev, p, 0)

	snapshot := make([]byte, len(dev.Data))
	copy(snapshot, dev.Data)

	payload := []byte("short secret")
	m, err := sb.Write(bytes.NewReader(payload), nil)
	require.NoError(t, err)

	md := m.(*SuperblockSlackMetadata)
	require.Equal(t, int64(1024+0x280), md.Offset)
	require.Equal(t, uint32(len(payload)), md.Length)

	var out bytes.Buffer
	require.NoError(t, sb.Read(m, &out))
	require.Equal(t, payload, out.Bytes())

	require.NoError(t, sb.Clear(m))
	require.Equal(t, snapshot, dev.Data)
}

func TestSuperblockSlackCapacity(t *testing.T) {
	dev, p := newExt4Fixture(t, ext4fs.Ext4ImageConfig{BlockSize: 4096, InodeCount: 64})
	sb := NewSuperblockSlack(dev, p, 0)

	info, err := sb.Info(nil)
	require.NoError(t, err)

	m, err := sb.Write(bytes.NewReader(make([]byte, info.Capacity)), nil)
	require.NoError(t, err)
	require.NoError(t, sb.Clear(m))

	_, err = sb.Write(bytes.NewReader(make([]byte, info.Capacity+1)), nil)
	require.True(t, werrors.Is(err, werrors.InsufficientSpace))
}

func TestSuperblockSlackOccupiedRegion(t *testing.T) {
	dev, p := newExt4Fixture(t, ext4fs.Ext4ImageConfig{BlockSize: 4096, InodeCount: 64})
	sb := NewSuperblockSlack(dev, p, 0)

	_, err := sb.Write(bytes.NewReader([]byte("first")), nil)
	require.NoError(t, err)

	// A second hide must refuse rather than clobber the first.
	_, err = sb.Write(bytes.NewReader([]byte("second")), nil)
	require.True(t, werrors.Is(err, werrors.PreconditionViolated))
}

func TestSuperblockSlackTamperedLengthPrefix(t *testing.T) {
	dev, p := newExt4Fixture(t, ext4fs.Ext4ImageConfig{BlockSize: 4096, InodeCount: 64})
	sb := NewSuperblockSlack(dev, p, 0)

	m, err := sb.Write(bytes.NewReader([]byte("payload")), nil)
	require.NoError(t, err)

	md := m.(*SuperblockSlackMetadata)
	dev.Data[md.Offset] ^= 0xFF

	var out bytes.Buffer
	err = sb.Read(m, &out)
	require.True(t, werrors.Is(err, werrors.PreconditionViolated))
}
