package technique

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/ostafen/weever/internal/ext4fs"
	"github.com/ostafen/weever/internal/werrors"
	"github.com/stretchr/testify/require"
)

func TestInodeTailRoundTrip(t *testing.T) {
	// 256-byte inodes with a 128-byte core: 128 bytes of tail each.
	dev, p := newExt4Fixture(t, ext4fs.Ext4ImageConfig{BlockSize: 4096, InodeCount: 64, InodeSize: 256})
	pad := NewInodeTailPadding(dev, p)

	payload := bytes.Repeat([]byte{0x42}, 300)
	m, err := pad.Write(bytes.NewReader(payload), nil)
	require.NoError(t, err)

	md := m.(*InodeTailMetadata)
	require.Len(t, md.Entries, 3)
	require.Equal(t, uint32(128), md.Entries[0].Length)
	require.Equal(t, uint32(128), md.Entries[1].Length)
	require.Equal(t, uint32(44), md.Entries[2].Length)
	require.Equal(t, uint32(128), md.Entries[0].Start)

	var out bytes.Buffer
	require.NoError(t, pad.Read(m, &out))
	require.Equal(t, payload, out.Bytes())
}

func TestInodeTailRespectsExtraIsize(t *testing.T) {
	dev, p := newExt4Fixture(t, ext4fs.Ext4ImageConfig{BlockSize: 4096, InodeCount: 64, InodeSize: 256})

	// Inode 1 claims 32 extra bytes in use: its tail starts at 160.
	off, err := p.InodeOffset(1)
	require.NoError(t, err)
	var extra [2]byte
	binary.LittleEndian.PutUint16(extra[:], 32)
	_, err = dev.WriteAt(extra[:], off+128)
	require.NoError(t, err)

	pad := NewInodeTailPadding(dev, p)
	m, err := pad.Write(bytes.NewReader(make([]byte, 96)), nil)
	require.NoError(t, err)

	md := m.(*InodeTailMetadata)
	require.Equal(t, uint32(1), md.Entries[0].Inode)
	require.Equal(t, uint32(160), md.Entries[0].Start)
	require.Equal(t, uint32(96), md.Entries[0].Length)
}

func TestInodeTailSkipsNonZeroTails(t *testing.T) {
	dev, p := newExt4Fixture(t, ext4fs.Ext4ImageConfig{BlockSize: 4096, InodeCount: 64, InodeSize: 256})

	// Dirty inode 1's tail: the writer must move on to inode 2.
	off, err := p.InodeOffset(1)
	require.NoError(t, err)
	_, err = dev.WriteAt([]byte{0xFF}, off+200)
	require.NoError(t, err)

	pad := NewInodeTailPadding(dev, p)
	m, err := pad.Write(bytes.NewReader([]byte("data")), nil)
	require.NoError(t, err)
	require.Equal(t, uint32(2), m.(*InodeTailMetadata).Entries[0].Inode)
}

func TestInodeTailNoTailOn128ByteInodes(t *testing.T) {
	dev, p := newExt4Fixture(t, ext4fs.Ext4ImageConfig{BlockSize: 4096, InodeCount: 64, InodeSize: 128})
	pad := NewInodeTailPadding(dev, p)

	_, err := pad.Write(bytes.NewReader([]byte("x")), nil)
	require.True(t, werrors.Is(err, werrors.InsufficientSpace))
}

func TestInodeTailClearIdempotent(t *testing.T) {
	dev, p := newExt4Fixture(t, ext4fs.Ext4ImageConfig{BlockSize: 4096, InodeCount: 64, InodeSize: 256})
	pad := NewInodeTailPadding(dev, p)

	snapshot := make([]byte, len(dev.Data))
	copy(snapshot, dev.Data)

	m, err := pad.Write(bytes.NewReader(bytes.Repeat([]byte{7}, 200)), nil)
	require.NoError(t, err)

	require.NoError(t, pad.Clear(m))
	require.Equal(t, snapshot, dev.Data)
	require.NoError(t, pad.Clear(m))
	require.Equal(t, snapshot, dev.Data)
}
