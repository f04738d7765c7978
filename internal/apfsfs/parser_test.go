package apfsfs

import (
	"testing"

	"github.com/ostafen/weever/internal/device"
	"github.com/stretchr/testify/require"
)

func TestParseContainerSuperblock(t *testing.T) {
	img := BuildAPFSImage(TestVolume{InodeRecords: 1})
	p, err := NewParser(device.NewMemDevice(img, 0), 0)
	require.NoError(t, err)

	require.Equal(t, uint32(testBlockSize), p.BlockSize())
	require.Equal(t, uint64(1), p.Container.OMapOID)
}

func TestVolumes(t *testing.T) {
	img := BuildAPFSImage(TestVolume{InodeRecords: 1}, TestVolume{InodeRecords: 2})
	p, err := NewParser(device.NewMemDevice(img, 0), 0)
	require.NoError(t, err)

	vols, err := p.Volumes()
	require.NoError(t, err)
	require.Len(t, vols, 2)
	require.Equal(t, uint64(0x500), vols[0].RootTreeOID)
	require.Equal(t, uint64(0x600), vols[1].RootTreeOID)
}

func TestAllInodesTwoVolumes(t *testing.T) {
	// Two volumes: the first leaf holds two inode records plus one of
	// another kind, the second holds a single inode record. The root
	// node mapped first in each volume omap must be excluded.
	img := BuildAPFSImage(
		TestVolume{InodeRecords: 2, OtherRecords: 1},
		TestVolume{InodeRecords: 1},
	)
	p, err := NewParser(device.NewMemDevice(img, 0), 0)
	require.NoError(t, err)

	inodes, err := p.AllInodes()
	require.NoError(t, err)
	require.Len(t, inodes, 3)

	// Volume 1's leaf sits at block 7, volume 2's at block 12.
	require.Equal(t, int64(7*testBlockSize), inodes[0].BlockAddr)
	require.Equal(t, int64(7*testBlockSize), inodes[1].BlockAddr)
	require.Equal(t, int64(12*testBlockSize), inodes[2].BlockAddr)

	// Leaf nodes carry no btree_info footer, so the offset is just
	// block_size - data_offset.
	require.Equal(t, uint32(testBlockSize-96), inodes[0].Offset)
	require.Equal(t, uint32(testBlockSize-192), inodes[1].Offset)
	require.Equal(t, uint32(testBlockSize-96), inodes[2].Offset)
}

func TestParserIsReadOnly(t *testing.T) {
	img := BuildAPFSImage(TestVolume{InodeRecords: 3, OtherRecords: 2})
	snapshot := make([]byte, len(img))
	copy(snapshot, img)

	p, err := NewParser(device.NewMemDevice(img, 0), 0)
	require.NoError(t, err)

	_, err = p.AllInodes()
	require.NoError(t, err)

	require.Equal(t, snapshot, img)
}
