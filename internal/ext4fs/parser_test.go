package ext4fs

import (
	"testing"

	"github.com/ostafen/weever/internal/device"
	"github.com/ostafen/weever/internal/werrors"
	"github.com/stretchr/testify/require"
)

func TestParserGeometry(t *testing.T) {
	img := BuildExt4Image(Ext4ImageConfig{BlockSize: 4096, InodeCount: 1024, ReservedGdtBlocks: 4})
	p, err := NewParser(device.NewMemDevice(img, 0), 0)
	require.NoError(t, err)

	require.Equal(t, uint32(4096), p.BlockSize())
	require.Equal(t, uint32(1), p.GroupCount())
	require.Equal(t, uint32(1024), p.Super.InodesCount)
	require.Equal(t, uint16(256), p.Super.InodeSize)
}

func TestInodeOffsets(t *testing.T) {
	img := BuildExt4Image(Ext4ImageConfig{BlockSize: 4096, InodeCount: 1024, ReservedGdtBlocks: 4})
	p, err := NewParser(device.NewMemDevice(img, 0), 0)
	require.NoError(t, err)

	tableOff, err := p.InodeTableOffset(0)
	require.NoError(t, err)

	// Inode 1 is the first slot of the table.
	off, err := p.InodeOffset(1)
	require.NoError(t, err)
	require.Equal(t, tableOff, off)

	off, err = p.InodeOffset(5)
	require.NoError(t, err)
	require.Equal(t, tableOff+4*int64(p.Super.InodeSize), off)

	osd2, err := p.OSD2Offset(1)
	require.NoError(t, err)
	require.Equal(t, tableOff+0x74+0x0A, osd2)

	_, err = p.InodeOffset(0)
	require.True(t, werrors.Is(err, werrors.CorruptStructure))
	_, err = p.InodeOffset(1025)
	require.True(t, werrors.Is(err, werrors.CorruptStructure))
}

func TestReservedGDTRange(t *testing.T) {
	img := BuildExt4Image(Ext4ImageConfig{BlockSize: 4096, InodeCount: 1024, ReservedGdtBlocks: 4})
	p, err := NewParser(device.NewMemDevice(img, 0), 0)
	require.NoError(t, err)

	first, count, ok := p.ReservedGDTRange(0)
	require.True(t, ok)
	// Group 0 layout: block 0 superblock, block 1 descriptor table,
	// then the reserved area.
	require.Equal(t, uint64(2), first)
	require.Equal(t, uint32(4), count)

	_, _, ok = p.ReservedGDTRange(1)
	require.False(t, ok)
}

func TestReservedGDTRangeNoneReserved(t *testing.T) {
	img := BuildExt4Image(Ext4ImageConfig{BlockSize: 4096, InodeCount: 256})
	p, err := NewParser(device.NewMemDevice(img, 0), 0)
	require.NoError(t, err)

	_, _, ok := p.ReservedGDTRange(0)
	require.False(t, ok)
}

func TestHasSuperblockBackup(t *testing.T) {
	img := BuildExt4Image(Ext4ImageConfig{BlockSize: 1024, InodeCount: 128, ReservedGdtBlocks: 2})
	p, err := NewParser(device.NewMemDevice(img, 0), 0)
	require.NoError(t, err)

	require.True(t, p.HasSuperblockBackup(0))
	require.True(t, p.HasSuperblockBackup(1))
	require.True(t, p.HasSuperblockBackup(3))
	require.True(t, p.HasSuperblockBackup(9))
	require.True(t, p.HasSuperblockBackup(25))
	require.True(t, p.HasSuperblockBackup(49))
	require.False(t, p.HasSuperblockBackup(2))
	require.False(t, p.HasSuperblockBackup(6))
}

func TestParserIsReadOnly(t *testing.T) {
	img := BuildExt4Image(Ext4ImageConfig{BlockSize: 4096, InodeCount: 1024, ReservedGdtBlocks: 4})
	snapshot := make([]byte, len(img))
	copy(snapshot, img)

	p, err := NewParser(device.NewMemDevice(img, 0), 0)
	require.NoError(t, err)

	_, _ = p.InodeTableOffset(0)
	_, _, _ = p.ReservedGDTRange(0)
	_ = p.BackupSuperblockGroups()

	require.Equal(t, snapshot, img)
}
