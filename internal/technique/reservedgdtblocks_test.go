package technique

import (
	"bytes"
	"testing"

	"github.com/ostafen/weever/internal/ext4fs"
	"github.com/ostafen/weever/internal/werrors"
	"github.com/stretchr/testify/require"
)

func TestReservedGDTRoundTrip(t *testing.T) {
	dev, p := newExt4Fixture(t, ext4fs.Ext4ImageConfig{BlockSize: 4096, InodeCount: 256, ReservedGdtBlocks: 4})
	gdt := NewReservedGDTBlocks(dev, p)

	// 8192 bytes with 4096-byte blocks: exactly two carrier blocks.
	payload := bytes.Repeat([]byte{0x5A}, 8192)
	m, err := gdt.Write(bytes.NewReader(payload), nil)
	require.NoError(t, err)

	md := m.(*ReservedGDTMetadata)
	require.Len(t, md.Blocks, 2)
	require.Equal(t, uint32(4096), md.Blocks[0].Length)
	require.Equal(t, uint32(4096), md.Blocks[1].Length)

	var out bytes.Buffer
	require.NoError(t, gdt.Read(m, &out))
	require.Equal(t, payload, out.Bytes())

	// After clear, both carrier blocks are all zeros.
	require.NoError(t, gdt.Clear(m))
	for _, blk := range md.Blocks {
		off := p.BlockOffset(blk.Block)
		require.Equal(t, make([]byte, 4096), dev.Data[off:off+4096])
	}
}

func TestReservedGDTCapacityBoundary(t *testing.T) {
	dev, p := newExt4Fixture(t, ext4fs.Ext4ImageConfig{BlockSize: 4096, InodeCount: 256, ReservedGdtBlocks: 2})
	gdt := NewReservedGDTBlocks(dev, p)

	m, err := gdt.Write(bytes.NewReader(make([]byte, 8192)), nil)
	require.NoError(t, err)
	require.NoError(t, gdt.Clear(m))

	_, err = gdt.Write(bytes.NewReader(make([]byte, 8193)), nil)
	require.True(t, werrors.Is(err, werrors.InsufficientSpace))

	m, err = gdt.Write(bytes.NewReader(nil), nil)
	require.NoError(t, err)
	require.Empty(t, m.(*ReservedGDTMetadata).Blocks)
}

func TestReservedGDTPartialLastBlock(t *testing.T) {
	dev, p := newExt4Fixture(t, ext4fs.Ext4ImageConfig{BlockSize: 4096, InodeCount: 256, ReservedGdtBlocks: 4})
	gdt := NewReservedGDTBlocks(dev, p)

	payload := bytes.Repeat([]byte{0x11}, 5000)
	m, err := gdt.Write(bytes.NewReader(payload), nil)
	require.NoError(t, err)

	md := m.(*ReservedGDTMetadata)
	require.Len(t, md.Blocks, 2)
	require.Equal(t, uint32(4096), md.Blocks[0].Length)
	require.Equal(t, uint32(904), md.Blocks[1].Length)

	var out bytes.Buffer
	require.NoError(t, gdt.Read(m, &out))
	require.Equal(t, payload, out.Bytes())
}

func TestReservedGDTNoReservedBlocks(t *testing.T) {
	dev, p := newExt4Fixture(t, ext4fs.Ext4ImageConfig{BlockSize: 4096, InodeCount: 256})
	gdt := NewReservedGDTBlocks(dev, p)

	info, err := gdt.Info(nil)
	require.NoError(t, err)
	require.Zero(t, info.Capacity)

	_, err = gdt.Write(bytes.NewReader([]byte("x")), nil)
	require.True(t, werrors.Is(err, werrors.InsufficientSpace))
}
