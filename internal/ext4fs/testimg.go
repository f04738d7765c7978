package ext4fs

import "encoding/binary"

// Ext4ImageConfig controls the geometry of a synthetic single-group
// EXT4 test volume.
type Ext4ImageConfig struct {
	BlockSize         uint32 // 1024 or 4096
	InodeCount        uint32
	InodeSize         uint16
	ReservedGdtBlocks uint16
}

// BuildExt4Image lays out a minimal one-group EXT4 volume: superblock
// at offset 1024, the group descriptor table in the following block,
// then the reserved GDT blocks, both bitmaps and the inode table. The
// remaining blocks are left zeroed as data space.
func BuildExt4Image(cfg Ext4ImageConfig) []byte {
	if cfg.BlockSize == 0 {
		cfg.BlockSize = 4096
	}
	if cfg.InodeCount == 0 {
		cfg.InodeCount = 1024
	}
	if cfg.InodeSize == 0 {
		cfg.InodeSize = 256
	}

	bs := uint64(cfg.BlockSize)

	var firstDataBlock uint32
	if cfg.BlockSize == 1024 {
		firstDataBlock = 1
	}

	// Single group: descriptor table is one block.
	descTableBlock := uint64(firstDataBlock) + 1
	reservedFirst := descTableBlock + 1
	blockBitmap := reservedFirst + uint64(cfg.ReservedGdtBlocks)
	inodeBitmap := blockBitmap + 1
	inodeTable := inodeBitmap + 1
	tableBlocks := (uint64(cfg.InodeCount)*uint64(cfg.InodeSize) + bs - 1) / bs

	blocksCount := inodeTable + tableBlocks + 16 // some data blocks after the metadata

	img := make([]byte, blocksCount*bs)

	le := binary.LittleEndian
	sb := img[Superblock0Offset:]
	le.PutUint32(sb[0x00:], cfg.InodeCount)
	le.PutUint32(sb[0x04:], uint32(blocksCount))
	le.PutUint32(sb[0x14:], firstDataBlock)
	logBlockSize := uint32(0)
	for 1024<<logBlockSize != cfg.BlockSize {
		logBlockSize++
	}
	le.PutUint32(sb[0x18:], logBlockSize)
	le.PutUint32(sb[0x20:], 32768) // blocks per group: everything fits in group 0
	le.PutUint32(sb[0x28:], cfg.InodeCount)
	le.PutUint16(sb[0x38:], Magic)
	le.PutUint16(sb[0x3A:], 1) // cleanly unmounted
	le.PutUint32(sb[0x54:], 11)
	le.PutUint16(sb[0x58:], cfg.InodeSize)
	le.PutUint32(sb[0x60:], IncompatFiletype|IncompatExtents)
	le.PutUint32(sb[0x64:], RoCompatSparseSuper)
	le.PutUint16(sb[0xCE:], cfg.ReservedGdtBlocks)

	desc := img[descTableBlock*bs:]
	le.PutUint32(desc[0x00:], uint32(blockBitmap))
	le.PutUint32(desc[0x04:], uint32(inodeBitmap))
	le.PutUint32(desc[0x08:], uint32(inodeTable))

	return img
}
