// Copyright (c) 2025 Stefano Scafiti
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

// Package ext4fs parses EXT4 volumes: primary and backup superblocks,
// block group descriptors, inode tables and the reserved-GDT block
// ranges. Outputs are plain values; the parser never writes.
package ext4fs

import (
	"github.com/ostafen/weever/internal/device"
	"github.com/ostafen/weever/internal/werrors"
)

// The osd2 field sits 0x74 bytes into the inode; its last two bytes,
// the ones unused on common systems, start another 0x0A bytes in.
const osd2TailOffset = 0x74 + 0x0A

// Parser holds the parsed superblock and group descriptor table of
// one EXT4 volume.
type Parser struct {
	dev  device.Device
	base int64

	Super *Superblock

	blockSize  uint32
	descSize   uint32
	groupCount uint32
	groups     []GroupDesc
}

// NewParser reads the primary superblock at base+1024 and the group
// descriptor table that follows it.
func NewParser(dev device.Device, base int64) (*Parser, error) {
	var raw [SuperblockSize]byte
	if _, err := dev.ReadAt(raw[:], base+Superblock0Offset); err != nil {
		return nil, werrors.Wrap(werrors.IOFailure, err, "reading ext4 superblock")
	}

	sb, err := ParseSuperblock(raw[:])
	if err != nil {
		return nil, werrors.Wrap(werrors.CorruptStructure, err, "parsing ext4 superblock")
	}

	if sb.BlocksPerGroup == 0 || sb.InodesPerGroup == 0 || sb.InodeSize == 0 {
		return nil, werrors.New(werrors.CorruptStructure,
			"invalid ext4 geometry: blocks/group %d, inodes/group %d, inode size %d",
			sb.BlocksPerGroup, sb.InodesPerGroup, sb.InodeSize)
	}

	p := &Parser{
		dev:       dev,
		base:      base,
		Super:     sb,
		blockSize: sb.BlockSize(),
	}

	p.descSize = 32
	if sb.Is64Bit() && sb.DescSize > 32 {
		p.descSize = uint32(sb.DescSize)
	}
	p.groupCount = (sb.BlocksCountLo + sb.BlocksPerGroup - 1) / sb.BlocksPerGroup

	if err := p.readGroupDescs(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Parser) readGroupDescs() error {
	// The descriptor table starts in the block right after the one
	// holding the primary superblock.
	tableBlock := uint64(p.Super.FirstDataBlock) + 1
	tableSize := p.groupCount * p.descSize

	buf := make([]byte, tableSize)
	if _, err := p.dev.ReadAt(buf, p.BlockOffset(tableBlock)); err != nil {
		return werrors.Wrap(werrors.IOFailure, err, "reading group descriptor table")
	}

	p.groups = make([]GroupDesc, p.groupCount)
	for i := uint32(0); i < p.groupCount; i++ {
		p.groups[i] = parseGroupDesc(buf[i*p.descSize:(i+1)*p.descSize], p.Super.Is64Bit())
	}
	return nil
}

func (p *Parser) BlockSize() uint32   { return p.blockSize }
func (p *Parser) GroupCount() uint32  { return p.groupCount }
func (p *Parser) Groups() []GroupDesc { return p.groups }

// BlockOffset returns the absolute byte offset of a filesystem block.
func (p *Parser) BlockOffset(block uint64) int64 {
	return p.base + int64(block)*int64(p.blockSize)
}

// InodeTableOffset returns the absolute byte offset of a group's inode
// table.
func (p *Parser) InodeTableOffset(group uint32) (int64, error) {
	if group >= p.groupCount {
		return 0, werrors.New(werrors.CorruptStructure, "group %d out of range [0, %d)", group, p.groupCount)
	}
	return p.BlockOffset(p.groups[group].InodeTable()), nil
}

// InodeOffset returns the absolute byte offset of inode n. Inode
// numbering starts at 1.
func (p *Parser) InodeOffset(n uint32) (int64, error) {
	if n == 0 || n > p.Super.InodesCount {
		return 0, werrors.New(werrors.CorruptStructure, "inode %d out of range [1, %d]", n, p.Super.InodesCount)
	}
	group := (n - 1) / p.Super.InodesPerGroup
	index := (n - 1) % p.Super.InodesPerGroup

	tableOff, err := p.InodeTableOffset(group)
	if err != nil {
		return 0, err
	}
	return tableOff + int64(index)*int64(p.Super.InodeSize), nil
}

// OSD2Offset returns the absolute byte offset of the last two bytes of
// inode n's osd2 field: inode base + 0x74 + 0x0A.
func (p *Parser) OSD2Offset(n uint32) (int64, error) {
	off, err := p.InodeOffset(n)
	if err != nil {
		return 0, err
	}
	return off + osd2TailOffset, nil
}

// HasSuperblockBackup reports whether a group carries a superblock and
// GDT copy. With sparse_super that is groups 0, 1 and powers of 3, 5
// and 7; without it, every group.
func (p *Parser) HasSuperblockBackup(group uint32) bool {
	if !p.Super.HasSparseSuper() {
		return true
	}
	if group == 0 || group == 1 {
		return true
	}
	for _, base := range []uint32{3, 5, 7} {
		for n := base; n <= group; n *= base {
			if n == group {
				return true
			}
			if n > group/base {
				break
			}
		}
	}
	return false
}

// BackupSuperblockGroups lists every group holding a superblock
// backup, the primary's group excluded.
func (p *Parser) BackupSuperblockGroups() []uint32 {
	var groups []uint32
	for g := uint32(1); g < p.groupCount; g++ {
		if p.HasSuperblockBackup(g) {
			groups = append(groups, g)
		}
	}
	return groups
}

// gdtBlocks returns the block count of one group descriptor table
// copy.
func (p *Parser) gdtBlocks() uint64 {
	return (uint64(p.groupCount)*uint64(p.descSize) + uint64(p.blockSize) - 1) / uint64(p.blockSize)
}

// ReservedGDTRange returns the first block and block count of a
// group's reserved GDT area: the blocks kept free for future online
// growth of the descriptor table, right after the group's GDT copy.
// ok is false for groups that carry no GDT copy at all.
func (p *Parser) ReservedGDTRange(group uint32) (first uint64, count uint32, ok bool) {
	if group >= p.groupCount || !p.HasSuperblockBackup(group) {
		return 0, 0, false
	}
	if p.Super.ReservedGdtBlocks == 0 {
		return 0, 0, false
	}
	groupFirst := uint64(p.Super.FirstDataBlock) + uint64(group)*uint64(p.Super.BlocksPerGroup)
	first = groupFirst + 1 + p.gdtBlocks()
	return first, uint32(p.Super.ReservedGdtBlocks), true
}
