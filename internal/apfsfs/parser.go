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

// Package apfsfs parses APFS containers: the container superblock, the
// container and per-volume object maps (B-trees), and the filesystem
// tree leaves that resolve inode records to in-block byte locations.
// The parser never writes; checksums are read but not recomputed,
// since a volume modified behind the tool's back already voids every
// hiding precondition.
package apfsfs

import (
	"encoding/binary"

	"github.com/ostafen/weever/internal/device"
	"github.com/ostafen/weever/internal/werrors"
)

const omapTreeOIDOffset = 48 // omap_phys_t.om_tree_oid

// InodeLoc is one inode record location: the absolute byte address of
// the block holding it and the record's byte offset within that block.
type InodeLoc struct {
	BlockAddr int64
	Offset    uint32
}

// Parser holds the parsed container superblock of one APFS container.
type Parser struct {
	dev  device.Device
	base int64

	Container *ContainerSuperblock
}

// NewParser reads and validates the container superblock at block
// zero.
func NewParser(dev device.Device, base int64) (*Parser, error) {
	var raw [512]byte
	if _, err := dev.ReadAt(raw[:], base); err != nil {
		return nil, werrors.Wrap(werrors.IOFailure, err, "reading APFS container superblock")
	}

	sb, err := ParseContainerSuperblock(raw[:])
	if err != nil {
		return nil, werrors.Wrap(werrors.CorruptStructure, err, "parsing APFS container superblock")
	}

	return &Parser{dev: dev, base: base, Container: sb}, nil
}

func (p *Parser) BlockSize() uint32 { return p.Container.BlockSize }

func (p *Parser) readBlock(block uint64) ([]byte, error) {
	buf := make([]byte, p.Container.BlockSize)
	off := p.base + int64(block)*int64(p.Container.BlockSize)
	if _, err := p.dev.ReadAt(buf, off); err != nil {
		return nil, werrors.Wrap(werrors.IOFailure, err, "reading APFS block %d", block)
	}
	return buf, nil
}

// omapRootNode follows an omap_phys structure to its B-tree root node.
func (p *Parser) omapRootNode(omapBlock uint64) (*Node, error) {
	raw, err := p.readBlock(omapBlock)
	if err != nil {
		return nil, err
	}
	treeOID := binary.LittleEndian.Uint64(raw[omapTreeOIDOffset:])

	nodeRaw, err := p.readBlock(treeOID)
	if err != nil {
		return nil, err
	}
	node, err := ParseNode(nodeRaw, p.Container.BlockSize)
	if err != nil {
		return nil, werrors.Wrap(werrors.CorruptStructure, err, "parsing omap root node at block %d", treeOID)
	}
	return node, nil
}

// Volumes descends the container object map and returns the
// (omap_oid, root_tree_oid) pair of every volume superblock it maps.
func (p *Parser) Volumes() ([]Volume, error) {
	root, err := p.omapRootNode(p.Container.OMapOID)
	if err != nil {
		return nil, err
	}
	entries, err := root.OmapEntries()
	if err != nil {
		return nil, werrors.Wrap(werrors.CorruptStructure, err, "decoding container omap entries")
	}

	var volumes []Volume
	for _, e := range entries {
		raw, err := p.readBlock(e.Paddr)
		if err != nil {
			return nil, err
		}
		if vol, ok := parseVolumeSuperblock(raw); ok {
			volumes = append(volumes, vol)
		}
	}
	return volumes, nil
}

// AllInodes enumerates every inode record location across all volumes.
// For each volume it walks the volume object map, skips the volume's
// own root node when its OID is the first one enumerated, and keeps
// the leaf records whose kind tag is 3 (inode). Each location's
// in-block offset is
//
//	block_size - data_offset - 40*(node_type & 1)
//
// the record's value offset counted back from the end of the node,
// which on root nodes (node_type bit 0) sits 40 bytes early to make
// room for the btree_info footer.
func (p *Parser) AllInodes() ([]InodeLoc, error) {
	volumes, err := p.Volumes()
	if err != nil {
		return nil, err
	}

	var inodes []InodeLoc
	for _, vol := range volumes {
		vroot, err := p.omapRootNode(vol.OMapOID)
		if err != nil {
			return nil, err
		}
		pairs, err := vroot.OmapEntries()
		if err != nil {
			return nil, werrors.Wrap(werrors.CorruptStructure, err, "decoding volume omap entries")
		}

		// The first mapped object is usually the volume's own root
		// node, which holds nothing of value for the inode walk.
		if len(pairs) > 0 && pairs[0].OID == vol.RootTreeOID {
			pairs = pairs[1:]
		}

		for _, pair := range pairs {
			raw, err := p.readBlock(pair.Paddr)
			if err != nil {
				return nil, err
			}
			node, err := ParseNode(raw, p.Container.BlockSize)
			if err != nil {
				return nil, werrors.Wrap(werrors.CorruptStructure, err, "parsing fs-tree node at block %d", pair.Paddr)
			}
			records, err := node.Records()
			if err != nil {
				return nil, werrors.Wrap(werrors.CorruptStructure, err, "decoding fs-tree records at block %d", pair.Paddr)
			}

			rootTerm := uint32(0)
			if node.Flags&btnodeRoot != 0 {
				rootTerm = btreeInfoSize
			}
			for _, rec := range records {
				if !rec.IsInode() {
					continue
				}
				off := p.Container.BlockSize - uint32(rec.DataOffset) - rootTerm
				if off >= p.Container.BlockSize {
					return nil, werrors.New(werrors.CorruptStructure,
						"negative inode record offset in block %d (data offset %d)", pair.Paddr, rec.DataOffset)
				}
				inodes = append(inodes, InodeLoc{
					BlockAddr: p.base + int64(pair.Paddr)*int64(p.Container.BlockSize),
					Offset:    off,
				})
			}
		}
	}
	return inodes, nil
}
