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

// Package fatfs parses FAT12/16/32 volumes and exposes the structural
// facts the hiding techniques need: cluster geometry, directory
// entries, cluster chains and per-cluster slack. The parser itself
// never writes; the single mutating primitive is WriteFATEntry, which
// techniques use to mark clusters bad and which updates every FAT
// copy.
package fatfs

import (
	"encoding/binary"
	"strings"

	"github.com/ostafen/weever/internal/device"
	"github.com/ostafen/weever/internal/werrors"
)

// Type discriminates the three FAT variants by cluster count, the way
// the FAT specification defines them.
type Type int

const (
	TypeFAT12 Type = iota
	TypeFAT16
	TypeFAT32
)

func (t Type) String() string {
	switch t {
	case TypeFAT12:
		return "FAT12"
	case TypeFAT16:
		return "FAT16"
	default:
		return "FAT32"
	}
}

const dirEntrySize = 32

// DirEntry is one 8.3 directory entry. Name holds the formatted
// "NAME.EXT" form; Path additionally carries the directory prefix for
// entries found below the root.
type DirEntry struct {
	Name         string
	Path         string
	Attr         uint8
	StartCluster uint32
	Size         uint32
}

// IsDir reports whether the entry is a subdirectory.
func (e *DirEntry) IsDir() bool { return e.Attr&AttrDir != 0 }

// Parser holds the parsed boot sector and the derived layout of one
// FAT volume. All byte offsets it hands out are absolute device
// offsets (they include the partition base).
type Parser struct {
	dev  device.Device
	base int64

	Boot *BootSector

	typ            Type
	clusterSize    uint32
	fatOffset      int64
	fatSize        int64 // bytes per FAT copy
	fatCount       uint32
	rootDirOffset  int64
	rootDirEntries uint32
	dataOffset     int64
	clusterCount   uint32
}

// NewParser reads and validates the boot sector at base and derives
// the volume layout from it.
func NewParser(dev device.Device, base int64) (*Parser, error) {
	var sector [BootSectorSize]byte
	if _, err := dev.ReadAt(sector[:], base); err != nil {
		return nil, werrors.Wrap(werrors.IOFailure, err, "reading FAT boot sector")
	}

	boot, err := ReadBootSectorFrom(sector[:])
	if err != nil {
		return nil, werrors.Wrap(werrors.CorruptStructure, err, "parsing FAT boot sector")
	}

	if boot.SectorSize == 0 || boot.SectorsPerCluster == 0 || boot.Fats == 0 {
		return nil, werrors.New(werrors.CorruptStructure,
			"invalid FAT geometry: sector size %d, sectors/cluster %d, fats %d",
			boot.SectorSize, boot.SectorsPerCluster, boot.Fats)
	}

	p := &Parser{
		dev:  dev,
		base: base,
		Boot: boot,
	}

	sectorSize := uint32(boot.SectorSize)
	p.clusterSize = sectorSize * uint32(boot.SectorsPerCluster)
	p.fatCount = uint32(boot.Fats)
	p.fatOffset = base + int64(boot.Reserved)*int64(sectorSize)
	p.fatSize = int64(boot.FatSectors()) * int64(sectorSize)
	p.rootDirEntries = uint32(boot.DirEntries)
	p.rootDirOffset = p.fatOffset + int64(p.fatCount)*p.fatSize

	rootDirSectors := (p.rootDirEntries*dirEntrySize + sectorSize - 1) / sectorSize
	p.dataOffset = p.rootDirOffset + int64(rootDirSectors)*int64(sectorSize)

	dataSectors := boot.TotalSectors() -
		uint32(boot.Reserved) -
		p.fatCount*uint32(boot.FatSectors()) -
		rootDirSectors
	p.clusterCount = dataSectors / uint32(boot.SectorsPerCluster)

	// The FAT spec discriminates the variant by cluster count alone.
	switch {
	case p.clusterCount < 4085:
		p.typ = TypeFAT12
	case p.clusterCount < 65525:
		p.typ = TypeFAT16
	default:
		p.typ = TypeFAT32
	}

	return p, nil
}

func (p *Parser) Type() Type           { return p.typ }
func (p *Parser) ClusterSize() uint32  { return p.clusterSize }
func (p *Parser) ClusterCount() uint32 { return p.clusterCount }

// ClusterOffset returns the absolute byte offset of a data cluster.
// Cluster numbering starts at 2, per the FAT layout.
func (p *Parser) ClusterOffset(cluster uint32) (int64, error) {
	if cluster < 2 || cluster-2 >= p.clusterCount {
		return 0, werrors.New(werrors.CorruptStructure, "cluster %d out of range [2, %d)", cluster, p.clusterCount+2)
	}
	return p.dataOffset + int64(cluster-2)*int64(p.clusterSize), nil
}

// BadMarker returns the FAT entry value that flags a cluster bad for
// this variant (0xFF7 for FAT12, 0xFFF7 for FAT16, 0x0FFFFFF7 for
// FAT32).
func (p *Parser) BadMarker() uint32 {
	switch p.typ {
	case TypeFAT12:
		return FAT12Bad
	case TypeFAT16:
		return FAT16Bad
	default:
		return FAT32Bad
	}
}

// IsEOC reports whether a FAT entry value terminates a cluster chain.
func (p *Parser) IsEOC(v uint32) bool {
	switch p.typ {
	case TypeFAT12:
		return v >= FAT12EOC
	case TypeFAT16:
		return v >= FAT16EOC
	default:
		return v&FAT32EntryMask >= FAT32EOC
	}
}

// ReadFATEntry reads the FAT entry of a cluster from the first FAT
// copy. FAT12 entries are 12-bit packed pairs; FAT32 entries mask off
// the reserved high nibble.
func (p *Parser) ReadFATEntry(cluster uint32) (uint32, error) {
	if cluster >= p.clusterCount+2 {
		return 0, werrors.New(werrors.CorruptStructure, "FAT entry %d out of range", cluster)
	}

	switch p.typ {
	case TypeFAT12:
		var b [2]byte
		off := p.fatOffset + int64(cluster) + int64(cluster/2)
		if _, err := p.dev.ReadAt(b[:], off); err != nil {
			return 0, werrors.Wrap(werrors.IOFailure, err, "reading FAT12 entry %d", cluster)
		}
		v := binary.LittleEndian.Uint16(b[:])
		if cluster&1 == 1 {
			return uint32(v >> 4), nil
		}
		return uint32(v & 0x0FFF), nil
	case TypeFAT16:
		var b [2]byte
		if _, err := p.dev.ReadAt(b[:], p.fatOffset+int64(cluster)*2); err != nil {
			return 0, werrors.Wrap(werrors.IOFailure, err, "reading FAT16 entry %d", cluster)
		}
		return uint32(binary.LittleEndian.Uint16(b[:])), nil
	default:
		var b [4]byte
		if _, err := p.dev.ReadAt(b[:], p.fatOffset+int64(cluster)*4); err != nil {
			return 0, werrors.Wrap(werrors.IOFailure, err, "reading FAT32 entry %d", cluster)
		}
		return binary.LittleEndian.Uint32(b[:]) & FAT32EntryMask, nil
	}
}

// WriteFATEntry sets the FAT entry of a cluster in every FAT copy, so
// the copies never disagree from the caller's perspective.
func (p *Parser) WriteFATEntry(cluster, value uint32) error {
	if cluster >= p.clusterCount+2 {
		return werrors.New(werrors.CorruptStructure, "FAT entry %d out of range", cluster)
	}

	for i := uint32(0); i < p.fatCount; i++ {
		fatBase := p.fatOffset + int64(i)*p.fatSize

		switch p.typ {
		case TypeFAT12:
			var b [2]byte
			off := fatBase + int64(cluster) + int64(cluster/2)
			if _, err := p.dev.ReadAt(b[:], off); err != nil {
				return werrors.Wrap(werrors.IOFailure, err, "reading FAT12 entry %d", cluster)
			}
			v := binary.LittleEndian.Uint16(b[:])
			if cluster&1 == 1 {
				v = v&0x000F | uint16(value&0x0FFF)<<4
			} else {
				v = v&0xF000 | uint16(value&0x0FFF)
			}
			binary.LittleEndian.PutUint16(b[:], v)
			if _, err := p.dev.WriteAt(b[:], off); err != nil {
				return werrors.Wrap(werrors.IOFailure, err, "writing FAT12 entry %d", cluster)
			}
		case TypeFAT16:
			var b [2]byte
			binary.LittleEndian.PutUint16(b[:], uint16(value))
			if _, err := p.dev.WriteAt(b[:], fatBase+int64(cluster)*2); err != nil {
				return werrors.Wrap(werrors.IOFailure, err, "writing FAT16 entry %d", cluster)
			}
		default:
			var b [4]byte
			binary.LittleEndian.PutUint32(b[:], value&FAT32EntryMask)
			if _, err := p.dev.WriteAt(b[:], fatBase+int64(cluster)*4); err != nil {
				return werrors.Wrap(werrors.IOFailure, err, "writing FAT32 entry %d", cluster)
			}
		}
	}
	return nil
}

// ClusterChain walks the FAT from start to the EOC marker. A chain
// longer than the volume's cluster count means the FAT loops back on
// itself.
func (p *Parser) ClusterChain(start uint32) ([]uint32, error) {
	var chain []uint32

	cluster := start
	for {
		if uint32(len(chain)) > p.clusterCount {
			return nil, werrors.New(werrors.CorruptStructure, "cyclic cluster chain starting at %d", start)
		}
		chain = append(chain, cluster)

		next, err := p.ReadFATEntry(cluster)
		if err != nil {
			return nil, err
		}
		if p.IsEOC(next) {
			return chain, nil
		}
		if next < 2 || next-2 >= p.clusterCount {
			return nil, werrors.New(werrors.CorruptStructure,
				"cluster chain starting at %d points to invalid cluster %d", start, next)
		}
		cluster = next
	}
}

// SlackBytes returns the unused byte count in the final cluster of a
// file: cluster size minus file size modulo cluster size, zero when
// the file exactly fills its clusters.
func (p *Parser) SlackBytes(e *DirEntry) uint32 {
	rem := e.Size % p.clusterSize
	if rem == 0 {
		return 0
	}
	return p.clusterSize - rem
}

// RootDir enumerates the root directory entries. Deleted entries,
// long-name entries and the volume label are skipped.
func (p *Parser) RootDir() ([]DirEntry, error) {
	if p.typ == TypeFAT32 {
		chain, err := p.ClusterChain(p.Boot.ReadRootCluster())
		if err != nil {
			return nil, err
		}
		return p.readDirClusters(chain, "")
	}
	return p.readDirRegion(p.rootDirOffset, p.rootDirEntries, "")
}

// Files enumerates every file on the volume, descending into
// subdirectories. Paths are "/"-joined relative to the root.
func (p *Parser) Files() ([]DirEntry, error) {
	root, err := p.RootDir()
	if err != nil {
		return nil, err
	}
	return p.walk(root, 0)
}

const maxDirDepth = 128

func (p *Parser) walk(entries []DirEntry, depth int) ([]DirEntry, error) {
	if depth > maxDirDepth {
		return nil, werrors.New(werrors.CorruptStructure, "directory tree deeper than %d levels", maxDirDepth)
	}

	var files []DirEntry
	for _, e := range entries {
		if !e.IsDir() {
			files = append(files, e)
			continue
		}
		if e.Name == "." || e.Name == ".." {
			continue
		}

		chain, err := p.ClusterChain(e.StartCluster)
		if err != nil {
			return nil, err
		}
		sub, err := p.readDirClusters(chain, e.Path)
		if err != nil {
			return nil, err
		}
		subFiles, err := p.walk(sub, depth+1)
		if err != nil {
			return nil, err
		}
		files = append(files, subFiles...)
	}
	return files, nil
}

// Lookup resolves a "/"-joined path to its directory entry.
func (p *Parser) Lookup(path string) (*DirEntry, error) {
	path = strings.Trim(path, "/")

	files, err := p.Files()
	if err != nil {
		return nil, err
	}
	for i := range files {
		if strings.EqualFold(files[i].Path, path) {
			return &files[i], nil
		}
	}
	return nil, werrors.New(werrors.PreconditionViolated, "no such file: %q", path)
}

// ReferencedClusters collects every cluster reachable from a directory
// entry anywhere on the volume, the set a bad-cluster carrier must not
// intersect.
func (p *Parser) ReferencedClusters() (map[uint32]struct{}, error) {
	refs := make(map[uint32]struct{})

	var mark func(entries []DirEntry, depth int) error
	mark = func(entries []DirEntry, depth int) error {
		if depth > maxDirDepth {
			return werrors.New(werrors.CorruptStructure, "directory tree deeper than %d levels", maxDirDepth)
		}
		for _, e := range entries {
			if e.Name == "." || e.Name == ".." {
				continue
			}
			if e.StartCluster < 2 {
				continue
			}
			chain, err := p.ClusterChain(e.StartCluster)
			if err != nil {
				return err
			}
			for _, c := range chain {
				refs[c] = struct{}{}
			}
			if e.IsDir() {
				sub, err := p.readDirClusters(chain, e.Path)
				if err != nil {
					return err
				}
				if err := mark(sub, depth+1); err != nil {
					return err
				}
			}
		}
		return nil
	}

	root, err := p.RootDir()
	if err != nil {
		return nil, err
	}
	if p.typ == TypeFAT32 {
		chain, err := p.ClusterChain(p.Boot.ReadRootCluster())
		if err != nil {
			return nil, err
		}
		for _, c := range chain {
			refs[c] = struct{}{}
		}
	}
	if err := mark(root, 0); err != nil {
		return nil, err
	}
	return refs, nil
}

func (p *Parser) readDirClusters(chain []uint32, prefix string) ([]DirEntry, error) {
	var entries []DirEntry
	for _, cluster := range chain {
		off, err := p.ClusterOffset(cluster)
		if err != nil {
			return nil, err
		}
		sub, terminated, err := p.readDirRegionEx(off, p.clusterSize/dirEntrySize, prefix)
		if err != nil {
			return nil, err
		}
		entries = append(entries, sub...)
		if terminated {
			break
		}
	}
	return entries, nil
}

func (p *Parser) readDirRegion(off int64, maxEntries uint32, prefix string) ([]DirEntry, error) {
	entries, _, err := p.readDirRegionEx(off, maxEntries, prefix)
	return entries, err
}

// readDirRegionEx parses a run of directory entries, reporting whether
// the end-of-directory marker was seen inside the region.
func (p *Parser) readDirRegionEx(off int64, maxEntries uint32, prefix string) ([]DirEntry, bool, error) {
	buf := make([]byte, maxEntries*dirEntrySize)
	if _, err := p.dev.ReadAt(buf, off); err != nil {
		return nil, false, werrors.Wrap(werrors.IOFailure, err, "reading directory region at %d", off)
	}

	var entries []DirEntry
	terminated := false
	for i := uint32(0); i < maxEntries; i++ {
		raw := buf[i*dirEntrySize : (i+1)*dirEntrySize]
		if raw[0] == 0x00 {
			terminated = true // end of directory
			break
		}
		if raw[0] == DeletedFlag {
			continue
		}
		attr := raw[11]
		if attr&AttrLongName == AttrLongName || attr&AttrVolume != 0 {
			continue
		}

		name := formatShortName(raw[:11])
		start := uint32(binary.LittleEndian.Uint16(raw[26:28]))
		if p.typ == TypeFAT32 {
			start |= uint32(binary.LittleEndian.Uint16(raw[20:22])) << 16
		}

		path := name
		if prefix != "" && name != "." && name != ".." {
			path = prefix + "/" + name
		}

		entries = append(entries, DirEntry{
			Name:         name,
			Path:         path,
			Attr:         attr,
			StartCluster: start,
			Size:         binary.LittleEndian.Uint32(raw[28:32]),
		})
	}
	return entries, terminated, nil
}

func formatShortName(raw []byte) string {
	base := strings.TrimRight(string(raw[:8]), " ")
	ext := strings.TrimRight(string(raw[8:11]), " ")
	if ext == "" {
		return base
	}
	return base + "." + ext
}
