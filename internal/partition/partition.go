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
package partition

import (
	"github.com/ostafen/weever/internal/device"
)

// Partition is one candidate filesystem region on the device.
type Partition struct {
	Num    int
	Offset uint64 // Offset in bytes from the start of the disk
	Size   uint64 // Size in bytes of the partition
}

// Discover inspects sector zero of dev and returns the candidate
// filesystem regions. If the sector parses as an MBR with known
// partition types, each matching entry becomes a Partition; otherwise
// the whole device is reported as a single superfloppy partition at
// offset zero. A GPT-protective entry degrades to the whole-disk
// answer as well, since the hiding techniques only need the offset of
// the first filesystem, not a full GPT walk.
func Discover(dev device.Device) ([]Partition, error) {
	var firstSector [MBRSize]byte
	if _, err := dev.ReadAt(firstSector[:], 0); err != nil {
		return nil, err
	}

	size, err := dev.Size()
	if err != nil {
		return nil, err
	}

	mbr, err := ParseMBR(firstSector[:])
	if err == nil {
		parts := mbrPartitions(dev, mbr)
		if len(parts) > 0 {
			return parts, nil
		}
	}

	// No (usable) MBR: a FAT boot sector or an EXT4/APFS superblock
	// shares the 0xAA55 marker position or lacks it entirely, so treat
	// the image as a single whole-disk filesystem.
	return []Partition{{Num: 0, Offset: 0, Size: uint64(size)}}, nil
}

func mbrPartitions(dev device.Device, mbr *MBR) []Partition {
	sectorSize := uint64(dev.BlockSize())
	if sectorSize == 0 {
		sectorSize = device.DefaultSectorSize
	}

	var parts []Partition
	for n, p := range mbr.PartitionEntries {
		switch p.PartitionType {
		case PartitionTypeFAT12,
			PartitionTypeFAT16LessThan32MB,
			PartitionTypeFAT16GreaterThan32MB,
			PartitionTypeFAT16LBA,
			PartitionTypeFAT32LBA,
			PartitionTypeFAT32CHS,
			PartitionTypeLinuxNative,
			PartitionTypeAppleAPFS:

			offset := uint64(p.ReadStartLBA()) * sectorSize
			if offset == 0 {
				// A FAT boot sector at offset 0 can false-positive as
				// an MBR (same 0xAA55 marker); entry tables parsed out
				// of it point nowhere useful.
				continue
			}
			parts = append(parts, Partition{
				Num:    n,
				Offset: offset,
				Size:   uint64(p.ReadTotalSectors()) * sectorSize,
			})
		}
	}
	return parts
}
