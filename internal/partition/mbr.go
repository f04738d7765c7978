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

// Package partition locates the byte offset of the filesystem to
// operate on inside a possibly-partitioned raw device or image.
package partition

import (
	"encoding/binary"
	"fmt"
)

const (
	MBRSize            = 512
	mbrSignatureOffset = 0x1FE
)

// MBRPartitionEntry represents a single 16-byte entry in the MBR's
// partition table. Multi-byte fields are stored as byte arrays so
// little-endian conversion stays explicit.
type MBRPartitionEntry struct {
	BootIndicator uint8        // 0x00: 0x80 for bootable, 0x00 for inactive
	StartCHS      [3]byte      // 0x01: Starting Cylinder-Head-Sector address
	PartitionType MBRPartition // 0x04: Partition type ID (e.g., 0x0B for FAT32, 0x83 for Linux)
	EndCHS        [3]byte      // 0x05: Ending Cylinder-Head-Sector address
	StartLBA      [4]byte      // 0x08: Starting LBA - uint32, little-endian
	TotalSectors  [4]byte      // 0x0C: Total sectors in partition - uint32, little-endian
}

// ReadStartLBA returns the starting LBA of the partition.
func (p *MBRPartitionEntry) ReadStartLBA() uint32 {
	return binary.LittleEndian.Uint32(p.StartLBA[:])
}

// ReadTotalSectors returns the total number of sectors in the partition.
func (p *MBRPartitionEntry) ReadTotalSectors() uint32 {
	return binary.LittleEndian.Uint32(p.TotalSectors[:])
}

// MBR represents the Master Boot Record structure.
type MBR struct {
	BootCode         [440]byte            // 0x000-0x1B7: Bootstrap code
	DiskSignature    [4]byte              // 0x1B8-0x1BB: Optional 32-bit disk signature
	Reserved         [2]byte              // 0x1BC-0x1BD: Usually 0x0000
	PartitionEntries [4]MBRPartitionEntry // 0x1BE-0x1FD: Four 16-byte partition entries
	Signature        [2]byte              // 0x1FE-0x1FF: MBR signature (0x55AA)
}

// ReadSignature returns the MBR signature (should be 0xAA55).
func (m *MBR) ReadSignature() uint16 {
	return binary.LittleEndian.Uint16(m.Signature[:])
}

// ParseMBR parses a 512-byte slice into an MBR struct. The input is
// expected to contain the raw little-endian bytes of sector zero.
func ParseMBR(data []byte) (*MBR, error) {
	if len(data) != MBRSize {
		return nil, fmt.Errorf("input data slice size mismatch: expected %d bytes, got %d bytes", MBRSize, len(data))
	}

	var mbr MBR

	copy(mbr.BootCode[:], data[0x000:0x1B8])
	copy(mbr.DiskSignature[:], data[0x1B8:0x1BC])
	copy(mbr.Reserved[:], data[0x1BC:0x1BE])

	for i := 0; i < 4; i++ {
		entryOffset := 0x1BE + (i * 16)
		entryBytes := data[entryOffset : entryOffset+16]

		mbr.PartitionEntries[i].BootIndicator = entryBytes[0x00]
		copy(mbr.PartitionEntries[i].StartCHS[:], entryBytes[0x01:0x04])
		mbr.PartitionEntries[i].PartitionType = MBRPartition(entryBytes[0x04])
		copy(mbr.PartitionEntries[i].EndCHS[:], entryBytes[0x05:0x08])
		copy(mbr.PartitionEntries[i].StartLBA[:], entryBytes[0x08:0x0C])
		copy(mbr.PartitionEntries[i].TotalSectors[:], entryBytes[0x0C:0x10])
	}

	copy(mbr.Signature[:], data[mbrSignatureOffset:mbrSignatureOffset+2])

	if mbr.ReadSignature() != 0xAA55 {
		return nil, fmt.Errorf("invalid MBR signature: expected 0xAA55, got 0x%04X", mbr.ReadSignature())
	}
	return &mbr, nil
}

type MBRPartition uint8

const (
	PartitionTypeEmpty MBRPartition = iota
	PartitionTypeFAT12
	PartitionTypeXENIXRoot
	PartitionTypeXENIXUsr
	PartitionTypeFAT16LessThan32MB
	PartitionTypeExtendedCHS
	PartitionTypeFAT16GreaterThan32MB
	PartitionTypeNTFSHPFSexFATQNX
	PartitionTypeAIX
	PartitionTypeAIXBootable
	PartitionTypeOs2BootManager
	PartitionTypeFAT32CHS
	PartitionTypeFAT32LBA
	PartitionTypeFAT16LBA
	PartitionTypeUnknown
	PartitionTypeExtendedLBA
	PartitionTypeLinuxSwap     MBRPartition = 0x82
	PartitionTypeLinuxNative   MBRPartition = 0x83
	PartitionTypeAppleAPFS     MBRPartition = 0xAF
	PartitionTypeGPTProtective MBRPartition = 0xEE
)
