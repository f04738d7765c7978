package fatfs

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// FAT chain end-of-cluster (EOC) and bad cluster markers.
const (
	FAT12Bad = 0x0FF7
	FAT12EOC = 0x0FF8
	FAT16Bad = 0xFFF7
	FAT16EOC = 0xFFF8
	FAT32Bad = 0x0FFFFFF7
	FAT32EOC = 0x0FFFFFF8

	FAT32EntryMask = 0x0FFFFFFF
)

// Directory entry markers and attributes.
const (
	DeletedFlag = 0xE5 // in name[0], marks the entry deleted

	AttrRO     = 1
	AttrHidden = 2
	AttrSys    = 4
	AttrVolume = 8
	AttrDir    = 16
	AttrArch   = 32

	AttrLongName = AttrRO | AttrHidden | AttrSys | AttrVolume
)

// BootSectorSize is the common FAT boot sector size.
const BootSectorSize = 0x200

// BootSector represents the FAT boot sector (BIOS Parameter Block).
// The layout is shared by FAT12/16/32; the FAT32-only fields are only
// meaningful when Fat32Length is nonzero.
type BootSector struct {
	Ignored           [3]byte // 0x00 Boot strap short or near jump
	SystemID          [8]byte // 0x03 OEM name
	SectorSize        uint16  // 0x0B Bytes per logical sector
	SectorsPerCluster uint8   // 0x0D Sectors/cluster
	Reserved          uint16  // 0x0E Reserved sectors
	Fats              uint8   // 0x10 Number of FATs
	DirEntries        uint16  // 0x11 Root directory entries
	Sectors           uint16  // 0x13 Number of sectors (0 if > 65535)
	Media             uint8   // 0x15 Media code (unused)
	FatLength         uint16  // 0x16 Sectors/FAT
	SecsTrack         uint16  // 0x18 Sectors per track
	Heads             uint16  // 0x1A Number of heads
	Hidden            uint32  // 0x1C Hidden sectors (unused)
	TotalSect         uint32  // 0x20 Total number of sectors (if Sectors == 0)

	// FAT32 only.
	Fat32Length  uint32   // 0x24 Sectors/FAT
	Flags        uint16   // 0x28 Bit 8: FAT mirroring, low 4: active FAT
	Version      uint16   // 0x2A Major, minor filesystem version
	RootCluster  [4]byte  // 0x2C First cluster in root directory
	InfoSector   uint16   // 0x30 Filesystem info sector
	BackupBoot   uint16   // 0x32 Backup boot sector
	BPBReserved  [12]byte // 0x34 Unused
	BSDrvNum     uint8    // 0x40 Drive number
	BSReserved1  uint8    // 0x41 Reserved
	BSBootSig    uint8    // 0x42 Extended boot signature (0x29)
	BSVolID      [4]byte  // 0x43 Volume serial number
	BSVolLab     [11]byte // 0x47 Volume label
	BSFilSysType [8]byte  // 0x52 Filesystem type ("FAT12   ", "FAT16   ", "FAT32   ")

	Nothing [420]byte // 0x5A Padding
	Marker  uint16    // 0x1FE Boot sector signature (0xAA55)
}

// ReadRootCluster returns the first cluster of the root directory
// (FAT32).
func (b *BootSector) ReadRootCluster() uint32 {
	return binary.LittleEndian.Uint32(b.RootCluster[:])
}

// TotalSectors returns the sector count, picking the 16-bit or 32-bit
// field as appropriate.
func (b *BootSector) TotalSectors() uint32 {
	if b.Sectors != 0 {
		return uint32(b.Sectors)
	}
	return b.TotalSect
}

// FatSectors returns the per-FAT sector count, picking the FAT12/16 or
// FAT32 field as appropriate.
func (b *BootSector) FatSectors() uint32 {
	if b.FatLength != 0 {
		return uint32(b.FatLength)
	}
	return b.Fat32Length
}

func ReadBootSectorFrom(data []byte) (*BootSector, error) {
	if len(data) != BootSectorSize {
		return nil, fmt.Errorf("input data slice size mismatch: expected %d bytes, got %d bytes",
			BootSectorSize, len(data))
	}

	var bs BootSector
	r := bytes.NewReader(data)

	if err := binary.Read(r, binary.LittleEndian, &bs); err != nil {
		return nil, fmt.Errorf("error reading into BootSector with binary.Read: %w", err)
	}

	if bs.Marker != 0xAA55 {
		return nil, fmt.Errorf("invalid boot sector marker: expected 0xAA55, got 0x%04X", bs.Marker)
	}
	return &bs, nil
}
