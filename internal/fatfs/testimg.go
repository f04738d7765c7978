package fatfs

import (
	"encoding/binary"
	"strings"
)

// ImageFile describes one file to place on a synthetic test volume.
// Content is laid out in consecutive clusters starting right after any
// previously placed file.
type ImageFile struct {
	Name    string // 8.3 name, e.g. "HELLO.TXT"
	Content []byte
}

// BuildFAT16Image builds a synthetic FAT16 volume in memory: 512-byte
// sectors, 8 sectors per cluster (4096-byte clusters), two FAT copies
// and a 512-entry root directory. Every test against the FAT parser
// and the FAT techniques runs on images produced here instead of real
// disk dumps.
func BuildFAT16Image(files ...ImageFile) []byte {
	const (
		sectorSize        = 512
		sectorsPerCluster = 8
		fatCount          = 2
		reservedSectors   = 1
		rootEntries       = 512
		clusterCount      = 4200 // >= 4085, so the variant resolves to FAT16
	)

	fatSectors := ((clusterCount+2)*2 + sectorSize - 1) / sectorSize
	rootDirSectors := rootEntries * dirEntrySize / sectorSize
	dataSectors := clusterCount * sectorsPerCluster
	totalSectors := reservedSectors + fatCount*fatSectors + rootDirSectors + dataSectors

	img := make([]byte, totalSectors*sectorSize)

	// Boot sector.
	binary.LittleEndian.PutUint16(img[0x0B:], sectorSize)
	img[0x0D] = sectorsPerCluster
	binary.LittleEndian.PutUint16(img[0x0E:], reservedSectors)
	img[0x10] = fatCount
	binary.LittleEndian.PutUint16(img[0x11:], rootEntries)
	binary.LittleEndian.PutUint32(img[0x20:], uint32(totalSectors))
	binary.LittleEndian.PutUint16(img[0x16:], uint16(fatSectors))
	copy(img[0x36:], "FAT16   ")
	binary.LittleEndian.PutUint16(img[0x1FE:], 0xAA55)

	fatOffset := reservedSectors * sectorSize
	fatSize := fatSectors * sectorSize
	rootDirOffset := fatOffset + fatCount*fatSize
	dataOffset := rootDirOffset + rootDirSectors*sectorSize
	clusterSize := sectorSize * sectorsPerCluster

	putEntry := func(cluster int, value uint16) {
		for i := 0; i < fatCount; i++ {
			binary.LittleEndian.PutUint16(img[fatOffset+i*fatSize+cluster*2:], value)
		}
	}
	putEntry(0, 0xFFF8) // media descriptor
	putEntry(1, 0xFFFF)

	nextCluster := 2
	for n, f := range files {
		start := nextCluster
		clusters := (len(f.Content) + clusterSize - 1) / clusterSize
		if clusters == 0 {
			clusters = 1
		}
		for i := 0; i < clusters; i++ {
			if i == clusters-1 {
				putEntry(nextCluster, 0xFFF8)
			} else {
				putEntry(nextCluster, uint16(nextCluster+1))
			}
			nextCluster++
		}

		copy(img[dataOffset+(start-2)*clusterSize:], f.Content)
		writeDirEntry(img[rootDirOffset+n*dirEntrySize:], f.Name, uint32(start), uint32(len(f.Content)))
	}

	return img
}

// BuildFAT12Image builds a tiny FAT12 volume: 512-byte sectors, one
// sector per cluster, two FAT copies, a 16-entry root directory and
// 128 data clusters.
func BuildFAT12Image(files ...ImageFile) []byte {
	const (
		sectorSize        = 512
		sectorsPerCluster = 1
		fatCount          = 2
		reservedSectors   = 1
		rootEntries       = 16
		clusterCount      = 128
	)

	fatSectors := ((clusterCount+2)*3/2 + sectorSize - 1) / sectorSize
	rootDirSectors := rootEntries * dirEntrySize / sectorSize
	totalSectors := reservedSectors + fatCount*fatSectors + rootDirSectors + clusterCount

	img := make([]byte, totalSectors*sectorSize)

	binary.LittleEndian.PutUint16(img[0x0B:], sectorSize)
	img[0x0D] = sectorsPerCluster
	binary.LittleEndian.PutUint16(img[0x0E:], reservedSectors)
	img[0x10] = fatCount
	binary.LittleEndian.PutUint16(img[0x11:], rootEntries)
	binary.LittleEndian.PutUint16(img[0x13:], uint16(totalSectors))
	binary.LittleEndian.PutUint16(img[0x16:], uint16(fatSectors))
	copy(img[0x36:], "FAT12   ")
	binary.LittleEndian.PutUint16(img[0x1FE:], 0xAA55)

	fatOffset := reservedSectors * sectorSize
	fatSize := fatSectors * sectorSize
	rootDirOffset := fatOffset + fatCount*fatSize
	dataOffset := rootDirOffset + rootDirSectors*sectorSize

	putEntry := func(cluster int, value uint16) {
		for i := 0; i < fatCount; i++ {
			off := fatOffset + i*fatSize + cluster + cluster/2
			v := binary.LittleEndian.Uint16(img[off:])
			if cluster&1 == 1 {
				v = v&0x000F | value&0x0FFF<<4
			} else {
				v = v&0xF000 | value&0x0FFF
			}
			binary.LittleEndian.PutUint16(img[off:], v)
		}
	}
	putEntry(0, 0xFF8)
	putEntry(1, 0xFFF)

	nextCluster := 2
	for n, f := range files {
		start := nextCluster
		clusters := (len(f.Content) + sectorSize - 1) / sectorSize
		if clusters == 0 {
			clusters = 1
		}
		for i := 0; i < clusters; i++ {
			if i == clusters-1 {
				putEntry(nextCluster, 0xFF8)
			} else {
				putEntry(nextCluster, uint16(nextCluster+1))
			}
			nextCluster++
		}

		copy(img[dataOffset+(start-2)*sectorSize:], f.Content)
		writeDirEntry(img[rootDirOffset+n*dirEntrySize:], f.Name, uint32(start), uint32(len(f.Content)))
	}

	return img
}

func writeDirEntry(raw []byte, name string, start, size uint32) {
	base, ext, _ := strings.Cut(name, ".")
	copy(raw[:8], "        ")
	copy(raw[8:11], "   ")
	copy(raw[:8], strings.ToUpper(base))
	copy(raw[8:11], strings.ToUpper(ext))
	binary.LittleEndian.PutUint16(raw[26:], uint16(start))
	binary.LittleEndian.PutUint32(raw[28:], size)
}
