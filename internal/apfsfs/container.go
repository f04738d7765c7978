package apfsfs

import (
	"encoding/binary"
	"fmt"
)

const (
	// NXMagic is "NXSB" little-endian.
	NXMagic = 0x4253584E

	// APSBMagic is "APSB" little-endian.
	APSBMagic = 0x42535041

	nxMagicOffset     = 32
	nxBlockSizeOffset = 36
	nxOMapOIDOffset   = 160

	apsbOMapOIDOffset     = 128
	apsbRootTreeOIDOffset = 136

	objHeaderSize = 32
)

// ContainerSuperblock carries the container facts the object-map walk
// needs.
type ContainerSuperblock struct {
	Magic     uint32
	BlockSize uint32
	OMapOID   uint64
}

// ParseContainerSuperblock decodes the raw container superblock found
// at block zero.
func ParseContainerSuperblock(data []byte) (*ContainerSuperblock, error) {
	if len(data) < nxOMapOIDOffset+8 {
		return nil, fmt.Errorf("container superblock too short: %d bytes", len(data))
	}

	le := binary.LittleEndian
	sb := &ContainerSuperblock{
		Magic:     le.Uint32(data[nxMagicOffset:]),
		BlockSize: le.Uint32(data[nxBlockSizeOffset:]),
		OMapOID:   le.Uint64(data[nxOMapOIDOffset:]),
	}
	if sb.Magic != NXMagic {
		return nil, fmt.Errorf("bad container magic: expected 0x%08X, got 0x%08X", NXMagic, sb.Magic)
	}
	if sb.BlockSize == 0 || sb.BlockSize&(sb.BlockSize-1) != 0 {
		return nil, fmt.Errorf("invalid container block size %d", sb.BlockSize)
	}
	return sb, nil
}

// Volume holds the two object identifiers a per-volume traversal
// needs: the volume's own object map and the root of its filesystem
// tree.
type Volume struct {
	OMapOID     uint64
	RootTreeOID uint64
}

// parseVolumeSuperblock extracts the (omap_oid, root_tree_oid) pair
// from a raw volume superblock, validating the APSB magic.
func parseVolumeSuperblock(data []byte) (Volume, bool) {
	if len(data) < apsbRootTreeOIDOffset+8 {
		return Volume{}, false
	}
	le := binary.LittleEndian
	if le.Uint32(data[nxMagicOffset:]) != APSBMagic {
		return Volume{}, false
	}
	return Volume{
		OMapOID:     le.Uint64(data[apsbOMapOIDOffset:]),
		RootTreeOID: le.Uint64(data[apsbRootTreeOIDOffset:]),
	}, true
}
