package apfsfs

import "encoding/binary"

const testBlockSize = 4096

// TestVolume describes one synthetic APFS volume: how many inode
// records and how many records of other kinds its single filesystem
// leaf node carries.
type TestVolume struct {
	InodeRecords int
	OtherRecords int
}

// BuildAPFSImage lays out a synthetic APFS container in memory: a
// container superblock at block zero, the container object map and its
// root node, and per volume a volume superblock, an object map, the
// volume's (empty) root node and one filesystem leaf node. Volume
// object maps list the root node first so the parser's skip rule gets
// exercised on every image.
func BuildAPFSImage(vols ...TestVolume) []byte {
	blocks := 3 + 5*len(vols)
	img := make([]byte, blocks*testBlockSize)
	le := binary.LittleEndian

	block := func(n uint64) []byte {
		return img[n*testBlockSize : (n+1)*testBlockSize]
	}

	// Container superblock.
	sb := block(0)
	le.PutUint32(sb[nxMagicOffset:], NXMagic)
	le.PutUint32(sb[nxBlockSizeOffset:], testBlockSize)
	le.PutUint64(sb[nxOMapOIDOffset:], 1)

	// Container omap: phys at block 1, tree root at block 2.
	le.PutUint64(block(1)[omapTreeOIDOffset:], 2)

	next := uint64(3)
	containerEntries := make([]omapTestEntry, 0, len(vols))

	for i, vol := range vols {
		volSB := next
		volOmapPhys := next + 1
		volOmapRoot := next + 2
		fsRoot := next + 3
		fsLeaf := next + 4
		next += 5

		rootTreeOID := uint64(0x500 + 0x100*i)
		containerEntries = append(containerEntries, omapTestEntry{oid: uint64(0x400 + i), paddr: volSB})

		// Volume superblock.
		vsb := block(volSB)
		le.PutUint32(vsb[nxMagicOffset:], APSBMagic)
		le.PutUint64(vsb[apsbOMapOIDOffset:], volOmapPhys)
		le.PutUint64(vsb[apsbRootTreeOIDOffset:], rootTreeOID)

		// Volume omap phys and root node. The first mapping is the
		// volume's own root node, which AllInodes must skip.
		le.PutUint64(block(volOmapPhys)[omapTreeOIDOffset:], volOmapRoot)
		writeOmapNode(block(volOmapRoot), btnodeRoot|btnodeLeaf|btnodeFixedKVSize, []omapTestEntry{
			{oid: rootTreeOID, paddr: fsRoot},
			{oid: rootTreeOID + 1, paddr: fsLeaf},
		})

		writeFSNode(block(fsRoot), btnodeRoot|btnodeLeaf, nil)

		kinds := make([]uint64, 0, vol.InodeRecords+vol.OtherRecords)
		for j := 0; j < vol.InodeRecords; j++ {
			kinds = append(kinds, uint64(3)<<60|uint64(0x100+j))
		}
		for j := 0; j < vol.OtherRecords; j++ {
			kinds = append(kinds, uint64(6)<<60|uint64(0x200+j))
		}
		writeFSNode(block(fsLeaf), btnodeLeaf, kinds)
	}

	writeOmapNode(block(2), btnodeRoot|btnodeLeaf|btnodeFixedKVSize, containerEntries)

	return img
}

type omapTestEntry struct {
	oid   uint64
	paddr uint64
}

// writeOmapNode lays out a fixed key/value size B-tree node holding
// omap_key_t/omap_val_t records.
func writeOmapNode(raw []byte, flags uint16, entries []omapTestEntry) {
	le := binary.LittleEndian
	le.PutUint16(raw[32:], flags)
	le.PutUint32(raw[36:], uint32(len(entries)))
	le.PutUint16(raw[40:], 0)                      // table space offset
	le.PutUint16(raw[42:], uint16(len(entries)*4)) // table space length

	keyStart := nodeHeaderSize + len(entries)*4
	valueEnd := len(raw)
	if flags&btnodeRoot != 0 {
		valueEnd -= btreeInfoSize
	}

	for i, e := range entries {
		tocOff := nodeHeaderSize + i*4
		le.PutUint16(raw[tocOff:], uint16(i*16))
		le.PutUint16(raw[tocOff+2:], uint16((i+1)*16))

		keyPos := keyStart + i*16
		le.PutUint64(raw[keyPos:], e.oid)
		le.PutUint64(raw[keyPos+8:], 1) // xid

		valPos := valueEnd - (i+1)*16
		le.PutUint64(raw[valPos+8:], e.paddr)
	}
}

// writeFSNode lays out a variable key/value size filesystem-tree node;
// kinds are full j_key_t obj_id_and_type words, one per record, each
// paired with a zeroed 96-byte value.
func writeFSNode(raw []byte, flags uint16, kinds []uint64) {
	const valSize = 96

	le := binary.LittleEndian
	le.PutUint16(raw[32:], flags)
	le.PutUint32(raw[36:], uint32(len(kinds)))
	le.PutUint16(raw[40:], 0)
	le.PutUint16(raw[42:], uint16(len(kinds)*8))

	keyStart := nodeHeaderSize + len(kinds)*8

	for i, kind := range kinds {
		tocOff := nodeHeaderSize + i*8
		le.PutUint16(raw[tocOff:], uint16(i*8))             // key offset
		le.PutUint16(raw[tocOff+2:], 8)                     // key length
		le.PutUint16(raw[tocOff+4:], uint16((i+1)*valSize)) // value offset
		le.PutUint16(raw[tocOff+6:], valSize)               // value length

		le.PutUint64(raw[keyStart+i*8:], kind)
	}
}
