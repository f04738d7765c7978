package apfsfs

import (
	"encoding/binary"
	"fmt"
)

// B-tree node flags (btn_flags).
const (
	btnodeRoot        = 0x0001
	btnodeLeaf        = 0x0002
	btnodeFixedKVSize = 0x0004

	// btreeInfoSize is the btree_info_t footer a root node carries in
	// its last bytes; the value area of a root node ends right before
	// it. This is where the 40-byte term of the leaf offset formula
	// comes from.
	btreeInfoSize = 40

	nodeHeaderSize = 56 // obj header (32) + flags/level/nkeys/table_space/free lists
)

// Node is one parsed B-tree node (btree_node_phys_t). The key and
// value areas grow toward each other from opposite ends of the block:
// key offsets count forward from the end of the table of contents,
// value offsets count backward from the end of the node (minus the
// btree_info footer on root nodes).
type Node struct {
	Flags      uint16
	Level      uint16
	EntryCount uint32

	blockSize uint32
	tableOff  uint16
	tableLen  uint16
	raw       []byte
}

// ParseNode decodes a raw B-tree node block.
func ParseNode(data []byte, blockSize uint32) (*Node, error) {
	if len(data) < nodeHeaderSize {
		return nil, fmt.Errorf("btree node too short: %d bytes", len(data))
	}

	le := binary.LittleEndian
	n := &Node{
		Flags:      le.Uint16(data[32:]),
		Level:      le.Uint16(data[34:]),
		EntryCount: le.Uint32(data[36:]),
		tableOff:   le.Uint16(data[40:]),
		tableLen:   le.Uint16(data[42:]),
		blockSize:  blockSize,
		raw:        data,
	}
	return n, nil
}

// IsRoot reports whether the node carries the btree_info footer.
func (n *Node) IsRoot() bool { return n.Flags&btnodeRoot != 0 }

// IsLeaf reports whether the node is at level zero of its tree.
func (n *Node) IsLeaf() bool { return n.Flags&btnodeLeaf != 0 }

func (n *Node) tocStart() int { return nodeHeaderSize + int(n.tableOff) }
func (n *Node) keyStart() int { return n.tocStart() + int(n.tableLen) }

// valueEnd is the end of the value area: the node end, or the start of
// the btree_info footer on root nodes.
func (n *Node) valueEnd() int {
	end := int(n.blockSize)
	if n.IsRoot() {
		end -= btreeInfoSize
	}
	return end
}

// OmapEntry is one fixed-size object map record: an object identifier
// mapped to the physical block that currently holds it.
type OmapEntry struct {
	OID   uint64
	XID   uint64
	Paddr uint64
}

// OmapEntries decodes the node's records as object-map entries
// (fixed-size keys and values: omap_key_t / omap_val_t).
func (n *Node) OmapEntries() ([]OmapEntry, error) {
	if n.Flags&btnodeFixedKVSize == 0 {
		return nil, fmt.Errorf("node is not a fixed key/value size node (flags 0x%04X)", n.Flags)
	}

	const (
		keySize = 16 // omap_key_t: oid, xid
		valSize = 16 // omap_val_t: flags, size, paddr
	)

	le := binary.LittleEndian
	entries := make([]OmapEntry, 0, n.EntryCount)
	for i := 0; i < int(n.EntryCount); i++ {
		tocOff := n.tocStart() + i*4 // kvoff_t: key off, value off
		if tocOff+4 > len(n.raw) {
			return nil, fmt.Errorf("omap toc entry %d out of bounds", i)
		}
		kOff := int(le.Uint16(n.raw[tocOff:]))
		vOff := int(le.Uint16(n.raw[tocOff+2:]))

		keyPos := n.keyStart() + kOff
		valPos := n.valueEnd() - vOff
		if keyPos+keySize > len(n.raw) || valPos < 0 || valPos+valSize > len(n.raw) {
			return nil, fmt.Errorf("omap entry %d key/value out of bounds", i)
		}

		entries = append(entries, OmapEntry{
			OID:   le.Uint64(n.raw[keyPos:]),
			XID:   le.Uint64(n.raw[keyPos+8:]),
			Paddr: le.Uint64(n.raw[valPos+8:]),
		})
	}
	return entries, nil
}

// Record is one variable-size filesystem-tree record. Kind carries the
// high 32 bits of the j_key_t object identifier; its top nibble is the
// record type. DataOffset is the raw value offset from the table of
// contents, counted backward from the node's value-area end.
type Record struct {
	Kind       uint32
	DataOffset uint16
}

// IsInode reports whether the record is an inode record (type tag 3).
func (r Record) IsInode() bool { return r.Kind>>28 == 3 }

// Records decodes the node's table of contents as variable-size
// filesystem-tree records (kvloc_t entries over j_key_t keys).
func (n *Node) Records() ([]Record, error) {
	if n.Flags&btnodeFixedKVSize != 0 {
		return nil, fmt.Errorf("node is a fixed key/value size node (flags 0x%04X)", n.Flags)
	}

	le := binary.LittleEndian
	records := make([]Record, 0, n.EntryCount)
	for i := 0; i < int(n.EntryCount); i++ {
		tocOff := n.tocStart() + i*8 // kvloc_t: key off/len, value off/len
		if tocOff+8 > len(n.raw) {
			return nil, fmt.Errorf("record toc entry %d out of bounds", i)
		}
		kOff := int(le.Uint16(n.raw[tocOff:]))
		vOff := le.Uint16(n.raw[tocOff+4:])

		keyPos := n.keyStart() + kOff
		if keyPos+8 > len(n.raw) {
			return nil, fmt.Errorf("record %d key out of bounds", i)
		}
		objIDAndType := le.Uint64(n.raw[keyPos:])

		records = append(records, Record{
			Kind:       uint32(objIDAndType >> 32),
			DataOffset: vOff,
		})
	}
	return records, nil
}
