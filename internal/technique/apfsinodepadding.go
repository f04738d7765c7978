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
package technique

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/ostafen/weever/internal/apfsfs"
	"github.com/ostafen/weever/internal/device"
	"github.com/ostafen/weever/internal/metadata"
	"github.com/ostafen/weever/internal/werrors"
)

// The inode record value (j_inode_val_t) carries an 8-byte pad2 field
// 84 bytes in, after mode and pad1. Unused on current systems, zeroed
// by the kernel at creation.
const (
	apfsPad2Offset = 84
	apfsPadSize    = 8
)

// APFSPadLoc is one carrier location: the absolute byte address of the
// node block and the offset of the pad field inside it.
type APFSPadLoc struct {
	Block  int64  `json:"block"`
	Offset uint32 `json:"offset"`
}

// APFSInodePadMetadata lists the carrier pad fields in payload order
// plus the exact payload length.
type APFSInodePadMetadata struct {
	Locations []APFSPadLoc `json:"locations"`
	Length    uint64       `json:"length"`
}

func (m *APFSInodePadMetadata) Module() string { return ModuleAPFSInodePadding }

func init() {
	metadata.RegisterCodec(ModuleAPFSInodePadding, func(raw json.RawMessage) (metadata.TechniqueMetadata, error) {
		var m APFSInodePadMetadata
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		return &m, nil
	})
}

// APFSInodePadding hides data in the pad2 field of inode records
// across every volume of the container, 8 bytes per inode. Only pad
// fields currently reading all-zero are used, mirroring the osd2
// discriminator on EXT4.
type APFSInodePadding struct {
	dev device.Device
	fs  *apfsfs.Parser
}

func NewAPFSInodePadding(dev device.Device, fs *apfsfs.Parser) *APFSInodePadding {
	return &APFSInodePadding{dev: dev, fs: fs}
}

func (t *APFSInodePadding) padLocations() ([]APFSPadLoc, error) {
	inodes, err := t.fs.AllInodes()
	if err != nil {
		return nil, err
	}

	locs := make([]APFSPadLoc, 0, len(inodes))
	for _, in := range inodes {
		off := in.Offset + apfsPad2Offset
		if off+apfsPadSize > t.fs.BlockSize() {
			continue
		}
		locs = append(locs, APFSPadLoc{Block: in.BlockAddr, Offset: off})
	}
	return locs, nil
}

func (t *APFSInodePadding) Write(in io.Reader, cancel <-chan struct{}) (Metadata, error) {
	candidates, err := t.padLocations()
	if err != nil {
		return nil, err
	}

	payload, err := io.ReadAll(in)
	if err != nil {
		return nil, werrors.Wrap(werrors.IOFailure, err, "reading input stream")
	}
	if uint64(len(payload)) > uint64(len(candidates))*apfsPadSize {
		return nil, werrors.New(werrors.InsufficientSpace,
			"payload of %d bytes exceeds inode pad capacity of %d bytes",
			len(payload), uint64(len(candidates))*apfsPadSize)
	}

	m := &APFSInodePadMetadata{Length: uint64(len(payload))}

	var chunk [apfsPadSize]byte
	var cur [apfsPadSize]byte
	placed := 0
	for _, loc := range candidates {
		if placed >= len(payload) {
			break
		}
		if cancelled(cancel) {
			return m, ErrCancelled
		}

		// Preoccupied pad fields are skipped, not errors.
		if _, err := t.dev.ReadAt(cur[:], loc.Block+int64(loc.Offset)); err != nil {
			return m, werrors.Wrap(werrors.IOFailure, err, "reading inode pad at block %d", loc.Block)
		}
		if !isZero(cur[:]) {
			continue
		}

		n := copy(chunk[:], payload[placed:])
		for i := n; i < apfsPadSize; i++ {
			chunk[i] = 0
		}
		if _, err := t.dev.WriteAt(chunk[:], loc.Block+int64(loc.Offset)); err != nil {
			return m, werrors.Wrap(werrors.IOFailure, err, "writing inode pad at block %d", loc.Block)
		}
		m.Locations = append(m.Locations, loc)
		placed += n
	}

	if placed < len(payload) {
		m.Length = uint64(placed)
		return m, werrors.New(werrors.InsufficientSpace,
			"ran out of free inode pad fields after %d of %d bytes", placed, len(payload))
	}
	return m, nil
}

func (t *APFSInodePadding) Read(m Metadata, out io.Writer) error {
	md, ok := m.(*APFSInodePadMetadata)
	if !ok {
		return errWrongMetadata("APFS inode padding")
	}

	remaining := md.Length
	var chunk [apfsPadSize]byte
	for _, loc := range md.Locations {
		if _, err := t.dev.ReadAt(chunk[:], loc.Block+int64(loc.Offset)); err != nil {
			return werrors.Wrap(werrors.IOFailure, err, "reading inode pad at block %d", loc.Block)
		}

		n := uint64(apfsPadSize)
		if remaining < n {
			n = remaining
		}
		if _, err := out.Write(chunk[:n]); err != nil {
			return werrors.Wrap(werrors.IOFailure, err, "writing output stream")
		}
		remaining -= n
	}
	if remaining > 0 {
		return werrors.New(werrors.CorruptStructure,
			"metadata lists %d pad fields but %d payload bytes are unaccounted for", len(md.Locations), remaining)
	}
	return nil
}

func (t *APFSInodePadding) Clear(m Metadata) error {
	md, ok := m.(*APFSInodePadMetadata)
	if !ok {
		return errWrongMetadata("APFS inode padding")
	}

	zero := make([]byte, apfsPadSize)
	for _, loc := range md.Locations {
		if _, err := t.dev.WriteAt(zero, loc.Block+int64(loc.Offset)); err != nil {
			return werrors.Wrap(werrors.IOFailure, err, "clearing inode pad at block %d", loc.Block)
		}
	}
	return nil
}

func (t *APFSInodePadding) Info(m Metadata) (Info, error) {
	candidates, err := t.padLocations()
	if err != nil {
		return Info{}, err
	}

	info := Info{
		Module:   ModuleAPFSInodePadding,
		Capacity: uint64(len(candidates)) * apfsPadSize,
		Detail:   fmt.Sprintf("%d inode records, %d bytes per pad field", len(candidates), apfsPadSize),
	}
	if m != nil {
		md, ok := m.(*APFSInodePadMetadata)
		if !ok {
			return Info{}, errWrongMetadata("APFS inode padding")
		}
		info.Used = md.Length
	}
	return info, nil
}
