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

	"github.com/ostafen/weever/internal/device"
	"github.com/ostafen/weever/internal/ext4fs"
	"github.com/ostafen/weever/internal/metadata"
	"github.com/ostafen/weever/internal/werrors"
)

// GDTBlock records one reserved-GDT carrier block: its group, its
// absolute block number and how many payload bytes went into it.
type GDTBlock struct {
	Group  uint32 `json:"group"`
	Block  uint64 `json:"block"`
	Length uint32 `json:"length"`
}

// ReservedGDTMetadata lists the carrier blocks in payload order.
type ReservedGDTMetadata struct {
	Blocks []GDTBlock `json:"blocks"`
}

func (m *ReservedGDTMetadata) Module() string { return ModuleReservedGDT }

func init() {
	metadata.RegisterCodec(ModuleReservedGDT, func(raw json.RawMessage) (metadata.TechniqueMetadata, error) {
		var m ReservedGDTMetadata
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		return &m, nil
	})
}

// ReservedGDTBlocks hides data in the blocks each group reserves for
// future online growth of its group descriptor table: allocated, but
// unused until a resize happens.
type ReservedGDTBlocks struct {
	dev device.Device
	fs  *ext4fs.Parser
}

func NewReservedGDTBlocks(dev device.Device, fs *ext4fs.Parser) *ReservedGDTBlocks {
	return &ReservedGDTBlocks{dev: dev, fs: fs}
}

// carrierBlocks enumerates every reserved GDT block, group by group.
func (t *ReservedGDTBlocks) carrierBlocks() []GDTBlock {
	var blocks []GDTBlock
	for g := uint32(0); g < t.fs.GroupCount(); g++ {
		first, count, ok := t.fs.ReservedGDTRange(g)
		if !ok {
			continue
		}
		for i := uint32(0); i < count; i++ {
			blocks = append(blocks, GDTBlock{Group: g, Block: first + uint64(i)})
		}
	}
	return blocks
}

func (t *ReservedGDTBlocks) capacity() uint64 {
	return uint64(len(t.carrierBlocks())) * uint64(t.fs.BlockSize())
}

func (t *ReservedGDTBlocks) Write(in io.Reader, cancel <-chan struct{}) (Metadata, error) {
	m := &ReservedGDTMetadata{}
	buf := make([]byte, t.fs.BlockSize())

	candidates := t.carrierBlocks()
	for _, blk := range candidates {
		if cancelled(cancel) {
			return m, ErrCancelled
		}

		n, eof, err := readChunk(in, buf)
		if err != nil {
			return m, werrors.Wrap(werrors.IOFailure, err, "reading input stream")
		}
		if n > 0 {
			if _, err := t.dev.WriteAt(buf[:n], t.fs.BlockOffset(blk.Block)); err != nil {
				return m, werrors.Wrap(werrors.IOFailure, err, "writing reserved GDT block %d", blk.Block)
			}
			blk.Length = uint32(n)
			m.Blocks = append(m.Blocks, blk)
		}
		if eof {
			return m, nil
		}
	}

	// All carriers filled: the write succeeded only if the stream was
	// exactly consumed.
	var probe [1]byte
	if _, err := in.Read(probe[:]); err == io.EOF {
		return m, nil
	}
	return m, werrors.New(werrors.InsufficientSpace,
		"payload exceeds reserved GDT capacity of %d bytes (%d blocks)", t.capacity(), len(candidates))
}

func (t *ReservedGDTBlocks) Read(m Metadata, out io.Writer) error {
	md, err := gdtMeta(m)
	if err != nil {
		return err
	}

	buf := make([]byte, t.fs.BlockSize())
	for _, blk := range md.Blocks {
		if _, err := t.dev.ReadAt(buf[:blk.Length], t.fs.BlockOffset(blk.Block)); err != nil {
			return werrors.Wrap(werrors.IOFailure, err, "reading reserved GDT block %d", blk.Block)
		}
		if _, err := out.Write(buf[:blk.Length]); err != nil {
			return werrors.Wrap(werrors.IOFailure, err, "writing output stream")
		}
	}
	return nil
}

func (t *ReservedGDTBlocks) Clear(m Metadata) error {
	md, err := gdtMeta(m)
	if err != nil {
		return err
	}

	zero := make([]byte, t.fs.BlockSize())
	for _, blk := range md.Blocks {
		if _, err := t.dev.WriteAt(zero[:blk.Length], t.fs.BlockOffset(blk.Block)); err != nil {
			return werrors.Wrap(werrors.IOFailure, err, "clearing reserved GDT block %d", blk.Block)
		}
	}
	return nil
}

func (t *ReservedGDTBlocks) Info(m Metadata) (Info, error) {
	info := Info{
		Module:   ModuleReservedGDT,
		Capacity: t.capacity(),
		Detail: fmt.Sprintf("%d reserved GDT blocks of %d bytes across %d groups",
			len(t.carrierBlocks()), t.fs.BlockSize(), t.fs.GroupCount()),
	}
	if m != nil {
		md, err := gdtMeta(m)
		if err != nil {
			return Info{}, err
		}
		for _, blk := range md.Blocks {
			info.Used += uint64(blk.Length)
		}
	}
	return info, nil
}

func gdtMeta(m Metadata) (*ReservedGDTMetadata, error) {
	md, ok := m.(*ReservedGDTMetadata)
	if !ok {
		return nil, werrors.New(werrors.UnsupportedFilesystem, "metadata is not reserved GDT metadata")
	}
	return md, nil
}
