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
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/ostafen/weever/internal/device"
	"github.com/ostafen/weever/internal/ext4fs"
	"github.com/ostafen/weever/internal/metadata"
	"github.com/ostafen/weever/internal/werrors"
)

// goodOldInodeSize is the fixed inode core; i_extra_isize at this
// offset says how many further bytes the inode actually uses when the
// on-disk inode size exceeds the core.
const goodOldInodeSize = 128

// InodePad records one inode's padded tail: where hidden data starts
// inside the inode and how many bytes went there.
type InodePad struct {
	Inode  uint32 `json:"inode"`
	Start  uint32 `json:"start"`
	Length uint32 `json:"length"`
}

// InodeTailMetadata lists the carrier inodes in payload order plus the
// exact total payload length.
type InodeTailMetadata struct {
	Entries []InodePad `json:"entries"`
	Length  uint64     `json:"length"`
}

func (m *InodeTailMetadata) Module() string { return ModuleInodePadding }

func init() {
	metadata.RegisterCodec(ModuleInodePadding, func(raw json.RawMessage) (metadata.TechniqueMetadata, error) {
		var m InodeTailMetadata
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		return &m, nil
	})
}

// InodeTailPadding hides data in the unused tail of each on-disk
// inode slot: the bytes past the 128-byte core plus whatever
// i_extra_isize claims, up to the superblock's inode size. Distinct
// from the osd2 technique, which uses two bytes inside the core.
// Only inodes whose tail currently reads all-zero are used.
type InodeTailPadding struct {
	dev device.Device
	fs  *ext4fs.Parser
}

func NewInodeTailPadding(dev device.Device, fs *ext4fs.Parser) *InodeTailPadding {
	return &InodeTailPadding{dev: dev, fs: fs}
}

// tailRegion computes where inode n's padded tail starts inside the
// slot and how long it is. A zero length means the inode has no usable
// tail.
func (t *InodeTailPadding) tailRegion(n uint32) (start, size uint32, off int64, err error) {
	inodeSize := uint32(t.fs.Super.InodeSize)
	if inodeSize <= goodOldInodeSize {
		return 0, 0, 0, nil
	}

	off, err = t.fs.InodeOffset(n)
	if err != nil {
		return 0, 0, 0, err
	}

	var extra [2]byte
	if _, err := t.dev.ReadAt(extra[:], off+goodOldInodeSize); err != nil {
		return 0, 0, 0, werrors.Wrap(werrors.IOFailure, err, "reading i_extra_isize of inode %d", n)
	}

	start = goodOldInodeSize + uint32(binary.LittleEndian.Uint16(extra[:]))
	if start >= inodeSize {
		return 0, 0, 0, nil
	}
	return start, inodeSize - start, off, nil
}

func (t *InodeTailPadding) Write(in io.Reader, cancel <-chan struct{}) (Metadata, error) {
	if t.fs.Super.InodeSize <= goodOldInodeSize {
		return nil, werrors.New(werrors.InsufficientSpace,
			"inode size %d leaves no padded tail", t.fs.Super.InodeSize)
	}

	m := &InodeTailMetadata{}
	for n := uint32(1); n <= t.fs.Super.InodesCount; n++ {
		if cancelled(cancel) {
			return m, ErrCancelled
		}

		start, size, off, err := t.tailRegion(n)
		if err != nil {
			return m, err
		}
		if size == 0 {
			continue
		}

		region := make([]byte, size)
		if _, err := t.dev.ReadAt(region, off+int64(start)); err != nil {
			return m, werrors.Wrap(werrors.IOFailure, err, "reading tail of inode %d", n)
		}
		if !isZero(region) {
			continue
		}

		chunk := make([]byte, size)
		c, eof, err := readChunk(in, chunk)
		if err != nil {
			return m, werrors.Wrap(werrors.IOFailure, err, "reading input stream")
		}
		if c > 0 {
			if _, err := t.dev.WriteAt(chunk[:c], off+int64(start)); err != nil {
				return m, werrors.Wrap(werrors.IOFailure, err, "writing tail of inode %d", n)
			}
			m.Entries = append(m.Entries, InodePad{Inode: n, Start: start, Length: uint32(c)})
			m.Length += uint64(c)
		}
		if eof {
			return m, nil
		}
	}

	var probe [1]byte
	if _, err := in.Read(probe[:]); err == io.EOF {
		return m, nil
	}
	return m, werrors.New(werrors.InsufficientSpace,
		"ran out of zero inode tails after %d bytes", m.Length)
}

func (t *InodeTailPadding) Read(m Metadata, out io.Writer) error {
	md, ok := m.(*InodeTailMetadata)
	if !ok {
		return errWrongMetadata("inode tail padding")
	}

	for _, e := range md.Entries {
		off, err := t.fs.InodeOffset(e.Inode)
		if err != nil {
			return err
		}
		buf := make([]byte, e.Length)
		if _, err := t.dev.ReadAt(buf, off+int64(e.Start)); err != nil {
			return werrors.Wrap(werrors.IOFailure, err, "reading tail of inode %d", e.Inode)
		}
		if _, err := out.Write(buf); err != nil {
			return werrors.Wrap(werrors.IOFailure, err, "writing output stream")
		}
	}
	return nil
}

func (t *InodeTailPadding) Clear(m Metadata) error {
	md, ok := m.(*InodeTailMetadata)
	if !ok {
		return errWrongMetadata("inode tail padding")
	}

	for _, e := range md.Entries {
		off, err := t.fs.InodeOffset(e.Inode)
		if err != nil {
			return err
		}
		zero := make([]byte, e.Length)
		if _, err := t.dev.WriteAt(zero, off+int64(e.Start)); err != nil {
			return werrors.Wrap(werrors.IOFailure, err, "clearing tail of inode %d", e.Inode)
		}
	}
	return nil
}

func (t *InodeTailPadding) Info(m Metadata) (Info, error) {
	inodeSize := uint32(t.fs.Super.InodeSize)
	var capacity uint64
	if inodeSize > goodOldInodeSize {
		// Upper bound: assumes every inode's i_extra_isize is zero.
		capacity = uint64(t.fs.Super.InodesCount) * uint64(inodeSize-goodOldInodeSize)
	}

	info := Info{
		Module:   ModuleInodePadding,
		Capacity: capacity,
		Detail: fmt.Sprintf("%d inodes of %d bytes, %d-byte core",
			t.fs.Super.InodesCount, inodeSize, goodOldInodeSize),
	}
	if m != nil {
		md, ok := m.(*InodeTailMetadata)
		if !ok {
			return Info{}, errWrongMetadata("inode tail padding")
		}
		info.Used = md.Length
	}
	return info, nil
}
