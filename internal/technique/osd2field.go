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

// OSD2Metadata records which inodes carry the hidden 2-byte chunks,
// in payload order, plus the exact payload length so an odd-length
// payload recovers without ambiguity.
type OSD2Metadata struct {
	InodeNumbers []uint32 `json:"inode_numbers"`
	Length       uint32   `json:"length"`
}

func (m *OSD2Metadata) Module() string { return ModuleOSD2 }

func init() {
	metadata.RegisterCodec(ModuleOSD2, func(raw json.RawMessage) (metadata.TechniqueMetadata, error) {
		var m OSD2Metadata
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		return &m, nil
	})
}

// OSD2Field hides data in the last two bytes of each inode's osd2
// field, walking inode numbers from 1 and using only slots currently
// holding 0x0000. The empty discriminator is 0x0000, so the technique
// is reliable only while unused osd2 tails stay zero, which holds on
// unmodified filesystems.
type OSD2Field struct {
	dev device.Device
	fs  *ext4fs.Parser
}

func NewOSD2Field(dev device.Device, fs *ext4fs.Parser) *OSD2Field {
	return &OSD2Field{dev: dev, fs: fs}
}

func (t *OSD2Field) capacity() uint64 {
	return uint64(t.fs.Super.InodesCount) * 2
}

func (t *OSD2Field) Write(in io.Reader, cancel <-chan struct{}) (Metadata, error) {
	payload, err := io.ReadAll(in)
	if err != nil {
		return nil, werrors.Wrap(werrors.IOFailure, err, "reading input stream")
	}
	if uint64(len(payload)) > t.capacity() {
		return nil, werrors.New(werrors.InsufficientSpace,
			"payload of %d bytes exceeds osd2 capacity of %d bytes", len(payload), t.capacity())
	}

	m := &OSD2Metadata{Length: uint32(len(payload))}
	if len(payload) == 0 {
		return m, nil
	}

	var chunk [2]byte
	inode := uint32(1)
	for placed := 0; placed < len(payload); {
		if cancelled(cancel) {
			return m, ErrCancelled
		}

		chunk[0], chunk[1] = payload[placed], 0
		if placed+1 < len(payload) {
			chunk[1] = payload[placed+1]
		}

		ok, err := t.writeChunk(chunk[:], inode)
		if err != nil {
			return m, err
		}
		if ok {
			m.InodeNumbers = append(m.InodeNumbers, inode)
			placed += 2
		}

		inode++
		if inode > t.fs.Super.InodesCount && placed < len(payload) {
			return m, werrors.New(werrors.InsufficientSpace,
				"ran out of free osd2 slots after %d of %d bytes", placed, len(payload))
		}
	}
	return m, nil
}

// writeChunk places one 2-byte chunk into an inode's osd2 tail if the
// slot currently reads 0x0000. A preoccupied slot is a loop
// continuation, not an error.
func (t *OSD2Field) writeChunk(chunk []byte, inode uint32) (bool, error) {
	off, err := t.fs.OSD2Offset(inode)
	if err != nil {
		return false, err
	}

	var cur [2]byte
	if _, err := t.dev.ReadAt(cur[:], off); err != nil {
		return false, werrors.Wrap(werrors.IOFailure, err, "reading osd2 of inode %d", inode)
	}
	if cur[0] != 0 || cur[1] != 0 {
		return false, nil
	}
	if _, err := t.dev.WriteAt(chunk, off); err != nil {
		return false, werrors.Wrap(werrors.IOFailure, err, "writing osd2 of inode %d", inode)
	}
	return true, nil
}

func (t *OSD2Field) Read(m Metadata, out io.Writer) error {
	md, err := osd2Meta(m)
	if err != nil {
		return err
	}

	remaining := int(md.Length)
	for _, inode := range md.InodeNumbers {
		off, err := t.fs.OSD2Offset(inode)
		if err != nil {
			return err
		}
		var chunk [2]byte
		if _, err := t.dev.ReadAt(chunk[:], off); err != nil {
			return werrors.Wrap(werrors.IOFailure, err, "reading osd2 of inode %d", inode)
		}

		n := 2
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
			"metadata lists %d inodes but %d payload bytes are unaccounted for", len(md.InodeNumbers), remaining)
	}
	return nil
}

func (t *OSD2Field) Clear(m Metadata) error {
	md, err := osd2Meta(m)
	if err != nil {
		return err
	}

	zero := []byte{0, 0}
	for _, inode := range md.InodeNumbers {
		off, err := t.fs.OSD2Offset(inode)
		if err != nil {
			return err
		}
		if _, err := t.dev.WriteAt(zero, off); err != nil {
			return werrors.Wrap(werrors.IOFailure, err, "clearing osd2 of inode %d", inode)
		}
	}
	return nil
}

func (t *OSD2Field) Info(m Metadata) (Info, error) {
	info := Info{
		Module:   ModuleOSD2,
		Capacity: t.capacity(),
		Detail:   fmt.Sprintf("%d inodes, 2 bytes per osd2 field", t.fs.Super.InodesCount),
	}
	if m != nil {
		md, err := osd2Meta(m)
		if err != nil {
			return Info{}, err
		}
		info.Used = uint64(len(md.InodeNumbers)) * 2
	}
	return info, nil
}

func osd2Meta(m Metadata) (*OSD2Metadata, error) {
	md, ok := m.(*OSD2Metadata)
	if !ok {
		return nil, werrors.New(werrors.UnsupportedFilesystem, "metadata is not osd2 metadata")
	}
	return md, nil
}
