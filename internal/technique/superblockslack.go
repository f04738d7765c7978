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

// The reserved padding tail of the EXT4 superblock: everything between
// the last field current kernels define and the checksum word at
// 0x3FC. Capacity is fixed and small.
const (
	sbSlackStart = 0x280
	sbSlackEnd   = 0x3FC

	sbSlackSize = sbSlackEnd - sbSlackStart
	sbLenPrefix = 4
)

// SuperblockSlackMetadata records where the region sits on disk and
// the payload length, which is also embedded in the region itself as
// a length prefix.
type SuperblockSlackMetadata struct {
	Offset int64  `json:"offset"`
	Length uint32 `json:"length"`
}

func (m *SuperblockSlackMetadata) Module() string { return ModuleSuperblockSlack }

func init() {
	metadata.RegisterCodec(ModuleSuperblockSlack, func(raw json.RawMessage) (metadata.TechniqueMetadata, error) {
		var m SuperblockSlackMetadata
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		return &m, nil
	})
}

// SuperblockSlack hides data in the unused tail of the primary EXT4
// superblock, prefixed with a 4-byte little-endian length.
type SuperblockSlack struct {
	dev  device.Device
	fs   *ext4fs.Parser
	base int64
}

func NewSuperblockSlack(dev device.Device, fs *ext4fs.Parser, base int64) *SuperblockSlack {
	return &SuperblockSlack{dev: dev, fs: fs, base: base}
}

func (t *SuperblockSlack) regionOffset() int64 {
	return t.base + ext4fs.Superblock0Offset + sbSlackStart
}

func (t *SuperblockSlack) Write(in io.Reader, cancel <-chan struct{}) (Metadata, error) {
	payload, err := io.ReadAll(in)
	if err != nil {
		return nil, werrors.Wrap(werrors.IOFailure, err, "reading input stream")
	}
	if len(payload) > sbSlackSize-sbLenPrefix {
		return nil, werrors.New(werrors.InsufficientSpace,
			"payload of %d bytes exceeds superblock slack capacity of %d bytes", len(payload), sbSlackSize-sbLenPrefix)
	}

	// The region must still be empty: a nonzero tail either carries an
	// earlier hide or a superblock field this build does not know.
	region := make([]byte, sbLenPrefix+len(payload))
	if _, err := t.dev.ReadAt(region, t.regionOffset()); err != nil {
		return nil, werrors.Wrap(werrors.IOFailure, err, "reading superblock slack")
	}
	if !isZero(region) {
		return nil, werrors.New(werrors.PreconditionViolated,
			"superblock slack at %d is not empty", t.regionOffset())
	}

	binary.LittleEndian.PutUint32(region, uint32(len(payload)))
	copy(region[sbLenPrefix:], payload)
	if _, err := t.dev.WriteAt(region, t.regionOffset()); err != nil {
		return nil, werrors.Wrap(werrors.IOFailure, err, "writing superblock slack")
	}

	return &SuperblockSlackMetadata{Offset: t.regionOffset(), Length: uint32(len(payload))}, nil
}

func (t *SuperblockSlack) Read(m Metadata, out io.Writer) error {
	md, ok := m.(*SuperblockSlackMetadata)
	if !ok {
		return errWrongMetadata("superblock slack")
	}

	var prefix [sbLenPrefix]byte
	if _, err := t.dev.ReadAt(prefix[:], md.Offset); err != nil {
		return werrors.Wrap(werrors.IOFailure, err, "reading superblock slack")
	}
	if stored := binary.LittleEndian.Uint32(prefix[:]); stored != md.Length {
		return werrors.New(werrors.PreconditionViolated,
			"embedded length %d does not match recorded length %d", stored, md.Length)
	}

	buf := make([]byte, md.Length)
	if _, err := t.dev.ReadAt(buf, md.Offset+sbLenPrefix); err != nil {
		return werrors.Wrap(werrors.IOFailure, err, "reading superblock slack payload")
	}
	if _, err := out.Write(buf); err != nil {
		return werrors.Wrap(werrors.IOFailure, err, "writing output stream")
	}
	return nil
}

func (t *SuperblockSlack) Clear(m Metadata) error {
	md, ok := m.(*SuperblockSlackMetadata)
	if !ok {
		return errWrongMetadata("superblock slack")
	}

	zero := make([]byte, sbLenPrefix+md.Length)
	if _, err := t.dev.WriteAt(zero, md.Offset); err != nil {
		return werrors.Wrap(werrors.IOFailure, err, "clearing superblock slack")
	}
	return nil
}

func (t *SuperblockSlack) Info(m Metadata) (Info, error) {
	info := Info{
		Module:   ModuleSuperblockSlack,
		Capacity: sbSlackSize - sbLenPrefix,
		Detail:   fmt.Sprintf("superblock reserved tail at offset %d", t.regionOffset()),
	}
	if m != nil {
		md, ok := m.(*SuperblockSlackMetadata)
		if !ok {
			return Info{}, errWrongMetadata("superblock slack")
		}
		info.Used = uint64(md.Length)
	}
	return info, nil
}
