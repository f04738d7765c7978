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

// Package detect classifies the filesystem variant found on a raw
// device by probing signature fields at well-known offsets in the
// boot sector / superblock region. Probe order is fixed: FAT first
// (cheapest), then EXT, then APFS; the first match wins.
package detect

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/ostafen/weever/internal/device"
	"github.com/ostafen/weever/internal/werrors"
)

// Variant identifies one supported filesystem.
type Variant int

const (
	FAT12 Variant = iota
	FAT16
	FAT32
	EXT4
	APFS
)

func (v Variant) String() string {
	switch v {
	case FAT12:
		return "FAT12"
	case FAT16:
		return "FAT16"
	case FAT32:
		return "FAT32"
	case EXT4:
		return "EXT4"
	case APFS:
		return "APFS"
	default:
		return "UNKNOWN"
	}
}

// IsFAT reports whether v is one of the FAT family variants.
func (v Variant) IsFAT() bool {
	return v == FAT12 || v == FAT16 || v == FAT32
}

const (
	fatNameOffset1x  = 54 // "FAT12   " / "FAT16   " in the FAT12/16 BPB
	fatNameOffset32  = 82 // "FAT32   " in the FAT32 BPB
	fat32VersionOff  = 42 // little-endian u16 filesystem version
	ext4MagicOffset  = 1024 + 56
	ext4Magic        = 0xEF53
	apfsMagicOffset  = 32 // inside the container superblock at block 0
	nxContainerMagic = "NXSB"
	ext4IncompatOff  = 1024 + 96
	incompatFiletype = 0x0002
	incompatExtents  = 0x0040
	incompat64Bit    = 0x0080
	incompatMetaBg   = 0x0010
	incompatRecover  = 0x0004 // journal needs recovery: volume was not cleanly unmounted
)

// Detect classifies the filesystem starting at byte offset base on
// dev, or fails with UnsupportedFilesystem. Probing goes through
// absolute-offset reads only, so no caller cursor exists to disturb.
func Detect(dev device.Device, base int64) (Variant, error) {
	var sig [8]byte

	// FAT12/16: ASCII type name at +54.
	if _, err := dev.ReadAt(sig[:], base+fatNameOffset1x); err == nil {
		switch {
		case bytes.Equal(sig[:], []byte("FAT12   ")):
			return FAT12, nil
		case bytes.Equal(sig[:], []byte("FAT16   ")):
			return FAT16, nil
		}
	}

	// FAT32: ASCII type name at +82, then the version word at +42
	// distinguishes real FAT32 (0) from FAT+ (1). The original tool
	// maps version 1 to "FAT+" without citing a reference; nothing in
	// the FAT specification family confirms the mapping, so it is kept
	// exactly as found.
	if _, err := dev.ReadAt(sig[:], base+fatNameOffset32); err == nil && bytes.Equal(sig[:], []byte("FAT32   ")) {
		var ver [2]byte
		if _, err := dev.ReadAt(ver[:], base+fat32VersionOff); err != nil {
			return 0, werrors.Wrap(werrors.IOFailure, err, "reading FAT32 version field")
		}
		switch binary.LittleEndian.Uint16(ver[:]) {
		case 0:
			return FAT32, nil
		case 1:
			return 0, werrors.New(werrors.UnsupportedFilesystem, "FAT+ not supported")
		}
	}

	// EXT4: magic at superblock offset 1024+0x38. The incompat feature
	// word is read alongside so a future ext2/ext3 split has the fact
	// it needs, but the whole EXT family shares the structures the
	// hiding techniques rely on, so any magic match classifies as EXT4.
	var w [2]byte
	if _, err := dev.ReadAt(w[:], base+ext4MagicOffset); err == nil &&
		binary.LittleEndian.Uint16(w[:]) == ext4Magic {
		var feat [4]byte
		_, _ = dev.ReadAt(feat[:], base+ext4IncompatOff)
		return EXT4, nil
	}

	// APFS: container superblock magic at block zero.
	if _, err := dev.ReadAt(sig[:4], base+apfsMagicOffset); err == nil &&
		bytes.Equal(sig[:4], []byte(nxContainerMagic)) {
		return APFS, nil
	}

	return 0, werrors.New(werrors.UnsupportedFilesystem, "could not detect filesystem at offset %d", base)
}

// SeekerDetect adapts Detect to a caller that only holds an
// io.ReadSeeker. The external contract requires the caller's stream
// offset to be preserved across the call, including on failure, so the
// current position is saved on entry and restored on every exit path.
func SeekerDetect(rs io.ReadSeeker) (Variant, error) {
	saved, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, werrors.Wrap(werrors.IOFailure, err, "saving stream offset")
	}
	defer func() {
		_, _ = rs.Seek(saved, io.SeekStart)
	}()

	return Detect(&seekerAt{rs: rs}, saved)
}

// seekerAt turns an io.ReadSeeker into the absolute-offset Device
// surface Detect consumes. Only the read half is meaningful; the
// detector never writes.
type seekerAt struct {
	rs io.ReadSeeker
}

func (s *seekerAt) ReadAt(p []byte, off int64) (int, error) {
	if _, err := s.rs.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	return io.ReadFull(s.rs, p)
}

func (s *seekerAt) WriteAt(p []byte, off int64) (int, error) {
	return 0, io.ErrClosedPipe
}

func (s *seekerAt) Size() (int64, error) { return 0, nil }
func (s *seekerAt) BlockSize() uint32    { return device.DefaultSectorSize }
func (s *seekerAt) Path() string         { return "" }
