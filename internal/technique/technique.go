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

// Package technique implements the hiding techniques: symmetric
// write/read/clear transformations over one named slack region of one
// filesystem variant, each emitting the compact metadata record that
// alone suffices to recover the payload.
package technique

import (
	"errors"
	"io"

	"github.com/ostafen/weever/internal/metadata"
)

// Metadata is the closed sum of per-technique metadata variants; the
// envelope codec discriminates on Module().
type Metadata = metadata.TechniqueMetadata

// Module identifiers, one per technique.
const (
	ModuleFileSlack           = "fat-file-slack"
	ModuleClusterChainPadding = "fat-cluster-chain-padding"
	ModuleBadCluster          = "fat-bad-cluster"
	ModuleOSD2                = "ext4-osd2"
	ModuleReservedGDT         = "ext4-reserved-gdt-blocks"
	ModuleSuperblockSlack     = "ext4-superblock-slack"
	ModuleInodePadding        = "ext4-inode-padding"
	ModuleAPFSInodePadding    = "apfs-inode-padding"
)

// Info reports a technique's capacity and current usage. Gathering it
// never mutates the device.
type Info struct {
	Module   string
	Capacity uint64
	Used     uint64
	Detail   string
}

// Technique is the capability set every hiding technique implements.
// Write consumes the whole input stream and returns metadata
// sufficient to recover it; it fails with InsufficientSpace only after
// exhausting every candidate slot. Read emits the exact bytes
// previously written. Clear overwrites every region recorded in the
// metadata with the technique's empty pattern. Cancellation is
// cooperative: Write checks cancel between chunks and aborts with
// ErrCancelled, leaving recovery to Clear against the partial
// metadata it returns alongside the error.
type Technique interface {
	Write(in io.Reader, cancel <-chan struct{}) (Metadata, error)
	Read(m Metadata, out io.Writer) error
	Clear(m Metadata) error
	Info(m Metadata) (Info, error)
}

// ErrCancelled aborts a Write between chunks. The device is left
// partially written; the caller clears with the returned metadata.
var ErrCancelled = errors.New("hide operation cancelled")

func cancelled(cancel <-chan struct{}) bool {
	if cancel == nil {
		return false
	}
	select {
	case <-cancel:
		return true
	default:
		return false
	}
}

// readChunk fills buf from in as far as the stream allows. It returns
// the byte count and whether the stream is exhausted.
func readChunk(in io.Reader, buf []byte) (int, bool, error) {
	n, err := io.ReadFull(in, buf)
	switch {
	case err == io.EOF:
		return 0, true, nil
	case err == io.ErrUnexpectedEOF:
		return n, true, nil
	case err != nil:
		return n, false, err
	}
	return n, false, nil
}

func isZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
