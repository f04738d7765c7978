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

// Package device implements the block I/O surface every parser and
// technique in weever is built against: a seekable, byte-addressable
// random-access source supporting absolute-offset read and write.
package device

import (
	"fmt"
	"io"
	"os"

	"github.com/ostafen/weever/internal/fs"
)

// DefaultSectorSize is used whenever the underlying source is a plain
// image file, or a block device whose sector size could not be probed.
const DefaultSectorSize = 512

// Device is the interface every parser and technique consumes. It never
// exposes a shared cursor: every primitive carries its own absolute
// offset, so callers never rely on the resting position left by a
// previous operation.
type Device interface {
	io.ReaderAt
	io.WriterAt
	Size() (int64, error)
	BlockSize() uint32
	Path() string
}

// FileDevice wraps a cross-platform device handle (internal/fs.File)
// over a regular image file or a raw device node.
type FileDevice struct {
	path      string
	f         fs.File
	size      int64
	blockSize uint32
	writable  bool
}

// Open opens path for reading. If the caller intends to call WriteAt,
// use OpenReadWrite instead; a read-only FileDevice rejects writes with
// an error rather than silently truncating the image.
func Open(path string) (*FileDevice, error) {
	return open(path, false)
}

// OpenReadWrite opens path for both reading and writing, as required by
// every technique's write/clear operations.
func OpenReadWrite(path string) (*FileDevice, error) {
	return open(path, true)
}

func open(path string, writable bool) (*FileDevice, error) {
	var (
		f   fs.File
		err error
	)
	if writable {
		f, err = fs.OpenReadWrite(path)
	} else {
		f, err = fs.Open(path)
	}
	if err != nil {
		return nil, fmt.Errorf("device: failed to open %q: %w", path, err)
	}

	finfo, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("device: failed to stat %q: %w", path, err)
	}

	blockSize, size, err := probeGeometry(f, finfo)
	if err != nil {
		f.Close()
		return nil, err
	}

	return &FileDevice{
		path:      path,
		f:         f,
		size:      size,
		blockSize: blockSize,
		writable:  writable,
	}, nil
}

func (d *FileDevice) ReadAt(p []byte, off int64) (int, error) {
	n, err := d.f.ReadAt(p, off)
	if err != nil && err != io.EOF {
		return n, fmt.Errorf("device: read at %d: %w", off, err)
	}
	return n, err
}

func (d *FileDevice) WriteAt(p []byte, off int64) (int, error) {
	if !d.writable {
		return 0, fmt.Errorf("device: %q was opened read-only", d.path)
	}
	wa, ok := d.f.(io.WriterAt)
	if !ok {
		return 0, fmt.Errorf("device: %q does not support writes", d.path)
	}
	n, err := wa.WriteAt(p, off)
	if err != nil {
		return n, fmt.Errorf("device: write at %d: %w", off, err)
	}
	return n, nil
}

func (d *FileDevice) Size() (int64, error) { return d.size, nil }
func (d *FileDevice) BlockSize() uint32    { return d.blockSize }
func (d *FileDevice) Path() string         { return d.path }

func (d *FileDevice) Close() error { return d.f.Close() }

func probeGeometry(f fs.File, finfo os.FileInfo) (blockSize uint32, size int64, err error) {
	if isBlockDevice(finfo) {
		if sz, ok := blockDeviceSize(f); ok {
			size = sz
		} else {
			size = finfo.Size()
		}
		if bs, ok := blockDeviceSectorSize(f); ok {
			return bs, size, nil
		}
		return DefaultSectorSize, size, nil
	}
	return DefaultSectorSize, finfo.Size(), nil
}

func isBlockDevice(finfo os.FileInfo) bool {
	return finfo.Mode()&os.ModeDevice != 0
}
