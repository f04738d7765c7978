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
package device

import (
	"fmt"
	"io"

	"github.com/ostafen/weever/internal/mmap"
)

// MmapDevice is a read-only Device backed by a memory-mapped region of
// the image file. Parsers never write, and the
// detector only ever reads a handful of signature bytes, so both are
// happy to run against an MmapDevice; techniques always take a
// FileDevice opened read-write for Write/Clear.
type MmapDevice struct {
	path string
	m    *mmap.MmapFile
}

// OpenMmap memory-maps path in its entirety for read-only access.
func OpenMmap(path string) (*MmapDevice, error) {
	m, err := mmap.NewMmapFile(path)
	if err != nil {
		return nil, fmt.Errorf("device: failed to mmap %q: %w", path, err)
	}
	return &MmapDevice{path: path, m: m}, nil
}

func (d *MmapDevice) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(d.m.Data)) {
		return 0, io.EOF
	}
	n := copy(p, d.m.Data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt always fails: MmapDevice is mapped PROT_READ and exists only
// to accelerate detection/parsing, never to carry a technique's write
// or clear.
func (d *MmapDevice) WriteAt(p []byte, off int64) (int, error) {
	return 0, fmt.Errorf("device: %q is a read-only mmap device", d.path)
}

func (d *MmapDevice) Size() (int64, error) { return int64(d.m.FileSize), nil }
func (d *MmapDevice) BlockSize() uint32    { return DefaultSectorSize }
func (d *MmapDevice) Path() string         { return d.path }
func (d *MmapDevice) Close() error         { return d.m.Close() }
