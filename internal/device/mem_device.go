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

import "io"

// MemDevice is an in-memory Device over a plain byte slice. It backs
// every synthetic-image test in this module (parsers, techniques,
// dispatcher) instead of requiring real disk images on test
// infrastructure.
type MemDevice struct {
	Data      []byte
	blockSize uint32
}

// NewMemDevice wraps data as a Device with the given logical block
// size (0 defaults to DefaultSectorSize).
func NewMemDevice(data []byte, blockSize uint32) *MemDevice {
	if blockSize == 0 {
		blockSize = DefaultSectorSize
	}
	return &MemDevice{Data: data, blockSize: blockSize}
}

func (d *MemDevice) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(d.Data)) {
		return 0, io.EOF
	}
	n := copy(p, d.Data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (d *MemDevice) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, io.ErrShortWrite
	}
	end := off + int64(len(p))
	if end > int64(len(d.Data)) {
		return 0, io.ErrShortWrite
	}
	return copy(d.Data[off:end], p), nil
}

func (d *MemDevice) Size() (int64, error) { return int64(len(d.Data)), nil }
func (d *MemDevice) BlockSize() uint32    { return d.blockSize }
func (d *MemDevice) Path() string         { return "mem" }
