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

//go:build linux

package device

import (
	"unsafe"

	"github.com/ostafen/weever/internal/fs"
	"golang.org/x/sys/unix"
)

// fder is satisfied by *os.File, which is what internal/fs.Open returns
// on non-Windows platforms.
type fder interface {
	Fd() uintptr
}

// blockDeviceSectorSize reads the logical sector size of a Linux block
// device via BLKSSZGET.
func blockDeviceSectorSize(f fs.File) (uint32, bool) {
	fd, ok := f.(fder)
	if !ok {
		return 0, false
	}
	size, err := unix.IoctlGetInt(int(fd.Fd()), unix.BLKSSZGET)
	if err != nil || size <= 0 {
		return 0, false
	}
	return uint32(size), true
}

// blockDeviceSize reads the full size in bytes of a Linux block device
// via BLKGETSIZE64. x/sys/unix has no typed helper for a 64-bit ioctl
// result, so this issues the ioctl through unix.Syscall directly,
// keeping the ioctl number resolution on the x/sys/unix constant table.
func blockDeviceSize(f fs.File) (int64, bool) {
	fd, ok := f.(fder)
	if !ok {
		return 0, false
	}
	var size uint64
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd.Fd(), unix.BLKGETSIZE64, uintptr(unsafe.Pointer(&size)))
	if errno != 0 || size == 0 {
		return 0, false
	}
	return int64(size), true
}
