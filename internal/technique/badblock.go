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
	"github.com/ostafen/weever/internal/fatfs"
	"github.com/ostafen/weever/internal/metadata"
	"github.com/ostafen/weever/internal/werrors"
)

// BadClusterMetadata records the clusters flagged bad and the exact
// payload length spread across them.
type BadClusterMetadata struct {
	Clusters []uint32 `json:"clusters"`
	Length   uint64   `json:"length"`
}

func (m *BadClusterMetadata) Module() string { return ModuleBadCluster }

func init() {
	metadata.RegisterCodec(ModuleBadCluster, func(raw json.RawMessage) (metadata.TechniqueMetadata, error) {
		var m BadClusterMetadata
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		return &m, nil
	})
}

// BadCluster marks free clusters bad in the FAT (0xFF7 on FAT12,
// 0xFFF7 on FAT16, 0x0FFFFFF7 on FAT32) and uses their data area as
// the carrier. A candidate must be free in the FAT and unreferenced by
// any directory entry's chain; the driver then never hands it out, and
// no repair tool reclaims it without a surface scan.
type BadCluster struct {
	dev device.Device
	fs  *fatfs.Parser
}

func NewBadCluster(dev device.Device, fs *fatfs.Parser) *BadCluster {
	return &BadCluster{dev: dev, fs: fs}
}

// freeClusters lists clusters that are both free in the FAT and not
// reachable from any directory entry.
func (t *BadCluster) freeClusters() ([]uint32, error) {
	refs, err := t.fs.ReferencedClusters()
	if err != nil {
		return nil, err
	}

	var free []uint32
	for c := uint32(2); c < t.fs.ClusterCount()+2; c++ {
		if _, used := refs[c]; used {
			continue
		}
		v, err := t.fs.ReadFATEntry(c)
		if err != nil {
			return nil, err
		}
		if v == 0 {
			free = append(free, c)
		}
	}
	return free, nil
}

func (t *BadCluster) Write(in io.Reader, cancel <-chan struct{}) (Metadata, error) {
	candidates, err := t.freeClusters()
	if err != nil {
		return nil, err
	}

	m := &BadClusterMetadata{}
	buf := make([]byte, t.fs.ClusterSize())

	for _, c := range candidates {
		if cancelled(cancel) {
			return m, ErrCancelled
		}

		n, eof, err := readChunk(in, buf)
		if err != nil {
			return m, werrors.Wrap(werrors.IOFailure, err, "reading input stream")
		}
		if n > 0 {
			off, err := t.fs.ClusterOffset(c)
			if err != nil {
				return m, err
			}
			if _, err := t.dev.WriteAt(buf[:n], off); err != nil {
				return m, werrors.Wrap(werrors.IOFailure, err, "writing cluster %d", c)
			}
			if err := t.fs.WriteFATEntry(c, t.fs.BadMarker()); err != nil {
				return m, err
			}
			m.Clusters = append(m.Clusters, c)
			m.Length += uint64(n)
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
		"payload exceeds free cluster capacity of %d bytes", uint64(len(candidates))*uint64(t.fs.ClusterSize()))
}

func (t *BadCluster) Read(m Metadata, out io.Writer) error {
	md, ok := m.(*BadClusterMetadata)
	if !ok {
		return errWrongMetadata("bad cluster")
	}

	remaining := md.Length
	buf := make([]byte, t.fs.ClusterSize())
	for _, c := range md.Clusters {
		off, err := t.fs.ClusterOffset(c)
		if err != nil {
			return err
		}

		n := uint64(t.fs.ClusterSize())
		if remaining < n {
			n = remaining
		}
		if _, err := t.dev.ReadAt(buf[:n], off); err != nil {
			return werrors.Wrap(werrors.IOFailure, err, "reading cluster %d", c)
		}
		if _, err := out.Write(buf[:n]); err != nil {
			return werrors.Wrap(werrors.IOFailure, err, "writing output stream")
		}
		remaining -= n
	}
	if remaining > 0 {
		return werrors.New(werrors.CorruptStructure,
			"metadata lists %d clusters but %d payload bytes are unaccounted for", len(md.Clusters), remaining)
	}
	return nil
}

// Clear zeroes each carrier cluster and frees it again in the FAT.
func (t *BadCluster) Clear(m Metadata) error {
	md, ok := m.(*BadClusterMetadata)
	if !ok {
		return errWrongMetadata("bad cluster")
	}

	zero := make([]byte, t.fs.ClusterSize())
	for _, c := range md.Clusters {
		off, err := t.fs.ClusterOffset(c)
		if err != nil {
			return err
		}
		if _, err := t.dev.WriteAt(zero, off); err != nil {
			return werrors.Wrap(werrors.IOFailure, err, "clearing cluster %d", c)
		}
		if err := t.fs.WriteFATEntry(c, 0); err != nil {
			return err
		}
	}
	return nil
}

func (t *BadCluster) Info(m Metadata) (Info, error) {
	candidates, err := t.freeClusters()
	if err != nil {
		return Info{}, err
	}

	info := Info{
		Module:   ModuleBadCluster,
		Capacity: uint64(len(candidates)) * uint64(t.fs.ClusterSize()),
		Detail:   fmt.Sprintf("%d free unreferenced clusters of %d bytes", len(candidates), t.fs.ClusterSize()),
	}
	if m != nil {
		md, ok := m.(*BadClusterMetadata)
		if !ok {
			return Info{}, errWrongMetadata("bad cluster")
		}
		info.Used = md.Length
	}
	return info, nil
}
