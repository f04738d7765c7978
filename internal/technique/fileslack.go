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

// SlackRegion is one carrier region inside a cluster: the in-cluster
// byte offset where hidden data starts and how many bytes were
// written there.
type SlackRegion struct {
	Cluster uint32 `json:"cluster"`
	Offset  uint32 `json:"offset"`
	Length  uint32 `json:"length"`
}

// FileSlackMetadata lists the carrier regions in payload order.
type FileSlackMetadata struct {
	Regions []SlackRegion `json:"regions"`
}

func (m *FileSlackMetadata) Module() string { return ModuleFileSlack }

func init() {
	metadata.RegisterCodec(ModuleFileSlack, func(raw json.RawMessage) (metadata.TechniqueMetadata, error) {
		var m FileSlackMetadata
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		return &m, nil
	})
}

// FileSlack hides data in the tail slack of files: the bytes between
// each file's end and the end of its final cluster. Carrier files can
// be named explicitly; with no carriers given, every file on the
// volume is a candidate in enumeration order.
type FileSlack struct {
	dev      device.Device
	fs       *fatfs.Parser
	carriers []string
}

func NewFileSlack(dev device.Device, fs *fatfs.Parser, carriers []string) *FileSlack {
	return &FileSlack{dev: dev, fs: fs, carriers: carriers}
}

// tailSlackRegions lists the usable tail-slack region of every carrier
// file: the final used cluster from file-size-modulo-cluster-size to
// the cluster end.
func (t *FileSlack) tailSlackRegions() ([]SlackRegion, error) {
	files, err := carrierEntries(t.fs, t.carriers)
	if err != nil {
		return nil, err
	}

	var regions []SlackRegion
	for _, f := range files {
		slack := t.fs.SlackBytes(&f)
		if slack == 0 || f.StartCluster < 2 {
			continue
		}
		chain, err := t.fs.ClusterChain(f.StartCluster)
		if err != nil {
			return nil, err
		}
		last := usedClusters(f.Size, t.fs.ClusterSize()) - 1
		if last >= uint32(len(chain)) {
			return nil, werrors.New(werrors.CorruptStructure,
				"file %q needs %d clusters but its chain has %d", f.Path, last+1, len(chain))
		}
		regions = append(regions, SlackRegion{
			Cluster: chain[last],
			Offset:  f.Size % t.fs.ClusterSize(),
			Length:  slack,
		})
	}
	return regions, nil
}

func (t *FileSlack) Write(in io.Reader, cancel <-chan struct{}) (Metadata, error) {
	regions, err := t.tailSlackRegions()
	if err != nil {
		return nil, err
	}

	m := &FileSlackMetadata{}
	m.Regions, err = writeSlackRegions(t.dev, t.fs, regions, in, cancel)
	return m, err
}

func (t *FileSlack) Read(m Metadata, out io.Writer) error {
	md, ok := m.(*FileSlackMetadata)
	if !ok {
		return errWrongMetadata("file slack")
	}
	return readSlackRegions(t.dev, t.fs, md.Regions, out)
}

func (t *FileSlack) Clear(m Metadata) error {
	md, ok := m.(*FileSlackMetadata)
	if !ok {
		return errWrongMetadata("file slack")
	}
	return clearSlackRegions(t.dev, t.fs, md.Regions)
}

func (t *FileSlack) Info(m Metadata) (Info, error) {
	regions, err := t.tailSlackRegions()
	if err != nil {
		return Info{}, err
	}

	info := Info{Module: ModuleFileSlack}
	for _, r := range regions {
		info.Capacity += uint64(r.Length)
	}
	info.Detail = fmt.Sprintf("%d slack regions, cluster size %d", len(regions), t.fs.ClusterSize())

	if m != nil {
		md, ok := m.(*FileSlackMetadata)
		if !ok {
			return Info{}, errWrongMetadata("file slack")
		}
		for _, r := range md.Regions {
			info.Used += uint64(r.Length)
		}
	}
	return info, nil
}

// usedClusters returns how many clusters a file of the given size
// actually occupies (at least one, even for empty files).
func usedClusters(size, clusterSize uint32) uint32 {
	n := (size + clusterSize - 1) / clusterSize
	if n == 0 {
		n = 1
	}
	return n
}

// carrierEntries resolves the configured carrier paths, or enumerates
// every file when none were named.
func carrierEntries(fs *fatfs.Parser, carriers []string) ([]fatfs.DirEntry, error) {
	if len(carriers) == 0 {
		return fs.Files()
	}
	entries := make([]fatfs.DirEntry, 0, len(carriers))
	for _, name := range carriers {
		e, err := fs.Lookup(name)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, nil
}

// writeSlackRegions streams the input into the candidate regions in
// order, recording only the prefix of each region actually written.
func writeSlackRegions(dev device.Device, fs *fatfs.Parser, candidates []SlackRegion, in io.Reader, cancel <-chan struct{}) ([]SlackRegion, error) {
	var written []SlackRegion

	for _, r := range candidates {
		if cancelled(cancel) {
			return written, ErrCancelled
		}

		buf := make([]byte, r.Length)
		n, eof, err := readChunk(in, buf)
		if err != nil {
			return written, werrors.Wrap(werrors.IOFailure, err, "reading input stream")
		}
		if n > 0 {
			off, err := fs.ClusterOffset(r.Cluster)
			if err != nil {
				return written, err
			}
			if _, err := dev.WriteAt(buf[:n], off+int64(r.Offset)); err != nil {
				return written, werrors.Wrap(werrors.IOFailure, err, "writing slack of cluster %d", r.Cluster)
			}
			r.Length = uint32(n)
			written = append(written, r)
		}
		if eof {
			return written, nil
		}
	}

	var probe [1]byte
	if _, err := in.Read(probe[:]); err == io.EOF {
		return written, nil
	}

	var capacity uint64
	for _, r := range candidates {
		capacity += uint64(r.Length)
	}
	return written, werrors.New(werrors.InsufficientSpace,
		"payload exceeds slack capacity of %d bytes (%d regions)", capacity, len(candidates))
}

func readSlackRegions(dev device.Device, fs *fatfs.Parser, regions []SlackRegion, out io.Writer) error {
	for _, r := range regions {
		off, err := fs.ClusterOffset(r.Cluster)
		if err != nil {
			return err
		}
		buf := make([]byte, r.Length)
		if _, err := dev.ReadAt(buf, off+int64(r.Offset)); err != nil {
			return werrors.Wrap(werrors.IOFailure, err, "reading slack of cluster %d", r.Cluster)
		}
		if _, err := out.Write(buf); err != nil {
			return werrors.Wrap(werrors.IOFailure, err, "writing output stream")
		}
	}
	return nil
}

func clearSlackRegions(dev device.Device, fs *fatfs.Parser, regions []SlackRegion) error {
	for _, r := range regions {
		off, err := fs.ClusterOffset(r.Cluster)
		if err != nil {
			return err
		}
		zero := make([]byte, r.Length)
		if _, err := dev.WriteAt(zero, off+int64(r.Offset)); err != nil {
			return werrors.Wrap(werrors.IOFailure, err, "clearing slack of cluster %d", r.Cluster)
		}
	}
	return nil
}

func errWrongMetadata(what string) error {
	return werrors.New(werrors.UnsupportedFilesystem, "metadata is not %s metadata", what)
}
