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
)

// ClusterChainPaddingMetadata lists the carrier regions in payload
// order.
type ClusterChainPaddingMetadata struct {
	Regions []SlackRegion `json:"regions"`
}

func (m *ClusterChainPaddingMetadata) Module() string { return ModuleClusterChainPadding }

func init() {
	metadata.RegisterCodec(ModuleClusterChainPadding, func(raw json.RawMessage) (metadata.TechniqueMetadata, error) {
		var m ClusterChainPaddingMetadata
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		return &m, nil
	})
}

// ClusterChainPadding generalizes file slack across the whole cluster
// chain: besides the tail slack of the last used cluster, any cluster
// the chain allocates beyond what the file size needs is usable in
// full. Such over-allocated chains appear when a file shrinks without
// its chain being trimmed.
type ClusterChainPadding struct {
	dev      device.Device
	fs       *fatfs.Parser
	carriers []string
}

func NewClusterChainPadding(dev device.Device, fs *fatfs.Parser, carriers []string) *ClusterChainPadding {
	return &ClusterChainPadding{dev: dev, fs: fs, carriers: carriers}
}

func (t *ClusterChainPadding) chainRegions() ([]SlackRegion, error) {
	files, err := carrierEntries(t.fs, t.carriers)
	if err != nil {
		return nil, err
	}

	var regions []SlackRegion
	for _, f := range files {
		if f.StartCluster < 2 {
			continue
		}
		chain, err := t.fs.ClusterChain(f.StartCluster)
		if err != nil {
			return nil, err
		}

		used := usedClusters(f.Size, t.fs.ClusterSize())
		if slack := t.fs.SlackBytes(&f); slack > 0 && used <= uint32(len(chain)) {
			regions = append(regions, SlackRegion{
				Cluster: chain[used-1],
				Offset:  f.Size % t.fs.ClusterSize(),
				Length:  slack,
			})
		}
		// Every cluster past the file's needed count is slack in full.
		for _, c := range chain[min(int(used), len(chain)):] {
			regions = append(regions, SlackRegion{Cluster: c, Offset: 0, Length: t.fs.ClusterSize()})
		}
	}
	return regions, nil
}

func (t *ClusterChainPadding) Write(in io.Reader, cancel <-chan struct{}) (Metadata, error) {
	regions, err := t.chainRegions()
	if err != nil {
		return nil, err
	}

	m := &ClusterChainPaddingMetadata{}
	m.Regions, err = writeSlackRegions(t.dev, t.fs, regions, in, cancel)
	return m, err
}

func (t *ClusterChainPadding) Read(m Metadata, out io.Writer) error {
	md, ok := m.(*ClusterChainPaddingMetadata)
	if !ok {
		return errWrongMetadata("cluster chain padding")
	}
	return readSlackRegions(t.dev, t.fs, md.Regions, out)
}

func (t *ClusterChainPadding) Clear(m Metadata) error {
	md, ok := m.(*ClusterChainPaddingMetadata)
	if !ok {
		return errWrongMetadata("cluster chain padding")
	}
	return clearSlackRegions(t.dev, t.fs, md.Regions)
}

func (t *ClusterChainPadding) Info(m Metadata) (Info, error) {
	regions, err := t.chainRegions()
	if err != nil {
		return Info{}, err
	}

	info := Info{Module: ModuleClusterChainPadding}
	for _, r := range regions {
		info.Capacity += uint64(r.Length)
	}
	info.Detail = fmt.Sprintf("%d regions across cluster chains", len(regions))

	if m != nil {
		md, ok := m.(*ClusterChainPaddingMetadata)
		if !ok {
			return Info{}, errWrongMetadata("cluster chain padding")
		}
		for _, r := range md.Regions {
			info.Used += uint64(r.Length)
		}
	}
	return info, nil
}
