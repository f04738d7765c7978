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

// Package dispatch routes hiding operations to the technique backend
// matching the detected filesystem variant, and keeps the metadata
// envelope in step with every write.
package dispatch

import (
	"io"
	"os"
	"path/filepath"

	"github.com/ostafen/weever/internal/apfsfs"
	"github.com/ostafen/weever/internal/detect"
	"github.com/ostafen/weever/internal/device"
	"github.com/ostafen/weever/internal/ext4fs"
	"github.com/ostafen/weever/internal/fatfs"
	"github.com/ostafen/weever/internal/logger"
	"github.com/ostafen/weever/internal/metadata"
	"github.com/ostafen/weever/internal/partition"
	"github.com/ostafen/weever/internal/technique"
	"github.com/ostafen/weever/internal/werrors"
)

// Options tunes dispatcher construction.
type Options struct {
	// Carriers names the files whose slack the FAT techniques use;
	// empty means every file on the volume.
	Carriers []string

	Logger *logger.Logger
}

// Techniques lists every technique identifier a dispatcher can bind.
func Techniques() []string {
	return []string{
		technique.ModuleFileSlack,
		technique.ModuleClusterChainPadding,
		technique.ModuleBadCluster,
		technique.ModuleOSD2,
		technique.ModuleReservedGDT,
		technique.ModuleSuperblockSlack,
		technique.ModuleInodePadding,
		technique.ModuleAPFSInodePadding,
	}
}

// Dispatcher binds one technique to one device. Construction discovers
// the partition offset, detects the filesystem variant and
// instantiates the matching parser-bound backend; a technique with no
// backend for the detected variant fails with UnsupportedFilesystem.
type Dispatcher struct {
	dev     device.Device
	techID  string
	variant detect.Variant
	backend technique.Technique
	env     *metadata.Envelope
	log     *logger.Logger
}

func New(dev device.Device, techniqueID string, env *metadata.Envelope, opts Options) (*Dispatcher, error) {
	log := opts.Logger
	if log == nil {
		log = logger.New(os.Stdout, logger.ErrorLevel)
	}

	parts, err := partition.Discover(dev)
	if err != nil {
		return nil, werrors.Wrap(werrors.IOFailure, err, "discovering partitions")
	}
	base := int64(parts[0].Offset)

	variant, err := detect.Detect(dev, base)
	if err != nil {
		return nil, err
	}
	log.Debugf("detected %s filesystem at offset %d", variant, base)

	d := &Dispatcher{
		dev:     dev,
		techID:  techniqueID,
		variant: variant,
		env:     env,
		log:     log,
	}

	switch techniqueID {
	case technique.ModuleFileSlack, technique.ModuleClusterChainPadding, technique.ModuleBadCluster:
		if !variant.IsFAT() {
			return nil, notSupported(techniqueID, variant)
		}
		fs, err := fatfs.NewParser(dev, base)
		if err != nil {
			return nil, err
		}
		switch techniqueID {
		case technique.ModuleFileSlack:
			d.backend = technique.NewFileSlack(dev, fs, opts.Carriers)
		case technique.ModuleClusterChainPadding:
			d.backend = technique.NewClusterChainPadding(dev, fs, opts.Carriers)
		default:
			d.backend = technique.NewBadCluster(dev, fs)
		}

	case technique.ModuleOSD2, technique.ModuleReservedGDT,
		technique.ModuleSuperblockSlack, technique.ModuleInodePadding:
		if variant != detect.EXT4 {
			return nil, notSupported(techniqueID, variant)
		}
		fs, err := ext4fs.NewParser(dev, base)
		if err != nil {
			return nil, err
		}
		switch techniqueID {
		case technique.ModuleOSD2:
			d.backend = technique.NewOSD2Field(dev, fs)
		case technique.ModuleReservedGDT:
			d.backend = technique.NewReservedGDTBlocks(dev, fs)
		case technique.ModuleSuperblockSlack:
			d.backend = technique.NewSuperblockSlack(dev, fs, base)
		default:
			d.backend = technique.NewInodeTailPadding(dev, fs)
		}

	case technique.ModuleAPFSInodePadding:
		if variant != detect.APFS {
			return nil, notSupported(techniqueID, variant)
		}
		fs, err := apfsfs.NewParser(dev, base)
		if err != nil {
			return nil, err
		}
		d.backend = technique.NewAPFSInodePadding(dev, fs)

	default:
		return nil, werrors.New(werrors.UnsupportedFilesystem, "unknown technique %q", techniqueID)
	}

	return d, nil
}

func notSupported(techniqueID string, v detect.Variant) error {
	return werrors.New(werrors.UnsupportedFilesystem,
		"technique %q has no backend for %s", techniqueID, v)
}

// Variant returns the detected filesystem variant.
func (d *Dispatcher) Variant() detect.Variant { return d.variant }

// Write hides the input stream and records the emitted metadata in the
// envelope under filename (or a generated name). The name actually
// used is returned.
func (d *Dispatcher) Write(in io.Reader, filename string, cancel <-chan struct{}) (string, error) {
	d.log.Infof("hiding data with %s", d.techID)

	if filename != "" {
		filename = filepath.Base(filename)
	}
	m, err := d.backend.Write(in, cancel)
	if err != nil {
		// A cancelled or failed write may have touched the device;
		// record what was placed so the caller can still clear it.
		if m != nil {
			d.env.SetModule(d.techID)
			d.env.AddFile(filename, m)
		}
		return "", err
	}

	d.env.SetModule(d.techID)
	return d.env.AddFile(filename, m), nil
}

// Read recovers a hidden file into out. An empty filename defaults to
// the key "0", matching the original tool's hard-coded read path;
// whether that was intentional there is unclear, so the behavior is
// preserved rather than fixed.
func (d *Dispatcher) Read(filename string, out io.Writer) error {
	if filename == "" {
		filename = "0"
	}
	entry, ok := d.env.GetFile(filename)
	if !ok {
		return werrors.New(werrors.PreconditionViolated, "no metadata for file %q", filename)
	}
	if entry.Module != d.techID {
		return werrors.New(werrors.UnsupportedFilesystem,
			"file %q was hidden with %q, not %q", filename, entry.Module, d.techID)
	}

	d.log.Infof("recovering %q with %s", filename, d.techID)
	return d.backend.Read(entry.Metadata, out)
}

// ReadIntoFile is Read with a file sink; the file is released on every
// exit path. An existing file at outPath is overwritten.
func (d *Dispatcher) ReadIntoFile(filename, outPath string) error {
	f, err := os.Create(outPath)
	if err != nil {
		return werrors.Wrap(werrors.IOFailure, err, "creating output file %q", outPath)
	}
	defer f.Close()

	if err := d.Read(filename, f); err != nil {
		return err
	}
	return f.Sync()
}

// Clear overwrites the regions recorded for filename with the
// technique's empty pattern. With an empty filename, every file the
// technique ever hid through this envelope is cleared.
func (d *Dispatcher) Clear(filename string) error {
	if filename != "" {
		entry, ok := d.env.GetFile(filename)
		if !ok {
			return werrors.New(werrors.PreconditionViolated, "no metadata for file %q", filename)
		}
		if entry.Module != d.techID {
			return werrors.New(werrors.UnsupportedFilesystem,
				"file %q was hidden with %q, not %q", filename, entry.Module, d.techID)
		}
		d.log.Infof("clearing %q", filename)
		return d.backend.Clear(entry.Metadata)
	}

	for _, entry := range d.env.Files() {
		if entry.Module != d.techID {
			continue
		}
		d.log.Infof("clearing %q", entry.Filename)
		if err := d.backend.Clear(entry.Metadata); err != nil {
			return err
		}
	}
	return nil
}

// Info reports capacity and usage. With a filename, the report covers
// that file's metadata; with none, one entry per hidden file, or the
// bare technique capacity when the envelope is empty.
func (d *Dispatcher) Info(filename string) ([]technique.Info, error) {
	if filename != "" {
		entry, ok := d.env.GetFile(filename)
		if !ok {
			return nil, werrors.New(werrors.PreconditionViolated, "no metadata for file %q", filename)
		}
		info, err := d.backend.Info(entry.Metadata)
		if err != nil {
			return nil, err
		}
		return []technique.Info{info}, nil
	}

	var infos []technique.Info
	for _, entry := range d.env.Files() {
		if entry.Module != d.techID {
			continue
		}
		info, err := d.backend.Info(entry.Metadata)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	if len(infos) == 0 {
		info, err := d.backend.Info(nil)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}
