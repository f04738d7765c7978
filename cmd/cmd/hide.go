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
package cmd

import (
	"errors"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ostafen/weever/internal/config"
	"github.com/ostafen/weever/internal/device"
	"github.com/ostafen/weever/internal/dispatch"
	"github.com/ostafen/weever/pkg/pbar"
	"github.com/ostafen/weever/pkg/reader"
	osutil "github.com/ostafen/weever/pkg/util/os"
	"github.com/spf13/cobra"
)

func DefineHideCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "hide <image> <input-file>...",
		Short:        "Hide one or more files inside the slack space of a filesystem image",
		Args:         cobra.MinimumNArgs(2),
		SilenceUsage: true,
		RunE:         RunHide,
	}

	cmd.Flags().StringP("technique", "t", "", "hiding technique to use ("+strings.Join(dispatch.Techniques(), ", ")+")")
	cmd.Flags().StringP("filename", "f", "", "name to store the hidden file under (generated if empty)")
	cmd.Flags().StringP("metadata", "m", "", "path of the metadata file")
	cmd.Flags().StringSlice("carrier", nil, "carrier file paths for the FAT slack techniques")
	_ = cmd.MarkFlagRequired("technique")

	return cmd
}

func RunHide(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := newLogger(cmd, cfg)

	techID, _ := cmd.Flags().GetString("technique")
	filename, _ := cmd.Flags().GetString("filename")
	carriers, _ := cmd.Flags().GetStringSlice("carrier")
	metaPath := metadataPath(cmd, cfg)

	dev, err := device.OpenReadWrite(args[0])
	if err != nil {
		return err
	}
	defer dev.Close()

	env, err := loadEnvelope(metaPath)
	if err != nil {
		return err
	}

	d, err := dispatch.New(dev, techID, env, dispatch.Options{Carriers: carriers, Logger: log})
	if err != nil {
		return err
	}

	// Multiple payload files (or directories of them) are hidden as
	// one concatenated stream.
	in, totalSize, err := openPayload(args[1:])
	if err != nil {
		return err
	}
	defer in.Close()

	// Ctrl-C aborts between chunks; the partial metadata still lands
	// in the envelope so `wipe` can undo what was already written.
	cancel := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		close(cancel)
	}()

	bar := pbar.NewProgressBarState(totalSize)
	src := &progressReader{
		r:   reader.NewBufferedReadSeeker(in, cfg.BufferSize),
		bar: bar,
	}

	name, err := d.Write(src, filename, cancel)
	bar.Finish()

	if saveErr := saveEnvelope(metaPath, env); saveErr != nil && err == nil {
		err = saveErr
	}
	if err != nil {
		return err
	}

	log.Infof("hidden %s as %q, metadata written to %s", strings.Join(args[1:], ", "), name, metaPath)
	return nil
}

// openPayload expands the given paths (directories enumerate their
// regular files) and concatenates them into a single seekable stream.
func openPayload(paths []string) (*payloadStream, int64, error) {
	var files []string
	for _, p := range paths {
		expanded, err := osutil.ListFiles(p)
		if err != nil {
			return nil, 0, err
		}
		files = append(files, expanded...)
	}
	if len(files) == 0 {
		return nil, 0, errors.New("no payload files found")
	}

	var (
		readers []io.ReadSeeker
		sizes   []int64
		handles []*os.File
		total   int64
	)
	for _, path := range files {
		f, err := os.Open(path)
		if err != nil {
			for _, h := range handles {
				h.Close()
			}
			return nil, 0, err
		}
		finfo, err := f.Stat()
		if err != nil {
			f.Close()
			for _, h := range handles {
				h.Close()
			}
			return nil, 0, err
		}
		handles = append(handles, f)
		readers = append(readers, f)
		sizes = append(sizes, finfo.Size())
		total += finfo.Size()
	}

	return &payloadStream{
		ReadSeeker: reader.NewMultiReadSeeker(readers, sizes),
		handles:    handles,
	}, total, nil
}

// payloadStream closes every underlying payload file with the stream.
type payloadStream struct {
	io.ReadSeeker
	handles []*os.File
}

func (p *payloadStream) Close() error {
	var err error
	for _, h := range p.handles {
		if cerr := h.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// progressReader feeds the progress bar as the payload streams into
// the technique.
type progressReader struct {
	r   io.Reader
	bar *pbar.ProgressBarState
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	p.bar.ProcessedBytes += int64(n)
	p.bar.ChunksPlaced++
	p.bar.Render(false)
	return n, err
}
