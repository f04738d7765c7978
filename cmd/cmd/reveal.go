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
	"path/filepath"

	"github.com/ostafen/weever/internal/config"
	"github.com/ostafen/weever/internal/device"
	"github.com/ostafen/weever/internal/dispatch"
	osutil "github.com/ostafen/weever/pkg/util/os"
	"github.com/spf13/cobra"
)

func DefineRevealCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "reveal <image>",
		Short:        "Recover a hidden file from a filesystem image",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE:         RunReveal,
	}

	cmd.Flags().StringP("metadata", "m", "", "path of the metadata file")
	cmd.Flags().StringP("filename", "f", "", "name the file was hidden under")
	cmd.Flags().StringP("out", "o", "", "path to restore the hidden data into")
	cmd.Flags().StringP("technique", "t", "", "hiding technique (defaults to the envelope's last writer)")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}

func RunReveal(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := newLogger(cmd, cfg)

	filename, _ := cmd.Flags().GetString("filename")
	outPath, _ := cmd.Flags().GetString("out")

	env, err := loadEnvelope(metadataPath(cmd, cfg))
	if err != nil {
		return err
	}

	techID, _ := cmd.Flags().GetString("technique")
	if techID == "" {
		techID = env.Module()
	}

	dev, err := device.OpenReadWrite(args[0])
	if err != nil {
		return err
	}
	defer dev.Close()

	d, err := dispatch.New(dev, techID, env, dispatch.Options{Logger: log})
	if err != nil {
		return err
	}

	if dir := filepath.Dir(outPath); dir != "." {
		if _, err := osutil.EnsureDir(dir, false); err != nil {
			return err
		}
	}

	if err := d.ReadIntoFile(filename, outPath); err != nil {
		return err
	}

	log.Infof("recovered hidden data into %s", outPath)
	return nil
}
