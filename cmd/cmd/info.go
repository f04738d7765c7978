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
	"fmt"

	"github.com/ostafen/weever/internal/config"
	"github.com/ostafen/weever/internal/device"
	"github.com/ostafen/weever/internal/dispatch"
	"github.com/ostafen/weever/pkg/util/format"
	"github.com/spf13/cobra"
)

func DefineInfoCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "info <image>",
		Short:        "Show hiding capacity and usage for a technique",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE:         RunInfo,
	}

	cmd.Flags().StringP("technique", "t", "", "hiding technique (defaults to the envelope's last writer)")
	cmd.Flags().StringP("metadata", "m", "", "path of the metadata file")
	cmd.Flags().StringP("filename", "f", "", "report on one hidden file only")
	cmd.Flags().StringSlice("carrier", nil, "carrier file paths for the FAT slack techniques")

	return cmd
}

func RunInfo(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := newLogger(cmd, cfg)

	filename, _ := cmd.Flags().GetString("filename")
	carriers, _ := cmd.Flags().GetStringSlice("carrier")

	env, err := loadEnvelope(metadataPath(cmd, cfg))
	if err != nil {
		return err
	}

	techID, _ := cmd.Flags().GetString("technique")
	if techID == "" {
		techID = env.Module()
	}

	// Info never writes, so a read-only memory map is good enough.
	dev, err := device.OpenMmap(args[0])
	if err != nil {
		return err
	}
	defer dev.Close()

	d, err := dispatch.New(dev, techID, env, dispatch.Options{Carriers: carriers, Logger: log})
	if err != nil {
		return err
	}

	infos, err := d.Info(filename)
	if err != nil {
		return err
	}

	fmt.Printf("Filesystem: %s\n", d.Variant())
	fmt.Printf("Technique:  %s\n", techID)
	for _, info := range infos {
		fmt.Printf("Capacity:   %s\n", format.FormatBytes(int64(info.Capacity)))
		fmt.Printf("Used:       %s\n", format.FormatBytes(int64(info.Used)))
		if info.Detail != "" {
			fmt.Printf("Detail:     %s\n", info.Detail)
		}
	}
	return nil
}
