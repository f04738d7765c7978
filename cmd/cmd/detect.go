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

	"github.com/ostafen/weever/internal/detect"
	"github.com/ostafen/weever/internal/device"
	"github.com/ostafen/weever/internal/partition"
	"github.com/spf13/cobra"
)

func DefineDetectCommand() *cobra.Command {
	return &cobra.Command{
		Use:          "detect <image>",
		Short:        "Report the filesystem variant of an image or device",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE:         RunDetect,
	}
}

func RunDetect(cmd *cobra.Command, args []string) error {
	dev, err := device.OpenMmap(args[0])
	if err != nil {
		return err
	}
	defer dev.Close()

	parts, err := partition.Discover(dev)
	if err != nil {
		return err
	}

	for _, p := range parts {
		variant, err := detect.Detect(dev, int64(p.Offset))
		if err != nil {
			return err
		}
		fmt.Printf("partition %d at offset %d: %s\n", p.Num, p.Offset, variant)
	}
	return nil
}
