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

// Package config loads the optional weever.yaml configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config holds the tool-wide defaults a user can override per
// installation.
type Config struct {
	// LogLevel is the default logging level (DEBUG, INFO, WARN, ERROR).
	LogLevel string `mapstructure:"log_level"`
	// BufferSize is the chunk size for streaming payloads through the
	// CLI, in bytes.
	BufferSize int `mapstructure:"buffer_size"`
	// DefaultMetadataFile is used when --metadata is not given.
	DefaultMetadataFile string `mapstructure:"metadata_file"`
}

// Load reads weever.yaml from the working directory, $HOME/.weever or
// /etc/weever, in that order, with WEEVER_-prefixed environment
// variables taking precedence. A missing file is not an error; the
// defaults apply.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("weever")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".weever"))
	}
	v.AddConfigPath("/etc/weever")

	v.SetDefault("log_level", "INFO")
	v.SetDefault("buffer_size", 1024*1024)
	v.SetDefault("metadata_file", "weever.meta")

	v.SetEnvPrefix("WEEVER")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return &cfg, nil
}
