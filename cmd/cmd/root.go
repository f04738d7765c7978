package cmd

import (
	"bytes"
	"errors"
	"io/fs"
	"os"

	"github.com/ostafen/weever/internal/config"
	"github.com/ostafen/weever/internal/env"
	"github.com/ostafen/weever/internal/logger"
	"github.com/ostafen/weever/internal/metadata"
	ioutil "github.com/ostafen/weever/pkg/util/io"
	"github.com/spf13/cobra"
)

const AppName = env.AppName

func Execute() error {
	rootCmd := &cobra.Command{
		Use:   AppName,
		Short: AppName + " - filesystem slack-space data hiding tool",
	}

	rootCmd.PersistentFlags().String("log-level", "", "minimum log level (DEBUG, INFO, WARN, ERROR)")

	rootCmd.AddCommand(DefineHideCommand())
	rootCmd.AddCommand(DefineRevealCommand())
	rootCmd.AddCommand(DefineWipeCommand())
	rootCmd.AddCommand(DefineInfoCommand())
	rootCmd.AddCommand(DefineDetectCommand())

	return rootCmd.Execute()
}

// newLogger builds the command logger, letting --log-level override
// the configured default.
func newLogger(cmd *cobra.Command, cfg *config.Config) *logger.Logger {
	level := cfg.LogLevel
	if s, _ := cmd.Flags().GetString("log-level"); s != "" {
		level = s
	}
	return logger.New(os.Stdout, logger.ParseLevel(level))
}

// loadEnvelope reads the metadata envelope at path; a missing file
// yields a fresh empty envelope.
func loadEnvelope(path string) (*metadata.Envelope, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return metadata.New(), nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return metadata.ReadEnvelope(f)
}

func saveEnvelope(path string, env *metadata.Envelope) error {
	var buf bytes.Buffer
	if err := metadata.WriteEnvelope(&buf, env); err != nil {
		return err
	}
	return ioutil.CopyFile(path, &buf)
}

// metadataPath resolves the --metadata flag against the configured
// default.
func metadataPath(cmd *cobra.Command, cfg *config.Config) string {
	if p, _ := cmd.Flags().GetString("metadata"); p != "" {
		return p
	}
	return cfg.DefaultMetadataFile
}
