package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "INFO", cfg.LogLevel)
	require.Equal(t, 1024*1024, cfg.BufferSize)
	require.Equal(t, "weever.meta", cfg.DefaultMetadataFile)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	// Written with the same yaml package a user would round-trip the
	// file through by hand.
	raw, err := yaml.Marshal(map[string]any{
		"log_level":   "DEBUG",
		"buffer_size": 4096,
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(dir+"/weever.yaml", raw, 0o644))

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "DEBUG", cfg.LogLevel)
	require.Equal(t, 4096, cfg.BufferSize)
	require.Equal(t, "weever.meta", cfg.DefaultMetadataFile)
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}
