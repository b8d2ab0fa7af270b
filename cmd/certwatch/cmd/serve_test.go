package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeCmd_MissingConfig(t *testing.T) {
	_, err := execute(t, "serve", "--config", filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestServeCmd_RequiresServerBundle(t *testing.T) {
	// Given: a config that never names a bundle to serve
	cfgPath := filepath.Join(t.TempDir(), "certwatch.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("log:\n  level: error\n"), 0o600))

	// When: running serve
	_, err := execute(t, "serve", "--config", cfgPath)

	// Then: it fails fast with a pointer at the missing setting
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.bundle")
}
