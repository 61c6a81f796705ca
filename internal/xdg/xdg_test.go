// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package xdg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDir(t *testing.T) {
	tests := []struct {
		name      string
		xdgConfig string
		home      string
		want      string
	}{
		{name: "env var", xdgConfig: "/custom/config", home: "/home/testuser", want: "/custom/config/turnstile"},
		{name: "home fallback", xdgConfig: "", home: "/home/testuser", want: "/home/testuser/.config/turnstile"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("XDG_CONFIG_HOME", tt.xdgConfig)
			t.Setenv("HOME", tt.home)
			assert.Equal(t, tt.want, ConfigDir())
		})
	}
}

func TestDefaultConfigFile(t *testing.T) {
	base := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", base)

	assert.Empty(t, DefaultConfigFile(), "missing file")

	dir := filepath.Join(base, appName)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ConfigFileName), 0o700))
	assert.Empty(t, DefaultConfigFile(), "directory in place of file")
	require.NoError(t, os.Remove(filepath.Join(dir, ConfigFileName)))

	path := filepath.Join(dir, ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte("log:\n  format: text\n"), 0o600))
	assert.Equal(t, path, DefaultConfigFile())
}
