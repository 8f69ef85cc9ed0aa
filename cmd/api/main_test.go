package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStart_BadConfigReturnsExitCode(t *testing.T) {
	tests := map[string]string{
		"malformed yaml": "server: [",
		"invalid port":   "server:\n  port: 70000\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
			t.Setenv("CONFIG_PATH", path)
			t.Setenv("PORT", "")

			assert.Equal(t, 1, start())
		})
	}
}
