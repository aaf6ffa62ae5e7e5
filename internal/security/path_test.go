package security

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateFilePath(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		errMsg string
	}{
		{
			name: "relative config path",
			path: "config/wecombridge.json",
		},
		{
			name: "absolute database path",
			path: "/var/lib/wecombridge/messages.db",
		},
		{
			name: "filename with extra dots",
			path: "cache/upload-a1b2.v2.png",
		},
		{
			name:   "empty path",
			path:   "",
			errMsg: "path cannot be empty",
		},
		{
			name:   "leading traversal",
			path:   "../../../etc/passwd",
			errMsg: "path contains directory traversal",
		},
		{
			name:   "embedded traversal",
			path:   "media/../../etc/shadow",
			errMsg: "path contains directory traversal",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFilePath(tt.path)
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestValidateFilePathWithBase(t *testing.T) {
	// The media cache directory is the base the legacy upload handler
	// confines saved files to.
	cacheDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(cacheDir, "uploads"), 0o750))

	tests := []struct {
		name   string
		path   string
		errMsg string
	}{
		{
			name: "absolute path inside the cache",
			path: filepath.Join(cacheDir, "upload-a1b2-report.pdf"),
		},
		{
			name: "nested path inside the cache",
			path: filepath.Join(cacheDir, "uploads", "chart.png"),
		},
		{
			name: "relative path resolves under the cache",
			path: "upload-c3d4-notes.txt",
		},
		{
			name:   "absolute path outside the cache",
			path:   "/etc/passwd",
			errMsg: "path escapes base directory",
		},
		{
			name:   "traversal climbing out of the cache",
			path:   filepath.Join(cacheDir, "..", "..", "etc", "passwd"),
			errMsg: "path escapes base directory",
		},
		{
			name:   "empty path",
			path:   "",
			errMsg: "path cannot be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFilePathWithBase(tt.path, cacheDir)
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestValidateFilePathStrict(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		errMsg string
	}{
		{
			name: "bare filename",
			path: "config.json",
		},
		{
			name: "relative path with directory",
			path: "config/wecombridge.json",
		},
		{
			name: "current-directory prefix",
			path: "./config.json",
		},
		{
			name:   "absolute path",
			path:   "/etc/wecombridge/config.json",
			errMsg: "absolute paths not allowed in production",
		},
		{
			name:   "parent traversal",
			path:   "../config.json",
			errMsg: "path contains directory traversal",
		},
		{
			name:   "empty path",
			path:   "",
			errMsg: "path cannot be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFilePathStrict(tt.path)
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
