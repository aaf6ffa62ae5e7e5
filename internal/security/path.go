package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidateFilePath validates that a file path is safe and doesn't contain
// directory traversal attempts. Absolute paths are allowed; config and
// database files are routinely addressed absolutely in deployments.
func ValidateFilePath(path string) error {
	if path == "" {
		return fmt.Errorf("file path cannot be empty")
	}

	// Clean the path to resolve any .. or . components
	cleanPath := filepath.Clean(path)

	// Check for directory traversal attempts
	if strings.Contains(cleanPath, "..") {
		return fmt.Errorf("path contains directory traversal: %s", path)
	}

	return nil
}

// ValidateFilePathWithBase validates a path intended to stay inside
// baseDir. Relative paths resolve against baseDir; absolute paths must
// already point inside it.
func ValidateFilePathWithBase(path, baseDir string) error {
	if err := ValidateFilePath(path); err != nil {
		return err
	}

	fullPath := path
	if !filepath.IsAbs(fullPath) {
		fullPath = filepath.Join(baseDir, path)
	}
	cleanPath := filepath.Clean(fullPath)
	cleanBase := filepath.Clean(baseDir)

	// Ensure the resolved path is still within the base directory
	if !strings.HasPrefix(cleanPath, cleanBase) {
		return fmt.Errorf("path escapes base directory: %s", path)
	}

	return nil
}

// ValidateFilePathStrict additionally rejects absolute paths. Intended
// for user-supplied filenames that must stay relative.
func ValidateFilePathStrict(path string) error {
	if err := ValidateFilePath(path); err != nil {
		return err
	}
	if filepath.IsAbs(filepath.Clean(path)) {
		return fmt.Errorf("absolute paths not allowed in production: %s", path)
	}
	return nil
}
