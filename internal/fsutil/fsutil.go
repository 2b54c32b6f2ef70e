// Package fsutil holds the small file helpers shared by the credential and
// record stores.
package fsutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidSegment is returned for identifiers that cannot be used as a path segment.
var ErrInvalidSegment = errors.New("invalid path segment")

// ExportRoot is the directory below the data dir that holds all exported data.
const ExportRoot = "exported_data"

// CheckSegment rejects identifiers that would escape their directory.
func CheckSegment(name, value string) error {
	switch {
	case strings.TrimSpace(value) == "":
		return fmt.Errorf("%w: %s is empty", ErrInvalidSegment, name)
	case value == "." || value == "..":
		return fmt.Errorf("%w: %s %q", ErrInvalidSegment, name, value)
	case strings.ContainsAny(value, `/\`) || strings.ContainsRune(value, 0):
		return fmt.Errorf("%w: %s %q contains a separator", ErrInvalidSegment, name, value)
	}
	return nil
}

// SubjectDir returns <dataDir>/exported_data/<tenant>/<subject>.
func SubjectDir(dataDir, tenant, subject string) (string, error) {
	if err := CheckSegment("tenant", tenant); err != nil {
		return "", err
	}
	if err := CheckSegment("subject", subject); err != nil {
		return "", err
	}
	return filepath.Join(dataDir, ExportRoot, tenant, subject), nil
}

// WriteFileAtomic writes data to a temp file in the target directory and
// renames it over path, creating parent directories as needed.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
