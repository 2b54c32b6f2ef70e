package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/Sternrassler/connsync/internal/fsutil"
)

// FileName is the name of the credential document inside a subject directory.
const FileName = "linkedinCredentials.json"

// FileSource reads bundles from <dataDir>/exported_data/<tenant>/<subject>/linkedinCredentials.json.
type FileSource struct {
	dataDir string
}

// NewFileSource creates a file-backed source rooted at dataDir.
func NewFileSource(dataDir string) *FileSource {
	return &FileSource{dataDir: dataDir}
}

// Path returns the credential document path for a tenant/subject pair.
func (s *FileSource) Path(tenant, subject string) (string, error) {
	dir, err := fsutil.SubjectDir(s.dataDir, tenant, subject)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}

// Load implements Source.
func (s *FileSource) Load(ctx context.Context, tenant, subject string) (*Bundle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := s.Path(tenant, subject)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	var bundle Bundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("parse credentials %s: %w", path, err)
	}
	return &bundle, nil
}

// Save publishes a bundle atomically. It is the write side used by the
// credential extraction collaborator and by tests.
func (s *FileSource) Save(ctx context.Context, tenant, subject string, bundle Bundle) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := s.Path(tenant, subject)
	if err != nil {
		return err
	}

	data, err := json.Marshal(bundle)
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}
	return fsutil.WriteFileAtomic(path, data, 0o600)
}
