package records

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Sternrassler/connsync/internal/fsutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for the record store.
var (
	storeReadFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connsync_store_read_failures_total",
		Help: "Collection reads treated as empty by reason",
	}, []string{"reason"})

	storeAppendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connsync_store_appends_total",
		Help: "Records appended to collections by platform and result",
	}, []string{"platform", "result"})
)

// FileStore keeps one JSON collection per scope at
// <dataDir>/exported_data/<tenant>/<subject>/<platform>/<platform>.json.
// Appends to the same collection are serialized within the process.
type FileStore struct {
	dataDir string
	logger  zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewFileStore creates a store rooted at dataDir.
func NewFileStore(dataDir string) *FileStore {
	return &FileStore{
		dataDir: dataDir,
		logger:  log.With().Str("component", "records").Logger(),
		locks:   make(map[string]*sync.Mutex),
	}
}

// Path returns the collection document path of a scope.
func (s *FileStore) Path(scope Scope) (string, error) {
	if err := scope.Validate(); err != nil {
		return "", err
	}
	dir, err := fsutil.SubjectDir(s.dataDir, scope.Tenant, scope.Subject)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, scope.Platform, scope.Platform+".json"), nil
}

// Stat returns the file info of the collection document.
func (s *FileStore) Stat(scope Scope) (os.FileInfo, error) {
	path, err := s.Path(scope)
	if err != nil {
		return nil, err
	}
	return os.Stat(path)
}

// Exists reports whether a record with key is already captured.
// It never fails: any read or parse problem is logged and reported as false.
func (s *FileStore) Exists(ctx context.Context, scope Scope, key Key) bool {
	logger := s.logger.With().
		Str("tenant", scope.Tenant).
		Str("subject", scope.Subject).
		Str("platform", scope.Platform).
		Logger()

	path, err := s.Path(scope)
	if err != nil {
		storeReadFailuresTotal.WithLabelValues("invalid_scope").Inc()
		logger.Warn().Err(err).Msg("Invalid collection scope, treating record as new")
		return false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Debug().Str("path", path).Msg("No collection yet")
			return false
		}
		storeReadFailuresTotal.WithLabelValues("read").Inc()
		logger.Warn().Err(err).Str("path", path).Msg("Error reading collection, treating record as new")
		return false
	}

	if len(bytes.TrimSpace(data)) == 0 {
		storeReadFailuresTotal.WithLabelValues("empty").Inc()
		logger.Warn().Str("path", path).Msg("Collection file is empty")
		return false
	}

	coll, err := decodeCollection(data)
	if err != nil {
		storeReadFailuresTotal.WithLabelValues("malformed").Inc()
		logger.Warn().Err(err).Str("path", path).Msg("Error parsing collection, treating record as new")
		return false
	}

	return coll.Contains(key)
}

// Load reads the collection of a scope. A missing or blank document yields an
// empty collection; a malformed one yields ErrMalformedCollection.
func (s *FileStore) Load(ctx context.Context, scope Scope) (*Collection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.Path(scope)
	if err != nil {
		return nil, err
	}
	return readCollection(path)
}

// Append adds a record to the end of the collection of a scope unless a
// record with the same key is already present, and writes the document
// atomically. The check runs under the writer lock against the document as
// it is on disk, so replayed or doubled notifications never create a second
// copy. A malformed existing document is moved aside to <name>.corrupt-<unix>
// and a new collection is started.
func (s *FileStore) Append(ctx context.Context, scope Scope, record Record) error {
	_, err := s.AppendIfAbsent(ctx, scope, record)
	return err
}

// AppendIfAbsent is Append that also reports whether the record was written.
func (s *FileStore) AppendIfAbsent(ctx context.Context, scope Scope, record Record) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	path, err := s.Path(scope)
	if err != nil {
		return false, err
	}

	lock := s.lockFor(path)
	lock.Lock()
	defer lock.Unlock()

	coll, err := readCollection(path)
	if errors.Is(err, ErrMalformedCollection) {
		aside := fmt.Sprintf("%s.corrupt-%d", path, time.Now().Unix())
		if renameErr := os.Rename(path, aside); renameErr != nil {
			storeAppendsTotal.WithLabelValues(scope.Platform, "error").Inc()
			return false, fmt.Errorf("move malformed collection aside: %w", renameErr)
		}
		s.logger.Warn().Err(err).Str("path", path).Str("moved_to", aside).Msg("Malformed collection moved aside")
		coll, err = NewCollection(), nil
	}
	if err != nil {
		storeAppendsTotal.WithLabelValues(scope.Platform, "error").Inc()
		return false, err
	}

	if coll.Contains(record.Key()) {
		storeAppendsTotal.WithLabelValues(scope.Platform, "duplicate").Inc()
		s.logger.Debug().
			Str("path", path).
			Str("created_at", string(record.CreatedAt)).
			Str("first_name", record.FirstName).
			Msg("Record already in collection, not appended")
		return false, nil
	}

	if err := coll.add(record); err != nil {
		storeAppendsTotal.WithLabelValues(scope.Platform, "error").Inc()
		return false, err
	}
	data, err := coll.encode()
	if err != nil {
		storeAppendsTotal.WithLabelValues(scope.Platform, "error").Inc()
		return false, fmt.Errorf("marshal collection: %w", err)
	}
	if err := fsutil.WriteFileAtomic(path, data, 0o644); err != nil {
		storeAppendsTotal.WithLabelValues(scope.Platform, "error").Inc()
		return false, fmt.Errorf("write collection: %w", err)
	}

	storeAppendsTotal.WithLabelValues(scope.Platform, "ok").Inc()
	return true, nil
}

// lockFor returns the writer lock of a collection path.
func (s *FileStore) lockFor(path string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[path]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[path] = lock
	}
	return lock
}

func readCollection(path string) (*Collection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return NewCollection(), nil
		}
		return nil, fmt.Errorf("read collection: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return NewCollection(), nil
	}
	return decodeCollection(data)
}
