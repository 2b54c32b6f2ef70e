package records

import (
	"context"
	"errors"

	"github.com/Sternrassler/connsync/pkg/cache"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// IndexedStore answers existence checks from a Redis identity index that is
// rebuilt whenever the collection document changes. The document stays the
// source of truth: every index failure falls back to FileStore.Exists.
type IndexedStore struct {
	files  *FileStore
	index  *cache.Manager
	logger zerolog.Logger
}

// NewIndexedStore wraps files with the given index manager.
func NewIndexedStore(files *FileStore, index *cache.Manager) *IndexedStore {
	if files == nil || index == nil {
		panic("file store and index manager are required")
	}
	return &IndexedStore{
		files:  files,
		index:  index,
		logger: log.With().Str("component", "records-index").Logger(),
	}
}

// Exists has the same fail-open contract as FileStore.Exists.
func (s *IndexedStore) Exists(ctx context.Context, scope Scope, key Key) bool {
	info, err := s.files.Stat(scope)
	if err != nil || info.Size() == 0 {
		// Missing, blank or unreachable documents keep their FileStore logging.
		return s.files.Exists(ctx, scope, key)
	}

	ik := cache.IndexKey{Tenant: scope.Tenant, Subject: scope.Subject, Platform: scope.Platform}
	current := cache.Fingerprint{Size: info.Size(), ModTime: info.ModTime()}

	cached, err := s.index.Fingerprint(ctx, ik)
	switch {
	case err == nil && cached.Equal(&current):
		found, err := s.index.Contains(ctx, ik, key.String())
		if err == nil {
			return found
		}
		s.logger.Warn().Err(err).Str("index", ik.String()).Msg("Identity index lookup failed, reading collection")
		return s.files.Exists(ctx, scope, key)
	case err != nil && !errors.Is(err, cache.ErrCacheMiss):
		s.logger.Warn().Err(err).Str("index", ik.String()).Msg("Identity index unavailable, rebuilding")
	}

	coll, err := s.files.Load(ctx, scope)
	if err != nil {
		return s.files.Exists(ctx, scope, key)
	}

	if err := s.index.Rebuild(ctx, ik, current, coll.Keys()); err != nil {
		s.logger.Warn().Err(err).Str("index", ik.String()).Msg("Identity index rebuild failed")
	} else {
		s.logger.Debug().Str("index", ik.String()).Int("members", len(coll.Content)).Msg("Identity index rebuilt")
	}

	return coll.Contains(key)
}

// Append delegates to the file store; the next Exists sees a new fingerprint
// and rebuilds the index.
func (s *IndexedStore) Append(ctx context.Context, scope Scope, record Record) error {
	return s.files.Append(ctx, scope, record)
}

// AppendIfAbsent delegates to the file store.
func (s *IndexedStore) AppendIfAbsent(ctx context.Context, scope Scope, record Record) (bool, error) {
	return s.files.AppendIfAbsent(ctx, scope, record)
}
