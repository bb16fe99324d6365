package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"venq/common"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog/log"
)

const lockRetryDelay = 25 * time.Millisecond

// FileStore keeps the record set as one JSON array at a configurable path,
// rewriting the whole file on every save. An advisory file lock serializes
// the load-mutate-save cycle across processes, an in-process mutex does the
// same for goroutines sharing this store.
type FileStore struct {
	path        string
	lockTimeout time.Duration
	mu          sync.Mutex
	fileLock    *flock.Flock
}

func NewFileStore(path string, lockTimeout time.Duration) (*FileStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Error().Err(err).Str("dir", dir).Msg("failed to create queue file directory")
		return nil, common.ErrStoreUnavailable
	}

	return &FileStore{
		path:        path,
		lockTimeout: lockTimeout,
		fileLock:    flock.New(path + ".lock"),
	}, nil
}

func (f *FileStore) Acquire(ctx context.Context) (func(), error) {
	f.mu.Lock()

	lockCtx, cancel := context.WithTimeout(ctx, f.lockTimeout)
	defer cancel()

	locked, err := f.fileLock.TryLockContext(lockCtx, lockRetryDelay)
	if err != nil || !locked {
		f.mu.Unlock()
		log.Error().Err(err).Str("path", f.path).Msg("failed to acquire queue file lock")
		return nil, common.ErrStoreUnavailable
	}

	return func() {
		if err := f.fileLock.Unlock(); err != nil {
			log.Warn().Err(err).Str("path", f.path).Msg("failed to release queue file lock")
		}
		f.mu.Unlock()
	}, nil
}

func (f *FileStore) Load(ctx context.Context) ([]common.Message, error) {
	content, err := os.ReadFile(f.path)
	if err != nil {
		// a queue that was never written to is empty, not broken
		if errors.Is(err, os.ErrNotExist) {
			return []common.Message{}, nil
		}
		log.Error().Err(err).Str("path", f.path).Msg("failed to read queue file")
		return nil, common.ErrStoreUnavailable
	}

	if len(content) == 0 {
		return []common.Message{}, nil
	}

	var msgs []common.Message
	if err := json.Unmarshal(content, &msgs); err != nil {
		// a corrupt file is a store failure, not an empty queue: silently
		// returning nothing here would drop every persisted message on the
		// next save
		log.Error().Err(err).Str("path", f.path).Msg("queue file contains invalid JSON")
		return nil, common.ErrStoreUnavailable
	}
	if msgs == nil {
		msgs = []common.Message{}
	}
	return msgs, nil
}

func (f *FileStore) Save(ctx context.Context, msgs []common.Message) error {
	if msgs == nil {
		msgs = []common.Message{}
	}

	content, err := json.MarshalIndent(msgs, "", "    ")
	if err != nil {
		log.Error().Err(err).Str("path", f.path).Msg("failed to marshal queue records")
		return common.ErrInternal
	}

	// write-then-rename so readers never observe a partially written file
	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".tmp-*")
	if err != nil {
		log.Error().Err(err).Str("path", f.path).Msg("failed to create temp queue file")
		return common.ErrStoreUnavailable
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		log.Error().Err(err).Str("path", f.path).Msg("failed to write queue file")
		return common.ErrStoreUnavailable
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		log.Error().Err(err).Str("path", f.path).Msg("failed to close temp queue file")
		return common.ErrStoreUnavailable
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		os.Remove(tmpPath)
		log.Error().Err(err).Str("path", f.path).Msg("failed to replace queue file")
		return common.ErrStoreUnavailable
	}
	return nil
}

func (f *FileStore) HealthCheck(ctx context.Context) bool {
	content, err := os.ReadFile(f.path)
	if err != nil {
		return errors.Is(err, os.ErrNotExist)
	}
	return len(content) == 0 || json.Valid(content)
}

func (f *FileStore) Backing() string {
	return f.path
}

func (f *FileStore) Close() error {
	return nil
}

var _ MessageStore = (*FileStore)(nil)
