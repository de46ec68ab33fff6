package filestate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dagu-org/jobloop/internal/cmn/backoff"
	"github.com/dagu-org/jobloop/internal/cmn/fileutil"
	"github.com/dagu-org/jobloop/internal/cmn/logger"
	"github.com/dagu-org/jobloop/internal/cmn/logger/tag"
	"github.com/gofrs/flock"
)

// State maps a job name to its completion flag.
type State map[string]bool

var errCorruptState = errors.New("state file is not valid JSON")

// Store persists job completion flags in a single JSON file.
// Every Set rewrites the whole file atomically, so a concurrent reader always
// sees either the previous or the next complete map. Writers in other
// processes are serialized through a lock file next to the state file.
type Store struct {
	path  string
	mu    sync.Mutex
	cache *fileutil.Cache[State]
	retry backoff.RetryPolicy

	readFile func(name string) ([]byte, error)
}

// Option configures a Store.
type Option func(*Store)

// WithRetryPolicy sets the policy used to retry failed writes.
func WithRetryPolicy(p backoff.RetryPolicy) Option {
	return func(s *Store) { s.retry = p }
}

// WithCache sets the cache used by Snapshot.
func WithCache(c *fileutil.Cache[State]) Option {
	return func(s *Store) { s.cache = c }
}

// New creates a Store backed by the file at path. The file does not need to
// exist; a missing file means no job is known to have completed.
func New(path string, opts ...Option) *Store {
	s := &Store{
		path:  path,
		cache: fileutil.NewCache[State]("state", 4, time.Minute),
		retry: &backoff.ConstantBackoffPolicy{Interval: 50 * time.Millisecond, MaxRetries: 2},

		readFile: os.ReadFile,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Get returns the flag stored for key. ok is false when the key is unknown,
// the file does not exist, or the file cannot be read.
func (s *Store) Get(ctx context.Context, key string) (value, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.read()
	if err != nil {
		logger.Warn(ctx, "Failed to read state file", tag.File(s.path), tag.Key(key), tag.Error(err))
		return false, false
	}
	value, ok = st[key]
	return value, ok
}

// Set records value for key. The current map is read, merged and written
// back as a whole. A file that is not valid JSON is replaced; any other read
// failure leaves the file untouched and is returned.
func (s *Store) Set(ctx context.Context, key string, value bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.lock(ctx)
	if err != nil {
		return fmt.Errorf("failed to set state %s: %w", key, err)
	}
	defer unlock()

	st, err := s.read()
	switch {
	case errors.Is(err, errCorruptState):
		logger.Warn(ctx, "Discarding corrupt state file", tag.File(s.path), tag.Error(err))
		st = State{}
	case err != nil:
		logger.Error(ctx, "Failed to read state file", tag.File(s.path), tag.Key(key), tag.Error(err))
		return fmt.Errorf("failed to set state %s: %w", key, err)
	}
	st[key] = value

	err = backoff.Retry(ctx, func(context.Context) error {
		return fileutil.WriteJSONAtomic(s.path, st, 0o600)
	}, s.retry)
	if err != nil {
		logger.Error(ctx, "Failed to write state file", tag.File(s.path), tag.Key(key), tag.Error(err))
		return fmt.Errorf("failed to set state %s: %w", key, err)
	}
	s.cache.Invalidate(s.path)
	return nil
}

// Clear removes the backing file and with it all completion knowledge.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.lock(ctx)
	if err != nil {
		return fmt.Errorf("failed to clear state: %w", err)
	}
	defer unlock()

	s.cache.Invalidate(s.path)
	if err := fileutil.RemoveIfExists(s.path); err != nil {
		logger.Error(ctx, "Failed to clear state file", tag.File(s.path), tag.Error(err))
		return fmt.Errorf("failed to clear state: %w", err)
	}
	logger.Debug(ctx, "State cleared", tag.File(s.path))
	return nil
}

// Snapshot returns a copy of the whole map. It does not take the write lock
// and is meant for monitoring readers; results are cached until the file's
// size or modification time changes.
func (s *Store) Snapshot(_ context.Context) (State, error) {
	st, err := s.cache.LoadLatest(s.path, func() (State, error) {
		return s.read()
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return State{}, nil
		}
		return nil, err
	}
	return maps.Clone(st), nil
}

// lock takes the cross-process write lock. The returned function releases it.
func (s *Store) lock(ctx context.Context) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	fl := flock.New(s.path + ".lock")
	locked, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to lock state file: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("failed to lock state file %s", fl.Path())
	}
	return func() {
		if err := fl.Unlock(); err != nil {
			logger.Warn(ctx, "Failed to unlock state file", tag.File(fl.Path()), tag.Error(err))
		}
	}, nil
}

const lockRetryDelay = 10 * time.Millisecond

func (s *Store) read() (State, error) {
	data, err := s.readFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return State{}, nil
		}
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}
	if len(data) == 0 {
		return State{}, nil
	}

	st := State{}
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("%w: %w", errCorruptState, err)
	}
	return st, nil
}
