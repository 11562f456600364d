package diskstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dreamware/podcache/internal/hashing"
)

const (
	valueFileName = "value.dat"
	timeFileName  = "time.dat"
	dirPerm       = 0o755
	filePerm      = 0o644
)

// ErrShortRead is returned when a value file reads fewer bytes than its
// own stat reported, which the component contract treats as a failure
// rather than a partial value.
var ErrShortRead = errors.New("diskstore: short read")

// Store is PodCache's content-addressable disk tier. All operations are
// serialized by a single coarse mutex: the simplest correct design the
// component contract allows, and sufficient because the disk tier is
// only ever on the cold path (spill and promote), never the hot one.
type Store struct {
	logger   *zap.SugaredLogger
	baseDir  string
	registry []string
	mu       sync.Mutex
}

// New creates the disk store's base directory under root, composed of
// root plus an 8-hex-digit random suffix so concurrent PodCache runs
// against the same root never collide.
func New(root string, logger *zap.SugaredLogger) (*Store, error) {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	base := filepath.Join(root, suffix)
	if err := os.MkdirAll(base, dirPerm); err != nil {
		return nil, fmt.Errorf("diskstore: create base dir: %w", err)
	}
	return &Store{baseDir: base, logger: logger}, nil
}

// BaseDir returns the store's base directory, for logging and tests.
func (s *Store) BaseDir() string { return s.baseDir }

// segments splits the first 64 hex characters of SHA-256(key) into the
// four 16-character path components the component contract specifies.
func segments(key []byte) (s0, s1, s2, s3 string) {
	digest := hashing.ContentDigest(key)
	return digest[0:16], digest[16:32], digest[32:48], digest[48:64]
}

func (s *Store) leafPath(key []byte) (leaf, parent string) {
	a, b, c, d := segments(key)
	parent = filepath.Join(s.baseDir, a, b, c)
	leaf = filepath.Join(parent, d)
	return leaf, parent
}

func retry(op func() error) error {
	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
	return backoff.Retry(op, b)
}

func (s *Store) registryAdd(leaf string) {
	s.registryRemoveLocked(leaf)
	s.registry = append(s.registry, leaf)
}

func (s *Store) registryRemoveLocked(leaf string) {
	for i, p := range s.registry {
		if p == leaf {
			s.registry = append(s.registry[:i], s.registry[i+1:]...)
			return
		}
	}
}

// Put writes value under the path derived from key, replacing anything
// already at that leaf. On any I/O failure it returns an error and
// leaves no partially-populated leaf behind on a best-effort basis.
func (s *Store) Put(key, value []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	leaf, parent := s.leafPath(key)

	if _, err := os.Stat(leaf); err == nil {
		_ = os.Remove(filepath.Join(leaf, valueFileName))
		_ = os.Remove(filepath.Join(leaf, timeFileName))
		if err := os.RemoveAll(leaf); err != nil {
			return "", fmt.Errorf("diskstore: clear stale leaf: %w", err)
		}
	}

	if err := os.MkdirAll(parent, dirPerm); err != nil {
		return "", fmt.Errorf("diskstore: create parent dirs: %w", err)
	}
	if err := os.Mkdir(leaf, dirPerm); err != nil {
		return "", fmt.Errorf("diskstore: create leaf dir: %w", err)
	}

	if err := retry(func() error {
		return os.WriteFile(filepath.Join(leaf, valueFileName), value, filePerm)
	}); err != nil {
		_ = os.RemoveAll(leaf)
		return "", fmt.Errorf("diskstore: write value: %w", err)
	}

	stamp := []byte(strconv.FormatInt(time.Now().Unix(), 10))
	if err := retry(func() error {
		return os.WriteFile(filepath.Join(leaf, timeFileName), stamp, filePerm)
	}); err != nil {
		_ = os.RemoveAll(leaf)
		return "", fmt.Errorf("diskstore: write timestamp: %w", err)
	}

	s.registryAdd(leaf)
	return leaf, nil
}

// Get reads the value stored for key. The second return is false if the
// key has no resident disk entry.
func (s *Store) Get(key []byte) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	leaf, _ := s.leafPath(key)
	path := filepath.Join(leaf, valueFileName)

	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("diskstore: stat value: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false, fmt.Errorf("diskstore: read value: %w", err)
	}
	if int64(len(data)) != info.Size() {
		return nil, false, ErrShortRead
	}
	return data, true, nil
}

// Evict removes key's disk entry, if any, and prunes now-empty parent
// directories up toward the root (tolerating failures there, since other
// keys may share those prefixes). It returns true iff a value file was
// actually removed.
func (s *Store) Evict(key []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, b, c, d := segments(key)
	leaf := filepath.Join(s.baseDir, a, b, c, d)

	err := os.Remove(filepath.Join(leaf, valueFileName))
	removed := err == nil
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("diskstore: remove value: %w", err)
	}
	_ = os.Remove(filepath.Join(leaf, timeFileName))

	_ = os.Remove(leaf)
	_ = os.Remove(filepath.Join(s.baseDir, a, b, c))
	_ = os.Remove(filepath.Join(s.baseDir, a, b))
	_ = os.Remove(filepath.Join(s.baseDir, a))

	if removed {
		s.registryRemoveLocked(leaf)
	}
	return removed, nil
}

// Keys returns a snapshot of the leaf directories currently registered.
// It is not consulted by Get/Put/Evict, which always recompute a key's
// path fresh; it backs the disk-entry counts used by DBSIZE, the status
// reporter and the metrics exporter. Destroy clears it.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, len(s.registry))
	copy(out, s.registry)
	return out
}

// Destroy recursively removes the base directory and everything under
// it, and clears the registry. Called at server shutdown and by
// FLUSHALL.
func (s *Store) Destroy() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.RemoveAll(s.baseDir); err != nil {
		return fmt.Errorf("diskstore: destroy base dir: %w", err)
	}
	s.registry = nil
	if s.logger != nil {
		s.logger.Infow("disk store destroyed", "base_dir", s.baseDir)
	}
	return nil
}
