package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/gofrs/flock"

	"github.com/spigell/leads/internal/utils"
)

const (
	DefaultPath = "job_analysis_cache.json"

	lockSuffix    = ".lock"
	corruptSuffix = ".corrupt"
)

// FileStore keeps the cache in a JSON file guarded by an advisory lock file.
type FileStore struct {
	path string
	lock *flock.Flock
}

func NewFileStore(path string) *FileStore {
	if path == "" {
		path = DefaultPath
	}
	return &FileStore{
		path: path,
		lock: flock.New(path + lockSuffix),
	}
}

func (s *FileStore) Describe() string { return s.path }

func (s *FileStore) Lock(context.Context) error {
	locked, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("locking cache file %s: %w", s.lock.Path(), err)
	}
	if !locked {
		err := errors.Mark(errors.Newf("cache file %s is in use", s.path), ErrLockContention)
		return errors.WithHint(err, "another leads process holds "+s.lock.Path()+"; wait for it to finish or use a different cache path")
	}
	return nil
}

func (s *FileStore) Unlock() error {
	return s.lock.Unlock()
}

// Load reads the cache file. An unparsable file is moved aside so the next save
// does not destroy it, and ErrCorrupt is returned.
func (s *FileStore) Load(context.Context) (*Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading cache file: %w", err)
	}

	if len(data) == 0 {
		return nil, nil
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil || snapshot.Version > SnapshotVersion {
		if err == nil {
			err = fmt.Errorf("unsupported version %d", snapshot.Version)
		}
		corrupt := errors.Mark(fmt.Errorf("parsing cache file %s: %w", s.path, err), ErrCorrupt)
		if renameErr := os.Rename(s.path, s.path+corruptSuffix); renameErr != nil {
			// Not marked corrupt: the file is still in place and must not be overwritten.
			return nil, errors.Wrapf(renameErr, "cache file %s is unreadable (%v) and could not be moved aside", s.path, err)
		}
		return nil, errors.WithHint(corrupt, "the unreadable cache was kept as "+s.path+corruptSuffix)
	}

	return &snapshot, nil
}

// Save atomically replaces the cache file.
func (s *FileStore) Save(ctx context.Context, snapshot *Snapshot) error {
	return utils.WriteFileAtomic(ctx, s.path, 0o644, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(snapshot)
	})
}
