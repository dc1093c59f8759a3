// Package hidden persists the set of job fingerprints the user dismissed.
package hidden

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"

	"github.com/spigell/leads/internal/utils"
)

const DefaultPath = "hidden_jobs.json"

// Set is an append-only set of fingerprints backed by a JSON list file.
type Set struct {
	path string

	mu    sync.RWMutex
	order []string
	index map[string]struct{}
	dirty bool
}

// Load reads the set stored at path. A missing or empty file yields an empty set.
func Load(path string) (*Set, error) {
	if path == "" {
		path = DefaultPath
	}

	s := &Set{path: path, index: make(map[string]struct{})}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading hidden jobs file: %w", err)
	}
	if len(data) == 0 {
		return s, nil
	}

	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parsing hidden jobs file %s: %w", path, err)
	}

	for _, item := range items {
		s.add(item)
	}
	s.dirty = false

	return s, nil
}

// Contains reports whether fp was hidden.
func (s *Set) Contains(fp string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.index[fp]
	return ok
}

// Add hides the given fingerprints and returns how many were new.
func (s *Set) Add(fps ...string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	for _, fp := range fps {
		if s.add(fp) {
			added++
		}
	}
	return added
}

func (s *Set) add(fp string) bool {
	if fp == "" {
		return false
	}
	if _, ok := s.index[fp]; ok {
		return false
	}
	s.index[fp] = struct{}{}
	s.order = append(s.order, fp)
	s.dirty = true
	return true
}

// List returns fingerprints in the order they were hidden.
func (s *Set) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

func (s *Set) Path() string { return s.path }

// Save atomically rewrites the backing file when the set changed.
func (s *Set) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty {
		return nil
	}

	err := utils.WriteFileAtomic(ctx, s.path, 0o644, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s.order)
	})
	if err != nil {
		return fmt.Errorf("saving hidden jobs file: %w", err)
	}

	s.dirty = false
	return nil
}
