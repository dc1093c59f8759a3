package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/spigell/leads/internal/fingerprint"
	"github.com/spigell/leads/internal/utils"
)

const DefaultStorePath = "resume_analysis_cache.json"

type storeFile struct {
	Resumes map[string]*Resume `json:"resumes"`
	Roles   map[string]*Role   `json:"roles"`
}

// Store keeps extracted resume and role profiles keyed by their fingerprints,
// so the extractor runs only when the underlying input changes.
type Store struct {
	path   string
	logger *zap.Logger

	mu    sync.Mutex
	data  storeFile
	dirty bool
}

// OpenStore loads the store from path. A missing or unreadable file yields an empty store.
func OpenStore(path string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if path == "" {
		path = DefaultStorePath
	}

	s := &Store{
		path:   path,
		logger: logger,
		data:   storeFile{Resumes: map[string]*Resume{}, Roles: map[string]*Role{}},
	}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return s
	case err != nil:
		logger.Warn("profile store is unreadable, starting empty", zap.String("path", path), zap.Error(err))
		return s
	}

	var loaded storeFile
	if err := json.Unmarshal(raw, &loaded); err != nil {
		logger.Warn("profile store is corrupted, starting empty", zap.String("path", path), zap.Error(err))
		return s
	}
	if loaded.Resumes != nil {
		s.data.Resumes = loaded.Resumes
	}
	if loaded.Roles != nil {
		s.data.Roles = loaded.Roles
	}

	return s
}

func (s *Store) Resume(fp string) (*Resume, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.data.Resumes[fp]
	return r, ok
}

func (s *Store) PutResume(r *Resume) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Resumes[r.Fingerprint] = r
	s.dirty = true
}

func (s *Store) Role(fp string) (*Role, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.data.Roles[fp]
	return r, ok
}

func (s *Store) PutRole(r *Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Roles[r.Fingerprint] = r
	s.dirty = true
}

// Save writes the store if anything changed since it was opened.
func (s *Store) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty {
		return nil
	}

	err := utils.WriteFileAtomic(ctx, s.path, 0o644, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s.data)
	})
	if err != nil {
		return fmt.Errorf("saving profile store: %w", err)
	}

	s.dirty = false
	return nil
}

// Resolver returns cached profiles or extracts fresh ones.
type Resolver struct {
	Store     *Store
	Extractor Extractor
	Logger    *zap.Logger
}

// Resume loads the resume file and returns its structured profile.
func (r *Resolver) Resume(ctx context.Context, path string) (*Resume, error) {
	text, fp, err := LoadResumeText(path)
	if err != nil {
		return nil, err
	}

	logger := r.logger().With(zap.String("resume_fingerprint", fingerprint.Short(fp, 12)))

	if cached, ok := r.Store.Resume(fp); ok {
		logger.Info("using cached resume analysis")
		return cached, nil
	}

	logger.Info("analyzing resume", zap.String("path", path))
	resume, err := r.Extractor.ExtractResume(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("extracting resume profile: %w", err)
	}
	resume.Fingerprint = fp
	r.Store.PutResume(resume)

	return resume, nil
}

// Role returns the role profile for the keywords and industry preferences.
func (r *Resolver) Role(ctx context.Context, keywords []string, prefs *Preferences) (*Role, error) {
	if len(normalizedSet(keywords)) == 0 {
		return nil, errors.New("at least one search keyword is required to analyze the target role")
	}

	fp := RoleFingerprint(keywords, prefs)
	logger := r.logger().With(zap.String("role_fingerprint", fingerprint.Short(fp, 12)))

	if cached, ok := r.Store.Role(fp); ok {
		logger.Info("using cached role analysis")
		return cached, nil
	}

	logger.Info("analyzing target role", zap.Strings("keywords", keywords))
	role, err := r.Extractor.AnalyzeRole(ctx, keywords, prefs)
	if err != nil {
		return nil, fmt.Errorf("analyzing role: %w", err)
	}
	role.Fingerprint = fp
	role.Keywords = append([]string(nil), keywords...)
	r.Store.PutRole(role)

	return role, nil
}

func (r *Resolver) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}
