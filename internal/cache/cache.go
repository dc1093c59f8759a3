// Package cache memoizes analyzer results keyed by job, resume and role fingerprints.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/spigell/leads/internal/ai"
)

const (
	// DefaultTTL is how long an analysis stays valid before it is dropped on load.
	DefaultTTL = 7 * 24 * time.Hour

	// SnapshotVersion is the persisted format. Newer snapshots are treated as corrupt.
	SnapshotVersion = 1

	keySeparator = ":"
)

var (
	// ErrCorrupt means the store content was unreadable and has been moved aside,
	// so writing a fresh snapshot over it loses nothing.
	ErrCorrupt        = errors.New("cache store is corrupted")
	ErrLockContention = errors.New("cache store is locked by another process")
	ErrWriteFailed    = errors.New("cache store write failed")
)

var now = time.Now

// Key identifies an analysis. A new resume or role yields a new key namespace.
type Key struct {
	Job    string
	Resume string
	Role   string
}

func (k Key) String() string {
	return strings.Join([]string{k.Job, k.Resume, k.Role}, keySeparator)
}

func ParseKey(s string) (Key, error) {
	parts := strings.Split(s, keySeparator)
	if len(parts) != 3 {
		return Key{}, fmt.Errorf("malformed cache key %q", s)
	}
	return Key{Job: parts[0], Resume: parts[1], Role: parts[2]}, nil
}

// Origin records what posting an entry was computed for, for maintenance output.
type Origin struct {
	Title   string `json:"title"`
	Company string `json:"company"`
	URL     string `json:"url,omitempty"`
}

// Entry is immutable once stored. Recomputing a key replaces the whole entry.
type Entry struct {
	Key       string        `json:"key"`
	Origin    Origin        `json:"origin"`
	Result    ai.Assessment `json:"result"`
	CreatedAt time.Time     `json:"created_at"`
}

// Snapshot is the persisted form of the cache.
type Snapshot struct {
	Version int               `json:"version"`
	Entries map[string]*Entry `json:"entries"`
}

// Store is a backing store with exclusive access semantics.
type Store interface {
	Lock(ctx context.Context) error
	Unlock() error
	// Load returns a nil snapshot when nothing was persisted yet.
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snapshot *Snapshot) error
	Describe() string
}

type Options struct {
	// TTL of entries. Zero means DefaultTTL, negative disables expiry.
	TTL    time.Duration
	Logger *zap.Logger
}

type Stats struct {
	Entries  int   `json:"entries"`
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
	Bytes    int64 `json:"bytes"`
	Expired  int   `json:"expired"`
	Degraded bool  `json:"degraded"`
	ReadOnly bool  `json:"read_only"`
}

// HitRate is the share of lookups answered from the cache.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

type Cache struct {
	store  Store
	logger *zap.Logger
	ttl    time.Duration

	mu       sync.RWMutex
	entries  map[string]*Entry
	dirty    bool
	expired  int
	degraded bool
	readOnly bool
	locked   bool

	hits   atomic.Int64
	misses atomic.Int64
}

// New returns an empty cache that is not bound to any store.
func New(opts Options) *Cache {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ttl := opts.TTL
	if ttl == 0 {
		ttl = DefaultTTL
	}

	return &Cache{
		logger:  logger,
		ttl:     ttl,
		entries: make(map[string]*Entry),
	}
}

// Open takes the store lock and loads its content. Lock contention is returned as an error.
// An unreadable or corrupted store yields an empty, degraded cache. Only a corrupted
// store, already moved aside, is overwritten on save.
func Open(ctx context.Context, store Store, opts Options) (*Cache, error) {
	c := New(opts)
	c.store = store
	c.logger = c.logger.With(zap.String("cache", store.Describe()))

	if err := store.Lock(ctx); err != nil {
		return nil, err
	}
	c.locked = true

	snapshot, err := store.Load(ctx)
	if err != nil {
		corrupted := errors.Is(err, ErrCorrupt)
		c.degraded = true
		// Anything but a quarantined store may still hold valid entries we could not read.
		c.readOnly = !corrupted
		c.logger.Warn("cache store unusable, continuing with an empty cache",
			zap.Error(err),
			zap.Bool("corrupted", corrupted),
			zap.Bool("read_only", c.readOnly),
		)
		return c, nil
	}

	if snapshot != nil {
		c.restore(snapshot)
	}

	c.logger.Debug("cache loaded",
		zap.Int("entries", len(c.entries)),
		zap.Int("expired", c.expired),
	)

	return c, nil
}

// With opens the cache, runs fn and always saves and releases the store afterwards,
// including when fn panics or ctx is canceled.
func With(ctx context.Context, store Store, opts Options, fn func(*Cache) error) (err error) {
	c, err := Open(ctx, store, opts)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			_ = c.Close(context.WithoutCancel(ctx))
			panic(r)
		}
		err = errors.CombineErrors(err, c.Close(context.WithoutCancel(ctx)))
	}()

	return fn(c)
}

func (c *Cache) restore(snapshot *Snapshot) {
	cutoff := time.Time{}
	if c.ttl > 0 {
		cutoff = now().Add(-c.ttl)
	}

	for key, entry := range snapshot.Entries {
		if entry == nil {
			continue
		}
		if !cutoff.IsZero() && entry.CreatedAt.Before(cutoff) {
			c.expired++
			continue
		}
		c.entries[key] = entry
	}

	if c.expired > 0 {
		c.dirty = true
	}
}

// Get returns the stored result for key without touching any counters.
func (c *Cache) Get(key Key) (ai.Assessment, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key.String()]
	if !ok {
		return ai.Assessment{}, false
	}
	return entry.Result, true
}

// Lookup is Get with hit and miss accounting.
func (c *Cache) Lookup(key Key) (ai.Assessment, bool) {
	result, ok := c.Get(key)
	c.Record(ok)
	return result, ok
}

// Record counts a lookup made with Get whose outcome is only known later.
func (c *Cache) Record(hit bool) {
	if hit {
		c.hits.Add(1)
		return
	}
	c.misses.Add(1)
}

// Put stores result under key, replacing any previous entry.
func (c *Cache) Put(key Key, result ai.Assessment, origin Origin) {
	entry := &Entry{
		Key:       key.String(),
		Origin:    origin,
		Result:    result,
		CreatedAt: now().UTC(),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[entry.Key] = entry
	c.dirty = true
}

// Entries returns the stored entries, newest first.
func (c *Cache) Entries() []*Entry {
	c.mu.RLock()
	entries := make([]*Entry, 0, len(c.entries))
	for _, entry := range c.entries {
		entries = append(entries, entry)
	}
	c.mu.RUnlock()

	sortNewestFirst(entries)
	return entries
}

func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var size int64
	for _, entry := range c.entries {
		size += entrySize(entry)
	}

	return Stats{
		Entries:  len(c.entries),
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
		Bytes:    size,
		Expired:  c.expired,
		Degraded: c.degraded,
		ReadOnly: c.readOnly,
	}
}

// Save persists the cache if it changed since the last save. A cache whose store
// failed to load for a reason other than corruption is never written back.
func (c *Cache) Save(ctx context.Context) error {
	if c.store == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.dirty {
		return nil
	}

	if c.readOnly {
		c.logger.Warn("cache store was not loaded, keeping it untouched",
			zap.Int("unsaved_entries", len(c.entries)),
		)
		return nil
	}

	snapshot := &Snapshot{
		Version: SnapshotVersion,
		Entries: make(map[string]*Entry, len(c.entries)),
	}
	for key, entry := range c.entries {
		snapshot.Entries[key] = entry
	}

	if err := c.store.Save(ctx, snapshot); err != nil {
		return errors.Mark(errors.Wrapf(err, "saving cache to %s", c.store.Describe()), ErrWriteFailed)
	}

	c.dirty = false
	c.logger.Debug("cache saved", zap.Int("entries", len(snapshot.Entries)))
	return nil
}

// Close saves pending changes and releases the store lock.
// The lock is released even when saving fails.
func (c *Cache) Close(ctx context.Context) error {
	if c.store == nil {
		return nil
	}

	saveErr := c.Save(ctx)

	c.mu.Lock()
	locked := c.locked
	c.locked = false
	c.mu.Unlock()

	if !locked {
		return saveErr
	}

	if err := c.store.Unlock(); err != nil {
		return errors.CombineErrors(saveErr, fmt.Errorf("releasing cache lock: %w", err))
	}
	return saveErr
}

func entrySize(entry *Entry) int64 {
	data, err := json.Marshal(entry)
	if err != nil {
		return 0
	}
	return int64(len(data))
}

func sortNewestFirst(entries []*Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].Key < entries[j].Key
		}
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
}
