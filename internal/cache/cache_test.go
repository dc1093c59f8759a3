package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/leads/internal/ai"
)

func testKey(job string) Key {
	return Key{Job: job, Resume: "resume-fp", Role: "role-fp"}
}

func testResult(confidence int) ai.Assessment {
	return ai.Assessment{Confidence: confidence, IndustryFit: ai.FitGood, RequiredSkills: []string{"go"}}
}

func withClock(t *testing.T, at time.Time) {
	t.Helper()
	original := now
	now = func() time.Time { return at }
	t.Cleanup(func() { now = original })
}

func TestGetHasNoSideEffects(t *testing.T) {
	c := New(Options{})
	c.Put(testKey("a"), testResult(7), Origin{Title: "Go dev"})

	_, ok := c.Get(testKey("a"))
	require.True(t, ok)
	_, ok = c.Get(testKey("missing"))
	require.False(t, ok)

	stats := c.Stats()
	assert.Zero(t, stats.Hits)
	assert.Zero(t, stats.Misses)
	assert.Equal(t, 1, stats.Entries)
	assert.Positive(t, stats.Bytes)
}

func TestLookupCountsHitsAndMisses(t *testing.T) {
	c := New(Options{})
	c.Put(testKey("a"), testResult(7), Origin{})

	_, _ = c.Lookup(testKey("a"))
	_, _ = c.Lookup(testKey("a"))
	_, _ = c.Lookup(testKey("b"))

	stats := c.Stats()
	assert.EqualValues(t, 2, stats.Hits)
	assert.EqualValues(t, 1, stats.Misses)
	assert.InDelta(t, 2.0/3.0, stats.HitRate(), 0.0001)
}

func TestPutOverwritesWholeEntry(t *testing.T) {
	c := New(Options{})
	c.Put(testKey("a"), ai.Assessment{Confidence: 3, KeyReasons: []string{"old"}}, Origin{})
	c.Put(testKey("a"), ai.Assessment{Confidence: 9}, Origin{})

	got, ok := c.Get(testKey("a"))
	require.True(t, ok)
	assert.Equal(t, 9, got.Confidence)
	assert.Empty(t, got.KeyReasons)
	assert.Equal(t, 1, c.Stats().Entries)
}

func TestKeyRoundTrip(t *testing.T) {
	key := Key{Job: "j", Resume: "r", Role: "o"}
	parsed, err := ParseKey(key.String())
	require.NoError(t, err)
	assert.Equal(t, key, parsed)

	_, err = ParseKey("only:two")
	assert.Error(t, err)
}

func TestConcurrentPutsDoNotLoseUpdates(t *testing.T) {
	c := New(Options{})

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := testKey(fmt.Sprintf("job-%d", i))
			c.Put(key, testResult(i%10+1), Origin{})
			_, _ = c.Lookup(key)
		}(i)
	}
	wg.Wait()

	stats := c.Stats()
	assert.Equal(t, 64, stats.Entries)
	assert.EqualValues(t, 64, stats.Hits)
}

func TestOpenCloseRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	ctx := context.Background()

	c, err := Open(ctx, NewFileStore(path), Options{})
	require.NoError(t, err)
	c.Put(testKey("a"), testResult(8), Origin{Title: "Go dev", Company: "Acme"})
	require.NoError(t, c.Close(ctx))

	reopened, err := Open(ctx, NewFileStore(path), Options{})
	require.NoError(t, err)
	defer reopened.Close(ctx)

	got, ok := reopened.Get(testKey("a"))
	require.True(t, ok)
	assert.Equal(t, 8, got.Confidence)
	assert.False(t, reopened.Stats().Degraded)
}

func TestOpenDropsExpiredEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	ctx := context.Background()
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	withClock(t, start)
	c, err := Open(ctx, NewFileStore(path), Options{})
	require.NoError(t, err)
	c.Put(testKey("old"), testResult(5), Origin{})
	require.NoError(t, c.Close(ctx))

	now = func() time.Time { return start.Add(3 * 24 * time.Hour) }
	c, err = Open(ctx, NewFileStore(path), Options{})
	require.NoError(t, err)
	c.Put(testKey("fresh"), testResult(6), Origin{})
	require.NoError(t, c.Close(ctx))

	now = func() time.Time { return start.Add(8 * 24 * time.Hour) }
	c, err = Open(ctx, NewFileStore(path), Options{})
	require.NoError(t, err)
	defer c.Close(ctx)

	_, ok := c.Get(testKey("old"))
	assert.False(t, ok)
	_, ok = c.Get(testKey("fresh"))
	assert.True(t, ok)
	assert.Equal(t, 1, c.Stats().Expired)
}

func TestOpenDegradesOnCorruption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version": 1, "entries": {`), 0o644))

	core, logs := observer.New(zapcore.WarnLevel)
	ctx := context.Background()

	c, err := Open(ctx, NewFileStore(path), Options{Logger: zap.New(core)})
	require.NoError(t, err)

	assert.True(t, c.Stats().Degraded)
	assert.Zero(t, c.Stats().Entries)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, true, logs.All()[0].ContextMap()["corrupted"])

	_, err = os.Stat(path + corruptSuffix)
	require.NoError(t, err, "corrupted file must be kept aside")

	c.Put(testKey("a"), testResult(5), Origin{})
	require.NoError(t, c.Close(ctx))

	reopened, err := Open(ctx, NewFileStore(path), Options{})
	require.NoError(t, err)
	defer reopened.Close(ctx)
	assert.Equal(t, 1, reopened.Stats().Entries)
}

// unreadableStore fails Load without the content being corrupt, like a store
// that is still loading or a file the process cannot read.
type unreadableStore struct {
	*FileStore
	err error
}

func (s *unreadableStore) Load(context.Context) (*Snapshot, error) {
	return nil, s.err
}

func TestOpenKeepsStoreUntouchedWhenLoadFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	ctx := context.Background()

	seed, err := Open(ctx, NewFileStore(path), Options{})
	require.NoError(t, err)
	seed.Put(testKey("history"), testResult(9), Origin{Company: "Acme"})
	require.NoError(t, seed.Close(ctx))

	before, err := os.ReadFile(path)
	require.NoError(t, err)

	core, logs := observer.New(zapcore.WarnLevel)
	store := &unreadableStore{FileStore: NewFileStore(path), err: errors.New("permission denied")}

	c, err := Open(ctx, store, Options{Logger: zap.New(core)})
	require.NoError(t, err)

	stats := c.Stats()
	assert.True(t, stats.Degraded)
	assert.True(t, stats.ReadOnly)
	require.GreaterOrEqual(t, logs.Len(), 1)
	assert.Equal(t, false, logs.All()[0].ContextMap()["corrupted"])

	c.Put(testKey("new"), testResult(3), Origin{})
	require.NoError(t, c.Close(ctx))

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, 1, logs.FilterMessage("cache store was not loaded, keeping it untouched").Len())

	reopened, err := Open(ctx, NewFileStore(path), Options{})
	require.NoError(t, err)
	defer reopened.Close(ctx)
	_, ok := reopened.Get(testKey("history"))
	assert.True(t, ok)
	assert.False(t, reopened.Stats().ReadOnly)
}

func TestOpenReportsLockContention(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	ctx := context.Background()

	first, err := Open(ctx, NewFileStore(path), Options{})
	require.NoError(t, err)

	_, err = Open(ctx, NewFileStore(path), Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLockContention))
	assert.NotEmpty(t, errors.GetAllHints(err))

	require.NoError(t, first.Close(ctx))

	second, err := Open(ctx, NewFileStore(path), Options{})
	require.NoError(t, err)
	require.NoError(t, second.Close(ctx))
}

func TestInterruptedSaveKeepsPreviousFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	ctx := context.Background()

	c, err := Open(ctx, NewFileStore(path), Options{})
	require.NoError(t, err)
	c.Put(testKey("kept"), testResult(7), Origin{})
	require.NoError(t, c.Save(ctx))

	before, err := os.ReadFile(path)
	require.NoError(t, err)

	c.Put(testKey("lost"), testResult(4), Origin{})
	canceled, cancel := context.WithCancel(ctx)
	cancel()
	err = c.Save(canceled)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrWriteFailed))

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	require.NoError(t, c.Close(ctx))

	reopened, err := Open(ctx, NewFileStore(path), Options{})
	require.NoError(t, err)
	defer reopened.Close(ctx)
	_, ok := reopened.Get(testKey("kept"))
	assert.True(t, ok)
	assert.False(t, reopened.Stats().Degraded)
}

func TestWithSavesOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	ctx := context.Background()
	failure := errors.New("batch aborted")

	err := With(ctx, NewFileStore(path), Options{}, func(c *Cache) error {
		c.Put(testKey("a"), testResult(6), Origin{})
		return failure
	})
	require.ErrorIs(t, err, failure)

	err = With(ctx, NewFileStore(path), Options{}, func(c *Cache) error {
		_, ok := c.Get(testKey("a"))
		assert.True(t, ok)
		return nil
	})
	require.NoError(t, err)
}

func TestWithSavesOnPanic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	ctx := context.Background()

	func() {
		defer func() {
			require.NotNil(t, recover())
		}()
		_ = With(ctx, NewFileStore(path), Options{}, func(c *Cache) error {
			c.Put(testKey("a"), testResult(6), Origin{})
			panic("interrupted")
		})
	}()

	err := With(ctx, NewFileStore(path), Options{}, func(c *Cache) error {
		_, ok := c.Get(testKey("a"))
		assert.True(t, ok)
		return nil
	})
	require.NoError(t, err)
}

func TestWithSavesWhenContextCanceled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	ctx, cancel := context.WithCancel(context.Background())

	err := With(ctx, NewFileStore(path), Options{}, func(c *Cache) error {
		c.Put(testKey("a"), testResult(6), Origin{})
		cancel()
		return ctx.Err()
	})
	require.ErrorIs(t, err, context.Canceled)

	reopened, err := Open(context.Background(), NewFileStore(path), Options{})
	require.NoError(t, err)
	defer reopened.Close(context.Background())
	assert.Equal(t, 1, reopened.Stats().Entries)
}

func TestPrune(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	withClock(t, start)

	c := New(Options{})
	for i := 0; i < 5; i++ {
		now = func() time.Time { return start.Add(time.Duration(i) * time.Hour) }
		c.Put(testKey(fmt.Sprintf("job-%d", i)), testResult(5), Origin{Company: "Acme"})
	}

	now = func() time.Time { return start.Add(5 * time.Hour) }
	removed := c.Prune(PruneOptions{OlderThan: 4*time.Hour + 30*time.Minute})
	assert.Equal(t, 1, removed)
	_, ok := c.Get(testKey("job-0"))
	assert.False(t, ok)

	removed = c.Prune(PruneOptions{MaxEntries: 2})
	assert.Equal(t, 2, removed)
	_, ok = c.Get(testKey("job-4"))
	assert.True(t, ok, "newest entries survive")
	_, ok = c.Get(testKey("job-1"))
	assert.False(t, ok)

	one := entrySize(c.Entries()[0])
	removed = c.Prune(PruneOptions{MaxBytes: one})
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, c.Stats().Entries)
}

func TestClearAndTopCompanies(t *testing.T) {
	c := New(Options{})
	c.Put(testKey("1"), testResult(5), Origin{Company: "Acme"})
	c.Put(testKey("2"), testResult(5), Origin{Company: "acme"})
	c.Put(testKey("3"), testResult(5), Origin{Company: "Globex"})

	top := c.TopCompanies(1)
	require.Len(t, top, 1)
	assert.Equal(t, 2, top[0].Count)

	assert.Equal(t, 3, c.Clear())
	assert.Zero(t, c.Stats().Entries)
}
