package cache

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultRedisNamespace = "leads:cache"
	defaultLockTTL        = 30 * time.Minute
)

var releaseLock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var refreshLock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// NewRedisClient parses redisURL and verifies connectivity.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL(%q): %w", redisURL, err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return client, nil
}

// RedisStore keeps entries in a single hash so a cache can be shared between machines.
// Saves build a temporary hash and rename it over the live one inside MULTI/EXEC,
// and only while the lock still carries this store's token. The lock is refreshed
// in the background until Unlock.
type RedisStore struct {
	client    *redis.Client
	namespace string
	lockTTL   time.Duration
	token     string

	mu          sync.Mutex
	stopRefresh context.CancelFunc
	refreshDone chan struct{}
	lost        atomic.Bool
}

func NewRedisStore(client *redis.Client, namespace string) *RedisStore {
	if namespace == "" {
		namespace = DefaultRedisNamespace
	}
	return &RedisStore{
		client:    client,
		namespace: namespace,
		lockTTL:   defaultLockTTL,
		token:     newToken(),
	}
}

func (s *RedisStore) Describe() string {
	return fmt.Sprintf("redis://%s/%s", s.client.Options().Addr, s.namespace)
}

func (s *RedisStore) entriesKey() string { return s.namespace + ":entries" }
func (s *RedisStore) lockKey() string    { return s.namespace + ":lock" }

func (s *RedisStore) Lock(ctx context.Context) error {
	ok, err := s.client.SetNX(ctx, s.lockKey(), s.token, s.lockTTL).Result()
	if err != nil {
		return fmt.Errorf("locking %s: %w", s.lockKey(), err)
	}
	if !ok {
		err := errors.Mark(errors.Newf("cache namespace %s is in use", s.namespace), ErrLockContention)
		return errors.WithHintf(err, "another leads process holds %s; it expires %s after that process stops", s.lockKey(), s.lockTTL)
	}

	s.lost.Store(false)
	s.startRefresh()
	return nil
}

func (s *RedisStore) Unlock() error {
	s.mu.Lock()
	stop, done := s.stopRefresh, s.refreshDone
	s.stopRefresh, s.refreshDone = nil, nil
	s.mu.Unlock()

	if stop != nil {
		stop()
		<-done
	}

	// The lock is only ours to release while it still carries our token.
	return releaseLock.Run(context.Background(), s.client, []string{s.lockKey()}, s.token).Err()
}

func (s *RedisStore) startRefresh() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	s.mu.Lock()
	s.stopRefresh, s.refreshDone = cancel, done
	s.mu.Unlock()

	interval := s.lockTTL / 3
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				held, err := s.refresh(ctx)
				if err != nil {
					// Transient failures are retried on the next tick; Save checks ownership anyway.
					continue
				}
				if !held {
					s.lost.Store(true)
					return
				}
			}
		}
	}()
}

// refresh extends the lock TTL if this store still owns the lock.
func (s *RedisStore) refresh(ctx context.Context) (bool, error) {
	n, err := refreshLock.Run(ctx, s.client, []string{s.lockKey()}, s.token, s.lockTTL.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *RedisStore) lockLost() error {
	err := errors.Mark(errors.Newf("lock on cache namespace %s was lost", s.namespace), ErrLockContention)
	return errors.WithHintf(err, "another process took over %s; results of this run were not written to the shared cache", s.lockKey())
}

func (s *RedisStore) Load(ctx context.Context) (*Snapshot, error) {
	raw, err := s.client.HGetAll(ctx, s.entriesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", s.entriesKey(), err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	snapshot := &Snapshot{Version: SnapshotVersion, Entries: make(map[string]*Entry, len(raw))}
	for key, value := range raw {
		var entry Entry
		if err := json.Unmarshal([]byte(value), &entry); err != nil {
			corrupt := errors.Mark(fmt.Errorf("parsing entry %s: %w", key, err), ErrCorrupt)
			quarantine := s.entriesKey() + corruptSuffix
			if renameErr := s.client.Rename(ctx, s.entriesKey(), quarantine).Err(); renameErr != nil {
				return nil, errors.Wrapf(renameErr, "entry %s is unreadable (%v) and the hash could not be moved aside", key, err)
			}
			return nil, errors.WithHint(corrupt, "the unreadable entries were kept under "+quarantine)
		}
		snapshot.Entries[key] = &entry
	}

	return snapshot, nil
}

func (s *RedisStore) Save(ctx context.Context, snapshot *Snapshot) error {
	values := make(map[string]any, len(snapshot.Entries))
	for key, entry := range snapshot.Entries {
		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("encoding entry %s: %w", key, err)
		}
		values[key] = data
	}

	if s.lost.Load() {
		return s.lockLost()
	}

	tmp := s.entriesKey() + ":tmp:" + s.token
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		owner, err := tx.Get(ctx, s.lockKey()).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if owner != s.token {
			return s.lockLost()
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, tmp)
			if len(values) == 0 {
				pipe.Del(ctx, s.entriesKey())
				return nil
			}
			pipe.HSet(ctx, tmp, values)
			pipe.Rename(ctx, tmp, s.entriesKey())
			return nil
		})
		return err
	}, s.lockKey())
	if errors.Is(err, redis.TxFailedErr) {
		return s.lockLost()
	}
	if err != nil {
		return fmt.Errorf("writing %s: %w", s.entriesKey(), err)
	}

	return nil
}

func newToken() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
