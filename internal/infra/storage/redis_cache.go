package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"hliquity_mirror/internal/store"

	"github.com/redis/go-redis/v9"
)

const cacheWriteTimeout = 2 * time.Second

// CacheRecorder observes cache activity.
type CacheRecorder interface {
	RecordCacheWrite()
	RecordError()
}

// cacheClient is the subset of *redis.Client the cache needs.
type cacheClient interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Close() error
}

// CacheMessage is published on the change channel for every non-empty change.
type CacheMessage struct {
	BlockTag uint64            `json:"block_tag"`
	Fields   []store.Field     `json:"fields"`
	Changes  store.StateChange `json:"changes"`
}

type cacheEntry struct {
	state  []byte
	change []byte
}

// StateCache keeps the latest mirrored state under "<prefix>:state" in Redis
// and publishes each change on "<prefix>:changes".
type StateCache struct {
	rdb      cacheClient
	key      string
	channel  string
	ttl      time.Duration
	queue    chan cacheEntry
	recorder CacheRecorder
	now      func() time.Time

	// lastWrite is only touched by the listener, which runs on the store's writer.
	lastWrite time.Time

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewStateCache connects to the Redis server at url and starts the writer.
func NewStateCache(url, prefix string, ttl time.Duration, recorder CacheRecorder) (*StateCache, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	rdb := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), cacheWriteTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return newStateCache(rdb, prefix, ttl, recorder), nil
}

func newStateCache(rdb cacheClient, prefix string, ttl time.Duration, recorder CacheRecorder) *StateCache {
	c := &StateCache{
		rdb:      rdb,
		key:      prefix + ":state",
		channel:  prefix + ":changes",
		ttl:      ttl,
		queue:    make(chan cacheEntry, 64),
		recorder: recorder,
		now:      time.Now,
	}
	c.wg.Add(1)
	go c.writeLoop()
	return c
}

// Listener returns a store listener that caches the new state after each non-empty change.
// An empty change (the load notification or a quiet refresh) only rewrites the state when
// nothing has been cached yet or half of the TTL has passed; it is never published.
// A full queue drops the write; the next change rewrites the whole state.
func (c *StateCache) Listener() store.Listener[store.BlockState] {
	return func(n store.Notification[store.BlockState]) {
		empty := len(n.StateChange) == 0
		if empty && !c.stale() {
			return
		}
		state, err := json.Marshal(n.NewState)
		if err != nil {
			slog.Error("Cache encode failed", slog.Any("error", err))
			return
		}
		var change []byte
		if !empty {
			change, err = json.Marshal(CacheMessage{
				BlockTag: n.NewState.Extra.BlockTag,
				Fields:   n.StateChange.Fields(),
				Changes:  n.StateChange,
			})
			if err != nil {
				slog.Error("Cache encode failed", slog.Any("error", err))
				return
			}
		}

		select {
		case c.queue <- cacheEntry{state: state, change: change}:
			c.lastWrite = c.now()
		default:
			slog.Warn("Cache queue full, dropping write")
			if c.recorder != nil {
				c.recorder.RecordError()
			}
		}
	}
}

func (c *StateCache) stale() bool {
	if c.lastWrite.IsZero() {
		return true
	}
	return c.ttl > 0 && c.now().Sub(c.lastWrite) >= c.ttl/2
}

func (c *StateCache) writeLoop() {
	defer c.wg.Done()
	for e := range c.queue {
		if err := c.write(e); err != nil {
			slog.Warn("Cache write failed", slog.String("key", c.key), slog.Any("error", err))
			if c.recorder != nil {
				c.recorder.RecordError()
			}
			continue
		}
		if c.recorder != nil {
			c.recorder.RecordCacheWrite()
		}
	}
}

func (c *StateCache) write(e cacheEntry) error {
	ctx, cancel := context.WithTimeout(context.Background(), cacheWriteTimeout)
	defer cancel()

	if err := c.rdb.Set(ctx, c.key, e.state, c.ttl).Err(); err != nil {
		return err
	}
	if e.change == nil {
		return nil
	}
	return c.rdb.Publish(ctx, c.channel, e.change).Err()
}

// Close drains pending writes and closes the client.
// Listener must not be invoked after Close.
func (c *StateCache) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.queue)
		c.wg.Wait()
		err = c.rdb.Close()
	})
	return err
}
