package cache

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"

	pmerrors "pmat/internal/errors"
	"pmat/internal/slogutil"
)

// DefaultDir is the cache directory relative to the project root.
const DefaultDir = ".pmat-cache"

// record is the on-disk form of one entry.
type record[V any] struct {
	Key       string `json:"key"`
	Value     V      `json:"value"`
	CreatedAt int64  `json:"created_at"`
	SizeBytes int    `json:"size_bytes"`
}

type entry[V any] struct {
	value    V
	created  time.Time
	size     int
	accessed atomic.Int64
}

func (e *entry[V]) touch(now time.Time) { e.accessed.Store(now.UnixNano()) }

// Persistent is a memory map backed by one JSON file per entry. It is safe
// for concurrent use: gets share a read lock, puts and evictions take the
// write lock, and disk writes go through a temp file and rename so that
// concurrent puts of one key leave exactly one of the written values.
type Persistent[K, V any] struct {
	mu       sync.RWMutex
	mem      map[string]*entry[V]
	dir      string
	strategy Strategy[K, V]
	stats    Stats
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Persistent cache.
type Option func(*options)

type options struct {
	logger *slog.Logger
	now    func() time.Time
}

// WithLogger sets the logger used for cache I/O warnings.
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// New creates a cache persisting under dir. An empty dir keeps the cache in
// memory only.
func New[K, V any](strategy Strategy[K, V], dir string, opts ...Option) (*Persistent[K, V], error) {
	o := options{logger: slogutil.NewDiscardLogger(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, pmerrors.Cache("create", dir, err)
		}
	}
	return &Persistent[K, V]{
		mem:      make(map[string]*entry[V]),
		dir:      dir,
		strategy: strategy,
		logger:   o.logger,
		now:      o.now,
	}, nil
}

// FileName returns the on-disk file name for a cache key: sixteen hex
// digits of its hash.
func FileName(cacheKey string) string {
	return fmt.Sprintf("%016x.json", xxhash.Sum64String(cacheKey))
}

func (c *Persistent[K, V]) path(cacheKey string) string {
	if c.dir == "" {
		return ""
	}
	return filepath.Join(c.dir, FileName(cacheKey))
}

func (c *Persistent[K, V]) expired(created time.Time) bool {
	ttl := c.strategy.TTL()
	return ttl > 0 && c.now().Sub(created) > ttl
}

// Get returns the value cached for req. Expired or invalid entries are
// evicted along with their disk files. Disk read failures count as misses
// and remove the offending file.
func (c *Persistent[K, V]) Get(req K) (V, bool) {
	var zero V
	key := c.strategy.CacheKey(req)

	c.mu.RLock()
	e, ok := c.mem[key]
	c.mu.RUnlock()
	if ok {
		if c.expired(e.created) || !c.strategy.Validate(req, e.value) {
			c.drop(key, e)
			c.stats.misses.Add(1)
			return zero, false
		}
		e.touch(c.now())
		c.stats.hits.Add(1)
		return e.value, true
	}

	e, ok = c.load(key)
	if !ok {
		c.stats.misses.Add(1)
		return zero, false
	}
	if c.expired(e.created) || !c.strategy.Validate(req, e.value) {
		c.removeFile(key)
		c.stats.misses.Add(1)
		return zero, false
	}
	e.touch(c.now())
	c.mu.Lock()
	if prev, exists := c.mem[key]; exists {
		c.stats.bytes.Add(-int64(prev.size))
	}
	c.mem[key] = e
	c.mu.Unlock()
	c.stats.bytes.Add(int64(e.size))
	c.stats.hits.Add(1)
	c.EvictIfNeeded()
	return e.value, true
}

func (c *Persistent[K, V]) load(key string) (*entry[V], bool) {
	p := c.path(key)
	if p == "" {
		return nil, false
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.Warn("cache read failed", "path", p, "error", err)
			c.removeFile(key)
		}
		return nil, false
	}
	var rec record[V]
	if err := json.Unmarshal(data, &rec); err != nil || rec.Key != key {
		c.logger.Warn("removing corrupt cache file", "path", p, "error", err)
		c.removeFile(key)
		return nil, false
	}
	e := &entry[V]{value: rec.Value, created: time.Unix(0, rec.CreatedAt), size: rec.SizeBytes}
	return e, true
}

// Put installs value for req in memory and on disk, then evicts down to
// the strategy's size bound. A disk failure is logged and returned as a
// cache I/O error; the memory entry is kept.
func (c *Persistent[K, V]) Put(req K, value V) error {
	key := c.strategy.CacheKey(req)
	now := c.now()
	rec := record[V]{Key: key, Value: value, CreatedAt: now.UnixNano()}
	data, err := json.Marshal(rec)
	if err != nil {
		return pmerrors.Cache("encode", key, err)
	}
	rec.SizeBytes = len(data)
	e := &entry[V]{value: value, created: now, size: len(data)}
	e.touch(now)

	c.mu.Lock()
	if prev, ok := c.mem[key]; ok {
		c.stats.bytes.Add(-int64(prev.size))
	}
	c.mem[key] = e
	c.mu.Unlock()
	c.stats.bytes.Add(int64(e.size))

	var werr error
	if p := c.path(key); p != "" {
		if data, err = json.Marshal(rec); err == nil {
			err = writeAtomic(p, data)
		}
		if err != nil {
			c.logger.Warn("cache write failed", "path", p, "error", err)
			werr = pmerrors.Cache("write", p, err)
		}
	}
	c.EvictIfNeeded()
	return werr
}

// writeAtomic writes data to a temp file in the target directory and
// renames it into place.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return err
	}
	return nil
}

// Remove drops the entry for req from both tiers.
func (c *Persistent[K, V]) Remove(req K) (V, bool) {
	key := c.strategy.CacheKey(req)
	c.mu.Lock()
	e, ok := c.mem[key]
	if ok {
		delete(c.mem, key)
		c.stats.bytes.Add(-int64(e.size))
	}
	c.mu.Unlock()
	c.removeFile(key)
	if !ok {
		var zero V
		return zero, false
	}
	return e.value, true
}

func (c *Persistent[K, V]) drop(key string, e *entry[V]) {
	c.mu.Lock()
	if cur, ok := c.mem[key]; ok && cur == e {
		delete(c.mem, key)
		c.stats.bytes.Add(-int64(e.size))
	}
	c.mu.Unlock()
	c.removeFile(key)
}

func (c *Persistent[K, V]) removeFile(key string) {
	if p := c.path(key); p != "" {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			c.logger.Warn("cache remove failed", "path", p, "error", err)
		}
	}
}

// CleanupExpired removes expired entries from memory and expired files
// from disk.
func (c *Persistent[K, V]) CleanupExpired() int {
	removed := 0
	c.mu.Lock()
	for key, e := range c.mem {
		if c.expired(e.created) {
			delete(c.mem, key)
			c.stats.bytes.Add(-int64(e.size))
			c.removeFile(key)
			removed++
		}
	}
	c.mu.Unlock()

	for _, p := range c.files() {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		var rec record[json.RawMessage]
		if json.Unmarshal(data, &rec) != nil || c.expired(time.Unix(0, rec.CreatedAt)) {
			if os.Remove(p) == nil {
				removed++
			}
		}
	}
	return removed
}

// EvictIfNeeded evicts least recently accessed entries until the memory
// tier fits the strategy's MaxSize. Each eviction deletes its disk file.
func (c *Persistent[K, V]) EvictIfNeeded() int {
	limit := c.strategy.MaxSize()
	if limit <= 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	evicted := 0
	for len(c.mem) > limit {
		var victim string
		oldest := int64(1<<63 - 1)
		for key, e := range c.mem {
			if at := e.accessed.Load(); at < oldest || (at == oldest && key < victim) {
				victim, oldest = key, at
			}
		}
		e := c.mem[victim]
		delete(c.mem, victim)
		c.stats.bytes.Add(-int64(e.size))
		c.stats.evictions.Add(1)
		c.removeFile(victim)
		evicted++
	}
	return evicted
}

// Clear empties both tiers.
func (c *Persistent[K, V]) Clear() error {
	c.mu.Lock()
	clear(c.mem)
	c.stats.bytes.Store(0)
	c.mu.Unlock()
	var firstErr error
	for _, p := range c.files() {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = pmerrors.Cache("remove", p, err)
		}
	}
	return firstErr
}

func (c *Persistent[K, V]) files() []string {
	if c.dir == "" {
		return nil
	}
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			out = append(out, filepath.Join(c.dir, e.Name()))
		}
	}
	return out
}

// Len returns the number of in-memory entries.
func (c *Persistent[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.mem)
}

// Stats returns a snapshot of the counters.
func (c *Persistent[K, V]) Stats() StatsSnapshot { return c.stats.Snapshot() }

// GetOrCompute returns the cached value for req or computes, stores and
// returns it. Errors from compute are not cached.
func (c *Persistent[K, V]) GetOrCompute(req K, compute func() (V, error)) (V, error) {
	if v, ok := c.Get(req); ok {
		return v, nil
	}
	v, err := compute()
	if err != nil {
		return v, err
	}
	_ = c.Put(req, v)
	return v, nil
}
