package proof

import (
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Cache holds per-file annotation lists shared by all sources of one
// annotator. Entries are keyed by source name, content hash and
// modification time, so sources never see each other's lists and a file
// whose mtime advances misses.
type Cache struct {
	mu        sync.RWMutex
	entries   map[string][]Located
	fileTimes map[fileKey]time.Time
}

type fileKey struct {
	source string
	path   string
}

// CacheStats describes cache occupancy.
type CacheStats struct {
	Entries      int `json:"entries"`
	FilesTracked int `json:"files_tracked"`
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string][]Located), fileTimes: make(map[fileKey]time.Time)}
}

// Key derives the cache key of one source's view of a file's content and
// mtime.
func Key(source string, content []byte, mtime time.Time) string {
	return source + ":" + strconv.FormatUint(xxhash.Sum64(content), 16) + "-" + strconv.FormatInt(mtime.UnixNano(), 10)
}

// IsFileCached reports whether source analyzed path at its current mtime.
func (c *Cache) IsFileCached(source, path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	cached, ok := c.fileTimes[fileKey{source, path}]
	return ok && !info.ModTime().After(cached)
}

// Get returns the cached list for key.
func (c *Cache) Get(key string) ([]Located, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[key]
	return v, ok
}

// Put stores a list for key and records the file's mtime for source.
func (c *Cache) Put(source, path, key string, mtime time.Time, anns []Located) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = anns
	c.fileTimes[fileKey{source, path}] = mtime
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
	clear(c.fileTimes)
}

// Stats reports cache occupancy.
func (c *Cache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return CacheStats{Entries: len(c.entries), FilesTracked: len(c.fileTimes)}
}

// FileAnnotations returns source's cached annotations of path or computes
// and stores them. hit reports a cache hit.
func (c *Cache) FileAnnotations(source, path string, analyze func(content []byte) ([]Located, error)) (anns []Located, hit bool, err error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, false, err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, false, err
	}
	key := Key(source, content, info.ModTime())
	if c.IsFileCached(source, path) {
		if v, ok := c.Get(key); ok {
			return v, true, nil
		}
	}
	anns, err = analyze(content)
	if err != nil {
		return nil, false, err
	}
	c.Put(source, path, key, info.ModTime(), anns)
	return anns, false, nil
}
