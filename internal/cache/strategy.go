// Package cache provides a two-tier (memory and disk) cache whose keys,
// lifetimes and validity are supplied by a Strategy.
package cache

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Strategy describes how requests of type K map to cached values of type V.
type Strategy[K, V any] interface {
	// CacheKey returns a stable key for the request.
	CacheKey(req K) string
	// TTL bounds entry age; zero means entries never expire.
	TTL() time.Duration
	// Validate reports whether a cached value still answers req.
	Validate(req K, value V) bool
	// MaxSize bounds the number of in-memory entries.
	MaxSize() int
}

// Default strategy lifetimes and sizes.
const (
	FileTTL       = 5 * time.Minute
	TemplateTTL   = 10 * time.Minute
	GraphTTL      = 3 * time.Minute
	ChurnTTL      = 30 * time.Minute
	FileMaxSize   = 10000
	SmallMaxSize  = 100
	ChurnMaxSize  = 20
	GraphMaxSize  = 50
	MaxKeyPartLen = 256
)

// FileStrategy caches per-file results. Keys include the path and its
// modification time, so an edited file misses.
type FileStrategy[V any] struct {
	Namespace string
	Lifetime  time.Duration
	Size      int
}

// NewFileStrategy creates a file strategy with default limits.
func NewFileStrategy[V any](namespace string) FileStrategy[V] {
	return FileStrategy[V]{Namespace: namespace, Lifetime: FileTTL, Size: FileMaxSize}
}

func (s FileStrategy[V]) CacheKey(path string) string {
	var mtime int64
	if info, err := os.Stat(path); err == nil {
		mtime = info.ModTime().UnixNano()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return s.Namespace + ":" + filepath.ToSlash(abs) + ":" + strconv.FormatInt(mtime, 10)
}

func (s FileStrategy[V]) TTL() time.Duration { return s.Lifetime }

// Validate rejects entries for files that no longer exist.
func (s FileStrategy[V]) Validate(path string, _ V) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (s FileStrategy[V]) MaxSize() int { return s.Size }

// KeyedStrategy caches values under caller-built string keys, such as
// template URIs.
type KeyedStrategy[V any] struct {
	Namespace string
	Lifetime  time.Duration
	Size      int
}

// NewTemplateStrategy caches rendered templates and template metadata.
func NewTemplateStrategy[V any]() KeyedStrategy[V] {
	return KeyedStrategy[V]{Namespace: "template", Lifetime: TemplateTTL, Size: SmallMaxSize}
}

// NewGraphStrategy caches dependency graphs keyed by project and graph kind.
func NewGraphStrategy[V any]() KeyedStrategy[V] {
	return KeyedStrategy[V]{Namespace: "dag", Lifetime: GraphTTL, Size: GraphMaxSize}
}

func (s KeyedStrategy[V]) CacheKey(key string) string { return s.Namespace + ":" + clipKey(key) }
func (s KeyedStrategy[V]) TTL() time.Duration         { return s.Lifetime }
func (s KeyedStrategy[V]) Validate(string, V) bool    { return true }
func (s KeyedStrategy[V]) MaxSize() int               { return s.Size }

// RepoRequest identifies a repository-wide computation.
type RepoRequest struct {
	Root   string
	Params string
}

// RepoStrategy caches repository-wide results such as churn. Entries are
// keyed by the HEAD commit and are rejected when HEAD moves.
type RepoStrategy[V any] struct {
	Namespace string
	Lifetime  time.Duration
	Size      int
	// Head returns the current HEAD commit of root, or "" when unknown.
	Head func(root string) string
	// HeadOf extracts the commit a cached value was computed at.
	HeadOf func(V) string
}

func (s RepoStrategy[V]) CacheKey(req RepoRequest) string {
	head := ""
	if s.Head != nil {
		head = s.Head(req.Root)
	}
	return strings.Join([]string{s.Namespace, filepath.ToSlash(req.Root), clipKey(req.Params), head}, ":")
}

func (s RepoStrategy[V]) TTL() time.Duration { return s.Lifetime }

func (s RepoStrategy[V]) Validate(req RepoRequest, v V) bool {
	if s.Head == nil || s.HeadOf == nil {
		return true
	}
	return s.HeadOf(v) == s.Head(req.Root)
}

func (s RepoStrategy[V]) MaxSize() int { return s.Size }

func clipKey(s string) string {
	if len(s) > MaxKeyPartLen {
		return s[:MaxKeyPartLen]
	}
	return s
}
