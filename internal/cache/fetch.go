// Package cache keeps snappy-compressed local copies of fetched source
// objects so repeated runs against the same month do not refetch them.
package cache

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/golang/snappy"
	"github.com/spaolacci/murmur3"

	"github.com/eventload/eventload/internal/storage"
)

const fileSuffix = ".sz"

// DefaultMaxBytes bounds the compressed size of the cache directory.
const DefaultMaxBytes = 1 << 30

// Metrics holds cache statistics.
type Metrics struct {
	Hits      atomic.Int64
	Misses    atomic.Int64
	Evictions atomic.Int64
}

// FetchCache wraps an ObjectStorage with a read-through disk cache.
// Entries are keyed by namespace and object path, so two hosts serving the
// same object path never share an entry.
type FetchCache struct {
	backend   storage.ObjectStorage
	dir       string
	namespace string
	maxBytes  int64
	metrics   Metrics

	mu       sync.Mutex
	curBytes int64
	items    map[string]*list.Element
	order    *list.List // front = most recently used
}

type entry struct {
	name      string
	sizeBytes int64
}

// New opens the cache directory and indexes entries left by earlier runs.
func New(backend storage.ObjectStorage, dir, namespace string, maxBytes int64) (*FetchCache, error) {
	if backend == nil {
		return nil, errors.New("cache: backend is required")
	}
	if dir == "" {
		return nil, errors.New("cache: directory is required")
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}

	c := &FetchCache{
		backend:   backend,
		dir:       dir,
		namespace: strings.TrimRight(namespace, "/"),
		maxBytes:  maxBytes,
		items:     make(map[string]*list.Element),
		order:     list.New(),
	}
	if err := c.scanExistingFiles(); err != nil {
		return nil, fmt.Errorf("failed to scan cache dir: %w", err)
	}
	return c, nil
}

// scanExistingFiles rebuilds the LRU order from file modification times,
// oldest at the back.
func (c *FetchCache) scanExistingFiles() error {
	dirEntries, err := os.ReadDir(c.dir)
	if err != nil {
		return err
	}

	type found struct {
		name    string
		size    int64
		modNano int64
	}
	var files []found
	for _, de := range dirEntries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), fileSuffix) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		files = append(files, found{name: de.Name(), size: info.Size(), modNano: info.ModTime().UnixNano()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].modNano > files[j].modNano })

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range files {
		c.items[f.name] = c.order.PushBack(&entry{name: f.name, sizeBytes: f.size})
		c.curBytes += f.size
	}
	c.evictLocked()
	return nil
}

// Get returns the object content, from disk when cached.
func (c *FetchCache) Get(ctx context.Context, objectPath string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name := c.entryName(objectPath)
	if data, ok := c.load(name); ok {
		c.metrics.Hits.Add(1)
		return data, nil
	}
	c.metrics.Misses.Add(1)

	data, err := c.backend.Get(ctx, objectPath)
	if err != nil {
		return nil, err
	}
	// A failed cache write does not fail the fetch.
	_ = c.store(name, data)
	return data, nil
}

// Download writes the object to localPath, filling the cache on a miss.
func (c *FetchCache) Download(ctx context.Context, objectPath, localPath string) error {
	data, err := c.Get(ctx, objectPath)
	if err != nil {
		return err
	}
	return storage.WriteFileAtomic(localPath, data)
}

// Exists answers from the cache when possible.
func (c *FetchCache) Exists(ctx context.Context, objectPath string) (bool, error) {
	c.mu.Lock()
	_, ok := c.items[c.entryName(objectPath)]
	c.mu.Unlock()
	if ok {
		return true, nil
	}
	return c.backend.Exists(ctx, objectPath)
}

// Metrics returns hit, miss and eviction counts.
func (c *FetchCache) Metrics() (hits, misses, evictions int64) {
	return c.metrics.Hits.Load(), c.metrics.Misses.Load(), c.metrics.Evictions.Load()
}

// Size returns the compressed bytes held on disk.
func (c *FetchCache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.curBytes
}

// Len returns the number of cached objects.
func (c *FetchCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// entryName hashes the namespaced object path into a flat file name.
func (c *FetchCache) entryName(objectPath string) string {
	h1, h2 := murmur3.Sum128([]byte(c.namespace + "/" + strings.TrimLeft(objectPath, "/")))
	return fmt.Sprintf("%016x%016x%s", h1, h2, fileSuffix)
}

func (c *FetchCache) load(name string) ([]byte, bool) {
	c.mu.Lock()
	elem, ok := c.items[name]
	if ok {
		c.order.MoveToFront(elem)
	}
	c.mu.Unlock()
	if !ok {
		return nil, false
	}

	compressed, err := os.ReadFile(filepath.Join(c.dir, name))
	if err == nil {
		var data []byte
		if data, err = snappy.Decode(nil, compressed); err == nil {
			return data, true
		}
	}

	// Missing or corrupt file: drop the entry and refetch.
	c.mu.Lock()
	if elem, ok := c.items[name]; ok {
		c.removeLocked(elem)
	}
	c.mu.Unlock()
	return nil, false
}

func (c *FetchCache) store(name string, data []byte) error {
	compressed := snappy.Encode(nil, data)
	if err := storage.WriteFileAtomic(filepath.Join(c.dir, name), compressed); err != nil {
		return err
	}
	size := int64(len(compressed))

	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[name]; ok {
		e := elem.Value.(*entry)
		c.curBytes += size - e.sizeBytes
		e.sizeBytes = size
		c.order.MoveToFront(elem)
	} else {
		c.items[name] = c.order.PushFront(&entry{name: name, sizeBytes: size})
		c.curBytes += size
	}
	c.evictLocked()
	return nil
}

// evictLocked drops least-recently-used entries until under maxBytes. The
// newest entry is always kept. Caller must hold c.mu.
func (c *FetchCache) evictLocked() {
	for c.curBytes > c.maxBytes && c.order.Len() > 1 {
		c.removeLocked(c.order.Back())
		c.metrics.Evictions.Add(1)
	}
}

// removeLocked removes an entry and its file. Caller must hold c.mu.
func (c *FetchCache) removeLocked(elem *list.Element) {
	e := elem.Value.(*entry)
	c.order.Remove(elem)
	delete(c.items, e.name)
	c.curBytes -= e.sizeBytes
	os.Remove(filepath.Join(c.dir, e.name))
}

var _ storage.ObjectStorage = (*FetchCache)(nil)
