package cache

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Memory cache defaults.
const (
	DefaultMaxEntries = 10000
	DefaultTTL        = 30 * time.Minute
)

// MemoryClient is a process-local cache. Expiry is handled by go-cache;
// the entry count is bounded with least-recently-used eviction.
type MemoryClient struct {
	mu      sync.Mutex
	store   *gocache.Cache
	order   *list.List // front = most recently used
	index   map[string]*list.Element
	maxSize int
}

// NewMemoryClient creates a memory cache holding at most maxSize entries.
func NewMemoryClient(maxSize int, defaultTTL time.Duration) *MemoryClient {
	if maxSize <= 0 {
		maxSize = DefaultMaxEntries
	}
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	return &MemoryClient{
		store:   gocache.New(defaultTTL, defaultTTL/2),
		order:   list.New(),
		index:   make(map[string]*list.Element),
		maxSize: maxSize,
	}
}

// Get retrieves a value and marks it recently used.
func (c *MemoryClient) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.store.Get(key)
	if !ok {
		c.forget(key)
		return nil, ErrCacheMiss
	}
	if el, ok := c.index[key]; ok {
		c.order.MoveToFront(el)
	}
	return append([]byte(nil), v.([]byte)...), nil
}

// Set stores a value, evicting the least recently used entry when full.
func (c *MemoryClient) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[key]; ok {
		c.order.MoveToFront(el)
	} else {
		if c.order.Len() >= c.maxSize {
			c.evict()
		}
		c.index[key] = c.order.PushFront(key)
	}

	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	c.store.Set(key, append([]byte(nil), value...), ttl)
	return nil
}

// Delete removes a value from cache.
func (c *MemoryClient) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Delete(key)
	c.forget(key)
	return nil
}

// DeleteByPrefix removes all keys with the given prefix.
func (c *MemoryClient) DeleteByPrefix(_ context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.index {
		if strings.HasPrefix(key, prefix) {
			c.store.Delete(key)
			c.forget(key)
		}
	}
	return nil
}

// Len returns the number of stored entries, including expired ones not
// yet swept.
func (c *MemoryClient) Len() int {
	return c.store.ItemCount()
}

// Close flushes the cache.
func (c *MemoryClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Flush()
	c.order.Init()
	c.index = make(map[string]*list.Element)
	return nil
}

// evict drops expired keys first, then the least recently used one if the
// cache is still full. Caller holds mu.
func (c *MemoryClient) evict() {
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		key := el.Value.(string)
		if _, ok := c.store.Get(key); !ok {
			c.forget(key)
		}
		el = prev
	}
	if c.order.Len() < c.maxSize {
		return
	}
	if back := c.order.Back(); back != nil {
		key := back.Value.(string)
		c.store.Delete(key)
		c.forget(key)
	}
}

func (c *MemoryClient) forget(key string) {
	if el, ok := c.index[key]; ok {
		c.order.Remove(el)
		delete(c.index, key)
	}
}

var _ Client = (*MemoryClient)(nil)
