package query

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/graph-gophers/dataloader"
)

// staleCache is a dataloader.Cache that forgets thunks after the staleness
// window and evicts the least recently used entry beyond maxSize.
type staleCache struct {
	mu       sync.Mutex
	items    map[string]*list.Element
	eviction *list.List // front = most recently used
	maxSize  int
	ttl      time.Duration
	now      func() time.Time

	onHit  func()
	onMiss func()
}

type staleEntry struct {
	key       string
	thunk     dataloader.Thunk
	expiresAt time.Time
}

var _ dataloader.Cache = (*staleCache)(nil)

func newStaleCache(ttl time.Duration, maxSize int) *staleCache {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &staleCache{
		items:    make(map[string]*list.Element, maxSize),
		eviction: list.New(),
		maxSize:  maxSize,
		ttl:      ttl,
		now:      time.Now,
		onHit:    func() {},
		onMiss:   func() {},
	}
}

func (c *staleCache) Get(_ context.Context, key dataloader.Key) (dataloader.Thunk, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key.String()]
	if !ok {
		c.onMiss()
		return nil, false
	}
	entry := elem.Value.(*staleEntry)
	if !c.now().Before(entry.expiresAt) {
		c.removeLocked(elem)
		c.onMiss()
		return nil, false
	}
	c.eviction.MoveToFront(elem)
	c.onHit()
	return entry.thunk, true
}

func (c *staleCache) Set(_ context.Context, key dataloader.Key, thunk dataloader.Thunk) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := key.String()
	expiresAt := c.now().Add(c.ttl)
	if elem, ok := c.items[k]; ok {
		entry := elem.Value.(*staleEntry)
		entry.thunk = thunk
		entry.expiresAt = expiresAt
		c.eviction.MoveToFront(elem)
		return
	}
	for c.eviction.Len() >= c.maxSize {
		c.removeLocked(c.eviction.Back())
	}
	c.items[k] = c.eviction.PushFront(&staleEntry{key: k, thunk: thunk, expiresAt: expiresAt})
}

func (c *staleCache) Delete(_ context.Context, key dataloader.Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key.String()]
	if !ok {
		return false
	}
	c.removeLocked(elem)
	return true
}

func (c *staleCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element, c.maxSize)
	c.eviction.Init()
}

func (c *staleCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.eviction.Len()
}

func (c *staleCache) removeLocked(elem *list.Element) {
	entry := elem.Value.(*staleEntry)
	delete(c.items, entry.key)
	c.eviction.Remove(elem)
}
