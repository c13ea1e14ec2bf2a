package query

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/UkralStul/blog-web/internal/api"
	"github.com/graph-gophers/dataloader"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var ErrUnknownResource = errors.New("query: unknown resource")

// FetchFunc loads the value for one key from the backend.
type FetchFunc func(ctx context.Context, key Key) (any, error)

// Recorder receives cache statistics per resource.
type Recorder interface {
	CacheHit(resource string)
	CacheMiss(resource string)
	FetchError(resource string)
}

type Options struct {
	// StaleTime is how long a fetched value is shared before the next read
	// refetches it.
	StaleTime    time.Duration
	MaxEntries   int
	BatchWait    time.Duration
	FetchTimeout time.Duration
	// Parallelism bounds concurrent fetches inside one batch.
	Parallelism int
}

func DefaultOptions() Options {
	return Options{
		StaleTime:    time.Minute,
		MaxEntries:   1000,
		BatchWait:    time.Millisecond,
		FetchTimeout: 15 * time.Second,
		Parallelism:  8,
	}
}

type binding struct {
	loader *dataloader.Loader
	cache  *staleCache
}

// Client binds resource names to fetch functions and shares their results
// between callers asking for the same key within the staleness window.
type Client struct {
	opts Options
	log  *zap.Logger
	rec  Recorder

	mu       sync.RWMutex
	bindings map[string]*binding
}

func New(opts Options, log *zap.Logger, rec Recorder) *Client {
	def := DefaultOptions()
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = def.MaxEntries
	}
	if opts.BatchWait <= 0 {
		opts.BatchWait = def.BatchWait
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = def.FetchTimeout
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = def.Parallelism
	}
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Client{
		opts:     opts,
		log:      log.Named("query"),
		rec:      rec,
		bindings: make(map[string]*binding),
	}
}

// Register binds resource to fetch. Registering the same resource twice
// replaces the binding and drops its cache.
func (c *Client) Register(resource string, fetch FetchFunc) {
	cache := newStaleCache(c.opts.StaleTime, c.opts.MaxEntries)
	cache.onHit = func() { c.rec.CacheHit(resource) }
	cache.onMiss = func() { c.rec.CacheMiss(resource) }

	loader := dataloader.NewBatchedLoader(c.batchFn(resource, fetch),
		dataloader.WithCache(cache),
		dataloader.WithWait(c.opts.BatchWait),
	)

	c.mu.Lock()
	c.bindings[resource] = &binding{loader: loader, cache: cache}
	c.mu.Unlock()
}

// batchFn fans a batch of keys out to fetch. The batch runs detached from the
// request that happened to open it, since its results are shared.
func (c *Client) batchFn(resource string, fetch FetchFunc) dataloader.BatchFunc {
	return func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.FetchTimeout)
		defer cancel()

		results := make([]*dataloader.Result, len(keys))
		var g errgroup.Group
		g.SetLimit(c.opts.Parallelism)
		for i, k := range keys {
			g.Go(func() error {
				key, ok := k.Raw().(Key)
				if !ok {
					results[i] = &dataloader.Result{Error: fmt.Errorf("query: unexpected key type %T", k.Raw())}
					return nil
				}
				fetchCtx := api.WithToken(ctx, key.Token())
				data, err := fetch(fetchCtx, key)
				if err != nil {
					c.rec.FetchError(resource)
					c.log.Debug("Fetch failed", zap.String("key", key.String()), zap.Error(err))
				}
				results[i] = &dataloader.Result{Data: data, Error: err}
				return nil
			})
		}
		_ = g.Wait()
		return results
	}
}

func (c *Client) binding(resource string) (*binding, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.bindings[resource]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownResource, resource)
	}
	return b, nil
}

// Load returns the value for key, fetching it unless a fresh one is cached.
// A failed fetch is dropped from the cache so the next read retries.
func (c *Client) Load(ctx context.Context, key Key) (any, error) {
	b, err := c.binding(key.Resource)
	if err != nil {
		return nil, err
	}

	thunk := b.loader.Load(ctx, key)

	type result struct {
		v   any
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := thunk()
		done <- result{v, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		if r.err != nil {
			b.loader.Clear(ctx, key)
			return nil, r.err
		}
		return r.v, nil
	}
}

// Get is Load with the value asserted to T.
func Get[T any](ctx context.Context, c *Client, key Key) (T, error) {
	var zero T
	v, err := c.Load(ctx, key)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("query: %s holds %T, not %T", key.Resource, v, zero)
	}
	return t, nil
}

// Invalidate forgets every cached key of the given resources.
func (c *Client) Invalidate(ctx context.Context, resources ...string) {
	for _, r := range resources {
		b, err := c.binding(r)
		if err != nil {
			continue
		}
		b.loader.ClearAll()
		c.log.Debug("Invalidated resource", zap.String("resource", r))
	}
}

// InvalidateKey forgets one cached key.
func (c *Client) InvalidateKey(ctx context.Context, key Key) {
	b, err := c.binding(key.Resource)
	if err != nil {
		return
	}
	b.loader.Clear(ctx, key)
	c.log.Debug("Invalidated key", zap.String("key", key.String()))
}

// Prime seeds key with a value already known, e.g. a mutation's response.
func (c *Client) Prime(ctx context.Context, key Key, value any) {
	b, err := c.binding(key.Resource)
	if err != nil {
		return
	}
	b.loader.Clear(ctx, key).Prime(ctx, key, value)
}

// Cached reports how many entries a resource currently holds.
func (c *Client) Cached(resource string) int {
	b, err := c.binding(resource)
	if err != nil {
		return 0
	}
	return b.cache.Len()
}

type nopRecorder struct{}

func (nopRecorder) CacheHit(string)   {}
func (nopRecorder) CacheMiss(string)  {}
func (nopRecorder) FetchError(string) {}
