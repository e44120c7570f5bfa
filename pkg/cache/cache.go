// Package cache memoizes materialized structures by layer id.
//
// Entries live in a bounded LRU. An entry that is being read is pinned: if
// the LRU evicts it meanwhile it stays reachable until the last reader
// releases it. Concurrent misses for the same id share one materialization.
package cache

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/aretw0/strata/internal/logging"
	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/materialize"
	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"
)

// DefaultSize is the LRU capacity used when Options.Size is not positive.
const DefaultSize = 128

// Options configures a Cache.
type Options struct {
	// Size bounds the number of unpinned entries.
	Size int
	// Verify re-materializes on every hit and compares fingerprints.
	Verify bool
	// Registerer receives the cache metrics. Nil disables registration.
	Registerer prometheus.Registerer
	Logger     *slog.Logger
}

// Stats is a snapshot of the cache counters.
type Stats struct {
	Hits             int64
	Misses           int64
	Materializations int64
	Evictions        int64
	Entries          int
	Pinned           int
}

type entry struct {
	id          domain.LayerID
	value       *domain.Structure
	fingerprint string
	refs        int
	evicted     bool
	// dead entries were invalidated and must not serve new readers.
	dead bool
}

// Cache implements ports.Materializer.
type Cache struct {
	engine *materialize.Engine
	verify bool
	logger *slog.Logger

	mu     sync.Mutex
	lru    *simplelru.LRU[domain.LayerID, *entry]
	pinned map[domain.LayerID]*entry
	group  singleflight.Group
	// explicit is set while Invalidate or Purge remove entries, so that
	// onEvict does not count them as capacity evictions.
	explicit bool

	hits, misses, builds, evictions atomic.Int64
	metrics                         *metrics
}

// New creates a Cache in front of engine.
func New(engine *materialize.Engine, opts Options) (*Cache, error) {
	if opts.Size <= 0 {
		opts.Size = DefaultSize
	}
	c := &Cache{
		engine: engine,
		verify: opts.Verify,
		logger: opts.Logger,
		pinned: make(map[domain.LayerID]*entry),
	}
	if c.logger == nil {
		c.logger = logging.NewNop()
	}
	lru, err := simplelru.NewLRU[domain.LayerID, *entry](opts.Size, c.onEvict)
	if err != nil {
		return nil, err
	}
	c.lru = lru
	m, err := newMetrics(opts.Registerer, c)
	if err != nil {
		return nil, err
	}
	c.metrics = m
	return c, nil
}

// onEvict runs with c.mu held.
func (c *Cache) onEvict(id domain.LayerID, e *entry) {
	if !c.explicit {
		c.evictions.Add(1)
		c.metrics.evictions.Inc()
	}
	if e.refs > 0 && !e.dead {
		e.evicted = true
		c.pinned[id] = e
	}
}

func (c *Cache) acquire(id domain.LayerID) (*entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.pinned[id]
	if !ok {
		e, ok = c.lru.Get(id)
	}
	if !ok || e.dead {
		return nil, false
	}
	e.refs++
	return e, true
}

func (c *Cache) pin(e *entry) {
	c.mu.Lock()
	e.refs++
	c.mu.Unlock()
}

func (c *Cache) release(e *entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e.refs--
	if e.refs == 0 && e.evicted && c.pinned[e.id] == e {
		delete(c.pinned, e.id)
	}
}

// peek is the ancestor lookup used while materializing a miss.
func (c *Cache) peek(id domain.LayerID) (*domain.Structure, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.pinned[id]; ok && !e.dead {
		return e.value, true
	}
	if e, ok := c.lru.Get(id); ok && !e.dead {
		return e.value, true
	}
	return nil, false
}

// GetOrMaterialize returns the structure for id. The result is a private
// copy the caller may mutate. Errors are returned to every waiter of the
// same materialization and are never cached. Cancelling ctx only abandons
// the wait; the materialization itself runs to completion for the other
// waiters.
func (c *Cache) GetOrMaterialize(ctx context.Context, id domain.LayerID) (*domain.Structure, error) {
	if e, ok := c.acquire(id); ok {
		defer c.release(e)
		c.hits.Add(1)
		c.metrics.hits.Inc()
		if c.verify {
			if err := c.check(ctx, e); err != nil {
				return nil, err
			}
		}
		return e.value.Clone(), nil
	}

	c.misses.Add(1)
	c.metrics.misses.Inc()
	build := context.WithoutCancel(ctx)
	ch := c.group.DoChan(strconv.FormatUint(uint64(id), 10), func() (any, error) {
		return c.build(build, id)
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}
	e := res.Val.(*entry)
	c.pin(e)
	defer c.release(e)
	if res.Shared {
		c.logger.Debug("shared materialization", "layer", id)
	}
	return e.value.Clone(), nil
}

func (c *Cache) build(ctx context.Context, id domain.LayerID) (*entry, error) {
	c.builds.Add(1)
	c.metrics.materializations.Inc()
	timer := prometheus.NewTimer(c.metrics.duration)
	defer timer.ObserveDuration()

	s, err := c.engine.Resume(ctx, id, c.peek)
	if err != nil {
		return nil, err
	}
	e := &entry{id: id, value: s}
	if c.verify {
		fp, err := s.Fingerprint()
		if err != nil {
			return nil, err
		}
		e.fingerprint = fp
	}

	c.mu.Lock()
	c.lru.Add(id, e)
	c.mu.Unlock()
	return e, nil
}

func (c *Cache) check(ctx context.Context, e *entry) error {
	fresh, err := c.engine.Materialize(ctx, e.id)
	if err != nil {
		return err
	}
	got, err := fresh.Fingerprint()
	if err != nil {
		return err
	}
	want := e.fingerprint
	if want == "" {
		if want, err = e.value.Fingerprint(); err != nil {
			return err
		}
	}
	if got == want {
		return nil
	}
	c.logger.Error("cache corruption detected", "layer", e.id, "want", want, "got", got)
	c.Invalidate(e.id)
	return &domain.CacheCorruptionError{Layer: e.id, Want: want, Got: got}
}

// Invalidate drops id from the cache. Readers holding the entry finish
// normally, later lookups materialize again.
func (c *Cache) Invalidate(id domain.LayerID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.lru.Peek(id); ok {
		e.dead = true
		c.explicit = true
		c.lru.Remove(id)
		c.explicit = false
	}
	if e, ok := c.pinned[id]; ok {
		e.dead = true
		delete(c.pinned, id)
	}
	c.group.Forget(strconv.FormatUint(uint64(id), 10))
}

// Purge drops every unpinned entry.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.explicit = true
	c.lru.Purge()
	c.explicit = false
}

// Len returns the number of entries in the LRU.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Stats returns the current counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	entries, pinned := c.lru.Len(), len(c.pinned)
	c.mu.Unlock()
	return Stats{
		Hits:             c.hits.Load(),
		Misses:           c.misses.Load(),
		Materializations: c.builds.Load(),
		Evictions:        c.evictions.Load(),
		Entries:          entries,
		Pinned:           pinned,
	}
}
