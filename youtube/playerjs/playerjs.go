// Package playerjs fetches and memoizes player scripts.
//
// A Cache downloads each player build at most once per process, even when many
// goroutines ask for it concurrently. Scripts are kept in memory only; the
// persistent caches store what is derived from them.
package playerjs

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/ytget/descramble/errs"
	"github.com/ytget/descramble/internal/logger"
)

// Fetcher is the network collaborator. client.Client satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (status int, body string, err error)
}

// Player is an immutable fetched player script.
type Player struct {
	Ref
	Source string
}

// Cache memoizes player scripts by build.
type Cache struct {
	fetcher Fetcher
	mem     *gocache.Cache
	group   singleflight.Group
	log     *logger.ComponentLogger
	fetches atomic.Int64
}

// NewCache returns an empty Cache that downloads through f.
func NewCache(f Fetcher, log *logger.Logger) *Cache {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Cache{
		fetcher: f,
		mem:     gocache.New(gocache.NoExpiration, 0),
		log:     log.WithComponent(logger.ComponentPlayer),
	}
}

// Fetches reports how many network downloads the cache has performed.
func (c *Cache) Fetches() int64 { return c.fetches.Load() }

// Lookup returns an already-fetched player without touching the network.
func (c *Cache) Lookup(ref Ref) (*Player, bool) {
	if v, ok := c.mem.Get(ref.Key()); ok {
		return v.(*Player), true
	}
	return nil, false
}

// Put installs a script obtained elsewhere, for example from a test fixture.
func (c *Cache) Put(ref Ref, source string) *Player {
	p := &Player{Ref: ref, Source: source}
	c.mem.Set(ref.Key(), p, gocache.NoExpiration)
	return p
}

// Get returns the player script for ref, fetching it on first use.
//
// Concurrent callers share one download. A caller whose ctx ends stops
// waiting with ctx's error; the shared download runs to completion under the
// client's own timeout and is memoized for the others.
func (c *Cache) Get(ctx context.Context, ref Ref) (*Player, error) {
	if p, ok := c.Lookup(ref); ok {
		return p, nil
	}
	if c.fetcher == nil {
		return nil, fmt.Errorf("%w: no fetcher configured for %s", errs.ErrPlayerFetch, ref.URL)
	}
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(ref.Key(), func() (interface{}, error) {
		return c.fetch(shared, ref)
	})
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s: %w", errs.ErrPlayerFetch, ref.URL, ctx.Err())
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*Player), nil
	}
}

func (c *Cache) fetch(ctx context.Context, ref Ref) (*Player, error) {
	if p, ok := c.Lookup(ref); ok {
		return p, nil
	}
	start := time.Now()
	c.fetches.Add(1)
	status, body, err := c.fetcher.Fetch(ctx, ref.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errs.ErrPlayerFetch, ref.URL, err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: %s: status %d", errs.ErrPlayerFetch, ref.URL, status)
	}
	if body == "" {
		return nil, fmt.Errorf("%w: %s: empty body", errs.ErrPlayerFetch, ref.URL)
	}
	c.log.Debug("downloaded player", logger.Fields{
		"player":  ref.ID,
		"variant": ref.Variant,
		"bytes":   len(body),
		"elapsed": time.Since(start).String(),
	})
	return c.Put(ref, body), nil
}
