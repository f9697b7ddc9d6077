// CLAUDE:SUMMARY Session-scoped, single-flight, build-once taxonomy cache with terminal Available/Unavailable states.
package taxonomy

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Status is the lifecycle position of a Cache.
type Status int

const (
	NotBuilt Status = iota
	Available
	Unavailable
)

func (s Status) String() string {
	switch s {
	case NotBuilt:
		return "not_built"
	case Available:
		return "available"
	case Unavailable:
		return "unavailable"
	}
	return "unknown"
}

// State is a Cache outcome. Taxonomy is set only when Status is Available.
// Err is set when Status is Unavailable, or with NotBuilt when the caller
// stopped waiting for the build.
type State struct {
	Status   Status
	Taxonomy *Taxonomy
	Err      error
}

// Cache holds at most one taxonomy for the session that owns it. The first
// State call fetches and builds; the outcome, success or failure, is final.
type Cache struct {
	source  Source
	build   func(*RawMaterial) (*Taxonomy, error)
	onBuilt func(context.Context, *Taxonomy)
	logger  *slog.Logger

	group singleflight.Group
	mu    sync.Mutex
	state State
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithBuilder replaces Build. Used by tests and alternative parsers.
func WithBuilder(fn func(*RawMaterial) (*Taxonomy, error)) CacheOption {
	return func(c *Cache) { c.build = fn }
}

// WithOnBuilt registers a hook run once after a successful build, before
// waiting callers are released.
func WithOnBuilt(fn func(context.Context, *Taxonomy)) CacheOption {
	return func(c *Cache) { c.onBuilt = fn }
}

// NewCache creates an unbuilt cache over src.
func NewCache(src Source, logger *slog.Logger, opts ...CacheOption) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Cache{source: src, build: Build, logger: logger}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Settled returns the current state without triggering a build. ok is false
// while the cache is NotBuilt.
func (c *Cache) Settled() (State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.state.Status != NotBuilt
}

// State returns the memoized outcome, building it on first use. Concurrent
// first callers share one fetch and one build.
//
// The build is detached from ctx: a caller that goes away neither cancels it
// nor settles the cache. Such a caller gets NotBuilt with its context error,
// and the build completes for the next one. The source's own timeout still
// bounds the fetch.
func (c *Cache) State(ctx context.Context) State {
	if st, ok := c.Settled(); ok {
		return st
	}
	buildCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan("taxonomy", func() (any, error) {
		// A caller may enter right after a previous flight settled.
		if st, ok := c.Settled(); ok {
			return st, nil
		}
		st := c.load(buildCtx)
		c.mu.Lock()
		c.state = st
		c.mu.Unlock()
		return st, nil
	})
	select {
	case res := <-ch:
		return res.Val.(State)
	case <-ctx.Done():
		return State{Status: NotBuilt, Err: ctx.Err()}
	}
}

func (c *Cache) load(ctx context.Context) State {
	start := time.Now()
	if c.source == nil {
		buildsTotal.WithLabelValues("disabled").Inc()
		return State{Status: Unavailable, Err: ErrSourceUnavailable}
	}

	raw, err := c.source.Fetch(ctx)
	if err != nil {
		buildsTotal.WithLabelValues("source_unavailable").Inc()
		c.logger.WarnContext(ctx, "taxonomy: source unavailable, enrichment disabled for this session", "error", err)
		return State{Status: Unavailable, Err: err}
	}

	tax, err := c.build(raw)
	if err != nil {
		buildsTotal.WithLabelValues("parse_error").Inc()
		c.logger.WarnContext(ctx, "taxonomy: parse failed, enrichment disabled for this session",
			"origin", raw.Origin, "kind", raw.Kind.String(), "error", err)
		return State{Status: Unavailable, Err: err}
	}

	buildsTotal.WithLabelValues("available").Inc()
	c.logger.InfoContext(ctx, "taxonomy: built",
		"origin", raw.Origin,
		"categories", len(tax.Categories),
		"applications", len(tax.Applications),
		"version_id", tax.VersionID,
		"duration_ms", time.Since(start).Milliseconds())
	if c.onBuilt != nil {
		c.onBuilt(ctx, tax)
	}
	return State{Status: Available, Taxonomy: tax}
}
