// CLAUDE:SUMMARY Controller session: login, taxonomy source selection, session-owned cache, enricher and snapshot recording.
// Package unifi is a read-only client for the UniFi controller API. A Client
// is one logged-in session; it owns the session taxonomy and labels DPI
// answers with category and application names.
package unifi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hazyhaar/unifistat/enrich"
	"github.com/hazyhaar/unifistat/snapshot"
	"github.com/hazyhaar/unifistat/taxonomy"
	"github.com/hazyhaar/unifistat/unifi/internal/transport"
)

// Client is one controller session. It is safe for concurrent use.
type Client struct {
	cfg      Config
	baseURL  string
	tr       *transport.Client
	cache    *taxonomy.Cache
	enricher *enrich.Enricher
	store    *snapshot.Store
	ownStore bool
	logger   *slog.Logger
}

type options struct {
	httpClient *http.Client
	source     taxonomy.Source
	sourceSet  bool
	store      *snapshot.Store
}

// Option configures New.
type Option func(*options)

// WithHTTPClient sets the HTTP client. A cookie jar is added when missing.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// WithTaxonomySource overrides the source chosen from Config.Taxonomy.
// A nil source disables enrichment.
func WithTaxonomySource(src taxonomy.Source) Option {
	return func(o *options) { o.source, o.sourceSet = src, true }
}

// WithSnapshotStore records built taxonomies into store instead of opening
// Config.SnapshotDB. The caller keeps ownership of store.
func WithSnapshotStore(store *snapshot.Store) Option {
	return func(o *options) { o.store = store }
}

// New logs in to the controller named by cfg.URI and returns the session.
func New(ctx context.Context, cfg *Config, logger *slog.Logger, opts ...Option) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	baseURL, user, pass, err := ParseURI(cfg.URI)
	if err != nil {
		return nil, err
	}
	tr, err := transport.New(transport.Config{
		BaseURL:            baseURL,
		Timeout:            cfg.Timeout,
		InsecureSkipVerify: cfg.Insecure,
	}, logger, o.httpClient)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	c := &Client{cfg: *cfg, baseURL: baseURL, tr: tr, store: o.store, logger: logger.With("controller", baseURL)}
	if c.store == nil && cfg.SnapshotDB != "" {
		if c.store, err = snapshot.Open(cfg.SnapshotDB); err != nil {
			return nil, err
		}
		c.ownStore = true
	}

	src := o.source
	if !o.sourceSet {
		if src, err = c.selectSource(); err != nil {
			c.closeStore()
			return nil, err
		}
	}

	if err := tr.Login(ctx, user, pass); err != nil {
		c.closeStore()
		c.logger.ErrorContext(ctx, "login failed", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrLogin, err)
	}
	c.logger.DebugContext(ctx, "logged in")

	var cacheOpts []taxonomy.CacheOption
	if c.store != nil {
		cacheOpts = append(cacheOpts, taxonomy.WithOnBuilt(c.record))
	}
	c.cache = taxonomy.NewCache(src, c.logger, cacheOpts...)
	c.enricher = enrich.New(c.cache)

	if cfg.Taxonomy.Eager {
		c.cache.State(ctx)
	}
	return c, nil
}

func (c *Client) selectSource() (taxonomy.Source, error) {
	t := c.cfg.Taxonomy
	switch t.Source {
	case "", SourceLive:
		return taxonomy.NewLiveSource(c.tr, c.logger, t.Builds...), nil
	case SourceFixture:
		return &taxonomy.FixtureSource{Path: t.Fixture}, nil
	case SourceSnapshot:
		if c.store == nil {
			return nil, fmt.Errorf("%w: snapshot source needs a snapshot store", ErrConfig)
		}
		return &snapshot.Source{Store: c.store, Controller: c.baseURL, VersionID: t.VersionID}, nil
	case SourceOff:
		return nil, nil
	}
	return nil, fmt.Errorf("%w: unknown taxonomy source %q", ErrConfig, t.Source)
}

// record stores a freshly built taxonomy. Failures are logged only: the
// session keeps its taxonomy either way.
func (c *Client) record(ctx context.Context, tax *taxonomy.Taxonomy) {
	v, err := c.store.Record(ctx, tax, c.baseURL)
	if err != nil {
		c.logger.WarnContext(ctx, "snapshot: record failed", "version_id", tax.VersionID, "error", err)
		return
	}
	c.logger.DebugContext(ctx, "snapshot: recorded", "id", v.ID, "version_id", v.VersionID)
}

// BaseURL returns the controller base URL, without credentials.
func (c *Client) BaseURL() string { return c.baseURL }

// DefaultSite returns the site used when a method gets an empty site.
func (c *Client) DefaultSite() string {
	if c.cfg.Site == "" {
		return "default"
	}
	return c.cfg.Site
}

// Snapshots returns the snapshot store, or nil when none is configured.
func (c *Client) Snapshots() *snapshot.Store { return c.store }

// Taxonomy returns the session taxonomy state, building it on first use.
func (c *Client) Taxonomy(ctx context.Context) taxonomy.State {
	return c.cache.State(ctx)
}

// Enrich labels an arbitrary decoded controller answer with the session
// taxonomy.
func (c *Client) Enrich(ctx context.Context, v any) (any, error) {
	return c.enricher.Enrich(ctx, v)
}

// Close logs out and closes an owned snapshot store.
func (c *Client) Close(ctx context.Context) error {
	err := c.tr.Logout(ctx)
	var se *StatusError
	if errors.As(err, &se) {
		// Older controllers have no logout endpoint.
		c.logger.DebugContext(ctx, "logout refused", "status", se.StatusCode)
		err = nil
	}
	if cerr := c.closeStore(); err == nil {
		err = cerr
	}
	return err
}

func (c *Client) closeStore() error {
	if c.ownStore && c.store != nil {
		c.ownStore = false
		return c.store.Close()
	}
	return nil
}
