// Package client opens a graph store from configuration.
//
//	types := tag.NewRegistry()
//	if err := tag.Register(types, itemTypes); err != nil {
//	    return err
//	}
//	cfg, _, err := config.Load()
//	if err != nil {
//	    return err
//	}
//	c, err := client.Open(cfg, types)
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//	n, err := c.GetByReference(ctx, ref, nil)
//
// Clients opened with the same data source share one connection pool.
package client

import (
	"context"
	stdsql "database/sql"
	"fmt"
	"log/slog"
	"os"
	"sync"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"go.opentelemetry.io/otel/trace"
	_ "modernc.org/sqlite"

	"github.com/syssam/nodestore"
	"github.com/syssam/nodestore/cache"
	"github.com/syssam/nodestore/config"
	"github.com/syssam/nodestore/dialect/sql"
	"github.com/syssam/nodestore/dialect/sql/sqlgraph"
	"github.com/syssam/nodestore/graph"
	"github.com/syssam/nodestore/internal/observe"
	"github.com/syssam/nodestore/pool"
	"github.com/syssam/nodestore/tag"
)

// Client is a graph store bound to a configured backend.
type Client struct {
	*graph.Store

	cfg   *config.Config
	drv   *sql.Driver
	stats *sql.StatsDriver
	log   *observe.Logger
	key   string
	once  sync.Once
}

type options struct {
	logger *slog.Logger
	tp     trace.TracerProvider
	cache  nodestore.Cache
	store  []graph.Option
}

// Option configures Open.
type Option func(*options)

// WithLogger sets the slog logger. By default a logger is built from the
// log settings and writes to stderr.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithTracerProvider sets the provider store regions are traced with.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tp = tp }
}

// WithCache sets the node cache, overriding the cache settings.
func WithCache(c nodestore.Cache) Option {
	return func(o *options) { o.cache = c }
}

// WithStoreOptions passes extra options to the graph store.
func WithStoreOptions(opts ...graph.Option) Option {
	return func(o *options) { o.store = append(o.store, opts...) }
}

// Open connects to the configured backend and returns a client whose
// node types are registered in types.
func Open(cfg *config.Config, types *tag.Registry, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dsn, err := cfg.Database.DataSource()
	if err != nil {
		return nil, err
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = cfg.Log.Logger(os.Stderr)
	}
	var logOpts []observe.Option
	if o.tp != nil {
		logOpts = append(logOpts, observe.WithTracerProvider(o.tp))
	}
	log := observe.New(o.logger, logOpts...)

	key := cfg.Database.Dialect + " " + dsn
	drv, err := backends.open(cfg.Database.Dialect, key, dsn,
		pool.WithMaxSize(cfg.Pool.MaxSize),
		pool.WithTimeout(cfg.Pool.AcquireTimeout.Duration()),
		pool.WithAddress(cfg.Database.Address()),
		pool.WithLogger(o.logger),
	)
	if err != nil {
		return nil, err
	}

	var statsOpts []sql.StatsOption
	if slow := cfg.Database.SlowQuery.Duration(); slow > 0 {
		statsOpts = append(statsOpts, sql.WithSlowThreshold(slow), sql.WithSlowQueryLog(o.logger))
	}
	stats := sql.NewStatsDriver(drv, statsOpts...)
	debug := sql.NewDebugDriver(stats, sql.DebugWithLog(func(ctx context.Context, v ...any) {
		o.logger.DebugContext(ctx, fmt.Sprint(v...))
	}))
	mapper := sqlgraph.NewMapper(debug, sqlgraph.WithLogger(log))

	storeOpts := []graph.Option{
		graph.WithLogger(log),
		graph.WithTableTTL(cfg.Cache.TableTTL.Duration()),
	}
	if cfg.Database.Schema != "" {
		storeOpts = append(storeOpts, graph.WithSchema(cfg.Database.Schema))
	}
	switch {
	case o.cache != nil:
		storeOpts = append(storeOpts, graph.WithCache(o.cache, cfg.Cache.NodeTTL.Duration()))
	case cfg.Cache.Nodes:
		storeOpts = append(storeOpts, graph.WithCache(cache.NewMemory(cache.WithMaxSize(cfg.Cache.NodeMaxSize)), cfg.Cache.NodeTTL.Duration()))
	}
	storeOpts = append(storeOpts, o.store...)

	log.Describe(context.Background(), "client: opened", "dialect", cfg.Database.Dialect, "address", cfg.Database.Address())
	return &Client{
		Store: graph.NewStore(mapper, types, storeOpts...),
		cfg:   cfg,
		drv:   drv,
		stats: stats,
		log:   log,
		key:   key,
	}, nil
}

// Config returns the settings the client was opened with.
func (c *Client) Config() *config.Config { return c.cfg }

// QueryStats returns the statement counters of the client.
func (c *Client) QueryStats() sql.StatsSnapshot { return c.stats.QueryStats().Stats() }

// PoolStats returns the counters of the connection pool. The pool may be
// shared with other clients of the same data source.
func (c *Client) PoolStats() pool.Stats { return c.drv.Pool().Stats() }

// Close releases the client's reference on the shared pool. The pool and
// database are closed with the last client. Closing twice is a no-op.
func (c *Client) Close() error {
	var err error
	c.once.Do(func() {
		err = backends.release(c.key)
		if err != nil {
			c.log.Exception(context.Background(), err, "client: close")
		}
	})
	return err
}

// backends shares a database handle and pool per data source.
var backends = &registry{
	pools: pool.NewFactory[*stdsql.Conn](),
	dbs:   make(map[string]*stdsql.DB),
}

type registry struct {
	mu    sync.Mutex
	pools *pool.Factory[*stdsql.Conn]
	dbs   map[string]*stdsql.DB
}

// open returns a driver over the shared pool of key. The pool options
// of the first client win.
func (r *registry) open(name, key, dsn string, opts ...pool.Option) (*sql.Driver, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	db, ok := r.dbs[key]
	if !ok {
		var err error
		if db, err = stdsql.Open(name, dsn); err != nil {
			return nil, fmt.Errorf("client: open %s: %w", name, err)
		}
	}
	p, err := r.pools.Get(key, func() (*pool.Pool[*stdsql.Conn], error) {
		return pool.New(db.Conn, opts...), nil
	})
	if err != nil {
		if !ok {
			db.Close()
		}
		return nil, err
	}
	r.dbs[key] = db
	return sql.NewDriver(name, db, p), nil
}

func (r *registry) release(key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.pools.Put(key); err != nil {
		return fmt.Errorf("client: close: %w", err)
	}
	if r.pools.Refs(key) > 0 {
		return nil
	}
	db, ok := r.dbs[key]
	if !ok {
		return nil
	}
	delete(r.dbs, key)
	return db.Close()
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.dbs)
}
