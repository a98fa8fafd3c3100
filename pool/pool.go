// Package pool provides a bounded, timeout-guarded pool of backend connections.
//
// A Pool never holds more than its maximum number of live connections.
// Acquire hands out an idle connection, opens a new one while below the
// bound, or waits until a connection is released or the acquire timeout
// elapses. Release wakes exactly one waiter without polling.
//
//	p := pool.New(func(ctx context.Context) (*sql.Conn, error) {
//	    return db.Conn(ctx)
//	}, pool.WithMaxSize(10), pool.WithTimeout(5*time.Second))
//	h, err := p.Acquire(ctx)
//	if err != nil {
//	    return err
//	}
//	defer h.Release()
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/syssam/nodestore"
)

// Pool errors.
var (
	// ErrClosed is returned by Acquire after the pool was disposed.
	ErrClosed = errors.New("pool: closed")

	// ErrLeak is returned by Dispose while connections are still checked out.
	ErrLeak = errors.New("pool: connections still in use")
)

// Defaults used when no option overrides them.
const (
	DefaultMaxSize = 10
	DefaultTimeout = 30 * time.Second
)

// Conn is a live backend connection. *sql.Conn implements it.
type Conn interface {
	PingContext(ctx context.Context) error
	Close() error
}

// OpenFunc opens a new backend connection.
type OpenFunc[C Conn] func(ctx context.Context) (C, error)

type config struct {
	maxSize int
	timeout time.Duration
	address string
	logger  *slog.Logger
}

// Option configures a Pool.
type Option func(*config)

// WithMaxSize sets the maximum number of live connections.
func WithMaxSize(n int) Option {
	return func(c *config) {
		c.maxSize = n
	}
}

// WithTimeout sets how long Acquire waits for a released connection.
// Zero waits until the caller's context is done.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithAddress sets the backend address reported in diagnostics.
func WithAddress(addr string) Option {
	return func(c *config) {
		c.address = addr
	}
}

// WithLogger sets the logger used for connection lifecycle events.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// Pool is a bounded pool of connections of type C.
type Pool[C Conn] struct {
	open   OpenFunc[C]
	cfg    config
	sem    *semaphore.Weighted
	nextID atomic.Uint64

	mu     sync.Mutex
	idle   []pooled[C]
	live   int
	closed bool
}

// New creates a pool that opens connections with open.
func New[C Conn](open OpenFunc[C], opts ...Option) *Pool[C] {
	cfg := config{
		maxSize: DefaultMaxSize,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.maxSize < 1 {
		cfg.maxSize = 1
	}
	return &Pool[C]{
		open: open,
		cfg:  cfg,
		sem:  semaphore.NewWeighted(int64(cfg.maxSize)),
	}
}

type pooled[C Conn] struct {
	conn C
	id   uint64
}

// Handle is a checked-out connection. It must be released exactly once;
// extra calls to Release are ignored.
type Handle[C Conn] struct {
	Conn C
	id   uint64
	pool *Pool[C]
	out  atomic.Bool
}

// ID returns the diagnostic identifier of the underlying connection.
func (h *Handle[C]) ID() uint64 { return h.id }

// Release returns the connection to the pool.
func (h *Handle[C]) Release() {
	if h.out.CompareAndSwap(true, false) {
		h.pool.release(h)
	}
}

// Acquire returns a connection, waiting up to the configured timeout
// when the pool is exhausted.
func (p *Pool[C]) Acquire(ctx context.Context) (*Handle[C], error) {
	if p.isClosed() {
		return nil, ErrClosed
	}
	start := time.Now()
	wctx := ctx
	if p.cfg.timeout > 0 {
		var cancel context.CancelFunc
		wctx, cancel = context.WithTimeout(ctx, p.cfg.timeout)
		defer cancel()
	}
	if err := p.sem.Acquire(wctx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("pool: acquire: %w", ctx.Err())
		}
		return nil, &nodestore.TimeoutError{Address: p.cfg.address, Waited: time.Since(start)}
	}
	c, err := p.checkout(ctx)
	if err != nil {
		p.sem.Release(1)
		return nil, err
	}
	h := &Handle[C]{Conn: c.conn, id: c.id, pool: p}
	h.out.Store(true)
	return h, nil
}

// checkout takes an idle connection or opens a new one. The caller holds
// a semaphore permit, so live never exceeds the maximum size.
func (p *Pool[C]) checkout(ctx context.Context) (pooled[C], error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return pooled[C]{}, ErrClosed
	}
	if n := len(p.idle); n > 0 {
		c := p.idle[0]
		p.idle = p.idle[1:]
		p.mu.Unlock()
		if err := c.conn.PingContext(ctx); err == nil {
			return c, nil
		}
		p.cfg.logger.Debug("pool: reopening dead connection", "conn", c.id, "address", p.cfg.address)
		_ = c.conn.Close()
		p.mu.Lock()
		p.live--
	}
	p.live++
	p.mu.Unlock()

	conn, err := p.open(ctx)
	if err != nil {
		p.mu.Lock()
		p.live--
		p.mu.Unlock()
		return pooled[C]{}, fmt.Errorf("pool: open connection: %w", err)
	}
	c := pooled[C]{conn: conn, id: p.nextID.Add(1)}
	p.cfg.logger.Debug("pool: opened connection", "conn", c.id, "address", p.cfg.address)
	return c, nil
}

func (p *Pool[C]) release(h *Handle[C]) {
	p.mu.Lock()
	if p.closed {
		p.live--
		p.mu.Unlock()
		_ = h.Conn.Close()
		p.sem.Release(1)
		return
	}
	p.idle = append(p.idle, pooled[C]{conn: h.Conn, id: h.id})
	p.mu.Unlock()
	p.sem.Release(1)
}

// Dispose closes every pooled connection. It fails with ErrLeak, leaving
// the pool open, if any connection is still checked out.
func (p *Pool[C]) Dispose() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	if inUse := p.live - len(p.idle); inUse != 0 {
		p.mu.Unlock()
		return fmt.Errorf("%w: %d of %d", ErrLeak, inUse, p.live)
	}
	p.closed = true
	idle := p.idle
	p.idle, p.live = nil, 0
	p.mu.Unlock()

	var errs []error
	for _, c := range idle {
		if err := c.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("pool: close connection %d: %w", c.id, err))
		}
	}
	return errors.Join(errs...)
}

func (p *Pool[C]) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Available returns the number of idle connections.
func (p *Pool[C]) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

// InUse returns the number of checked-out connections.
func (p *Pool[C]) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.live - len(p.idle)
}

// Total returns the number of live connections.
func (p *Pool[C]) Total() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.live
}

// MaxSize returns the configured bound.
func (p *Pool[C]) MaxSize() int { return p.cfg.maxSize }

// Address returns the backend address the pool was created for.
func (p *Pool[C]) Address() string { return p.cfg.address }

// Stats is a point-in-time snapshot of the pool counters.
type Stats struct {
	Available int
	InUse     int
	Total     int
	MaxSize   int
}

// Stats returns the pool counters taken under one lock.
func (p *Pool[C]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Available: len(p.idle),
		InUse:     p.live - len(p.idle),
		Total:     p.live,
		MaxSize:   p.cfg.maxSize,
	}
}

// String returns a human-readable summary of the counters.
func (s Stats) String() string {
	return fmt.Sprintf("available=%d in_use=%d total=%d max=%d", s.Available, s.InUse, s.Total, s.MaxSize)
}
