package pool_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/nodestore"
	"github.com/syssam/nodestore/pool"
)

type fakeConn struct {
	dead   atomic.Bool
	closed atomic.Bool
}

func (c *fakeConn) PingContext(context.Context) error {
	if c.dead.Load() {
		return errors.New("connection reset")
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.closed.Store(true)
	return nil
}

type opener struct {
	mu     sync.Mutex
	opened []*fakeConn
	live   atomic.Int64
	peak   atomic.Int64
}

func (o *opener) open(context.Context) (*fakeConn, error) {
	c := &fakeConn{}
	o.mu.Lock()
	o.opened = append(o.opened, c)
	o.mu.Unlock()
	n := o.live.Add(1)
	for {
		p := o.peak.Load()
		if n <= p || o.peak.CompareAndSwap(p, n) {
			break
		}
	}
	return c, nil
}

func (o *opener) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.opened)
}

func quiet() pool.Option {
	return pool.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestAcquireRelease(t *testing.T) {
	o := &opener{}
	p := pool.New(o.open, pool.WithMaxSize(2), quiet())

	h1, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), h1.ID())
	assert.Equal(t, pool.Stats{Available: 0, InUse: 1, Total: 1, MaxSize: 2}, p.Stats())

	h1.Release()
	assert.Equal(t, 1, p.Available())
	assert.Equal(t, 0, p.InUse())
	assert.Equal(t, 1, p.Total())

	// The idle connection is reused.
	h2, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), h2.ID())
	assert.Equal(t, 1, o.count())

	// Releasing twice is a no-op.
	h2.Release()
	h2.Release()
	assert.Equal(t, 1, p.Available())
	require.NoError(t, p.Dispose())
	assert.True(t, o.opened[0].closed.Load())
}

func TestStaleHandleCannotReleaseNewHolder(t *testing.T) {
	o := &opener{}
	p := pool.New(o.open, pool.WithMaxSize(1), quiet())

	h1, err := p.Acquire(context.Background())
	require.NoError(t, err)
	h1.Release()

	h2, err := p.Acquire(context.Background())
	require.NoError(t, err)
	h1.Release()
	assert.Equal(t, 1, p.InUse(), "stale handle must not return the new holder's connection")
	h2.Release()
}

func TestPoolBound(t *testing.T) {
	const size = 3
	o := &opener{}
	p := pool.New(o.open, pool.WithMaxSize(size), pool.WithTimeout(5*time.Second), quiet())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := p.Acquire(context.Background())
			if !assert.NoError(t, err) {
				return
			}
			assert.LessOrEqual(t, p.Total(), size)
			time.Sleep(time.Millisecond)
			h.Release()
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, o.peak.Load(), int64(size))
	assert.LessOrEqual(t, o.count(), size)
	require.NoError(t, p.Dispose())
}

func TestAcquireTimeout(t *testing.T) {
	const timeout = 500 * time.Millisecond

	t.Run("release_before_timeout", func(t *testing.T) {
		p := pool.New((&opener{}).open, pool.WithMaxSize(2), pool.WithTimeout(timeout), quiet())
		h1, err := p.Acquire(context.Background())
		require.NoError(t, err)
		h2, err := p.Acquire(context.Background())
		require.NoError(t, err)

		time.AfterFunc(timeout-100*time.Millisecond, h1.Release)
		h3, err := p.Acquire(context.Background())
		require.NoError(t, err)
		h2.Release()
		h3.Release()
		require.NoError(t, p.Dispose())
	})

	t.Run("release_after_timeout", func(t *testing.T) {
		p := pool.New((&opener{}).open, pool.WithMaxSize(2), pool.WithTimeout(timeout), pool.WithAddress("db:5432"), quiet())
		h1, err := p.Acquire(context.Background())
		require.NoError(t, err)
		h2, err := p.Acquire(context.Background())
		require.NoError(t, err)

		released := make(chan struct{})
		time.AfterFunc(timeout+100*time.Millisecond, func() {
			h1.Release()
			close(released)
		})
		_, err = p.Acquire(context.Background())
		require.Error(t, err)
		assert.True(t, nodestore.IsTimeout(err))
		assert.ErrorIs(t, err, nodestore.ErrTimeout)

		<-released
		h2.Release()
		require.NoError(t, p.Dispose())
	})
}

func TestAcquireContextCanceled(t *testing.T) {
	p := pool.New((&opener{}).open, pool.WithMaxSize(1), pool.WithTimeout(time.Minute), quiet())
	h, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer h.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Acquire(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, nodestore.IsTimeout(err))
}

func TestReopenDeadConnection(t *testing.T) {
	o := &opener{}
	p := pool.New(o.open, pool.WithMaxSize(1), quiet())

	h, err := p.Acquire(context.Background())
	require.NoError(t, err)
	first := h.Conn
	h.Release()
	first.dead.Store(true)

	h, err = p.Acquire(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, first, h.Conn)
	assert.True(t, first.closed.Load())
	assert.Equal(t, uint64(2), h.ID())
	assert.Equal(t, 1, p.Total())
	h.Release()
}

func TestOpenError(t *testing.T) {
	boom := errors.New("connection refused")
	p := pool.New(func(context.Context) (*fakeConn, error) { return nil, boom }, pool.WithMaxSize(1), quiet())
	_, err := p.Acquire(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, p.Total())

	// The permit was returned, so a second attempt does not time out.
	_, err = p.Acquire(context.Background())
	require.ErrorIs(t, err, boom)
}

func TestDisposeDetectsLeak(t *testing.T) {
	p := pool.New((&opener{}).open, pool.WithMaxSize(2), quiet())
	h, err := p.Acquire(context.Background())
	require.NoError(t, err)

	err = p.Dispose()
	require.ErrorIs(t, err, pool.ErrLeak)

	// The pool is still open after a failed dispose.
	h.Release()
	require.NoError(t, p.Dispose())
	_, err = p.Acquire(context.Background())
	require.ErrorIs(t, err, pool.ErrClosed)
	require.NoError(t, p.Dispose(), "disposing twice is a no-op")
}

func TestFactory(t *testing.T) {
	f := pool.NewFactory[*fakeConn]()
	created := 0
	newPool := func() (*pool.Pool[*fakeConn], error) {
		created++
		return pool.New((&opener{}).open, quiet()), nil
	}

	p1, err := f.Get("db:5432", newPool)
	require.NoError(t, err)
	p2, err := f.Get("db:5432", newPool)
	require.NoError(t, err)
	p3, err := f.Get("other:5432", newPool)
	require.NoError(t, err)
	assert.Same(t, p1, p2)
	assert.NotSame(t, p1, p3)
	assert.Equal(t, 2, created)
	assert.Equal(t, 2, f.Len())
	assert.Equal(t, 2, f.Refs("db:5432"))

	require.NoError(t, f.Put("db:5432"))
	assert.Equal(t, 2, f.Len(), "pool still referenced")
	assert.Equal(t, 1, f.Refs("db:5432"))
	require.NoError(t, f.Put("db:5432"))
	assert.Equal(t, 1, f.Len())
	assert.Zero(t, f.Refs("db:5432"))
	require.NoError(t, f.Put("unknown"))

	_, err = f.Get("bad", func() (*pool.Pool[*fakeConn], error) { return nil, errors.New("bad dsn") })
	require.Error(t, err)

	require.NoError(t, f.Dispose())
	assert.Equal(t, 0, f.Len())
}
