package pool

import (
	"errors"
	"fmt"
	"sync"
)

// Factory shares one pool per backend address between components.
// Pools are reference counted: the last Put disposes the pool.
type Factory[C Conn] struct {
	mu    sync.Mutex
	pools map[string]*shared[C]
}

type shared[C Conn] struct {
	pool *Pool[C]
	refs int
}

// NewFactory returns an empty factory.
func NewFactory[C Conn]() *Factory[C] {
	return &Factory[C]{pools: make(map[string]*shared[C])}
}

// Get returns the pool for address, creating it with newPool on first use.
func (f *Factory[C]) Get(address string, newPool func() (*Pool[C], error)) (*Pool[C], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.pools[address]; ok {
		s.refs++
		return s.pool, nil
	}
	p, err := newPool()
	if err != nil {
		return nil, fmt.Errorf("pool: create pool for %s: %w", address, err)
	}
	f.pools[address] = &shared[C]{pool: p, refs: 1}
	return p, nil
}

// Put drops one reference to the pool for address and disposes it when
// no references remain. A failed dispose keeps the pool registered.
func (f *Factory[C]) Put(address string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.pools[address]
	if !ok {
		return nil
	}
	if s.refs > 1 {
		s.refs--
		return nil
	}
	if err := s.pool.Dispose(); err != nil {
		return err
	}
	delete(f.pools, address)
	return nil
}

// Refs returns the number of references held on the pool for address.
func (f *Factory[C]) Refs(address string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.pools[address]; ok {
		return s.refs
	}
	return 0
}

// Len returns the number of registered pools.
func (f *Factory[C]) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pools)
}

// Dispose disposes every registered pool regardless of references.
func (f *Factory[C]) Dispose() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var errs []error
	for addr, s := range f.pools {
		if err := s.pool.Dispose(); err != nil {
			errs = append(errs, fmt.Errorf("pool %s: %w", addr, err))
			continue
		}
		delete(f.pools, addr)
	}
	return errors.Join(errs...)
}
