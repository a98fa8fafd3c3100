// Package cache provides an in-memory implementation of nodestore.Cache.
package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/syssam/nodestore"
)

// entry holds a cached value with its expiration.
type entry struct {
	value     []byte
	expiresAt time.Time // zero never expires
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// Memory is a map-backed cache with per-entry TTL. Expired entries are
// dropped when read, or by Purge.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
	maxSize int
}

// Option configures a Memory cache.
type Option func(*Memory)

// WithMaxSize bounds the number of entries. When full, Set first purges
// expired entries and then evicts the entry closest to expiry.
func WithMaxSize(n int) Option {
	return func(m *Memory) { m.maxSize = n }
}

// WithClock sets the clock used for expiry.
func WithClock(now func() time.Time) Option {
	return func(m *Memory) { m.now = now }
}

// NewMemory returns an empty cache.
func NewMemory(opts ...Option) *Memory {
	m := &Memory{entries: make(map[string]entry), now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get implements nodestore.Cache.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if e.expired(m.now()) {
		m.mu.Lock()
		if cur, ok := m.entries[key]; ok && cur.expired(m.now()) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return nil, nil
	}
	return append([]byte(nil), e.value...), nil
}

// Set implements nodestore.Cache.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[key]; !ok && m.maxSize > 0 && len(m.entries) >= m.maxSize {
		m.purge()
		if len(m.entries) >= m.maxSize {
			m.evict()
		}
	}
	m.entries[key] = e
	return nil
}

// Delete implements nodestore.Cache.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// DeletePrefix implements nodestore.Cache.
func (m *Memory) DeletePrefix(_ context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.entries {
		if strings.HasPrefix(k, prefix) {
			delete(m.entries, k)
		}
	}
	return nil
}

// Clear implements nodestore.Cache.
func (m *Memory) Clear(context.Context) error {
	m.mu.Lock()
	clear(m.entries)
	m.mu.Unlock()
	return nil
}

// Len returns the number of entries, including expired ones not yet
// dropped.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Purge drops every expired entry and returns how many were dropped.
func (m *Memory) Purge() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.purge()
}

// purge must be called with the write lock held.
func (m *Memory) purge() int {
	now, n := m.now(), 0
	for k, e := range m.entries {
		if e.expired(now) {
			delete(m.entries, k)
			n++
		}
	}
	return n
}

// evict drops the entry that expires first, preferring entries with a
// TTL over those without. It must be called with the write lock held.
func (m *Memory) evict() {
	var (
		victim string
		at     time.Time
		found  bool
	)
	for k, e := range m.entries {
		switch {
		case !found:
			victim, at, found = k, e.expiresAt, true
		case at.IsZero() && !e.expiresAt.IsZero():
			victim, at = k, e.expiresAt
		case !e.expiresAt.IsZero() && e.expiresAt.Before(at):
			victim, at = k, e.expiresAt
		}
	}
	if found {
		delete(m.entries, victim)
	}
}

var _ nodestore.Cache = (*Memory)(nil)
