// Package cachetest provides an in-memory cache.Cache for unit tests.
package cachetest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kiranshivaraju/renderhub/internal/cache"
)

var ErrUnavailable = errors.New("cachetest: store unavailable")

type entry struct {
	val     []byte
	list    [][]byte
	counter int64
	expires time.Time
}

// Memory is a map-backed cache.Cache. TTLs are honoured lazily on read.
type Memory struct {
	mu      sync.Mutex
	entries map[string]*entry
	stats   cache.Stats

	// Fail makes every operation return ErrUnavailable when set.
	Fail bool
}

func New() *Memory {
	return &Memory{entries: make(map[string]*entry)}
}

func (m *Memory) lookup(key string) (*entry, bool) {
	e, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if !e.expires.IsZero() && time.Now().After(e.expires) {
		delete(m.entries, key)
		return nil, false
	}
	return e, true
}

func (m *Memory) fail() error {
	if m.Fail {
		m.stats.Errors++
		return ErrUnavailable
	}
	return nil
}

func expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(ttl)
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return err
	}
	m.entries[key] = &entry{val: append([]byte(nil), value...), expires: expiry(ttl)}
	return nil
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return nil, false, err
	}
	e, ok := m.lookup(key)
	if !ok || e.val == nil {
		m.stats.Misses++
		return nil, false, nil
	}
	m.stats.Hits++
	return append([]byte(nil), e.val...), true, nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return err
	}
	delete(m.entries, key)
	return nil
}

func (m *Memory) Ping(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fail()
}

func (m *Memory) IncrWithExpiry(_ context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return 0, err
	}
	e, ok := m.lookup(key)
	if !ok {
		e = &entry{}
		m.entries[key] = e
	}
	e.counter++
	e.expires = expiry(ttl)
	return e.counter, nil
}

func (m *Memory) AppendCapped(_ context.Context, key string, value []byte, max int64, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return err
	}
	e, ok := m.lookup(key)
	if !ok {
		e = &entry{}
		m.entries[key] = e
	}
	e.list = append(e.list, append([]byte(nil), value...))
	if over := int64(len(e.list)) - max; over > 0 {
		e.list = e.list[over:]
	}
	e.expires = expiry(ttl)
	return nil
}

func (m *Memory) Tail(_ context.Context, key string, n int64) ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return nil, err
	}
	e, ok := m.lookup(key)
	if !ok || n <= 0 {
		return nil, nil
	}
	start := int64(len(e.list)) - n
	if start < 0 {
		start = 0
	}
	out := make([][]byte, 0, int64(len(e.list))-start)
	for _, v := range e.list[start:] {
		out = append(out, append([]byte(nil), v...))
	}
	return out, nil
}

func (m *Memory) Stats(_ context.Context) (cache.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.stats
	for _, e := range m.entries {
		st.Size += int64(len(e.val))
		for _, v := range e.list {
			st.Size += int64(len(v))
		}
	}
	return st, nil
}

// Len returns the number of list entries stored at key.
func (m *Memory) Len(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.lookup(key)
	if !ok {
		return 0
	}
	return len(e.list)
}

// Has reports whether key holds a live value.
func (m *Memory) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.lookup(key)
	return ok
}

// SetFail toggles failure injection.
func (m *Memory) SetFail(fail bool) {
	m.mu.Lock()
	m.Fail = fail
	m.mu.Unlock()
}
