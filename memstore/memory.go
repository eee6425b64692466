package memstore

import (
	"container/list"
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryConfig configures the process-local store.
type MemoryConfig struct {
	// MaxEntries bounds the store. When full, expired entries are reaped
	// first; only then is the least recently used live entry evicted.
	MaxEntries int
	// DefaultTTL applies when Set is called with a non-positive TTL.
	DefaultTTL time.Duration
	// SweepInterval is how often the background reaper runs.
	SweepInterval time.Duration
}

// DefaultMemoryConfig returns sensible defaults.
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		MaxEntries:    10000,
		DefaultTTL:    time.Hour,
		SweepInterval: time.Minute,
	}
}

// Memory is a thread-safe in-process Store with TTL expiration and LRU
// eviction under the size bound.
type Memory struct {
	mu       sync.RWMutex
	items    map[string]*list.Element
	recency  *list.List // front = most recently used
	maxSize  int
	ttl      time.Duration
	stopOnce sync.Once
	stop     chan struct{}

	hits        int64
	misses      int64
	evictions   int64
	expirations int64
}

type memEntry struct {
	Entry
}

var _ Store = (*Memory)(nil)

// NewMemory creates the store and starts its background reaper.
func NewMemory(cfg MemoryConfig) *Memory {
	def := DefaultMemoryConfig()
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = def.MaxEntries
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = def.DefaultTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}

	m := &Memory{
		items:   make(map[string]*list.Element, cfg.MaxEntries),
		recency: list.New(),
		maxSize: cfg.MaxEntries,
		ttl:     cfg.DefaultTTL,
		stop:    make(chan struct{}),
	}
	go m.sweepLoop(cfg.SweepInterval)
	return m
}

func (m *Memory) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.PurgeExpired()
		case <-m.stop:
			return
		}
	}
}

// Set stores value under key. A non-positive TTL uses the default.
func (m *Memory) Set(_ context.Context, key string, value any, owner string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = m.ttl
	}
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if elem, ok := m.items[key]; ok {
		entry := elem.Value.(*memEntry)
		entry.Value = value
		entry.Owner = owner
		entry.CreatedAt = now
		entry.ExpiresAt = now.Add(ttl)
		m.recency.MoveToFront(elem)
		return nil
	}

	for m.recency.Len() >= m.maxSize {
		if m.reapOneExpiredLocked(now) {
			continue
		}
		m.evictLocked()
	}

	entry := &memEntry{Entry: Entry{
		Key:       key,
		Value:     value,
		Owner:     owner,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}}
	m.items[key] = m.recency.PushFront(entry)
	return nil
}

// Get returns the entry for key if present and unexpired.
func (m *Memory) Get(_ context.Context, key string) (Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.items[key]
	if !ok {
		m.misses++
		return Entry{}, false, nil
	}
	entry := elem.Value.(*memEntry)
	if time.Now().After(entry.ExpiresAt) {
		m.removeLocked(elem)
		m.expirations++
		m.misses++
		return Entry{}, false, nil
	}
	m.recency.MoveToFront(elem)
	m.hits++
	return entry.Entry, true, nil
}

// Delete removes key when the owner tag matches.
func (m *Memory) Delete(_ context.Context, key, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.items[key]
	if !ok {
		return nil
	}
	entry := elem.Value.(*memEntry)
	if entry.Owner != owner {
		return ErrNotOwner
	}
	m.removeLocked(elem)
	return nil
}

// Query returns unexpired entries matching q, newest first.
func (m *Memory) Query(_ context.Context, q Query) ([]Entry, error) {
	prefix, wildcard, err := splitPattern(q.Pattern)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	var oldest time.Time
	if q.MaxAge > 0 {
		oldest = now.Add(-q.MaxAge)
	}

	m.mu.RLock()
	matched := make([]Entry, 0, 16)
	for key, elem := range m.items {
		if !matchPattern(key, prefix, wildcard) {
			continue
		}
		entry := elem.Value.(*memEntry)
		if now.After(entry.ExpiresAt) {
			continue
		}
		if q.Owner != "" && entry.Owner != q.Owner {
			continue
		}
		if q.MaxAge > 0 && entry.CreatedAt.Before(oldest) {
			continue
		}
		matched = append(matched, entry.Entry)
	}
	m.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].Key < matched[j].Key
	})
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, nil
}

// Len counts entries, including expired ones not yet reaped.
func (m *Memory) Len(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.recency.Len(), nil
}

// Close stops the background reaper. The store stays readable.
func (m *Memory) Close() error {
	m.stopOnce.Do(func() { close(m.stop) })
	return nil
}

// PurgeExpired removes all expired entries and reports how many were reaped.
func (m *Memory) PurgeExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	purged := 0
	var next *list.Element
	for e := m.recency.Front(); e != nil; e = next {
		next = e.Next()
		if now.After(e.Value.(*memEntry).ExpiresAt) {
			m.removeLocked(e)
			purged++
		}
	}
	m.expirations += int64(purged)
	return purged
}

// MemoryStats reports store counters.
type MemoryStats struct {
	Size        int
	MaxSize     int
	Hits        int64
	Misses      int64
	Evictions   int64
	Expirations int64
}

// Stats returns a snapshot of the counters.
func (m *Memory) Stats() MemoryStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return MemoryStats{
		Size:        m.recency.Len(),
		MaxSize:     m.maxSize,
		Hits:        m.hits,
		Misses:      m.misses,
		Evictions:   m.evictions,
		Expirations: m.expirations,
	}
}

// reapOneExpiredLocked removes one expired entry scanning from the LRU end.
func (m *Memory) reapOneExpiredLocked(now time.Time) bool {
	for e := m.recency.Back(); e != nil; e = e.Prev() {
		if now.After(e.Value.(*memEntry).ExpiresAt) {
			m.removeLocked(e)
			m.expirations++
			return true
		}
	}
	return false
}

func (m *Memory) evictLocked() {
	back := m.recency.Back()
	if back == nil {
		return
	}
	m.removeLocked(back)
	m.evictions++
}

func (m *Memory) removeLocked(elem *list.Element) {
	delete(m.items, elem.Value.(*memEntry).Key)
	m.recency.Remove(elem)
}
