package nsqconn

import (
	"sync"
	"time"
)

// ConnStats holds the per-connection counters mirrored into the shared stats
// store. The store is keyed by connection identity (broker host:port plus
// topic/channel), so multiple connections of one consumer share a store
// without sharing counters.
type ConnStats struct {
	// Flow control.
	RdyCount int64
	MaxRdy   int64
	LastRdy  int64

	// In-flight message accounting.
	MessagesInFlight int64
	LastMsgTimestamp time.Time

	// Completion totals.
	FinishedCount int64
	FailedCount   int64
	RequeuedCount int64
	BackoffCount  int64
}

// ConnInfo is the shared statistics store consulted by the connection, the
// message-handling executor, and external observers. Every mutation goes
// through Update's read-modify-write closure; the store must apply it
// atomically per key so a flow-control send and an asynchronous message
// completion cannot lose each other's writes.
type ConnInfo interface {
	// Update atomically applies fn to the stats for id, creating a zero
	// entry if none exists.
	Update(id string, fn func(*ConnStats))

	// Fetch returns a copy of the stats for id.
	Fetch(id string) (ConnStats, bool)

	// Delete removes the stats entry for id.
	Delete(id string)
}

// MemoryConnInfo is an in-memory implementation of ConnInfo.
type MemoryConnInfo struct {
	mu    sync.Mutex
	stats map[string]*ConnStats
}

// NewMemoryConnInfo creates a new in-memory stats store.
func NewMemoryConnInfo() *MemoryConnInfo {
	return &MemoryConnInfo{stats: make(map[string]*ConnStats)}
}

// Update atomically applies fn to the stats for id.
func (m *MemoryConnInfo) Update(id string, fn func(*ConnStats)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.stats[id]
	if !ok {
		s = &ConnStats{}
		m.stats[id] = s
	}
	fn(s)
}

// Fetch returns a copy of the stats for id.
func (m *MemoryConnInfo) Fetch(id string) (ConnStats, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.stats[id]
	if !ok {
		return ConnStats{}, false
	}
	return *s, true
}

// Delete removes the stats entry for id.
func (m *MemoryConnInfo) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.stats, id)
}

// IDs returns the identities currently tracked by the store.
func (m *MemoryConnInfo) IDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.stats))
	for id := range m.stats {
		ids = append(ids, id)
	}
	return ids
}
