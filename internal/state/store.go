// Package state holds the minimal per-(symbol, timeframe) record the
// decision gate needs: when the last executable signal fired and in which
// direction. Nothing else is retained; there is no position, PnL or order
// history here.
package state

import (
	"sync"
	"time"

	"futures-advisor/internal/signal"
)

// Entry is the stored record for one (symbol, timeframe) key.
type Entry struct {
	LastDecisionTime    time.Time       `json:"last_decision_time"`
	LastSignalDirection signal.Decision `json:"last_signal_direction"`
}

// Store is the gate's view of decision state. Save overwrites; reads
// report absence through the boolean. Clear with an empty symbol wipes
// everything.
type Store interface {
	Save(symbol string, tf signal.Timeframe, at time.Time, direction signal.Decision)
	LastTime(symbol string, tf signal.Timeframe) (time.Time, bool)
	LastDirection(symbol string, tf signal.Timeframe) (signal.Decision, bool)
	Clear(symbol string)
}

func key(symbol string, tf signal.Timeframe) string {
	return symbol + "|" + string(tf)
}

// MemoryStore is the authoritative in-process implementation.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

// Save overwrites the entry for the key.
func (m *MemoryStore) Save(symbol string, tf signal.Timeframe, at time.Time, direction signal.Decision) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key(symbol, tf)] = Entry{LastDecisionTime: at, LastSignalDirection: direction}
}

// LastTime returns the stored decision time for the key, if any.
func (m *MemoryStore) LastTime(symbol string, tf signal.Timeframe) (time.Time, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key(symbol, tf)]
	if !ok {
		return time.Time{}, false
	}
	return e.LastDecisionTime, true
}

// LastDirection returns the stored direction for the key, if any.
func (m *MemoryStore) LastDirection(symbol string, tf signal.Timeframe) (signal.Decision, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key(symbol, tf)]
	if !ok {
		return "", false
	}
	return e.LastSignalDirection, true
}

// Clear removes both timeframe entries of the symbol, or every entry when
// the symbol is empty.
func (m *MemoryStore) Clear(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if symbol == "" {
		m.entries = make(map[string]Entry)
		return
	}
	for _, tf := range signal.Timeframes {
		delete(m.entries, key(symbol, tf))
	}
}

// Snapshot returns a copy of all entries, keyed by "symbol|timeframe".
// Used by diagnostics and the Redis warm-up path.
func (m *MemoryStore) Snapshot() map[string]Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Entry, len(m.entries))
	for k, v := range m.entries {
		out[k] = v
	}
	return out
}

// restore installs an entry without going through Save; used when warming
// from a mirror.
func (m *MemoryStore) restore(k string, e Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[k] = e
}
