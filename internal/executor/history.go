package executor

import (
	"sync"

	"github.com/harrison/reflector/internal/models"
)

// DefaultHistoryCapacity is the number of attempts kept in memory.
const DefaultHistoryCapacity = 50

// HistoryStore is a bounded FIFO buffer of execution history entries.
// Len never exceeds Cap: once full, appending evicts the oldest entry first.
// All methods are safe for concurrent use.
type HistoryStore struct {
	mu      sync.Mutex
	entries []models.ExecutionHistoryEntry
	head    int // index of the oldest entry
	size    int
}

// NewHistoryStore creates a store holding at most capacity entries.
// A non-positive capacity uses DefaultHistoryCapacity.
func NewHistoryStore(capacity int) *HistoryStore {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &HistoryStore{entries: make([]models.ExecutionHistoryEntry, capacity)}
}

// Append adds entry as the newest element. It reports whether the oldest
// entry was evicted to make room.
func (h *HistoryStore) Append(entry models.ExecutionHistoryEntry) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	capacity := len(h.entries)
	if h.size == capacity {
		// Overwriting the slot at head drops the oldest entry.
		h.entries[h.head] = entry
		h.head = (h.head + 1) % capacity
		return true
	}
	h.entries[(h.head+h.size)%capacity] = entry
	h.size++
	return false
}

// Snapshot returns a copy of the entries, oldest first.
func (h *HistoryStore) Snapshot() []models.ExecutionHistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]models.ExecutionHistoryEntry, h.size)
	for i := 0; i < h.size; i++ {
		out[i] = h.entries[(h.head+i)%len(h.entries)]
	}
	return out
}

// Last returns the most recently appended entry.
func (h *HistoryStore) Last() (models.ExecutionHistoryEntry, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.size == 0 {
		return models.ExecutionHistoryEntry{}, false
	}
	return h.entries[(h.head+h.size-1)%len(h.entries)], true
}

// Len returns the number of stored entries.
func (h *HistoryStore) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.size
}

// Cap returns the maximum number of entries.
func (h *HistoryStore) Cap() int {
	return len(h.entries)
}
