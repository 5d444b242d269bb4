package engine

import (
	"sync"

	"github.com/ftahirops/xgov/model"
)

// DefaultHistorySize is the in-memory effect history capacity.
const DefaultHistorySize = 500

// History is a ring buffer of finalized effect records.
type History struct {
	buf  []model.EffectRecord
	head int
	size int
	cap  int
	mu   sync.RWMutex
}

// NewHistory creates a ring buffer with the given capacity.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &History{
		buf: make([]model.EffectRecord, capacity),
		cap: capacity,
	}
}

// Push adds a record, overwriting the oldest when full.
func (h *History) Push(rec model.EffectRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.buf[h.head] = rec
	h.head = (h.head + 1) % h.cap
	if h.size < h.cap {
		h.size++
	}
}

// Tail returns up to n of the newest records, oldest first. n <= 0 means all.
func (h *History) Tail(n int) []model.EffectRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if n <= 0 || n > h.size {
		n = h.size
	}
	out := make([]model.EffectRecord, n)
	start := h.head - n
	for i := 0; i < n; i++ {
		out[i] = h.buf[(start+i+h.cap)%h.cap]
	}
	return out
}

// Load replaces the contents with recs, keeping the newest when recs overflow.
func (h *History) Load(recs []model.EffectRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(recs) > h.cap {
		recs = recs[len(recs)-h.cap:]
	}
	h.buf = make([]model.EffectRecord, h.cap)
	copy(h.buf, recs)
	h.size = len(recs)
	h.head = h.size % h.cap
}
