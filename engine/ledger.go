package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ftahirops/xgov/model"
)

// DefaultLedgerCapacity bounds the ledger across all pids.
const DefaultLedgerCapacity = 4000

// UndoLedger records the prior state of every successful mutation so it can
// be reverted per pid. When full, the oldest entry is dropped.
type UndoLedger struct {
	mu      sync.Mutex
	entries []model.ActionRecord // push order
	cap     int
	now     func() time.Time
}

// NewUndoLedger creates a ledger holding at most capacity entries.
func NewUndoLedger(capacity int) *UndoLedger {
	if capacity <= 0 {
		capacity = DefaultLedgerCapacity
	}
	return &UndoLedger{cap: capacity, now: time.Now}
}

// Push appends an entry for the process instance (pid, start) and returns it.
func (l *UndoLedger) Push(pid int, start int64, kind model.ActionKind, prior model.PriorState, source model.Source) model.ActionRecord {
	rec := model.ActionRecord{
		ID:        uuid.NewString(),
		PID:       pid,
		StartTime: start,
		Kind:      kind,
		Prior:     prior,
		Source:    source,
		Timestamp: l.now(),
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.appendLocked(rec)
	return rec
}

// Requeue puts popped entries back, keeping their order. Used when a revert
// could not reach the process and the records must survive for a retry.
func (l *UndoLedger) Requeue(recs []model.ActionRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, rec := range recs {
		l.appendLocked(rec)
	}
}

func (l *UndoLedger) appendLocked(rec model.ActionRecord) {
	if len(l.entries) >= l.cap {
		drop := len(l.entries) - l.cap + 1
		l.entries = append(l.entries[:0:0], l.entries[drop:]...)
	}
	l.entries = append(l.entries, rec)
}

// PopAllForPID removes and returns every entry for pid in push order.
func (l *UndoLedger) PopAllForPID(pid int) []model.ActionRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	var popped []model.ActionRecord
	kept := l.entries[:0]
	for _, e := range l.entries {
		if e.PID == pid {
			popped = append(popped, e)
			continue
		}
		kept = append(kept, e)
	}
	// clear the tail so dropped records can be collected
	for i := len(kept); i < len(l.entries); i++ {
		l.entries[i] = model.ActionRecord{}
	}
	l.entries = kept
	return popped
}

// Entries returns a copy of the entries for pid, or all entries when pid is 0.
func (l *UndoLedger) Entries(pid int) []model.ActionRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []model.ActionRecord
	for _, e := range l.entries {
		if pid == 0 || e.PID == pid {
			out = append(out, e)
		}
	}
	return out
}

// Len is the total number of entries.
func (l *UndoLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
