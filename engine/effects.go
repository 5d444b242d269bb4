package engine

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ftahirops/xgov/model"
)

// EffectsTracker measures each action's before/after resource usage.
type EffectsTracker struct {
	mu      sync.Mutex
	pending map[model.EffectKey]model.EffectBaseline
	gen     uint64

	delay time.Duration

	history *History
	store   *HistoryStore // nil disables persistence
	log     *zap.Logger
	now     func() time.Time
}

// NewEffectsTracker creates a tracker. store may be nil.
func NewEffectsTracker(history *History, store *HistoryStore, log *zap.Logger) *EffectsTracker {
	if history == nil {
		history = NewHistory(DefaultHistorySize)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &EffectsTracker{
		pending: make(map[model.EffectKey]model.EffectBaseline),
		history: history,
		store:   store,
		log:     log,
		now:     time.Now,
	}
}

// LoadHistory seeds the in-memory history from the store.
func (t *EffectsTracker) LoadHistory() error {
	if t.store == nil {
		return nil
	}
	recs, err := t.store.Load()
	if err != nil {
		return err
	}
	t.history.Load(recs)
	return nil
}

// SetSettleDelay sets how long a baseline must age before Settle measures it.
func (t *EffectsTracker) SetSettleDelay(d time.Duration) {
	t.mu.Lock()
	t.delay = max(d, 0)
	t.mu.Unlock()
}

// Baseline records the pre-action measurement for (pid, action), replacing
// any pending one for the same key.
func (t *EffectsTracker) Baseline(pid int, action string, cpu0, mem0 float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending[model.EffectKey{PID: pid, Action: action}] = model.EffectBaseline{
		PID: pid, Action: action, T0: t.now(), CPU0: cpu0, Mem0: mem0,
	}
}

// Finalize closes the pending baseline for (pid, action). It returns false
// when nothing was pending.
func (t *EffectsTracker) Finalize(pid int, action string, cpu1, mem1 float64) (model.EffectRecord, bool) {
	key := model.EffectKey{PID: pid, Action: action}
	t.mu.Lock()
	b, ok := t.pending[key]
	if !ok {
		t.mu.Unlock()
		return model.EffectRecord{}, false
	}
	delete(t.pending, key)
	rec := model.EffectRecord{
		PID: pid, Action: action,
		T0: b.T0, T1: t.now(),
		CPU0: b.CPU0, CPU1: cpu1,
		Mem0: b.Mem0, Mem1: mem1,
		DCPU: cpu1 - b.CPU0,
		DMem: mem1 - b.Mem0,
	}
	t.history.Push(rec)
	t.gen++
	gen := t.gen
	t.mu.Unlock()

	if t.store != nil {
		if err := t.store.Save(gen, t.history.Tail(PersistedEffects)); err != nil {
			t.log.Warn("persist effect history", zap.Error(err))
		}
	}
	return rec, true
}

// Pending returns a copy of the pending baselines.
func (t *EffectsTracker) Pending() []model.EffectBaseline {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]model.EffectBaseline, 0, len(t.pending))
	for _, b := range t.pending {
		out = append(out, b)
	}
	return out
}

// EvictAbsent drops baselines whose pid is not live and returns the count.
func (t *EffectsTracker) EvictAbsent(live map[int]bool) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for key := range t.pending {
		if !live[key.PID] {
			delete(t.pending, key)
			n++
		}
	}
	return n
}

// Settle finalizes every pending baseline whose process is present in snap,
// once snap was taken at least the settle delay after the baseline. Earlier
// snapshots describe the process before the action and are ignored.
func (t *EffectsTracker) Settle(snap *model.Snapshot) []model.EffectRecord {
	if snap == nil {
		return nil
	}
	t.mu.Lock()
	delay := t.delay
	t.mu.Unlock()

	var out []model.EffectRecord
	for _, b := range t.Pending() {
		if !snap.Timestamp.After(b.T0) || snap.Timestamp.Before(b.T0.Add(delay)) {
			continue
		}
		p, ok := snap.Find(b.PID)
		if !ok {
			continue
		}
		if rec, ok := t.Finalize(b.PID, b.Action, p.CPUPct, p.RSSMB()); ok {
			out = append(out, rec)
		}
	}
	return out
}

// History returns up to n of the newest records, oldest first.
func (t *EffectsTracker) History(n int) []model.EffectRecord {
	return t.history.Tail(n)
}
