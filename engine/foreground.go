package engine

import (
	"context"
	"sync"

	"github.com/ftahirops/xgov/model"
)

// ForegroundFollower boosts the focused process once per focus change.
type ForegroundFollower struct {
	mu      sync.Mutex
	enabled bool
	class   model.PriorityClass
	last    governedKey
	exec    *Executor
}

// NewForegroundFollower creates a disabled follower that boosts to High.
func NewForegroundFollower(exec *Executor) *ForegroundFollower {
	return &ForegroundFollower{exec: exec, class: model.PriorityHigh}
}

// SetEnabled turns following on or off. Turning it off forgets the last
// boosted process so re-enabling boosts the current one again.
func (f *ForegroundFollower) SetEnabled(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled = on
	if !on {
		f.last = governedKey{}
	}
}

// Enabled reports whether following is on.
func (f *ForegroundFollower) Enabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled
}

// SetClass sets the class the foreground process is raised to.
func (f *ForegroundFollower) SetClass(c model.PriorityClass) {
	if !c.Valid() {
		return
	}
	f.mu.Lock()
	f.class = c
	f.mu.Unlock()
}

// Follow boosts p if following is enabled and p differs from the last
// boosted process, attributing the actions to source. It returns the
// outcomes of the boost, or nil.
func (f *ForegroundFollower) Follow(ctx context.Context, p model.ProcessSnapshot, source model.Source) []model.Outcome {
	if p.PID <= 0 {
		return nil
	}
	key := governedKey{pid: p.PID, start: p.StartTime}
	f.mu.Lock()
	if !f.enabled || f.last == key {
		f.mu.Unlock()
		return nil
	}
	f.last = key
	class := f.class
	f.mu.Unlock()

	return []model.Outcome{
		f.exec.Execute(ctx, p.PID, model.ActionSpec{
			Kind: model.KindPriority, Priority: class, Guard: model.GuardUpgradeOnly,
		}, source),
		f.exec.Execute(ctx, p.PID, model.ActionSpec{
			Kind: model.KindMemPrio, MemoryLevel: model.MemoryPriorityHigh,
		}, source),
	}
}
