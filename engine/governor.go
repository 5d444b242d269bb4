package engine

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/ftahirops/xgov/model"
)

// DefaultGovernorTail is how many of the lowest-ranked processes are demoted.
const DefaultGovernorTail = 25

// governorSpecs is the demotion applied to each governed process.
var governorSpecs = []model.ActionSpec{
	{Kind: model.KindPriority, Priority: model.PriorityBelowNormal, Guard: model.GuardDowngradeOnly},
	{Kind: model.KindMemPrio, MemoryLevel: model.MemoryPriorityLow},
	{Kind: model.KindThrottle, Throttle: true},
	{Kind: model.KindContain},
}

type governedKey struct {
	pid   int
	start int64
}

// Governor demotes the tail of the current process ordering. Each process
// is demoted once per lifetime; a reused pid is a new process.
type Governor struct {
	mu       sync.Mutex
	enabled  bool
	tail     int
	governed map[governedKey]struct{}
	exec     *Executor
	log      *zap.Logger
}

// NewGovernor creates a disabled governor.
func NewGovernor(exec *Executor, tail int, log *zap.Logger) *Governor {
	if tail <= 0 {
		tail = DefaultGovernorTail
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Governor{tail: tail, governed: make(map[governedKey]struct{}), exec: exec, log: log}
}

// SetEnabled switches the governor on or off.
func (g *Governor) SetEnabled(on bool) {
	g.mu.Lock()
	g.enabled = on
	g.mu.Unlock()
	g.log.Info("governor toggled", zap.Bool("enabled", on))
}

// Enabled reports whether the governor runs on refresh.
func (g *Governor) Enabled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.enabled
}

// Candidates returns the processes Apply would consider: the last tail
// entries of ordered after skip, protected and foreground filtering.
func (g *Governor) Candidates(ordered []model.ProcessSnapshot, skip func(model.ProcessSnapshot) bool) []model.ProcessSnapshot {
	var eligible []model.ProcessSnapshot
	for _, p := range ordered {
		if p.Role == model.RoleForeground || g.exec.Protected(p) || (skip != nil && skip(p)) {
			continue
		}
		eligible = append(eligible, p)
	}
	if len(eligible) > g.tail {
		eligible = eligible[len(eligible)-g.tail:]
	}
	return eligible
}

// Apply demotes candidates not yet governed. It returns the number of
// processes newly governed.
func (g *Governor) Apply(ctx context.Context, ordered []model.ProcessSnapshot, skip func(model.ProcessSnapshot) bool) int {
	if !g.Enabled() {
		return 0
	}
	n := 0
	for _, p := range g.Candidates(ordered, skip) {
		if ctx.Err() != nil {
			break
		}
		key := governedKey{pid: p.PID, start: p.StartTime}
		g.mu.Lock()
		_, done := g.governed[key]
		g.mu.Unlock()
		if done {
			continue
		}

		vanished := false
		for _, spec := range governorSpecs {
			out := g.exec.Execute(ctx, p.PID, spec, model.SourceGovernor)
			if out.Status == model.StatusSkipped {
				vanished = true
				break
			}
		}
		if vanished {
			continue
		}
		g.mu.Lock()
		g.governed[key] = struct{}{}
		g.mu.Unlock()
		n++
	}
	if n > 0 {
		g.log.Debug("governor pass", zap.Int("governed", n))
	}
	return n
}

// Forget clears the governed mark for pid so a later pass may demote it again.
func (g *Governor) Forget(pid int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for k := range g.governed {
		if k.pid == pid {
			delete(g.governed, k)
		}
	}
}

// EvictAbsent drops marks for pids not in live.
func (g *Governor) EvictAbsent(live map[int]bool) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for k := range g.governed {
		if !live[k.pid] {
			delete(g.governed, k)
			n++
		}
	}
	return n
}

// Len is the number of governed processes.
func (g *Governor) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.governed)
}
