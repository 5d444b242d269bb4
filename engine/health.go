package engine

import (
	"sync"

	"github.com/ftahirops/xgov/model"
)

const (
	healthWindow     = 8
	leakMinSamples   = 6
	leakMinGrowths   = 4
	leakGrowthFactor = 1.03
	spikeCPUPct      = 35.0
)

type healthWindowState struct {
	mem   []float64 // MB
	cpu   []float64
	flags model.HealthFlags
}

// HealthWatcher keeps short per-pid windows of memory and CPU and derives
// leak and spike flags from them.
type HealthWatcher struct {
	mu      sync.Mutex
	windows map[int]*healthWindowState
}

// NewHealthWatcher creates an empty watcher.
func NewHealthWatcher() *HealthWatcher {
	return &HealthWatcher{windows: make(map[int]*healthWindowState)}
}

// Ingest appends one sample for pid and recomputes its flags.
func (h *HealthWatcher) Ingest(pid int, memMB, cpuPct float64) model.HealthFlags {
	h.mu.Lock()
	defer h.mu.Unlock()

	w, ok := h.windows[pid]
	if !ok {
		w = &healthWindowState{}
		h.windows[pid] = w
	}
	w.mem = pushWindow(w.mem, memMB)
	w.cpu = pushWindow(w.cpu, cpuPct)
	w.flags = model.HealthFlags{PID: pid, Leak: isLeak(w.mem), Spike: isSpike(w.cpu)}
	return w.flags
}

// IngestSnapshot feeds every process in snap.
func (h *HealthWatcher) IngestSnapshot(snap *model.Snapshot) {
	if snap == nil {
		return
	}
	for _, p := range snap.Processes {
		h.Ingest(p.PID, p.RSSMB(), p.CPUPct)
	}
}

// Flags returns the current flags for pid.
func (h *HealthWatcher) Flags(pid int) (model.HealthFlags, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	w, ok := h.windows[pid]
	if !ok {
		return model.HealthFlags{PID: pid}, false
	}
	return w.flags, true
}

// All returns a copy of every pid's flags.
func (h *HealthWatcher) All() map[int]model.HealthFlags {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[int]model.HealthFlags, len(h.windows))
	for pid, w := range h.windows {
		out[pid] = w.flags
	}
	return out
}

// EvictAbsent drops windows for pids not in live and returns how many were removed.
func (h *HealthWatcher) EvictAbsent(live map[int]bool) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for pid := range h.windows {
		if !live[pid] {
			delete(h.windows, pid)
			n++
		}
	}
	return n
}

// Len is the number of tracked pids.
func (h *HealthWatcher) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.windows)
}

func pushWindow(w []float64, v float64) []float64 {
	w = append(w, v)
	if len(w) > healthWindow {
		w = w[len(w)-healthWindow:]
	}
	return w
}

func isLeak(mem []float64) bool {
	if len(mem) < leakMinSamples {
		return false
	}
	growths := 0
	for i := 1; i < len(mem); i++ {
		prev, cur := mem[i-1], mem[i]
		if cur > prev && cur >= prev*leakGrowthFactor {
			growths++
		}
	}
	return growths >= leakMinGrowths
}

func isSpike(cpu []float64) bool {
	for _, v := range cpu {
		if v >= spikeCPUPct {
			return true
		}
	}
	return false
}
