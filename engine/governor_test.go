package engine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ftahirops/xgov/model"
)

func priorityEntries(l *UndoLedger, pid int) []model.ActionRecord {
	var out []model.ActionRecord
	for _, e := range l.Entries(pid) {
		if e.Kind == model.KindPriority {
			out = append(out, e)
		}
	}
	return out
}

func TestGovernorDemotesOnce(t *testing.T) {
	ctrl := newFakeController(4)
	p := model.ProcessSnapshot{PID: 100, PPID: 1, Name: "indexer", StartTime: 5}
	ex := newTestExecutor(ctrl, p)
	g := NewGovernor(ex, 0, nil)

	assert.Zero(t, g.Apply(ctx, []model.ProcessSnapshot{p}, nil), "disabled governor does nothing")

	g.SetEnabled(true)
	require.Equal(t, 1, g.Apply(ctx, []model.ProcessSnapshot{p}, nil))
	st := ctrl.state(100)
	assert.Equal(t, model.PriorityBelowNormal, st.class)
	assert.Equal(t, model.MemoryPriorityLow, st.memprio)
	assert.True(t, st.throttle)
	assert.Equal(t, "/"+GovernanceGroup, st.group)
	total := ex.Ledger().Len()

	assert.Zero(t, g.Apply(ctx, []model.ProcessSnapshot{p}, nil))
	assert.Equal(t, total, ex.Ledger().Len())
	prio := priorityEntries(ex.Ledger(), 100)
	require.Len(t, prio, 1)
	assert.Equal(t, model.PriorPriority{Class: model.PriorityNormal}, prio[0].Prior)

	// even without the governed mark the downgrade guard holds priority at one entry
	g.Forget(100)
	g.Apply(ctx, []model.ProcessSnapshot{p}, nil)
	assert.Len(t, priorityEntries(ex.Ledger(), 100), 1)

	opened, closed := ctrl.handles()
	assert.Equal(t, opened, closed)
}

func TestGovernorTailSelection(t *testing.T) {
	ctrl := newFakeController(4)
	var procs []model.ProcessSnapshot
	for i := 0; i < 6; i++ {
		procs = append(procs, model.ProcessSnapshot{PID: 100 + i, PPID: 1, Name: fmt.Sprintf("p%d", i), CPUPct: float64(60 - 10*i)})
	}
	procs = append(procs, model.ProcessSnapshot{PID: 200, PPID: 1, Name: "sshd"})
	procs[5].Role = model.RoleForeground
	ex := newTestExecutor(ctrl, procs...)
	g := NewGovernor(ex, 2, nil)

	ordered := SortProcesses(procs, model.SortCPU)
	cands := g.Candidates(ordered, func(p model.ProcessSnapshot) bool { return p.Name == "p4" })
	var pids []int
	for _, c := range cands {
		pids = append(pids, c.PID)
	}
	// sshd is protected, p5 is foreground, p4 is whitelisted
	assert.Equal(t, []int{102, 103}, pids)
}

func TestGovernorEviction(t *testing.T) {
	ctrl := newFakeController(4)
	a := model.ProcessSnapshot{PID: 100, PPID: 1, Name: "a", StartTime: 1}
	b := model.ProcessSnapshot{PID: 101, PPID: 1, Name: "b", StartTime: 1}
	ex := newTestExecutor(ctrl, a, b)
	g := NewGovernor(ex, 0, nil)
	g.SetEnabled(true)
	require.Equal(t, 2, g.Apply(ctx, []model.ProcessSnapshot{a, b}, nil))

	assert.Equal(t, 1, g.EvictAbsent(map[int]bool{100: true}))
	assert.Equal(t, 1, g.Len())

	// pid 100 reused by a new process is governed again
	reused := a
	reused.StartTime = 2
	assert.Equal(t, 1, g.Apply(ctx, []model.ProcessSnapshot{reused}, nil))
}

func TestSortAndFilter(t *testing.T) {
	procs := []model.ProcessSnapshot{
		{PID: 1, Name: "beta", CPUPct: 5, RSSBytes: 300},
		{PID: 22, Name: "Alpha", CPUPct: 50, RSSBytes: 100},
		{PID: 3, Name: "gamma", CPUPct: 5, RSSBytes: 200},
	}
	pids := func(ps []model.ProcessSnapshot) []int {
		var out []int
		for _, p := range ps {
			out = append(out, p.PID)
		}
		return out
	}
	assert.Equal(t, []int{22, 3, 1}, pids(SortProcesses(procs, model.SortCPU)))
	assert.Equal(t, []int{1, 3, 22}, pids(SortProcesses(procs, model.SortMemory)))
	assert.Equal(t, []int{22, 3, 1}, pids(SortProcesses(procs, model.SortPID)))
	assert.Equal(t, []int{3, 1, 22}, pids(SortProcesses(procs, model.SortName)))

	assert.Equal(t, []int{22}, pids(FilterProcesses(procs, "ALP")))
	assert.Equal(t, []int{22}, pids(FilterProcesses(procs, "22")))
	assert.Len(t, FilterProcesses(procs, " "), 3)
}
