package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ftahirops/xgov/model"
	"github.com/ftahirops/xgov/platform"
)

var ctx = context.Background()

func proc(pid int, name string) model.ProcessSnapshot {
	return model.ProcessSnapshot{PID: pid, PPID: 1, Name: name, CPUPct: 40, RSSBytes: 200 << 20}
}

func TestExecutorPriorityCapturesPrior(t *testing.T) {
	ctrl := newFakeController(8)
	ex := newTestExecutor(ctrl, proc(100, "chrome"))

	out := ex.Execute(ctx, 100, model.ActionSpec{Kind: model.KindPriority, Priority: model.PriorityBelowNormal}, model.SourceManual)
	require.Equal(t, model.StatusOK, out.Status, out.Reason)
	assert.Equal(t, model.PriorityBelowNormal, ctrl.state(100).class)

	entries := ex.Ledger().Entries(100)
	require.Len(t, entries, 1)
	assert.Equal(t, model.PriorPriority{Class: model.PriorityNormal}, entries[0].Prior)

	pending := ex.Effects().Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, "priority->Below Normal", pending[0].Action)
	assert.InDelta(t, 200.0, pending[0].Mem0, 1e-9)

	opened, closed := ctrl.handles()
	assert.Equal(t, opened, closed)
}

func TestExecutorGuards(t *testing.T) {
	ctrl := newFakeController(8)
	ex := newTestExecutor(ctrl, proc(100, "game"))
	ctrl.procs[100].class = model.PriorityBelowNormal

	out := ex.Execute(ctx, 100, model.ActionSpec{
		Kind: model.KindPriority, Priority: model.PriorityBelowNormal, Guard: model.GuardDowngradeOnly,
	}, model.SourceGovernor)
	assert.Equal(t, model.StatusNoop, out.Status)

	out = ex.Execute(ctx, 100, model.ActionSpec{
		Kind: model.KindPriority, Priority: model.PriorityIdle, Guard: model.GuardUpgradeOnly,
	}, model.SourceForeground)
	assert.Equal(t, model.StatusNoop, out.Status)

	out = ex.Execute(ctx, 100, model.ActionSpec{
		Kind: model.KindPriority, Priority: model.PriorityHigh, Guard: model.GuardUpgradeOnly,
	}, model.SourceForeground)
	assert.Equal(t, model.StatusOK, out.Status)
	assert.Equal(t, 1, ex.Ledger().Len())
}

func TestExecutorProtected(t *testing.T) {
	ctrl := newFakeController(4)
	ex := newTestExecutor(ctrl,
		proc(50, "sshd"),
		model.ProcessSnapshot{PID: 60, PPID: 2, Name: "kworker/0:1"},
		proc(70, "Xorg"),
	)
	ctrl.add(1)
	for _, pid := range []int{50, 60, 70} {
		out := ex.Execute(ctx, pid, model.ActionSpec{Kind: model.KindTrim}, model.SourceManual)
		assert.Equal(t, model.StatusRefused, out.Status, "pid %d", pid)
		assert.True(t, errors.Is(out.Err, ErrProtected))
	}
	assert.True(t, ex.Protected(model.ProcessSnapshot{PID: 1, Name: "anything"}))
	assert.True(t, ex.Protected(model.ProcessSnapshot{PID: 999990, Name: "me"}))
	assert.True(t, ex.Protected(model.ProcessSnapshot{PID: 999991, Name: "shell"}))
	assert.False(t, ex.Protected(proc(80, "firefox")))
	assert.Zero(t, ex.Ledger().Len())
	opened, _ := ctrl.handles()
	assert.Zero(t, opened, "protected targets are never opened")
}

func TestExecutorTerminateNeedsConfirmation(t *testing.T) {
	ctrl := newFakeController(4)
	ex := newTestExecutor(ctrl, proc(100, "runaway"), proc(50, "sshd"))

	out := ex.Execute(ctx, 100, model.ActionSpec{Kind: model.KindTerminate}, model.SourceManual)
	assert.Equal(t, model.StatusRefused, out.Status)
	assert.True(t, errors.Is(out.Err, ErrConfirmationRequired))
	assert.False(t, ctrl.state(100).dead)

	out = ex.Execute(ctx, 50, model.ActionSpec{Kind: model.KindTerminate, Confirmed: true}, model.SourceManual)
	assert.True(t, errors.Is(out.Err, ErrProtected))

	out = ex.Execute(ctx, 100, model.ActionSpec{Kind: model.KindTerminate, Confirmed: true}, model.SourceManual)
	assert.Equal(t, model.StatusOK, out.Status)
	assert.True(t, ctrl.state(100).dead)
	assert.Zero(t, ex.Ledger().Len())
}

func TestExecutorThrottleIsBestEffort(t *testing.T) {
	ctrl := newFakeController(4)
	ex := newTestExecutor(ctrl, proc(100, "updater"))
	ctrl.throttleErr = errors.New("EINVAL")

	out := ex.Execute(ctx, 100, model.ActionSpec{Kind: model.KindThrottle, Throttle: true}, model.SourceRule)
	assert.Equal(t, model.StatusUnsupported, out.Status)
	assert.Zero(t, ex.Ledger().Len())

	ctrl.throttleErr = nil
	out = ex.Execute(ctx, 100, model.ActionSpec{Kind: model.KindThrottle, Throttle: true}, model.SourceRule)
	assert.Equal(t, model.StatusOK, out.Status)
	assert.Equal(t, model.PriorThrottle{On: false}, ex.Ledger().Entries(100)[0].Prior)
	assert.Empty(t, ex.Effects().Pending(), "throttle has no effect baseline")
}

func TestExecutorContainAndRevert(t *testing.T) {
	ctrl := newFakeController(4)
	ex := newTestExecutor(ctrl, proc(100, "indexer"))

	out := ex.Execute(ctx, 100, model.ActionSpec{Kind: model.KindContain}, model.SourceGovernor)
	require.Equal(t, model.StatusOK, out.Status, out.Reason)
	assert.Equal(t, "/"+GovernanceGroup, ctrl.state(100).group)

	out = ex.Execute(ctx, 100, model.ActionSpec{Kind: model.KindContain}, model.SourceGovernor)
	assert.Equal(t, model.StatusNoop, out.Status)

	kinds, err := ex.Revert(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, []model.ActionKind{model.KindContain}, kinds)
	assert.Equal(t, "/user.slice", ctrl.state(100).group)
}

func TestExecutorContainUnsupportedWithoutGroup(t *testing.T) {
	ctrl := newFakeController(4)
	ctrl.groupErr = platform.ErrUnsupported
	ex := newTestExecutor(ctrl, proc(100, "indexer"))

	out := ex.Execute(ctx, 100, model.ActionSpec{Kind: model.KindContain}, model.SourceManual)
	assert.Equal(t, model.StatusUnsupported, out.Status)
}

func TestExecutorOutcomesAreIndependent(t *testing.T) {
	ctrl := newFakeController(4)
	ex := newTestExecutor(ctrl, proc(100, "a"), proc(101, "b"))
	ctrl.openErr[100] = platform.ErrPermissionDenied
	ctrl.procs[101].dead = true

	spec := model.ActionSpec{Kind: model.KindTrim}
	assert.Equal(t, model.StatusFailed, ex.Execute(ctx, 100, spec, model.SourceManual).Status)
	assert.Equal(t, model.StatusSkipped, ex.Execute(ctx, 101, spec, model.SourceManual).Status)
	assert.Equal(t, model.StatusSkipped, ex.Execute(ctx, 102, spec, model.SourceManual).Status)
	assert.Zero(t, ex.Ledger().Len())
	assert.Empty(t, ex.Effects().Pending())
}

func TestExecutorInvalidInputIsRefused(t *testing.T) {
	ctrl := newFakeController(4)
	ex := newTestExecutor(ctrl, proc(100, "a"))

	for _, spec := range []model.ActionSpec{
		{Kind: model.KindMemPrio, MemoryLevel: 7},
		{Kind: model.KindAffinity, AffinityPreset: "most cores"},
		{Kind: "explode"},
	} {
		out := ex.Execute(ctx, 100, spec, model.SourceManual)
		assert.Equal(t, model.StatusRefused, out.Status, spec.Kind)
		assert.True(t, errors.Is(out.Err, ErrInvalidConfiguration))
	}
}

func TestRevertReplaysInPushOrder(t *testing.T) {
	ctrl := newFakeController(8)
	ex := newTestExecutor(ctrl, proc(100, "editor"))

	// Normal -> High -> Idle, then affinity, memprio, trim, suspend.
	specs := []model.ActionSpec{
		{Kind: model.KindPriority, Priority: model.PriorityHigh},
		{Kind: model.KindPriority, Priority: model.PriorityIdle},
		{Kind: model.KindAffinity, AffinityPreset: PresetHalfEven},
		{Kind: model.KindMemPrio, MemoryLevel: model.MemoryPriorityLow},
		{Kind: model.KindTrim},
		{Kind: model.KindSuspend},
	}
	for _, s := range specs {
		require.Equal(t, model.StatusOK, ex.Execute(ctx, 100, s, model.SourceManual).Status)
	}
	require.Equal(t, 6, ex.Ledger().Len())
	assert.True(t, ctrl.state(100).suspended)

	kinds, err := ex.Revert(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, []model.ActionKind{
		model.KindPriority, model.KindPriority, model.KindAffinity, model.KindMemPrio, model.KindSuspend,
	}, kinds)

	st := ctrl.state(100)
	// the later priority entry recorded High as prior, and it is replayed last
	assert.Equal(t, model.PriorityHigh, st.class)
	assert.Equal(t, SystemMask(8), st.mask)
	assert.Equal(t, model.MemoryPriorityNormal, st.memprio)
	assert.False(t, st.suspended)
	assert.Zero(t, ex.Ledger().Len())

	kinds, err = ex.Revert(ctx, 100)
	assert.NoError(t, err)
	assert.Empty(t, kinds)

	opened, closed := ctrl.handles()
	assert.Equal(t, opened, closed)
}

func TestRevertVanishedProcess(t *testing.T) {
	ctrl := newFakeController(4)
	ex := newTestExecutor(ctrl, proc(100, "a"))
	require.True(t, ex.Execute(ctx, 100, model.ActionSpec{Kind: model.KindPriority, Priority: model.PriorityIdle}, model.SourceManual).OK())
	ctrl.procs[100].dead = true

	_, err := ex.Revert(ctx, 100)
	assert.True(t, errors.Is(err, platform.ErrProcessVanished))
	assert.Zero(t, ex.Ledger().Len())
}

func TestRevertSkipsEntriesOfReusedPID(t *testing.T) {
	ctrl := newFakeController(4)
	first := proc(100, "browser")
	first.StartTime = 1
	ex, lk := newTestExecutorLookup(ctrl, first)
	ctrl.procs[100].class = model.PriorityHigh

	out := ex.Execute(ctx, 100, model.ActionSpec{Kind: model.KindPriority, Priority: model.PriorityIdle}, model.SourceManual)
	require.True(t, out.OK(), out.Reason)
	require.EqualValues(t, 1, ex.Ledger().Entries(100)[0].StartTime)

	// the browser exits and an unrelated process is started under pid 100
	ctrl.add(100)
	reused := proc(100, "unrelated")
	reused.StartTime = 2
	lk.replace(reused)

	kinds, err := ex.Revert(ctx, 100)
	assert.Empty(t, kinds)
	assert.True(t, errors.Is(err, platform.ErrProcessVanished))
	assert.Equal(t, model.PriorityNormal, ctrl.state(100).class, "new process keeps its own class")
	assert.Zero(t, ex.Ledger().Len())
	opened, closed := ctrl.handles()
	assert.Equal(t, 1, opened, "only the original action opened a handle")
	assert.Equal(t, opened, closed)
}

func TestRevertKeepsEntriesWhenOpenIsDenied(t *testing.T) {
	ctrl := newFakeController(4)
	ex := newTestExecutor(ctrl, proc(100, "editor"))
	require.True(t, ex.Execute(ctx, 100, model.ActionSpec{Kind: model.KindPriority, Priority: model.PriorityIdle}, model.SourceManual).OK())
	require.True(t, ex.Execute(ctx, 100, model.ActionSpec{Kind: model.KindSuspend}, model.SourceManual).OK())

	ctrl.openErr[100] = platform.ErrPermissionDenied
	_, err := ex.Revert(ctx, 100)
	require.True(t, errors.Is(err, platform.ErrPermissionDenied))
	entries := ex.Ledger().Entries(100)
	require.Len(t, entries, 2)
	assert.Equal(t, model.KindPriority, entries[0].Kind)
	assert.Equal(t, model.KindSuspend, entries[1].Kind)

	delete(ctrl.openErr, 100)
	kinds, err := ex.Revert(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, []model.ActionKind{model.KindPriority, model.KindSuspend}, kinds)
	assert.Equal(t, model.PriorityNormal, ctrl.state(100).class)
	assert.False(t, ctrl.state(100).suspended)
}

func TestExecutorLookupPermissionIsFailure(t *testing.T) {
	ctrl := newFakeController(4)
	ex, lk := newTestExecutorLookup(ctrl, proc(100, "secret"))
	lk.fail(100, fmt.Errorf("read stat: %w", platform.ErrPermissionDenied))

	out := ex.Execute(ctx, 100, model.ActionSpec{Kind: model.KindTrim}, model.SourceManual)
	assert.Equal(t, model.StatusFailed, out.Status)
	assert.True(t, errors.Is(out.Err, platform.ErrPermissionDenied))
	assert.False(t, errors.Is(out.Err, platform.ErrProcessVanished))

	lk.fail(100, errors.New("no such process"))
	out = ex.Execute(ctx, 100, model.ActionSpec{Kind: model.KindTrim}, model.SourceManual)
	assert.Equal(t, model.StatusSkipped, out.Status)
}
