package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ftahirops/xgov/collector"
	"github.com/ftahirops/xgov/config"
	"github.com/ftahirops/xgov/model"
	"github.com/ftahirops/xgov/platform"
)

type memSource struct {
	mu    sync.Mutex
	procs []collector.ProcessInfo
}

func (s *memSource) set(procs ...collector.ProcessInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.procs = procs
}

func (s *memSource) List(context.Context) ([]collector.ProcessInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]collector.ProcessInfo(nil), s.procs...), nil
}

func (s *memSource) Get(_ context.Context, pid int) (collector.ProcessInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.procs {
		if p.PID == pid {
			return p, nil
		}
	}
	return collector.ProcessInfo{}, errors.New("no such process")
}

func newTestOrchestrator(t *testing.T, cfg config.Config, fg platform.Foreground, procs ...collector.ProcessInfo) (*Orchestrator, *fakeController, *memSource) {
	t.Helper()
	ctrl := newFakeController(8)
	src := &memSource{}
	src.set(procs...)
	for _, p := range procs {
		ctrl.add(p.PID)
	}
	o, err := New(Options{
		Controller:  ctrl,
		Source:      src,
		Foreground:  fg,
		Config:      cfg,
		StateDir:    t.TempDir(),
		MemoryUsage: func(context.Context) (float64, error) { return 50, nil },
		SelfPID:     999990,
		ParentPID:   999991,
	})
	require.NoError(t, err)
	o.SampleOnce(context.Background())
	return o, ctrl, src
}

func info(pid int, name string, rssMB uint64) collector.ProcessInfo {
	return collector.ProcessInfo{PID: pid, PPID: 1, Name: name, RSSBytes: rssMB << 20, CreateTime: 1}
}

func TestOrchestratorApplyRevertAndSettle(t *testing.T) {
	cfg := config.Default()
	cfg.Rules = nil
	cfg.SettleDelay = 0
	o, ctrl, src := newTestOrchestrator(t, cfg, nil, info(100, "browser", 400), info(101, "editor", 100))

	events, cancel := o.Events()
	defer cancel()

	outs := o.ApplyAction(ctx, []int{100, 101, 555}, model.ActionSpec{Kind: model.KindTrim})
	require.Len(t, outs, 3)
	assert.Equal(t, model.StatusOK, outs[0].Status)
	assert.Equal(t, model.StatusOK, outs[1].Status)
	assert.Equal(t, model.StatusSkipped, outs[2].Status)
	assert.Equal(t, 1, ctrl.state(100).trims)

	e := <-events
	assert.Equal(t, model.EventAction, e.Kind)

	// pid 101 exits before the settle sweep; its baseline is collected
	src.set(info(100, "browser", 250))
	o.SampleOnce(ctx)
	o.SettleOnce(ctx)
	hist := o.EffectHistory(0)
	require.Len(t, hist, 1)
	assert.Equal(t, 100, hist[0].PID)
	assert.InDelta(t, -150.0, hist[0].DMem, 1e-9)
	assert.Empty(t, o.effects.Pending())

	_, err := os.Stat(filepath.Join(o.effects.store.Path()))
	assert.NoError(t, err)

	outs = o.ApplyAction(ctx, []int{100}, model.ActionSpec{Kind: model.KindPriority, Priority: model.PriorityIdle})
	require.True(t, outs[0].OK())
	kinds, err := o.RevertPID(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, []model.ActionKind{model.KindPriority}, kinds)
	assert.Equal(t, model.PriorityNormal, ctrl.state(100).class)
	assert.Empty(t, o.Ledger(100))
}

// busySource reports a process that burns CPU between listings.
type busySource struct {
	memSource
	calls float64
}

func (s *busySource) List(ctx context.Context) ([]collector.ProcessInfo, error) {
	procs, _ := s.memSource.List(ctx)
	s.mu.Lock()
	s.calls++
	for i := range procs {
		procs[i].CPUSeconds = s.calls * 0.05
	}
	s.mu.Unlock()
	return procs, nil
}

func TestWarmUpMeasuresBaselineCPU(t *testing.T) {
	cfg := config.Default()
	cfg.Rules = nil
	cfg.SampleInterval = 100 * time.Millisecond
	ctrl := newFakeController(1)
	ctrl.add(100)
	src := &busySource{}
	src.set(info(100, "encoder", 100))
	o, err := New(Options{Controller: ctrl, Source: src, Config: cfg, SelfPID: 999990, ParentPID: 999991})
	require.NoError(t, err)

	require.NoError(t, o.WarmUp(ctx))
	p, ok := o.Snapshot().Find(100)
	require.True(t, ok)
	assert.Greater(t, p.CPUPct, 0.0)

	require.True(t, o.ApplyAction(ctx, []int{100}, model.ActionSpec{Kind: model.KindTrim})[0].OK())
	pending := o.effects.Pending()
	require.Len(t, pending, 1)
	assert.Greater(t, pending[0].CPU0, 0.0, "baseline taken from a measured sample")

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, o.WarmUp(cancelled), context.Canceled)
}

func TestOrchestratorRefreshGovernsAndEvicts(t *testing.T) {
	cfg := config.Default()
	cfg.Rules = nil
	cfg.GovernorTail = 1
	o, ctrl, src := newTestOrchestrator(t, cfg, nil, info(100, "busy", 10), info(101, "idle", 10))

	o.RefreshOnce(ctx)
	assert.Zero(t, o.governor.Len(), "governor starts disabled")
	assert.Equal(t, 2, o.health.Len())
	assert.Equal(t, 2.0, testutil.ToFloat64(o.metrics.healthWindows))

	o.ToggleGovernor(true)
	o.SetSort(model.SortPID)
	o.RefreshOnce(ctx)
	// descending pid order puts 100 last
	assert.Equal(t, model.PriorityBelowNormal, ctrl.state(100).class)
	assert.Equal(t, model.PriorityNormal, ctrl.state(101).class)

	src.set(info(101, "idle", 10))
	o.SampleOnce(ctx)
	o.RefreshOnce(ctx)
	assert.Equal(t, 1, o.health.Len())
	assert.Equal(t, 1, o.governor.Len(), "only the new tail is governed")
	assert.Equal(t, model.PriorityBelowNormal, ctrl.state(101).class)
}

func TestOrchestratorWhitelistAndThresholds(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, config.Default(), nil, info(100, "OBS", 10), info(101, "game", 10))

	o.SetWhitelist([]string{" obs "})
	procs := o.Processes(model.SortCPU, "")
	require.Len(t, procs, 1)
	assert.Equal(t, 101, procs[0].PID)
	assert.Equal(t, []string{"obs"}, o.Whitelist())

	assert.False(t, o.SetThresholds(model.Thresholds{BgCPU: 0, HeavyRAMMB: 5}))
	assert.Equal(t, model.DefaultThresholds(), o.Thresholds())
	assert.True(t, o.SetThresholds(model.Thresholds{BgCPU: 50, HeavyRAMMB: 5}))
	assert.Equal(t, 50.0, o.Thresholds().BgCPU)
}

func TestOrchestratorApplyProfile(t *testing.T) {
	o, ctrl, _ := newTestOrchestrator(t, config.Default(), platform.StaticForeground(101), info(101, "game", 10))

	require.NoError(t, o.ApplyProfile(ctx, "gaming"))
	assert.True(t, o.GovernorEnabled())
	assert.True(t, o.FollowForeground())
	assert.Equal(t, "Gaming", o.Profile())
	assert.Equal(t, []platform.PowerPlan{platform.PowerPlanPerformance}, ctrl.plans)
	assert.Equal(t, 101, o.ForegroundPID())
	assert.Equal(t, model.PriorityHigh, ctrl.state(101).class)
	boost := o.Ledger(101)
	require.NotEmpty(t, boost)
	for _, rec := range boost {
		assert.Equal(t, model.SourceProfile, rec.Source)
	}

	require.NoError(t, o.ApplyProfile(ctx, "Everyday"))
	assert.False(t, o.GovernorEnabled())
	assert.False(t, o.FollowForeground())

	assert.True(t, errors.Is(o.ApplyProfile(ctx, "turbo"), ErrInvalidConfiguration))
}

func TestOrchestratorApplySuggestions(t *testing.T) {
	cfg := config.Default()
	cfg.Thresholds = model.Thresholds{BgCPU: 30, HeavyRAMMB: 100}
	o, ctrl, _ := newTestOrchestrator(t, cfg, nil, info(100, "fat", 500), info(101, "small", 10))

	outs := o.ApplySuggestions(ctx)
	require.Len(t, outs, 1)
	assert.Equal(t, 100, outs[0].PID)
	assert.Equal(t, 1, ctrl.state(100).trims)
	entries := o.Ledger(100)
	require.Len(t, entries, 1)
	assert.Equal(t, model.SourceAdvisor, entries[0].Source)
}

func TestOrchestratorRunStopsOnCancel(t *testing.T) {
	cfg := config.Default()
	cfg.SampleInterval = 100 * time.Millisecond
	o, _, _ := newTestOrchestrator(t, cfg, nil, info(100, "a", 10))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()
	time.Sleep(250 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("loops did not stop")
	}
	assert.NotNil(t, o.Snapshot())
}
