package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/ftahirops/xgov/collector"
	"github.com/ftahirops/xgov/config"
	"github.com/ftahirops/xgov/model"
	"github.com/ftahirops/xgov/platform"
)

// State file names under the state directory.
const (
	EffectsHistoryFile = "effects_history.json"
	EventLogFile       = "events.jsonl"
)

// Options wires an Orchestrator. Controller and Source are required.
type Options struct {
	Controller platform.Controller
	Source     collector.ProcessSource
	Foreground platform.Foreground // nil means no foreground process
	Config     config.Config
	Logger     *zap.Logger
	Registerer prometheus.Registerer // nil uses a private registry
	// StateDir holds effect history and the event log. Empty disables persistence.
	StateDir string
	// MemoryUsage reports machine-wide used memory percent for the advisor.
	MemoryUsage func(context.Context) (float64, error)
	SelfPID     int
	ParentPID   int
}

// Orchestrator owns all engine state and runs the periodic loops.
type Orchestrator struct {
	log        *zap.Logger
	ctrl       platform.Controller
	foreground platform.Foreground
	memUsage   func(context.Context) (float64, error)

	sampler  *collector.Sampler
	health   *HealthWatcher
	ledger   *UndoLedger
	effects  *EffectsTracker
	exec     *Executor
	rules    *RuleEngine
	governor *Governor
	follower *ForegroundFollower
	events   *EventBus
	metrics  *Metrics

	fgPID atomic.Int64

	mu         sync.RWMutex
	sortKey    model.SortKey
	thresholds model.Thresholds
	whitelist  map[string]bool
	profile    string
	intervals  intervals
}

type intervals struct {
	sample, refresh, foreground, settle, rules time.Duration
}

// New builds an orchestrator and loads persisted effect history.
func New(opts Options) (*Orchestrator, error) {
	if opts.Controller == nil || opts.Source == nil {
		return nil, errors.New("orchestrator needs a controller and a process source")
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	fg := opts.Foreground
	if fg == nil {
		fg = platform.StaticForeground(0)
	}
	cfg := opts.Config
	cfg.Validate()

	metrics := NewMetrics(reg)
	var (
		store *HistoryStore
		sink  *EventLogWriter
	)
	if opts.StateDir != "" {
		store = NewHistoryStore(filepath.Join(opts.StateDir, EffectsHistoryFile))
		sink = NewEventLogWriter(filepath.Join(opts.StateDir, EventLogFile))
	}

	o := &Orchestrator{
		log:        log,
		ctrl:       opts.Controller,
		foreground: fg,
		memUsage:   opts.MemoryUsage,
		sampler:    collector.NewSampler(opts.Source, opts.Controller.CoreCount(), log.Named("sampler")),
		health:     NewHealthWatcher(),
		ledger:     NewUndoLedger(cfg.LedgerCapacity),
		events:     NewEventBus(200, sink, metrics),
		metrics:    metrics,
	}
	if o.memUsage == nil {
		o.memUsage = func(context.Context) (float64, error) { return -1, nil }
	}
	o.effects = NewEffectsTracker(NewHistory(cfg.HistorySize), store, log.Named("effects"))
	o.exec = NewExecutor(ExecutorConfig{
		Controller: opts.Controller,
		Ledger:     o.ledger,
		Effects:    o.effects,
		Lookup:     o.lookup,
		Events:     o.events,
		Metrics:    metrics,
		Logger:     log.Named("executor"),
		SelfPID:    opts.SelfPID,
		ParentPID:  opts.ParentPID,
	})
	o.rules = NewRuleEngine(o.exec,
		rate.NewLimiter(rate.Limit(cfg.RuleActionsPerSec), cfg.RuleBurst),
		metrics, log.Named("rules"))
	o.governor = NewGovernor(o.exec, cfg.GovernorTail, log.Named("governor"))
	o.follower = NewForegroundFollower(o.exec)
	o.ApplyConfig(cfg)

	if err := o.effects.LoadHistory(); err != nil {
		log.Warn("effect history not loaded", zap.Error(err))
	}
	return o, nil
}

// ApplyConfig pushes reloadable settings into the running engine.
func (o *Orchestrator) ApplyConfig(cfg config.Config) {
	cfg.Validate()
	o.SetRules(cfg.Rules)
	o.SetThresholds(cfg.Thresholds)
	o.SetWhitelist(cfg.Whitelist)
	o.SetSort(model.ParseSortKey(cfg.Sort))
	o.governor.SetEnabled(cfg.GovernorEnabled)
	o.follower.SetEnabled(cfg.FollowForeground)
	o.effects.SetSettleDelay(cfg.SettleDelay)

	o.mu.Lock()
	o.intervals = intervals{
		sample:     cfg.SampleInterval,
		refresh:    cfg.RefreshInterval,
		foreground: cfg.ForegroundInterval,
		settle:     cfg.SettleInterval,
		rules:      cfg.RulesInterval,
	}
	o.mu.Unlock()
}

func (o *Orchestrator) interval(pick func(intervals) time.Duration) func() time.Duration {
	return func() time.Duration {
		o.mu.RLock()
		defer o.mu.RUnlock()
		return pick(o.intervals)
	}
}

// Run samples once, then runs every loop until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.SampleOnce(ctx)
	o.log.Info("engine started", zap.Int("cores", o.sampler.CoreCount()))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return every(ctx, o.interval(func(i intervals) time.Duration { return i.sample }), o.SampleOnce)
	})
	g.Go(func() error {
		return every(ctx, o.interval(func(i intervals) time.Duration { return i.refresh }), o.RefreshOnce)
	})
	g.Go(func() error {
		return every(ctx, o.interval(func(i intervals) time.Duration { return i.foreground }), o.FollowOnce)
	})
	g.Go(func() error {
		return every(ctx, o.interval(func(i intervals) time.Duration { return i.settle }), o.SettleOnce)
	})
	g.Go(func() error {
		return every(ctx, o.interval(func(i intervals) time.Duration { return i.rules }), o.RulesOnce)
	})
	err := g.Wait()
	o.log.Info("engine stopped")
	return err
}

// SampleOnce takes one snapshot.
func (o *Orchestrator) SampleOnce(ctx context.Context) {
	start := time.Now()
	snap, err := o.sampler.Sample(ctx, int(o.fgPID.Load()))
	if err != nil {
		o.log.Warn("sample failed", zap.Error(err))
		return
	}
	o.metrics.sample(time.Since(start), len(snap.Processes))
}

// WarmUp takes two samples one sample interval apart so the snapshot
// carries measured CPU percentages instead of the 0 of a first sighting.
func (o *Orchestrator) WarmUp(ctx context.Context) error {
	o.SampleOnce(ctx)
	t := time.NewTimer(o.interval(func(i intervals) time.Duration { return i.sample })())
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
		return ctx.Err()
	}
	o.SampleOnce(ctx)
	return nil
}

// RefreshOnce feeds health windows, evicts state of exited processes and
// runs the governor over the current ordering.
func (o *Orchestrator) RefreshOnce(ctx context.Context) {
	snap := o.sampler.Latest()
	if snap == nil {
		return
	}
	o.health.IngestSnapshot(snap)
	live := livePIDs(snap)
	o.metrics.evict("health", o.health.EvictAbsent(live))
	o.metrics.evict("governor", o.governor.EvictAbsent(live))

	o.governor.Apply(ctx, SortProcesses(snap.Processes, o.SortKey()), o.Whitelisted)
	o.metrics.state(o.ledger.Len(), len(o.effects.Pending()), o.governor.Len(), o.health.Len())
}

// FollowOnce refreshes the cached foreground pid and boosts it when
// following is on.
func (o *Orchestrator) FollowOnce(ctx context.Context) {
	o.follow(ctx, model.SourceForeground)
}

func (o *Orchestrator) follow(ctx context.Context, source model.Source) {
	pid, ok := o.foreground.ForegroundPID(ctx)
	if !ok {
		pid = 0
	}
	o.fgPID.Store(int64(pid))
	if pid == 0 || !o.follower.Enabled() {
		return
	}
	p, err := o.sampler.Probe(ctx, pid, pid)
	if err != nil {
		return
	}
	if o.Whitelisted(p) {
		return
	}
	o.follower.Follow(ctx, p, source)
}

// SettleOnce garbage-collects orphaned baselines and finalizes the rest.
func (o *Orchestrator) SettleOnce(ctx context.Context) {
	snap := o.sampler.Latest()
	if snap == nil {
		return
	}
	o.metrics.evict("effects", o.effects.EvictAbsent(livePIDs(snap)))
	for _, rec := range o.effects.Settle(snap) {
		o.metrics.effect(rec.Action, rec.DCPU)
		o.log.Info("effect measured",
			zap.Int("pid", rec.PID), zap.String("action", rec.Action),
			zap.Float64("d_cpu", rec.DCPU), zap.Float64("d_mem_mb", rec.DMem))
		o.events.Publish(model.EventEffect, rec.PID, "%s on pid %d: CPU %s, MEM %s",
			rec.Action, rec.PID, signed(rec.DCPU, "%.1f%%"), signed(rec.DMem, "%.0f MB"))
	}
}

// RulesOnce evaluates rules against the latest snapshot with a fresh
// foreground query.
func (o *Orchestrator) RulesOnce(ctx context.Context) {
	snap := o.sampler.Latest()
	if snap == nil {
		return
	}
	fg, _ := o.foreground.ForegroundPID(ctx)
	o.rules.Evaluate(ctx, snap, fg, o.Whitelisted)
}

func (o *Orchestrator) lookup(ctx context.Context, pid int) (model.ProcessSnapshot, error) {
	return o.sampler.Probe(ctx, pid, int(o.fgPID.Load()))
}

// --- query surface ---

// Snapshot returns the latest published snapshot, or nil before the first sample.
func (o *Orchestrator) Snapshot() *model.Snapshot { return o.sampler.Latest() }

// Processes returns the non-whitelisted processes ordered by key and
// filtered by term.
func (o *Orchestrator) Processes(key model.SortKey, term string) []model.ProcessSnapshot {
	snap := o.sampler.Latest()
	if snap == nil {
		return nil
	}
	var visible []model.ProcessSnapshot
	for _, p := range snap.Processes {
		if !o.Whitelisted(p) {
			visible = append(visible, p)
		}
	}
	return SortProcesses(FilterProcesses(visible, term), key)
}

// Health returns flags for every tracked pid.
func (o *Orchestrator) Health() map[int]model.HealthFlags { return o.health.All() }

// HealthFor returns flags for one pid.
func (o *Orchestrator) HealthFor(pid int) model.HealthFlags {
	f, _ := o.health.Flags(pid)
	return f
}

// EffectHistory returns up to n of the newest effect records.
func (o *Orchestrator) EffectHistory(n int) []model.EffectRecord { return o.effects.History(n) }

// Ledger returns the ledger entries for pid, or all entries when pid is 0.
func (o *Orchestrator) Ledger(pid int) []model.ActionRecord { return o.ledger.Entries(pid) }

// Suggestions runs the advisor over the latest snapshot.
func (o *Orchestrator) Suggestions(ctx context.Context) []model.Suggestion {
	memPct, err := o.memUsage(ctx)
	if err != nil {
		memPct = -1
	}
	return SuggestActions(o.sampler.Latest(), o.Thresholds(), o.health.All(), memPct, func(p model.ProcessSnapshot) bool {
		return o.Whitelisted(p) || o.exec.Protected(p)
	})
}

// Rules returns the configured rules.
func (o *Orchestrator) Rules() []model.Rule { return o.rules.Rules() }

// Thresholds returns the advisor thresholds.
func (o *Orchestrator) Thresholds() model.Thresholds {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.thresholds
}

// Whitelist returns the user whitelist.
func (o *Orchestrator) Whitelist() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]string, 0, len(o.whitelist))
	for n := range o.whitelist {
		out = append(out, n)
	}
	return out
}

// Whitelisted reports whether p's name is on the user whitelist.
func (o *Orchestrator) Whitelisted(p model.ProcessSnapshot) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.whitelist[strings.ToLower(p.Name)]
}

// Protected reports whether the executor refuses to act on p.
func (o *Orchestrator) Protected(p model.ProcessSnapshot) bool { return o.exec.Protected(p) }

// GovernorEnabled reports the governor state.
func (o *Orchestrator) GovernorEnabled() bool { return o.governor.Enabled() }

// FollowForeground reports whether foreground follow is on.
func (o *Orchestrator) FollowForeground() bool { return o.follower.Enabled() }

// ForegroundPID is the last observed foreground pid, 0 if none.
func (o *Orchestrator) ForegroundPID() int { return int(o.fgPID.Load()) }

// SortKey returns the current ordering.
func (o *Orchestrator) SortKey() model.SortKey {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.sortKey
}

// Profile returns the name of the last applied profile.
func (o *Orchestrator) Profile() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.profile
}

// Events subscribes to engine events. Call cancel when done.
func (o *Orchestrator) Events() (<-chan model.Event, func()) { return o.events.Subscribe(128) }

// RecentEvents returns the last events published.
func (o *Orchestrator) RecentEvents() []model.Event { return o.events.Recent() }

// --- command surface ---

// ApplyAction applies spec to each pid independently.
func (o *Orchestrator) ApplyAction(ctx context.Context, pids []int, spec model.ActionSpec) []model.Outcome {
	out := make([]model.Outcome, 0, len(pids))
	for _, pid := range pids {
		out = append(out, o.exec.Execute(ctx, pid, spec, model.SourceManual))
	}
	return out
}

// RevertPID restores everything recorded for pid and clears its governed mark.
func (o *Orchestrator) RevertPID(ctx context.Context, pid int) ([]model.ActionKind, error) {
	kinds, err := o.exec.Revert(ctx, pid)
	o.governor.Forget(pid)
	return kinds, err
}

// ToggleGovernor switches the governor.
func (o *Orchestrator) ToggleGovernor(on bool) {
	o.governor.SetEnabled(on)
	o.events.Publish(model.EventInfo, 0, "governor %s", onOff(on))
}

// SetFollowForeground switches foreground follow.
func (o *Orchestrator) SetFollowForeground(on bool) {
	o.follower.SetEnabled(on)
	o.events.Publish(model.EventInfo, 0, "foreground follow %s", onOff(on))
}

// SetRules replaces the rules. Invalid rules are kept but never match.
func (o *Orchestrator) SetRules(rules []model.Rule) []error { return o.rules.SetRules(rules) }

// AddRule appends one rule.
func (o *Orchestrator) AddRule(r model.Rule) error { return o.rules.AddRule(r) }

// SetThresholds replaces the advisor thresholds. Out-of-range values are
// ignored and false is returned.
func (o *Orchestrator) SetThresholds(th model.Thresholds) bool {
	if !th.Valid() {
		o.log.Debug("thresholds ignored", zap.Float64("bg_cpu", th.BgCPU), zap.Float64("heavy_ram_mb", th.HeavyRAMMB))
		return false
	}
	o.mu.Lock()
	o.thresholds = th
	o.mu.Unlock()
	return true
}

// SetWhitelist replaces the user whitelist.
func (o *Orchestrator) SetWhitelist(names []string) {
	wl := make(map[string]bool, len(names))
	for _, n := range names {
		if n = strings.ToLower(strings.TrimSpace(n)); n != "" {
			wl[n] = true
		}
	}
	o.mu.Lock()
	o.whitelist = wl
	o.mu.Unlock()
}

// SetSort changes the ordering used by the governor and the display.
func (o *Orchestrator) SetSort(key model.SortKey) {
	o.mu.Lock()
	o.sortKey = key
	o.mu.Unlock()
}

// ApplyProfile applies a named profile. The power plan is best-effort.
func (o *Orchestrator) ApplyProfile(ctx context.Context, name string) error {
	p, ok := LookupProfile(name)
	if !ok {
		return fmt.Errorf("profile %q: %w", name, ErrInvalidConfiguration)
	}
	if err := o.ctrl.SetPowerPlan(p.PowerPlan); err != nil {
		o.log.Warn("power plan not applied", zap.String("plan", string(p.PowerPlan)), zap.Error(err))
	}
	o.governor.SetEnabled(p.Governor)
	o.follower.SetClass(p.ForegroundClass)
	o.follower.SetEnabled(p.Follow)

	o.mu.Lock()
	o.profile = p.Name
	o.mu.Unlock()
	o.events.Publish(model.EventInfo, 0, "profile %s applied", p.Name)
	o.log.Info("profile applied", zap.String("profile", p.Name))

	if p.Follow {
		o.follow(ctx, model.SourceProfile)
	}
	return nil
}

// ApplySuggestions dispatches every actionable advisor suggestion once.
func (o *Orchestrator) ApplySuggestions(ctx context.Context) []model.Outcome {
	type key struct {
		pid    int
		action string
	}
	seen := make(map[key]bool)
	var out []model.Outcome
	for _, s := range o.Suggestions(ctx) {
		k := key{s.PID, s.Action}
		if s.Action == "" || seen[k] {
			continue
		}
		seen[k] = true
		spec, err := RuleSpec(model.Rule{Action: s.Action})
		if err != nil {
			continue
		}
		out = append(out, o.exec.Execute(ctx, s.PID, spec, model.SourceAdvisor))
	}
	return out
}

func livePIDs(snap *model.Snapshot) map[int]bool {
	live := make(map[int]bool, len(snap.Processes))
	for _, p := range snap.Processes {
		live[p.PID] = true
	}
	return live
}

func signed(v float64, format string) string {
	arrow := "↑"
	if v < 0 {
		arrow = "↓"
		v = -v
	}
	return arrow + fmt.Sprintf(format, v)
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
