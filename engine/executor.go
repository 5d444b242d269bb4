package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/ftahirops/xgov/model"
	"github.com/ftahirops/xgov/platform"
)

// GovernanceGroup is the name of the long-lived group that contain targets.
const GovernanceGroup = "xgov.slice"

// DefaultProtectedNames are never acted on.
var DefaultProtectedNames = []string{
	"systemd", "init", "kthreadd", "sshd", "systemd-journald", "systemd-logind",
	"systemd-udevd", "dbus-daemon", "dbus-broker", "Xorg", "Xwayland",
	"gnome-shell", "kwin_wayland", "plasmashell", "containerd", "dockerd",
	"kubelet", "xgov",
}

// ProcessLookup resolves a pid to its current snapshot.
type ProcessLookup func(ctx context.Context, pid int) (model.ProcessSnapshot, error)

// ExecutorConfig wires an Executor.
type ExecutorConfig struct {
	Controller     platform.Controller
	Ledger         *UndoLedger
	Effects        *EffectsTracker
	Lookup         ProcessLookup
	Events         *EventBus
	Metrics        *Metrics
	Logger         *zap.Logger
	ProtectedNames []string // defaults to DefaultProtectedNames
	SelfPID        int      // defaults to os.Getpid()
	ParentPID      int      // defaults to os.Getppid()
}

// Executor is the single path through which processes are mutated.
type Executor struct {
	ctrl      platform.Controller
	ledger    *UndoLedger
	effects   *EffectsTracker
	lookup    ProcessLookup
	events    *EventBus
	metrics   *Metrics
	log       *zap.Logger
	protected map[string]bool
	selfPID   int
	parentPID int

	groupMu   sync.Mutex
	groupPath string
}

// NewExecutor creates an executor.
func NewExecutor(cfg ExecutorConfig) *Executor {
	names := cfg.ProtectedNames
	if names == nil {
		names = DefaultProtectedNames
	}
	e := &Executor{
		ctrl:      cfg.Controller,
		ledger:    cfg.Ledger,
		effects:   cfg.Effects,
		lookup:    cfg.Lookup,
		events:    cfg.Events,
		metrics:   cfg.Metrics,
		log:       cfg.Logger,
		protected: make(map[string]bool, len(names)),
		selfPID:   cfg.SelfPID,
		parentPID: cfg.ParentPID,
	}
	for _, n := range names {
		e.protected[strings.ToLower(n)] = true
	}
	if e.selfPID == 0 {
		e.selfPID = os.Getpid()
	}
	if e.parentPID == 0 {
		e.parentPID = os.Getppid()
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}
	if e.ledger == nil {
		e.ledger = NewUndoLedger(0)
	}
	if e.effects == nil {
		e.effects = NewEffectsTracker(nil, nil, e.log)
	}
	if e.events == nil {
		e.events = NewEventBus(0, nil, e.metrics)
	}
	return e
}

// Protected reports whether p must never be acted on.
func (e *Executor) Protected(p model.ProcessSnapshot) bool {
	if p.PID <= 2 || p.PPID == 2 {
		return true
	}
	if p.PID == e.selfPID || p.PID == e.parentPID {
		return true
	}
	return e.protected[strings.ToLower(p.Name)]
}

// accessFor is the minimal access each kind needs.
func accessFor(kind model.ActionKind) platform.Access {
	switch kind {
	case model.KindPriority, model.KindAffinity:
		return platform.AccessQueryInformation | platform.AccessSetInformation
	case model.KindMemPrio, model.KindThrottle:
		return platform.AccessSetInformation
	case model.KindTrim:
		return platform.AccessQueryInformation | platform.AccessSetQuota
	case model.KindContain:
		return platform.AccessQueryInformation | platform.AccessSetQuota
	case model.KindSuspend, model.KindResume:
		return platform.AccessSuspendResume
	case model.KindTerminate:
		return platform.AccessTerminate
	}
	return 0
}

// tracksEffect reports whether a kind gets a before/after measurement.
func tracksEffect(kind model.ActionKind) bool {
	switch kind {
	case model.KindPriority, model.KindMemPrio, model.KindTrim, model.KindAffinity:
		return true
	}
	return false
}

// Execute applies spec to pid and reports the outcome. It never panics on OS
// failure; every failure is folded into the outcome.
func (e *Executor) Execute(ctx context.Context, pid int, spec model.ActionSpec, source model.Source) model.Outcome {
	out := e.execute(ctx, pid, spec, source)
	e.metrics.action(string(spec.Kind), string(out.Status), string(source))
	switch out.Status {
	case model.StatusOK:
		e.log.Info("action applied",
			zap.Int("pid", pid), zap.String("action", spec.Label()), zap.String("source", string(source)))
	case model.StatusFailed:
		e.log.Warn("action failed",
			zap.Int("pid", pid), zap.String("action", spec.Label()), zap.String("source", string(source)), zap.Error(out.Err))
	default:
		e.log.Debug("action not applied",
			zap.Int("pid", pid), zap.String("action", spec.Label()), zap.String("status", string(out.Status)), zap.String("reason", out.Reason))
	}
	return out
}

func (e *Executor) execute(ctx context.Context, pid int, spec model.ActionSpec, source model.Source) model.Outcome {
	if access := accessFor(spec.Kind); access == 0 {
		return outcome(pid, spec.Kind, fmt.Errorf("action %q: %w", spec.Kind, ErrInvalidConfiguration))
	}
	target, err := e.lookup(ctx, pid)
	if err != nil {
		return outcome(pid, spec.Kind, lookupError(pid, err))
	}
	if spec.Kind != model.KindResume && e.Protected(target) {
		return outcome(pid, spec.Kind, fmt.Errorf("%s (pid %d): %w", target.Name, pid, ErrProtected))
	}
	if spec.Kind == model.KindTerminate && !spec.Confirmed {
		return outcome(pid, spec.Kind, fmt.Errorf("terminate pid %d: %w", pid, ErrConfirmationRequired))
	}

	var mask uint64
	switch spec.Kind {
	case model.KindMemPrio:
		if !spec.MemoryLevel.Valid() {
			return outcome(pid, spec.Kind, fmt.Errorf("memory priority %d: %w", spec.MemoryLevel, ErrInvalidConfiguration))
		}
	case model.KindPriority:
		if !spec.Priority.Valid() {
			return outcome(pid, spec.Kind, fmt.Errorf("priority class %d: %w", spec.Priority, ErrInvalidConfiguration))
		}
	case model.KindAffinity:
		m, err := AffinityMask(spec.AffinityPreset, e.ctrl.CoreCount())
		if err != nil {
			return outcome(pid, spec.Kind, err)
		}
		mask = m
	}

	var group string
	if spec.Kind == model.KindContain {
		g, err := e.ensureGroup()
		if err != nil {
			return outcome(pid, spec.Kind, err)
		}
		group = g
	}

	prior, noop, err := e.apply(pid, spec, mask, group)
	if err != nil {
		return outcome(pid, spec.Kind, err)
	}
	if noop {
		return model.Outcome{PID: pid, Kind: spec.Kind, Status: model.StatusNoop, Reason: "already in requested state"}
	}

	if spec.Kind != model.KindResume && spec.Kind != model.KindTerminate {
		e.ledger.Push(pid, target.StartTime, spec.Kind, prior, source)
	}
	if tracksEffect(spec.Kind) {
		e.effects.Baseline(pid, spec.Label(), target.CPUPct, target.RSSMB())
	}
	e.events.Publish(model.EventAction, pid, "%s on %s (pid %d) [%s]", spec.Label(), target.Name, pid, source)
	return model.Outcome{PID: pid, Kind: spec.Kind, Status: model.StatusOK}
}

// apply opens the handle, captures prior state, performs the write and
// closes the handle on every path.
func (e *Executor) apply(pid int, spec model.ActionSpec, mask uint64, group string) (prior model.PriorState, noop bool, err error) {
	h, err := e.ctrl.Open(pid, accessFor(spec.Kind))
	if err != nil {
		return nil, false, err
	}
	defer h.Close()

	switch spec.Kind {
	case model.KindPriority:
		cur, err := h.PriorityClass()
		if err != nil {
			return nil, false, err
		}
		if cur == spec.Priority ||
			(spec.Guard == model.GuardDowngradeOnly && cur <= spec.Priority) ||
			(spec.Guard == model.GuardUpgradeOnly && cur >= spec.Priority) {
			return nil, true, nil
		}
		return model.PriorPriority{Class: cur}, false, h.SetPriorityClass(spec.Priority)

	case model.KindMemPrio:
		return model.PriorMemoryPriority{Level: model.MemoryPriorityNormal}, false, h.SetMemoryPriority(spec.MemoryLevel)

	case model.KindTrim:
		return nil, false, h.TrimWorkingSet()

	case model.KindAffinity:
		cur, err := h.Affinity()
		if err != nil {
			return nil, false, err
		}
		if cur == mask {
			return nil, true, nil
		}
		return model.PriorAffinity{Mask: cur}, false, h.SetAffinity(mask)

	case model.KindThrottle:
		if err := h.SetPowerThrottle(spec.Throttle); err != nil {
			// best effort: any refusal is reported as unsupported, never failed
			if !errors.Is(err, platform.ErrProcessVanished) {
				err = fmt.Errorf("power throttle: %w: %w", platform.ErrUnsupported, err)
			}
			return nil, false, err
		}
		return model.PriorThrottle{On: !spec.Throttle}, false, nil

	case model.KindContain:
		cur, err := h.Group()
		if err != nil {
			return nil, false, err
		}
		if cur == group {
			return nil, true, nil
		}
		return model.PriorGroup{Path: cur}, false, h.JoinGroup(group)

	case model.KindSuspend:
		return model.PriorSuspend{}, false, h.Suspend()

	case model.KindResume:
		return nil, false, h.Resume()

	case model.KindTerminate:
		return nil, false, h.Terminate()
	}
	return nil, false, fmt.Errorf("action %q: %w", spec.Kind, ErrInvalidConfiguration)
}

func (e *Executor) ensureGroup() (string, error) {
	e.groupMu.Lock()
	defer e.groupMu.Unlock()
	if e.groupPath != "" {
		return e.groupPath, nil
	}
	path, err := e.ctrl.EnsureGroup(GovernanceGroup)
	if err != nil {
		return "", fmt.Errorf("governance group: %w", err)
	}
	e.groupPath = path
	return path, nil
}

// Revert pops every ledger entry recorded for the process currently
// running as pid and restores each prior state in push order. Entries left
// by an earlier process that owned the same pid are discarded unapplied.
// Kinds without prior state are skipped. It returns the kinds restored.
func (e *Executor) Revert(ctx context.Context, pid int) ([]model.ActionKind, error) {
	if len(e.ledger.Entries(pid)) == 0 {
		return nil, nil
	}
	target, err := e.lookup(ctx, pid)
	if err != nil {
		err = lookupError(pid, err)
		if errors.Is(err, platform.ErrProcessVanished) {
			e.ledger.PopAllForPID(pid)
		}
		return nil, fmt.Errorf("revert: %w", err)
	}

	var entries, stale []model.ActionRecord
	for _, rec := range e.ledger.PopAllForPID(pid) {
		if rec.StartTime != target.StartTime {
			stale = append(stale, rec)
			continue
		}
		entries = append(entries, rec)
	}
	if len(stale) > 0 {
		e.log.Info("revert: discarded entries of an exited process",
			zap.Int("pid", pid), zap.Int("entries", len(stale)))
		if len(entries) == 0 {
			return nil, fmt.Errorf("revert pid %d: recorded process exited, pid now belongs to %s: %w",
				pid, target.Name, platform.ErrProcessVanished)
		}
	}

	var access platform.Access
	for _, rec := range entries {
		switch rec.Prior.(type) {
		case nil:
		case model.PriorSuspend:
			access |= platform.AccessSuspendResume
		case model.PriorGroup:
			access |= platform.AccessSetQuota
		default:
			access |= platform.AccessSetInformation
		}
	}
	if access == 0 {
		return nil, nil
	}

	h, err := e.ctrl.Open(pid, access)
	if err != nil {
		if !errors.Is(err, platform.ErrProcessVanished) {
			e.ledger.Requeue(entries)
		}
		e.log.Warn("revert: open failed", zap.Int("pid", pid), zap.Error(err))
		return nil, fmt.Errorf("revert pid %d: %w", pid, err)
	}
	defer h.Close()

	var (
		kinds []model.ActionKind
		errs  []error
	)
	for _, rec := range entries {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		var err error
		switch prior := rec.Prior.(type) {
		case nil:
			continue
		case model.PriorPriority:
			err = h.SetPriorityClass(prior.Class)
		case model.PriorMemoryPriority:
			err = h.SetMemoryPriority(prior.Level)
		case model.PriorAffinity:
			err = h.SetAffinity(prior.Mask)
		case model.PriorGroup:
			err = h.JoinGroup(prior.Path)
		case model.PriorThrottle:
			err = h.SetPowerThrottle(prior.On)
		case model.PriorSuspend:
			err = h.Resume()
		default:
			err = fmt.Errorf("unknown prior state %T", prior)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("restore %s: %w", rec.Kind, err))
			continue
		}
		kinds = append(kinds, rec.Kind)
	}
	e.metrics.revert(len(kinds))
	if len(kinds) > 0 {
		e.events.Publish(model.EventRevert, pid, "reverted %s on pid %d", joinKinds(kinds), pid)
		e.log.Info("reverted", zap.Int("pid", pid), zap.Int("restored", len(kinds)))
	}
	return kinds, errors.Join(errs...)
}

// Ledger exposes the executor's ledger for read-only queries.
func (e *Executor) Ledger() *UndoLedger { return e.ledger }

// Effects exposes the executor's effects tracker.
func (e *Executor) Effects() *EffectsTracker { return e.effects }

func joinKinds(kinds []model.ActionKind) string {
	s := make([]string, len(kinds))
	for i, k := range kinds {
		s[i] = string(k)
	}
	return strings.Join(s, ",")
}

// lookupError keeps a permission failure distinct and treats any other
// lookup failure as the process having exited.
func lookupError(pid int, err error) error {
	if errors.Is(err, platform.ErrPermissionDenied) || errors.Is(err, platform.ErrProcessVanished) {
		return fmt.Errorf("lookup pid %d: %w", pid, err)
	}
	return fmt.Errorf("lookup pid %d: %w: %w", pid, platform.ErrProcessVanished, err)
}

// outcome classifies err into a per-target outcome.
func outcome(pid int, kind model.ActionKind, err error) model.Outcome {
	o := model.Outcome{PID: pid, Kind: kind, Err: err, Reason: err.Error()}
	switch {
	case errors.Is(err, platform.ErrProcessVanished):
		o.Status = model.StatusSkipped
	case errors.Is(err, platform.ErrUnsupported):
		o.Status = model.StatusUnsupported
	case errors.Is(err, ErrProtected), errors.Is(err, ErrConfirmationRequired), errors.Is(err, ErrInvalidConfiguration):
		o.Status = model.StatusRefused
	default:
		o.Status = model.StatusFailed
	}
	return o
}
