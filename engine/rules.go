package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ftahirops/xgov/model"
)

// Condition is a parsed rule "when" clause.
type Condition struct {
	Always    bool
	Scope     model.Role
	Threshold float64
}

// ParseCondition parses "always" or "<foreground|background>_cpu><threshold>".
// An empty clause means always.
func ParseCondition(s string) (Condition, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == "always" {
		return Condition{Always: true}, nil
	}
	scope, rest, ok := strings.Cut(s, "_")
	if !ok {
		return Condition{}, fmt.Errorf("condition %q: %w", s, ErrInvalidConfiguration)
	}
	metric, val, ok := strings.Cut(rest, ">")
	if !ok || strings.TrimSpace(metric) != "cpu" {
		return Condition{}, fmt.Errorf("condition %q: %w", s, ErrInvalidConfiguration)
	}
	role, ok := model.ParseRole(strings.TrimSpace(scope))
	if !ok {
		return Condition{}, fmt.Errorf("condition %q: unknown scope: %w", s, ErrInvalidConfiguration)
	}
	threshold, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
	if err != nil {
		return Condition{}, fmt.Errorf("condition %q: %w: %w", s, ErrInvalidConfiguration, err)
	}
	return Condition{Scope: role, Threshold: threshold}, nil
}

// Matches reports whether a process with role and cpu satisfies c.
func (c Condition) Matches(role model.Role, cpu float64) bool {
	if c.Always {
		return true
	}
	return role == c.Scope && cpu > c.Threshold
}

// RuleSpec maps a rule action to the action it dispatches.
func RuleSpec(r model.Rule) (model.ActionSpec, error) {
	switch strings.ToLower(strings.TrimSpace(r.Action)) {
	case model.RuleLowerPriority:
		return model.ActionSpec{Kind: model.KindPriority, Priority: model.PriorityBelowNormal, Guard: model.GuardDowngradeOnly}, nil
	case model.RuleTrim:
		return model.ActionSpec{Kind: model.KindTrim}, nil
	case model.RuleEcoThrottle:
		return model.ActionSpec{Kind: model.KindThrottle, Throttle: true}, nil
	case model.RuleContain:
		return model.ActionSpec{Kind: model.KindContain}, nil
	case model.RuleKill:
		if !r.Confirm {
			return model.ActionSpec{}, fmt.Errorf("rule %q: kill needs confirm: true: %w", r.Pattern, ErrInvalidConfiguration)
		}
		return model.ActionSpec{Kind: model.KindTerminate, Confirmed: true}, nil
	}
	return model.ActionSpec{}, fmt.Errorf("rule action %q: %w", r.Action, ErrInvalidConfiguration)
}

// ValidateRule checks both the condition and the action.
func ValidateRule(r model.Rule) error {
	if _, err := ParseCondition(r.When); err != nil {
		return err
	}
	_, err := RuleSpec(r)
	return err
}

type compiledRule struct {
	rule    model.Rule
	pattern string
	cond    Condition
	spec    model.ActionSpec
	err     error // invalid rules are kept for display but never match
}

func compileRule(r model.Rule) compiledRule {
	c := compiledRule{rule: r, pattern: strings.ToLower(strings.TrimSpace(r.Pattern))}
	c.cond, c.err = ParseCondition(r.When)
	if c.err == nil {
		c.spec, c.err = RuleSpec(r)
	}
	return c
}

// RuleMatch is one rule firing for one process.
type RuleMatch struct {
	PID  int
	Name string
	Rule model.Rule
	Spec model.ActionSpec
}

// RuleEngine evaluates user rules against snapshots and dispatches matches
// through the executor.
type RuleEngine struct {
	mu      sync.RWMutex
	rules   []compiledRule
	exec    *Executor
	limiter *rate.Limiter
	metrics *Metrics
	log     *zap.Logger
}

// NewRuleEngine creates an engine. limiter may be nil for unlimited dispatch.
func NewRuleEngine(exec *Executor, limiter *rate.Limiter, metrics *Metrics, log *zap.Logger) *RuleEngine {
	if log == nil {
		log = zap.NewNop()
	}
	return &RuleEngine{exec: exec, limiter: limiter, metrics: metrics, log: log}
}

// SetRules replaces the rule list and returns the errors of invalid rules.
func (e *RuleEngine) SetRules(rules []model.Rule) []error {
	compiled := make([]compiledRule, len(rules))
	var errs []error
	for i, r := range rules {
		compiled[i] = compileRule(r)
		if compiled[i].err != nil {
			errs = append(errs, compiled[i].err)
			e.log.Warn("invalid rule ignored", zap.String("pattern", r.Pattern), zap.Error(compiled[i].err))
		}
	}
	e.mu.Lock()
	e.rules = compiled
	e.mu.Unlock()
	return errs
}

// AddRule appends a rule. An invalid rule is kept but never matches.
func (e *RuleEngine) AddRule(r model.Rule) error {
	c := compileRule(r)
	e.mu.Lock()
	e.rules = append(e.rules, c)
	e.mu.Unlock()
	return c.err
}

// Rules returns the configured rules.
func (e *RuleEngine) Rules() []model.Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]model.Rule, len(e.rules))
	for i, c := range e.rules {
		out[i] = c.rule
	}
	return out
}

// Match evaluates every rule against snap. skip excludes whitelisted or
// protected processes.
func (e *RuleEngine) Match(snap *model.Snapshot, fgPID int, skip func(model.ProcessSnapshot) bool) []RuleMatch {
	if snap == nil {
		return nil
	}
	e.mu.RLock()
	rules := e.rules
	e.mu.RUnlock()

	var matches []RuleMatch
	for _, p := range snap.Processes {
		if skip != nil && skip(p) {
			continue
		}
		role := model.RoleBackground
		if fgPID > 0 && p.PID == fgPID {
			role = model.RoleForeground
		}
		name := strings.ToLower(p.Name)
		for _, r := range rules {
			if r.err != nil {
				continue
			}
			if r.pattern != "" && !strings.Contains(name, r.pattern) {
				continue
			}
			if !r.cond.Matches(role, p.CPUPct) {
				continue
			}
			matches = append(matches, RuleMatch{PID: p.PID, Name: p.Name, Rule: r.rule, Spec: r.spec})
		}
	}
	return matches
}

// Evaluate matches rules against snap and dispatches every match through
// the executor, subject to the rate limiter.
func (e *RuleEngine) Evaluate(ctx context.Context, snap *model.Snapshot, fgPID int, skip func(model.ProcessSnapshot) bool) []model.Outcome {
	matches := e.Match(snap, fgPID, func(p model.ProcessSnapshot) bool {
		if e.exec != nil && e.exec.Protected(p) {
			return true
		}
		return skip != nil && skip(p)
	})
	var outcomes []model.Outcome
	for _, m := range matches {
		if ctx.Err() != nil {
			break
		}
		e.metrics.ruleMatch(m.Rule.Action)
		if e.limiter != nil && !e.limiter.Allow() {
			e.metrics.ruleDrop()
			e.log.Debug("rule dispatch rate limited", zap.Int("pid", m.PID), zap.String("action", m.Rule.Action))
			continue
		}
		if e.exec == nil {
			continue
		}
		outcomes = append(outcomes, e.exec.Execute(ctx, m.PID, m.Spec, model.SourceRule))
	}
	return outcomes
}
