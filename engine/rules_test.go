package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/ftahirops/xgov/model"
)

func TestConditionMatches(t *testing.T) {
	tests := []struct {
		cond string
		role model.Role
		cpu  float64
		want bool
	}{
		{"background_cpu>30", model.RoleBackground, 31, true},
		{"background_cpu>30", model.RoleBackground, 30, false},
		{"background_cpu>30", model.RoleForeground, 90, false},
		{"foreground_cpu>10", model.RoleForeground, 11, true},
		{"Background_CPU > 5", model.RoleBackground, 6, true},
		{"always", model.RoleForeground, 0, true},
		{"always", model.RoleBackground, 99, true},
		{"bogus", model.RoleBackground, 99, false},
		{"background_ram>30", model.RoleBackground, 99, false},
		{"sideways_cpu>1", model.RoleBackground, 99, false},
		{"background_cpu>lots", model.RoleBackground, 99, false},
	}
	for _, tt := range tests {
		t.Run(tt.cond, func(t *testing.T) {
			c, err := ParseCondition(tt.cond)
			// malformed clauses fail closed
			assert.Equal(t, tt.want, err == nil && c.Matches(tt.role, tt.cpu))
		})
	}
}

func TestParseConditionErrors(t *testing.T) {
	_, err := ParseCondition("bogus")
	assert.True(t, errors.Is(err, ErrInvalidConfiguration))
	c, err := ParseCondition("")
	require.NoError(t, err)
	assert.True(t, c.Always)
}

func TestRuleSpecKillNeedsConfirm(t *testing.T) {
	_, err := RuleSpec(model.Rule{Pattern: "miner", Action: model.RuleKill})
	assert.True(t, errors.Is(err, ErrInvalidConfiguration))

	spec, err := RuleSpec(model.Rule{Pattern: "miner", Action: model.RuleKill, Confirm: true})
	require.NoError(t, err)
	assert.Equal(t, model.KindTerminate, spec.Kind)
	assert.True(t, spec.Confirmed)

	spec, err = RuleSpec(model.Rule{Action: "LOWER_PRIORITY"})
	require.NoError(t, err)
	assert.Equal(t, model.GuardDowngradeOnly, spec.Guard)
}

func TestRuleEngineMatch(t *testing.T) {
	e := NewRuleEngine(nil, nil, nil, nil)
	errs := e.SetRules([]model.Rule{
		{Pattern: "chrome", When: "background_cpu>30", Action: model.RuleLowerPriority},
		{Pattern: "", When: "always", Action: model.RuleTrim},
		{Pattern: "chrome", When: "bogus", Action: model.RuleTrim},
		{Pattern: "miner", When: "always", Action: model.RuleKill},
	})
	assert.Len(t, errs, 2)
	assert.Len(t, e.Rules(), 4)

	snap := &model.Snapshot{Processes: []model.ProcessSnapshot{
		{PID: 10, Name: "Chrome", CPUPct: 45},
		{PID: 11, Name: "chrome", CPUPct: 45},
		{PID: 12, Name: "miner", CPUPct: 99},
		{PID: 13, Name: "skipme", CPUPct: 99},
	}}
	matches := e.Match(snap, 11, func(p model.ProcessSnapshot) bool { return p.Name == "skipme" })

	got := map[int][]string{}
	for _, m := range matches {
		got[m.PID] = append(got[m.PID], m.Rule.Action)
	}
	// pid 10 matches two rules in one pass; the foreground chrome only the catch-all
	assert.Equal(t, []string{model.RuleLowerPriority, model.RuleTrim}, got[10])
	assert.Equal(t, []string{model.RuleTrim}, got[11])
	assert.Equal(t, []string{model.RuleTrim}, got[12])
	assert.NotContains(t, got, 13)
}

func TestRuleEngineEvaluateDispatches(t *testing.T) {
	ctrl := newFakeController(4)
	ex := newTestExecutor(ctrl, proc(10, "chrome"), proc(20, "sshd"))
	e := NewRuleEngine(ex, rate.NewLimiter(rate.Inf, 0), nil, nil)
	require.Nil(t, e.SetRules(model.DefaultRules()))
	require.NoError(t, e.AddRule(model.Rule{Pattern: "sshd", When: "always", Action: model.RuleTrim}))

	snap := &model.Snapshot{Processes: []model.ProcessSnapshot{
		{PID: 10, PPID: 1, Name: "chrome", CPUPct: 45},
		{PID: 20, PPID: 1, Name: "sshd", CPUPct: 45},
	}}
	outcomes := e.Evaluate(ctx, snap, 0, nil)
	require.Len(t, outcomes, 1)
	assert.Equal(t, model.StatusOK, outcomes[0].Status)
	assert.Equal(t, model.PriorityBelowNormal, ctrl.state(10).class)
	assert.Zero(t, ctrl.state(20).trims, "protected processes are skipped")

	// already below normal: the second pass is a noop and adds no ledger entry
	outcomes = e.Evaluate(ctx, snap, 0, nil)
	require.Len(t, outcomes, 1)
	assert.Equal(t, model.StatusNoop, outcomes[0].Status)
	assert.Equal(t, 1, ex.Ledger().Len())
}

func TestRuleEngineRateLimit(t *testing.T) {
	ctrl := newFakeController(4)
	ex := newTestExecutor(ctrl, proc(10, "a"), proc(11, "b"), proc(12, "c"))
	e := NewRuleEngine(ex, rate.NewLimiter(0, 2), nil, nil)
	e.SetRules([]model.Rule{{When: "always", Action: model.RuleTrim}})

	snap := &model.Snapshot{Processes: []model.ProcessSnapshot{
		{PID: 10, PPID: 1, Name: "a"}, {PID: 11, PPID: 1, Name: "b"}, {PID: 12, PPID: 1, Name: "c"},
	}}
	outcomes := e.Evaluate(ctx, snap, 0, nil)
	assert.Len(t, outcomes, 2)
}
