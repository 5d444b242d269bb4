package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ftahirops/xgov/model"
)

func TestSuggestActions(t *testing.T) {
	snap := &model.Snapshot{Processes: []model.ProcessSnapshot{
		{PID: 1, Name: "bg-hog", CPUPct: 45},
		{PID: 2, Name: "fg-hog", CPUPct: 90, Role: model.RoleForeground},
		{PID: 3, Name: "fat", RSSBytes: 900 << 20},
		{PID: 4, Name: "leaky", RSSBytes: 10 << 20},
		{PID: 5, Name: "quiet", CPUPct: 1},
	}}
	health := map[int]model.HealthFlags{4: {PID: 4, Leak: true}}

	got := SuggestActions(snap, model.DefaultThresholds(), health, 90, func(p model.ProcessSnapshot) bool {
		return p.Name == "quiet"
	})
	require.Len(t, got, 5)
	assert.Equal(t, "System", got[0].Name)
	assert.Empty(t, got[0].Action)
	assert.Equal(t, model.RuleLowerPriority, got[1].Action)
	assert.Equal(t, model.RuleEcoThrottle, got[2].Action)
	assert.Equal(t, 3, got[3].PID)
	assert.Equal(t, "High RAM 900 MiB", got[3].Reason)
	assert.Equal(t, model.Suggestion{PID: 4, Name: "leaky", Reason: "Mem growth trend", Action: model.RuleTrim}, got[4])

	none := SuggestActions(&model.Snapshot{}, model.Thresholds{}, nil, -1, nil)
	assert.Empty(t, none)
}

func TestLookupProfile(t *testing.T) {
	p, ok := LookupProfile("GAMING")
	require.True(t, ok)
	assert.True(t, p.Follow)
	assert.Equal(t, model.PriorityHigh, p.ForegroundClass)
	_, ok = LookupProfile("turbo")
	assert.False(t, ok)
	assert.Equal(t, []string{"Creator", "Everyday", "Gaming"}, ProfileNames())
}

func TestForegroundFollowBoostsOncePerFocus(t *testing.T) {
	ctrl := newFakeController(4)
	game := model.ProcessSnapshot{PID: 100, PPID: 1, Name: "game", StartTime: 1}
	editor := model.ProcessSnapshot{PID: 101, PPID: 1, Name: "editor", StartTime: 1}
	ex := newTestExecutor(ctrl, game, editor)
	f := NewForegroundFollower(ex)

	assert.Nil(t, f.Follow(ctx, game, model.SourceForeground), "disabled")
	f.SetEnabled(true)

	outs := f.Follow(ctx, game, model.SourceForeground)
	require.Len(t, outs, 2)
	assert.Equal(t, model.PriorityHigh, ctrl.state(100).class)
	assert.Equal(t, model.MemoryPriorityHigh, ctrl.state(100).memprio)
	assert.Nil(t, f.Follow(ctx, game, model.SourceForeground), "same focus")

	f.SetClass(model.PriorityAboveNormal)
	require.Len(t, f.Follow(ctx, editor, model.SourceForeground), 2)
	assert.Equal(t, model.PriorityAboveNormal, ctrl.state(101).class)

	require.Len(t, f.Follow(ctx, game, model.SourceForeground), 2)
	// refocusing the game with a lower class is an upgrade-only noop
	assert.Equal(t, model.PriorityHigh, ctrl.state(100).class)
	assert.Len(t, priorityEntries(ex.Ledger(), 100), 1)
}
