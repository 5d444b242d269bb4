package model

import (
	"fmt"
	"strings"
	"time"
)

// PriorityClass is an ordered scheduling class. Higher values get more CPU.
type PriorityClass int

const (
	PriorityIdle PriorityClass = iota
	PriorityBelowNormal
	PriorityNormal
	PriorityAboveNormal
	PriorityHigh
	PriorityRealtime
)

var priorityNames = []string{"Idle", "Below Normal", "Normal", "Above Normal", "High", "Realtime"}

func (c PriorityClass) String() string {
	if c < PriorityIdle || c > PriorityRealtime {
		return fmt.Sprintf("PriorityClass(%d)", int(c))
	}
	return priorityNames[c]
}

// Valid reports whether c is a known class.
func (c PriorityClass) Valid() bool {
	return c >= PriorityIdle && c <= PriorityRealtime
}

// ParsePriorityClass accepts "Below Normal", "below_normal", "belownormal", etc.
func ParsePriorityClass(s string) (PriorityClass, error) {
	norm := strings.NewReplacer(" ", "", "_", "", "-", "").Replace(strings.ToLower(s))
	for i, name := range priorityNames {
		if strings.ReplaceAll(strings.ToLower(name), " ", "") == norm {
			return PriorityClass(i), nil
		}
	}
	return PriorityNormal, fmt.Errorf("unknown priority class %q", s)
}

// MemoryPriority is the page priority level, 1 (very low) to 4 (high).
type MemoryPriority int

const (
	MemoryPriorityVeryLow MemoryPriority = 1
	MemoryPriorityLow     MemoryPriority = 2
	MemoryPriorityNormal  MemoryPriority = 3
	MemoryPriorityHigh    MemoryPriority = 4
)

// Valid reports whether m is in 1..4.
func (m MemoryPriority) Valid() bool {
	return m >= MemoryPriorityVeryLow && m <= MemoryPriorityHigh
}

// ActionKind names one resource-control operation.
type ActionKind string

const (
	KindPriority  ActionKind = "priority"
	KindMemPrio   ActionKind = "memprio"
	KindTrim      ActionKind = "trim"
	KindAffinity  ActionKind = "affinity"
	KindThrottle  ActionKind = "throttle"
	KindContain   ActionKind = "contain"
	KindSuspend   ActionKind = "suspend"
	KindResume    ActionKind = "resume"
	KindTerminate ActionKind = "terminate"
)

// ParseActionKind maps CLI/UI spellings to a kind.
func ParseActionKind(s string) (ActionKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "priority", "prio":
		return KindPriority, nil
	case "memprio", "memory", "mem":
		return KindMemPrio, nil
	case "trim":
		return KindTrim, nil
	case "affinity":
		return KindAffinity, nil
	case "throttle", "eco":
		return KindThrottle, nil
	case "contain", "job":
		return KindContain, nil
	case "suspend":
		return KindSuspend, nil
	case "resume":
		return KindResume, nil
	case "terminate", "kill":
		return KindTerminate, nil
	}
	return "", fmt.Errorf("unknown action %q", s)
}

// PriorState is the value an action replaced, tagged by the kind that
// recorded it. A nil PriorState means the action has nothing to restore.
type PriorState interface {
	Kind() ActionKind
	String() string
}

// PriorPriority holds the scheduling class before a priority change.
type PriorPriority struct{ Class PriorityClass }

// PriorMemoryPriority holds the memory priority before a change.
type PriorMemoryPriority struct{ Level MemoryPriority }

// PriorAffinity holds the CPU mask before an affinity change.
type PriorAffinity struct{ Mask uint64 }

// PriorGroup holds the cgroup a process belonged to before containment.
type PriorGroup struct{ Path string }

// PriorThrottle holds the throttle state before it was switched on.
type PriorThrottle struct{ On bool }

// PriorSuspend marks a suspended process; restoring it means resuming.
type PriorSuspend struct{}

func (PriorPriority) Kind() ActionKind       { return KindPriority }
func (PriorMemoryPriority) Kind() ActionKind { return KindMemPrio }
func (PriorAffinity) Kind() ActionKind       { return KindAffinity }
func (PriorGroup) Kind() ActionKind          { return KindContain }
func (PriorThrottle) Kind() ActionKind       { return KindThrottle }
func (PriorSuspend) Kind() ActionKind        { return KindSuspend }

func (p PriorPriority) String() string       { return p.Class.String() }
func (p PriorMemoryPriority) String() string { return fmt.Sprintf("level %d", p.Level) }
func (p PriorAffinity) String() string       { return fmt.Sprintf("%#x", p.Mask) }
func (p PriorGroup) String() string          { return p.Path }
func (p PriorThrottle) String() string       { return fmt.Sprintf("throttle=%t", p.On) }
func (PriorSuspend) String() string          { return "running" }

// Source attributes an action to the component that issued it.
type Source string

const (
	SourceManual     Source = "manual"
	SourceRule       Source = "rule"
	SourceGovernor   Source = "governor"
	SourceAdvisor    Source = "advisor"
	SourceForeground Source = "foreground"
	SourceProfile    Source = "profile"
)

// ActionRecord is one ledger entry. Created only after the OS call succeeded.
type ActionRecord struct {
	ID  string
	PID int
	// StartTime identifies the process instance that owned PID when the
	// action ran, so a reused pid never inherits its entries.
	StartTime int64
	Kind      ActionKind
	Prior     PriorState
	Source    Source
	Timestamp time.Time
}

// Guard restricts a priority change to one direction.
type Guard int

const (
	GuardNone Guard = iota
	GuardDowngradeOnly
	GuardUpgradeOnly
)

// ActionSpec describes one requested action, independent of its targets.
type ActionSpec struct {
	Kind           ActionKind
	Priority       PriorityClass
	MemoryLevel    MemoryPriority
	AffinityPreset string
	Throttle       bool
	Guard          Guard
	// Confirmed must be set by the caller after an explicit confirmation
	// step. Terminate is refused without it.
	Confirmed bool
}

// Label is the effect-tracking key for the action, e.g. "priority->Below Normal".
func (s ActionSpec) Label() string {
	switch s.Kind {
	case KindPriority:
		return fmt.Sprintf("priority->%s", s.Priority)
	case KindMemPrio:
		return fmt.Sprintf("memprio->%d", s.MemoryLevel)
	case KindAffinity:
		return fmt.Sprintf("affinity->%s", s.AffinityPreset)
	case KindThrottle:
		if s.Throttle {
			return "throttle->on"
		}
		return "throttle->off"
	}
	return string(s.Kind)
}

// OutcomeStatus is the per-target result of an action.
type OutcomeStatus string

const (
	StatusOK          OutcomeStatus = "ok"
	StatusNoop        OutcomeStatus = "noop"        // already in the requested state
	StatusSkipped     OutcomeStatus = "skipped"     // target vanished
	StatusUnsupported OutcomeStatus = "unsupported" // OS rejected this control; acceptable
	StatusRefused     OutcomeStatus = "refused"     // protected, unconfirmed, or invalid input
	StatusFailed      OutcomeStatus = "failed"
)

// Outcome reports what happened to one target.
type Outcome struct {
	PID    int           `json:"pid"`
	Kind   ActionKind    `json:"kind"`
	Status OutcomeStatus `json:"status"`
	Reason string        `json:"reason,omitempty"`
	Err    error         `json:"-"`
}

// OK reports whether the action was applied or was already in effect.
func (o Outcome) OK() bool {
	return o.Status == StatusOK || o.Status == StatusNoop
}
