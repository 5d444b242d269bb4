package model

// Rule dispatches Action for processes whose lowercase name contains
// Pattern (empty matches all) and which satisfy When.
type Rule struct {
	Pattern string `yaml:"pattern" json:"pattern"`
	When    string `yaml:"when" json:"when"`
	Action  string `yaml:"action" json:"action"`
	// Confirm is the standing confirmation a "kill" rule needs.
	Confirm bool `yaml:"confirm,omitempty" json:"confirm,omitempty"`
}

// Rule actions.
const (
	RuleLowerPriority = "lower_priority"
	RuleTrim          = "trim"
	RuleEcoThrottle   = "eco_throttle"
	RuleContain       = "contain"
	RuleKill          = "kill"
)

// DefaultRules mirror the stock automation shipped with the tool.
func DefaultRules() []Rule {
	return []Rule{
		{Pattern: "chrome", When: "background_cpu>30", Action: RuleLowerPriority},
		{Pattern: "updater", When: "always", Action: RuleEcoThrottle},
	}
}

// Thresholds drive the advisor.
type Thresholds struct {
	BgCPU      float64 `yaml:"bg_cpu" json:"bg_cpu"`
	HeavyRAMMB float64 `yaml:"heavy_ram_mb" json:"heavy_ram_mb"`
}

// DefaultThresholds returns the stock advisor thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{BgCPU: 30, HeavyRAMMB: 800}
}

// Valid reports whether both thresholds are in range.
func (t Thresholds) Valid() bool {
	return t.BgCPU > 0 && t.BgCPU <= 100 && t.HeavyRAMMB > 0
}

// Suggestion is one advisor finding with the action that addresses it.
type Suggestion struct {
	PID    int    `json:"pid"`
	Name   string `json:"name"`
	Reason string `json:"reason"`
	Action string `json:"action"`
}
