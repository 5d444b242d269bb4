package engine

import (
	"sort"
	"strings"

	"github.com/ftahirops/xgov/model"
	"github.com/ftahirops/xgov/platform"
)

// Profile is a named bundle of governance settings.
type Profile struct {
	Name            string
	Description     string
	ForegroundClass model.PriorityClass
	Governor        bool
	Follow          bool
	PowerPlan       platform.PowerPlan
}

// Profiles defines the built-in profiles.
var Profiles = map[string]Profile{
	"gaming": {
		Name:            "Gaming",
		Description:     "Boost the foreground app, performance power plan, reduce background noise.",
		ForegroundClass: model.PriorityHigh,
		Governor:        true,
		Follow:          true,
		PowerPlan:       platform.PowerPlanPerformance,
	},
	"creator": {
		Name:            "Creator",
		Description:     "Smooth editing and rendering, balanced power, keep background tamed.",
		ForegroundClass: model.PriorityAboveNormal,
		Governor:        true,
		PowerPlan:       platform.PowerPlanBalanced,
	},
	"everyday": {
		Name:            "Everyday",
		Description:     "Daily use: balanced plan and default priorities.",
		ForegroundClass: model.PriorityNormal,
		PowerPlan:       platform.PowerPlanBalanced,
	},
}

// LookupProfile finds a profile by case-insensitive name.
func LookupProfile(name string) (Profile, bool) {
	p, ok := Profiles[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

// ProfileNames lists the profile display names in a fixed order.
func ProfileNames() []string {
	names := make([]string, 0, len(Profiles))
	for _, p := range Profiles {
		names = append(names, p.Name)
	}
	sort.Strings(names)
	return names
}
