package engine

import (
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/ftahirops/xgov/model"
)

// SystemMemoryHighPct is the used-memory percentage at which the advisor
// adds a machine-wide note.
const SystemMemoryHighPct = 85.0

// SuggestActions recommends fixes for the processes in snap. health may be
// nil. memUsedPct is the machine-wide used memory, or a negative value when
// unknown. Informational suggestions carry an empty Action.
func SuggestActions(snap *model.Snapshot, th model.Thresholds, health map[int]model.HealthFlags,
	memUsedPct float64, skip func(model.ProcessSnapshot) bool) []model.Suggestion {
	if snap == nil {
		return nil
	}
	if !th.Valid() {
		th = model.DefaultThresholds()
	}

	var out []model.Suggestion
	if memUsedPct >= SystemMemoryHighPct {
		out = append(out, model.Suggestion{
			Name:   "System",
			Reason: fmt.Sprintf("RAM high %.0f%%", memUsedPct),
		})
	}

	for _, p := range snap.Processes {
		if skip != nil && skip(p) {
			continue
		}
		if p.Role == model.RoleBackground && p.CPUPct >= th.BgCPU {
			reason := fmt.Sprintf("BG CPU %.1f%%", p.CPUPct)
			out = append(out,
				model.Suggestion{PID: p.PID, Name: p.Name, Reason: reason, Action: model.RuleLowerPriority},
				model.Suggestion{PID: p.PID, Name: p.Name, Reason: reason, Action: model.RuleEcoThrottle},
			)
		}
		if p.RSSMB() >= th.HeavyRAMMB {
			out = append(out, model.Suggestion{
				PID: p.PID, Name: p.Name,
				Reason: "High RAM " + humanize.IBytes(p.RSSBytes),
				Action: model.RuleTrim,
			})
		}
		if health[p.PID].Leak {
			out = append(out, model.Suggestion{PID: p.PID, Name: p.Name, Reason: "Mem growth trend", Action: model.RuleTrim})
		}
	}
	return out
}
