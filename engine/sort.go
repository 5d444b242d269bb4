package engine

import (
	"sort"
	"strconv"
	"strings"

	"github.com/ftahirops/xgov/model"
)

// SortProcesses returns a copy of procs ordered descending by key. Ties
// break on pid so the order is stable between ticks.
func SortProcesses(procs []model.ProcessSnapshot, key model.SortKey) []model.ProcessSnapshot {
	out := append([]model.ProcessSnapshot(nil), procs...)
	less := func(a, b model.ProcessSnapshot) bool {
		switch key {
		case model.SortMemory:
			if a.RSSBytes != b.RSSBytes {
				return a.RSSBytes > b.RSSBytes
			}
		case model.SortPID:
			// pid order is the tie-break itself
		case model.SortName:
			an, bn := strings.ToLower(a.Name), strings.ToLower(b.Name)
			if an != bn {
				return an > bn
			}
		default:
			if a.CPUPct != b.CPUPct {
				return a.CPUPct > b.CPUPct
			}
		}
		return a.PID > b.PID
	}
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

// FilterProcesses keeps processes whose lowercase name contains term or
// whose pid contains term. An empty term keeps everything.
func FilterProcesses(procs []model.ProcessSnapshot, term string) []model.ProcessSnapshot {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return procs
	}
	var out []model.ProcessSnapshot
	for _, p := range procs {
		if strings.Contains(strings.ToLower(p.Name), term) || strings.Contains(strconv.Itoa(p.PID), term) {
			out = append(out, p)
		}
	}
	return out
}
