package engine

import (
	"fmt"
	"strings"
)

// Affinity presets offered to callers.
const (
	PresetAllCores      = "All cores"
	PresetHalfEven      = "Half cores even"
	PresetHalfOdd       = "Half cores odd"
	PresetFirstTwoCores = "First 2 cores"
)

// AffinityPresets lists the presets in display order.
var AffinityPresets = []string{PresetAllCores, PresetHalfEven, PresetHalfOdd, PresetFirstTwoCores}

// SystemMask is the mask of all logical cores, capped at 64.
func SystemMask(cores int) uint64 {
	if cores >= 64 {
		return ^uint64(0)
	}
	if cores < 1 {
		cores = 1
	}
	return (uint64(1) << cores) - 1
}

// AffinityMask resolves a preset to a CPU mask for cores logical cores. The
// result is always within SystemMask(cores).
func AffinityMask(preset string, cores int) (uint64, error) {
	sys := SystemMask(cores)
	var mask uint64
	switch normalizePreset(preset) {
	case normalizePreset(PresetAllCores):
		mask = sys
	case normalizePreset(PresetHalfEven):
		mask = strideMask(cores, 0)
	case normalizePreset(PresetHalfOdd):
		mask = strideMask(cores, 1)
	case normalizePreset(PresetFirstTwoCores):
		mask = 0b11
	default:
		return 0, fmt.Errorf("affinity preset %q: %w", preset, ErrInvalidConfiguration)
	}
	mask &= sys
	if mask == 0 {
		return 0, fmt.Errorf("affinity preset %q selects no cores on %d-core system: %w", preset, cores, ErrInvalidConfiguration)
	}
	return mask, nil
}

func strideMask(cores, offset int) uint64 {
	var mask uint64
	for i := offset; i < cores && i < 64; i += 2 {
		mask |= 1 << i
	}
	return mask
}

// normalizePreset lets CLI users write "half-even" or "first2".
func normalizePreset(s string) string {
	s = strings.ToLower(strings.NewReplacer(" ", "", "-", "", "_", "").Replace(s))
	switch s {
	case "all":
		return "allcores"
	case "halfeven", "even":
		return "halfcoreseven"
	case "halfodd", "odd":
		return "halfcoresodd"
	case "first2", "firsttwo":
		return "first2cores"
	}
	return s
}
