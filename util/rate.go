package util

import "time"

// CPUPct converts two cumulative CPU-seconds readings taken dt apart into a
// share of total machine capacity: all logical cores busy maps to 100.
// Counter resets and non-positive intervals yield 0.
func CPUPct(prevSec, currSec float64, dt time.Duration, cores int) float64 {
	if dt <= 0 || currSec < prevSec {
		return 0
	}
	if cores < 1 {
		cores = 1
	}
	pct := (currSec - prevSec) / dt.Seconds() * 100 / float64(cores)
	if pct > 100 {
		return 100
	}
	return pct
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
