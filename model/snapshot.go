package model

import (
	"strings"
	"time"
)

// Role classifies a process relative to the active window.
type Role int

const (
	RoleBackground Role = iota
	RoleForeground
)

func (r Role) String() string {
	if r == RoleForeground {
		return "Foreground"
	}
	return "Background"
}

// ParseRole maps a condition scope ("foreground"/"background") to a Role.
func ParseRole(s string) (Role, bool) {
	switch strings.ToLower(s) {
	case "foreground":
		return RoleForeground, true
	case "background":
		return RoleBackground, true
	}
	return RoleBackground, false
}

// ProcessSnapshot is one process as observed by a single sampler tick.
type ProcessSnapshot struct {
	PID       int       `json:"pid"`
	PPID      int       `json:"ppid"`
	Name      string    `json:"name"`
	CPUPct    float64   `json:"cpu_pct"` // 0-100, normalized by logical core count
	RSSBytes  uint64    `json:"rss_bytes"`
	Role      Role      `json:"role"`
	StartTime int64     `json:"start_time"` // process create time (ms), distinguishes reused pids
	Timestamp time.Time `json:"timestamp"`
}

// RSSMB returns resident memory in megabytes.
func (p ProcessSnapshot) RSSMB() float64 {
	return float64(p.RSSBytes) / (1024 * 1024)
}

// Snapshot holds every enumerable process at one point in time.
// A published Snapshot is never mutated; the sampler replaces it wholesale.
type Snapshot struct {
	Timestamp     time.Time
	CoreCount     int
	ForegroundPID int
	Processes     []ProcessSnapshot
}

// Find returns the process with the given pid.
func (s *Snapshot) Find(pid int) (ProcessSnapshot, bool) {
	if s == nil {
		return ProcessSnapshot{}, false
	}
	for _, p := range s.Processes {
		if p.PID == pid {
			return p, true
		}
	}
	return ProcessSnapshot{}, false
}

// PIDs returns the set of pids present in the snapshot.
func (s *Snapshot) PIDs() map[int]bool {
	live := make(map[int]bool)
	if s == nil {
		return live
	}
	for _, p := range s.Processes {
		live[p.PID] = true
	}
	return live
}

// SortKey selects the ordering of the process list.
type SortKey string

const (
	SortCPU    SortKey = "cpu"
	SortMemory SortKey = "memory"
	SortPID    SortKey = "pid"
	SortName   SortKey = "name"
)

// ParseSortKey normalizes user input; unknown keys fall back to cpu.
func ParseSortKey(s string) SortKey {
	switch SortKey(strings.ToLower(strings.TrimSpace(s))) {
	case SortMemory, "mem", "ram":
		return SortMemory
	case SortPID:
		return SortPID
	case SortName:
		return SortName
	}
	return SortCPU
}

// Next cycles through sort keys in display order.
func (k SortKey) Next() SortKey {
	switch k {
	case SortCPU:
		return SortMemory
	case SortMemory:
		return SortPID
	case SortPID:
		return SortName
	}
	return SortCPU
}
