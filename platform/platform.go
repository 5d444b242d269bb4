// Package platform is the OS capability the engine drives: opening a
// process with a minimal access set and applying one resource control
// through the resulting handle.
package platform

import (
	"errors"

	"github.com/ftahirops/xgov/model"
)

// Error taxonomy shared by every implementation. Callers classify with errors.Is.
var (
	// ErrPermissionDenied means the caller lacks rights to open or mutate the target.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrProcessVanished means the target exited between selection and action.
	ErrProcessVanished = errors.New("process vanished")
	// ErrUnsupported means the OS or the process rejects this particular control.
	ErrUnsupported = errors.New("operation not supported")
	// ErrAccessNotGranted means the handle was opened without the access the call needs.
	ErrAccessNotGranted = errors.New("handle lacks required access")
)

// Access is the set of rights requested when opening a process.
type Access uint32

const (
	AccessQueryInformation Access = 1 << iota
	AccessSetInformation
	AccessSetQuota
	AccessSuspendResume
	AccessTerminate
)

// Has reports whether every bit of want is granted.
func (a Access) Has(want Access) bool { return a&want == want }

// Controller opens processes and owns machine-wide resources.
type Controller interface {
	// Open acquires a handle to pid restricted to access. The caller must
	// Close the handle on every path.
	Open(pid int, access Access) (Process, error)
	// CoreCount is the number of logical cores.
	CoreCount() int
	// EnsureGroup creates (or reuses) the long-lived governance group and
	// returns the identifier JoinGroup expects.
	EnsureGroup(name string) (string, error)
	// SetPowerPlan switches the machine-wide power policy.
	SetPowerPlan(plan PowerPlan) error
}

// Process is an open handle to one process.
type Process interface {
	PID() int
	PriorityClass() (model.PriorityClass, error)
	SetPriorityClass(class model.PriorityClass) error
	SetMemoryPriority(level model.MemoryPriority) error
	TrimWorkingSet() error
	Affinity() (uint64, error)
	SetAffinity(mask uint64) error
	SetPowerThrottle(on bool) error
	Group() (string, error)
	JoinGroup(group string) error
	Suspend() error
	Resume() error
	Terminate() error
	Close() error
}

// PowerPlan is a machine-wide power policy.
type PowerPlan string

const (
	PowerPlanPerformance PowerPlan = "performance"
	PowerPlanBalanced    PowerPlan = "balanced"
)

// NiceForClass maps a priority class to the nice value applied for it.
func NiceForClass(c model.PriorityClass) int {
	switch c {
	case model.PriorityIdle:
		return 19
	case model.PriorityBelowNormal:
		return 10
	case model.PriorityAboveNormal:
		return -5
	case model.PriorityHigh:
		return -10
	case model.PriorityRealtime:
		return -20
	}
	return 0
}

// ClassForNice buckets an arbitrary nice value into the nearest class.
func ClassForNice(nice int) model.PriorityClass {
	switch {
	case nice >= 15:
		return model.PriorityIdle
	case nice >= 5:
		return model.PriorityBelowNormal
	case nice > -3:
		return model.PriorityNormal
	case nice > -8:
		return model.PriorityAboveNormal
	case nice > -15:
		return model.PriorityHigh
	}
	return model.PriorityRealtime
}

// OOMScoreAdj maps a memory priority level to the oom_score_adj written for it.
// Lower priority makes the process the preferred reclaim victim.
func OOMScoreAdj(level model.MemoryPriority) int {
	switch level {
	case model.MemoryPriorityVeryLow:
		return 500
	case model.MemoryPriorityLow:
		return 250
	case model.MemoryPriorityHigh:
		return -250
	}
	return 0
}
