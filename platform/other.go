//go:build !linux

package platform

import (
	"fmt"
	"runtime"
)

// Options configures the controller. Only Cores is honored off Linux.
type Options struct {
	Cores      int
	ProcRoot   string
	CgroupRoot string
	SysCPURoot string
}

type unsupportedController struct{ cores int }

// NewController returns a controller that rejects every control on this OS.
func NewController(opts Options) Controller {
	if opts.Cores <= 0 {
		opts.Cores = runtime.NumCPU()
	}
	return unsupportedController{cores: opts.Cores}
}

func (c unsupportedController) CoreCount() int { return c.cores }

func (unsupportedController) Open(pid int, _ Access) (Process, error) {
	return nil, fmt.Errorf("open pid %d on %s: %w", pid, runtime.GOOS, ErrUnsupported)
}

func (unsupportedController) EnsureGroup(name string) (string, error) {
	return "", fmt.Errorf("group %s on %s: %w", name, runtime.GOOS, ErrUnsupported)
}

func (unsupportedController) SetPowerPlan(plan PowerPlan) error {
	return fmt.Errorf("power plan %s on %s: %w", plan, runtime.GOOS, ErrUnsupported)
}
