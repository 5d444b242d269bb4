package collector

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/ftahirops/xgov/platform"
)

// ProcessInfo is one raw per-process reading.
type ProcessInfo struct {
	PID        int
	PPID       int
	Name       string
	CPUSeconds float64 // cumulative user+system time
	RSSBytes   uint64
	CreateTime int64 // ms since epoch
}

// ProcessSource enumerates processes. Implementations skip processes that
// exit mid-enumeration instead of failing the whole listing.
type ProcessSource interface {
	List(ctx context.Context) ([]ProcessInfo, error)
	Get(ctx context.Context, pid int) (ProcessInfo, error)
}

// PsutilSource reads processes through gopsutil.
type PsutilSource struct{}

func (PsutilSource) List(ctx context.Context) ([]ProcessInfo, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerate processes: %w", err)
	}
	out := make([]ProcessInfo, 0, len(procs))
	for _, p := range procs {
		info, err := readProcess(ctx, p)
		if err != nil {
			continue // process may have exited
		}
		out = append(out, info)
	}
	return out, nil
}

func (PsutilSource) Get(ctx context.Context, pid int) (ProcessInfo, error) {
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return ProcessInfo{}, fmt.Errorf("process %d: %w", pid, classify(err))
	}
	info, err := readProcess(ctx, p)
	if err != nil {
		return ProcessInfo{}, fmt.Errorf("process %d: %w", pid, classify(err))
	}
	return info, nil
}

// classify maps gopsutil and procfs failures onto the platform error taxonomy.
func classify(err error) error {
	switch {
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %w", platform.ErrPermissionDenied, err)
	case errors.Is(err, process.ErrorProcessNotRunning), errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %w", platform.ErrProcessVanished, err)
	}
	return err
}

func readProcess(ctx context.Context, p *process.Process) (ProcessInfo, error) {
	info := ProcessInfo{PID: int(p.Pid)}

	name, err := p.NameWithContext(ctx)
	if err != nil {
		return info, err
	}
	info.Name = name

	times, err := p.TimesWithContext(ctx)
	if err != nil {
		return info, err
	}
	info.CPUSeconds = times.User + times.System

	// Kernel threads and zombies have no memory info; keep them with 0 RSS.
	if mem, err := p.MemoryInfoWithContext(ctx); err == nil {
		info.RSSBytes = mem.RSS
	}
	if ppid, err := p.PpidWithContext(ctx); err == nil {
		info.PPID = int(ppid)
	}
	if created, err := p.CreateTimeWithContext(ctx); err == nil {
		info.CreateTime = created
	}
	return info, nil
}

// LogicalCores returns the logical core count, falling back to 1.
func LogicalCores(ctx context.Context) int {
	n, err := cpu.CountsWithContext(ctx, true)
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// MemoryUsedPercent is the machine-wide used memory percentage.
func MemoryUsedPercent(ctx context.Context) (float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("virtual memory: %w", err)
	}
	return vm.UsedPercent, nil
}
