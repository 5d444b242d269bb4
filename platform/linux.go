//go:build linux

package platform

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/ftahirops/xgov/model"
	"github.com/ftahirops/xgov/util"
)

const (
	schedFlagKeepAll      = 0x18 // SCHED_FLAG_KEEP_POLICY | SCHED_FLAG_KEEP_PARAMS
	schedFlagUtilClampMax = 0x40
	utilClampFull         = 1024
	utilClampThrottled    = 256

	// process_madvise accepts at most UIO_MAXIOV ranges per call.
	maxIovecs = 1024

	groupWeight = "20"
)

// Options configures the Linux controller. Zero values use the live system.
type Options struct {
	Cores      int
	ProcRoot   string
	CgroupRoot string
	SysCPURoot string
}

type linuxController struct {
	cores      int
	procRoot   string
	cgroupRoot string
	sysCPURoot string

	groupMu sync.Mutex
	groups  map[string]string
}

// NewController returns the pidfd-based Linux controller.
func NewController(opts Options) Controller {
	if opts.Cores <= 0 {
		opts.Cores = runtime.NumCPU()
	}
	if opts.ProcRoot == "" {
		opts.ProcRoot = "/proc"
	}
	if opts.CgroupRoot == "" {
		opts.CgroupRoot = "/sys/fs/cgroup"
	}
	if opts.SysCPURoot == "" {
		opts.SysCPURoot = "/sys/devices/system/cpu"
	}
	return &linuxController{
		cores:      opts.Cores,
		procRoot:   opts.ProcRoot,
		cgroupRoot: opts.CgroupRoot,
		sysCPURoot: opts.SysCPURoot,
		groups:     make(map[string]string),
	}
}

func (c *linuxController) CoreCount() int { return c.cores }

func (c *linuxController) Open(pid int, access Access) (Process, error) {
	if pid <= 0 {
		return nil, fmt.Errorf("open pid %d: %w", pid, ErrProcessVanished)
	}
	fd, err := unix.PidfdOpen(pid, 0)
	if err != nil {
		return nil, classify("open", pid, err)
	}
	return &linuxProcess{ctrl: c, pid: pid, fd: fd, access: access}, nil
}

// EnsureGroup creates a cgroup v2 leaf under the root with reduced cpu and
// io weight. Weight files are best-effort: the controllers may not be
// delegated to the parent.
func (c *linuxController) EnsureGroup(name string) (string, error) {
	c.groupMu.Lock()
	defer c.groupMu.Unlock()
	if g, ok := c.groups[name]; ok {
		return g, nil
	}
	if _, err := os.Stat(filepath.Join(c.cgroupRoot, "cgroup.controllers")); err != nil {
		return "", fmt.Errorf("cgroup v2 not mounted at %s: %w", c.cgroupRoot, ErrUnsupported)
	}
	dir := filepath.Join(c.cgroupRoot, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return "", fmt.Errorf("create group %s: %w: %w", dir, ErrPermissionDenied, err)
		}
		return "", fmt.Errorf("create group %s: %w", dir, err)
	}
	_ = os.WriteFile(filepath.Join(dir, "cpu.weight"), []byte(groupWeight), 0644)
	_ = os.WriteFile(filepath.Join(dir, "io.weight"), []byte("default "+groupWeight), 0644)

	group := "/" + strings.Trim(name, "/")
	c.groups[name] = group
	return group, nil
}

// SetPowerPlan writes the cpufreq governor of every online CPU.
func (c *linuxController) SetPowerPlan(plan PowerPlan) error {
	paths, _ := filepath.Glob(filepath.Join(c.sysCPURoot, "cpu[0-9]*", "cpufreq", "scaling_governor"))
	if len(paths) == 0 {
		return fmt.Errorf("cpufreq: %w", ErrUnsupported)
	}
	candidates := []string{"schedutil", "powersave"}
	if plan == PowerPlanPerformance {
		candidates = []string{"performance"}
	}
	var errs []error
	for _, p := range paths {
		var err error
		for _, gov := range candidates {
			if err = os.WriteFile(p, []byte(gov), 0644); err == nil {
				break
			}
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p, err))
		}
	}
	if len(errs) == len(paths) {
		if errors.Is(errs[0], fs.ErrPermission) {
			return fmt.Errorf("set power plan %s: %w: %w", plan, ErrPermissionDenied, errors.Join(errs...))
		}
		return fmt.Errorf("set power plan %s: %w: %w", plan, ErrUnsupported, errors.Join(errs...))
	}
	return nil
}

type linuxProcess struct {
	ctrl   *linuxController
	pid    int
	fd     int
	access Access
	closed bool
}

func (p *linuxProcess) PID() int { return p.pid }

func (p *linuxProcess) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	return unix.Close(p.fd)
}

// check verifies the handle grants want and that the process is still the
// one the pidfd refers to.
func (p *linuxProcess) check(op string, want Access) error {
	if p.closed {
		return fmt.Errorf("%s pid %d: handle closed", op, p.pid)
	}
	if !p.access.Has(want) {
		return fmt.Errorf("%s pid %d: %w", op, p.pid, ErrAccessNotGranted)
	}
	if err := unix.PidfdSendSignal(p.fd, 0, nil, 0); err != nil {
		return classify(op, p.pid, err)
	}
	return nil
}

func (p *linuxProcess) procPath(elem ...string) string {
	return filepath.Join(append([]string{p.ctrl.procRoot, strconv.Itoa(p.pid)}, elem...)...)
}

// tasks lists every thread id. nice and affinity are per-thread on Linux.
func (p *linuxProcess) tasks() ([]int, error) {
	entries, err := os.ReadDir(p.procPath("task"))
	if err != nil {
		return nil, classify("list tasks", p.pid, err)
	}
	tids := make([]int, 0, len(entries))
	for _, e := range entries {
		if tid := util.ParseInt(e.Name()); tid > 0 {
			tids = append(tids, tid)
		}
	}
	return tids, nil
}

// eachTask applies fn to every thread; threads that exit mid-walk are
// ignored, and the leader's error wins.
func (p *linuxProcess) eachTask(op string, fn func(tid int) error) error {
	tids, err := p.tasks()
	if err != nil {
		return err
	}
	for _, tid := range tids {
		if err := fn(tid); err != nil {
			if errors.Is(err, unix.ESRCH) && tid != p.pid {
				continue
			}
			return classify(op, p.pid, err)
		}
	}
	return nil
}

func (p *linuxProcess) PriorityClass() (model.PriorityClass, error) {
	if err := p.check("get priority", AccessQueryInformation); err != nil {
		return model.PriorityNormal, err
	}
	// The raw syscall returns 20-nice to stay positive.
	prio, err := unix.Getpriority(unix.PRIO_PROCESS, p.pid)
	if err != nil {
		return model.PriorityNormal, classify("get priority", p.pid, err)
	}
	return ClassForNice(20 - prio), nil
}

func (p *linuxProcess) SetPriorityClass(class model.PriorityClass) error {
	if err := p.check("set priority", AccessSetInformation); err != nil {
		return err
	}
	nice := NiceForClass(class)
	return p.eachTask("set priority", func(tid int) error {
		return unix.Setpriority(unix.PRIO_PROCESS, tid, nice)
	})
}

func (p *linuxProcess) SetMemoryPriority(level model.MemoryPriority) error {
	if err := p.check("set memory priority", AccessSetInformation); err != nil {
		return err
	}
	adj := strconv.Itoa(OOMScoreAdj(level))
	if err := os.WriteFile(p.procPath("oom_score_adj"), []byte(adj), 0644); err != nil {
		return classify("set memory priority", p.pid, err)
	}
	return nil
}

type remoteIovec struct {
	Base uintptr
	Len  uintptr
}

// TrimWorkingSet asks the kernel to page out every private mapping of the
// target (process_madvise with MADV_PAGEOUT).
func (p *linuxProcess) TrimWorkingSet() error {
	if err := p.check("trim", AccessSetQuota); err != nil {
		return err
	}
	lines, err := util.ReadFileLines(p.procPath("maps"))
	if err != nil {
		return classify("trim", p.pid, err)
	}
	var iovs []remoteIovec
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) < 2 || !strings.HasSuffix(fields[1], "p") {
			continue
		}
		if len(fields) >= 6 && fields[5] == "[vsyscall]" {
			continue
		}
		lo, hi, ok := strings.Cut(fields[0], "-")
		if !ok {
			continue
		}
		start, err1 := strconv.ParseUint(lo, 16, 64)
		end, err2 := strconv.ParseUint(hi, 16, 64)
		if err1 != nil || err2 != nil || end <= start {
			continue
		}
		iovs = append(iovs, remoteIovec{Base: uintptr(start), Len: uintptr(end - start)})
	}
	advised := 0
	for len(iovs) > 0 {
		batch := iovs
		if len(batch) > maxIovecs {
			batch = batch[:maxIovecs]
		}
		iovs = iovs[len(batch):]
		_, _, errno := unix.Syscall6(unix.SYS_PROCESS_MADVISE, uintptr(p.fd),
			uintptr(unsafe.Pointer(&batch[0])), uintptr(len(batch)), unix.MADV_PAGEOUT, 0, 0)
		switch errno {
		case 0:
			advised++
		case unix.EINVAL, unix.ENOMEM, unix.EFAULT:
			// a locked or special mapping in this batch; keep going
		default:
			return classify("trim", p.pid, errno)
		}
	}
	if advised == 0 {
		return fmt.Errorf("trim pid %d: no range accepted: %w", p.pid, ErrUnsupported)
	}
	return nil
}

func (p *linuxProcess) Affinity() (uint64, error) {
	if err := p.check("get affinity", AccessQueryInformation); err != nil {
		return 0, err
	}
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(p.pid, &set); err != nil {
		return 0, classify("get affinity", p.pid, err)
	}
	var mask uint64
	for i := 0; i < 64; i++ {
		if set.IsSet(i) {
			mask |= 1 << uint(i)
		}
	}
	return mask, nil
}

func (p *linuxProcess) SetAffinity(mask uint64) error {
	if err := p.check("set affinity", AccessSetInformation); err != nil {
		return err
	}
	if mask == 0 {
		return fmt.Errorf("set affinity pid %d: empty mask: %w", p.pid, ErrUnsupported)
	}
	var set unix.CPUSet
	set.Zero()
	for i := 0; i < 64; i++ {
		if mask&(1<<uint(i)) != 0 {
			set.Set(i)
		}
	}
	return p.eachTask("set affinity", func(tid int) error {
		return unix.SchedSetaffinity(tid, &set)
	})
}

// SetPowerThrottle clamps the utilization the scheduler assumes for the
// process, which steers it to slower frequencies and efficiency cores.
// Kernels built without uclamp reject this with EOPNOTSUPP.
func (p *linuxProcess) SetPowerThrottle(on bool) error {
	if err := p.check("power throttle", AccessSetInformation); err != nil {
		return err
	}
	clamp := uint32(utilClampFull)
	if on {
		clamp = utilClampThrottled
	}
	return p.eachTask("power throttle", func(tid int) error {
		attr, err := unix.SchedGetAttr(tid, 0)
		if err != nil {
			return err
		}
		attr.Flags = schedFlagKeepAll | schedFlagUtilClampMax
		attr.Util_max = clamp
		return unix.SchedSetAttr(tid, attr, 0)
	})
}

func (p *linuxProcess) Group() (string, error) {
	if err := p.check("read group", AccessQueryInformation); err != nil {
		return "", err
	}
	content, err := util.ReadFileString(p.procPath("cgroup"))
	if err != nil {
		return "", classify("read group", p.pid, err)
	}
	path := util.CgroupPath(content)
	if path == "" {
		return "", fmt.Errorf("read group pid %d: %w", p.pid, ErrUnsupported)
	}
	return path, nil
}

func (p *linuxProcess) JoinGroup(group string) error {
	if err := p.check("join group", AccessSetQuota); err != nil {
		return err
	}
	procs := filepath.Join(p.ctrl.cgroupRoot, filepath.Clean("/"+group), "cgroup.procs")
	if err := os.WriteFile(procs, []byte(strconv.Itoa(p.pid)), 0644); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("join group %s pid %d: %w: %w", group, p.pid, ErrUnsupported, err)
		}
		return classify("join group", p.pid, err)
	}
	return nil
}

func (p *linuxProcess) signal(op string, want Access, sig unix.Signal) error {
	if err := p.check(op, want); err != nil {
		return err
	}
	if err := unix.PidfdSendSignal(p.fd, sig, nil, 0); err != nil {
		return classify(op, p.pid, err)
	}
	return nil
}

func (p *linuxProcess) Suspend() error {
	return p.signal("suspend", AccessSuspendResume, unix.SIGSTOP)
}

func (p *linuxProcess) Resume() error {
	return p.signal("resume", AccessSuspendResume, unix.SIGCONT)
}

func (p *linuxProcess) Terminate() error {
	return p.signal("terminate", AccessTerminate, unix.SIGTERM)
}

// classify wraps err with the matching taxonomy sentinel.
func classify(op string, pid int, err error) error {
	switch {
	case errors.Is(err, unix.ESRCH), errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%s pid %d: %w: %w", op, pid, ErrProcessVanished, err)
	case errors.Is(err, unix.EPERM), errors.Is(err, unix.EACCES):
		return fmt.Errorf("%s pid %d: %w: %w", op, pid, ErrPermissionDenied, err)
	case errors.Is(err, unix.ENOSYS), errors.Is(err, unix.EOPNOTSUPP), errors.Is(err, unix.EINVAL):
		return fmt.Errorf("%s pid %d: %w: %w", op, pid, ErrUnsupported, err)
	}
	return fmt.Errorf("%s pid %d: %w", op, pid, err)
}
