package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ftahirops/xgov/model"
	"github.com/ftahirops/xgov/platform"
)

type fakeProcState struct {
	class     model.PriorityClass
	memprio   model.MemoryPriority
	mask      uint64
	throttle  bool
	group     string
	suspended bool
	dead      bool
	trims     int
}

// fakeController is an in-memory platform.Controller that records every
// handle it hands out so tests can assert they were closed.
type fakeController struct {
	mu          sync.Mutex
	cores       int
	procs       map[int]*fakeProcState
	opened      int
	closed      int
	groupErr    error
	throttleErr error
	openErr     map[int]error
	plans       []platform.PowerPlan
}

func newFakeController(cores int) *fakeController {
	return &fakeController{cores: cores, procs: make(map[int]*fakeProcState), openErr: make(map[int]error)}
}

func (c *fakeController) add(pid int) *fakeProcState {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := &fakeProcState{
		class:   model.PriorityNormal,
		memprio: model.MemoryPriorityNormal,
		mask:    SystemMask(c.cores),
		group:   "/user.slice",
	}
	c.procs[pid] = st
	return st
}

func (c *fakeController) state(pid int) fakeProcState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return *c.procs[pid]
}

func (c *fakeController) handles() (opened, closed int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opened, c.closed
}

func (c *fakeController) Open(pid int, access platform.Access) (platform.Process, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.openErr[pid]; err != nil {
		return nil, err
	}
	st, ok := c.procs[pid]
	if !ok || st.dead {
		return nil, fmt.Errorf("open %d: %w", pid, platform.ErrProcessVanished)
	}
	c.opened++
	return &fakeProcess{ctrl: c, pid: pid, access: access}, nil
}

func (c *fakeController) CoreCount() int { return c.cores }

func (c *fakeController) EnsureGroup(name string) (string, error) {
	if c.groupErr != nil {
		return "", c.groupErr
	}
	return "/" + name, nil
}

func (c *fakeController) SetPowerPlan(plan platform.PowerPlan) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.plans = append(c.plans, plan)
	return nil
}

type fakeProcess struct {
	ctrl   *fakeController
	pid    int
	access platform.Access
	closed bool
}

func (p *fakeProcess) with(want platform.Access, fn func(st *fakeProcState) error) error {
	p.ctrl.mu.Lock()
	defer p.ctrl.mu.Unlock()
	if p.closed {
		return errors.New("handle closed")
	}
	if !p.access.Has(want) {
		return platform.ErrAccessNotGranted
	}
	st := p.ctrl.procs[p.pid]
	if st == nil || st.dead {
		return platform.ErrProcessVanished
	}
	return fn(st)
}

func (p *fakeProcess) PID() int { return p.pid }

func (p *fakeProcess) PriorityClass() (c model.PriorityClass, err error) {
	err = p.with(platform.AccessQueryInformation, func(st *fakeProcState) error { c = st.class; return nil })
	return c, err
}

func (p *fakeProcess) SetPriorityClass(class model.PriorityClass) error {
	return p.with(platform.AccessSetInformation, func(st *fakeProcState) error { st.class = class; return nil })
}

func (p *fakeProcess) SetMemoryPriority(level model.MemoryPriority) error {
	return p.with(platform.AccessSetInformation, func(st *fakeProcState) error { st.memprio = level; return nil })
}

func (p *fakeProcess) TrimWorkingSet() error {
	return p.with(platform.AccessSetQuota, func(st *fakeProcState) error { st.trims++; return nil })
}

func (p *fakeProcess) Affinity() (m uint64, err error) {
	err = p.with(platform.AccessQueryInformation, func(st *fakeProcState) error { m = st.mask; return nil })
	return m, err
}

func (p *fakeProcess) SetAffinity(mask uint64) error {
	return p.with(platform.AccessSetInformation, func(st *fakeProcState) error { st.mask = mask; return nil })
}

func (p *fakeProcess) SetPowerThrottle(on bool) error {
	return p.with(platform.AccessSetInformation, func(st *fakeProcState) error {
		if p.ctrl.throttleErr != nil {
			return p.ctrl.throttleErr
		}
		st.throttle = on
		return nil
	})
}

func (p *fakeProcess) Group() (g string, err error) {
	err = p.with(platform.AccessQueryInformation, func(st *fakeProcState) error { g = st.group; return nil })
	return g, err
}

func (p *fakeProcess) JoinGroup(group string) error {
	return p.with(platform.AccessSetQuota, func(st *fakeProcState) error { st.group = group; return nil })
}

func (p *fakeProcess) Suspend() error {
	return p.with(platform.AccessSuspendResume, func(st *fakeProcState) error { st.suspended = true; return nil })
}

func (p *fakeProcess) Resume() error {
	return p.with(platform.AccessSuspendResume, func(st *fakeProcState) error { st.suspended = false; return nil })
}

func (p *fakeProcess) Terminate() error {
	return p.with(platform.AccessTerminate, func(st *fakeProcState) error { st.dead = true; return nil })
}

func (p *fakeProcess) Close() error {
	p.ctrl.mu.Lock()
	defer p.ctrl.mu.Unlock()
	if !p.closed {
		p.closed = true
		p.ctrl.closed++
	}
	return nil
}

// staticLookup serves ProcessSnapshots from a fixed table.
type staticLookup struct {
	mu    sync.Mutex
	procs map[int]model.ProcessSnapshot
	errs  map[int]error
}

func newStaticLookup(procs ...model.ProcessSnapshot) *staticLookup {
	l := &staticLookup{procs: make(map[int]model.ProcessSnapshot), errs: make(map[int]error)}
	for _, p := range procs {
		l.procs[p.PID] = p
	}
	return l
}

// replace swaps the process behind p.PID, as when a pid is reused.
func (l *staticLookup) replace(p model.ProcessSnapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.procs[p.PID] = p
}

func (l *staticLookup) fail(pid int, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errs[pid] = err
}

func (l *staticLookup) lookup(_ context.Context, pid int) (model.ProcessSnapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.errs[pid]; err != nil {
		return model.ProcessSnapshot{}, err
	}
	p, ok := l.procs[pid]
	if !ok {
		return model.ProcessSnapshot{}, errors.New("not found")
	}
	return p, nil
}

func newTestExecutor(ctrl *fakeController, procs ...model.ProcessSnapshot) *Executor {
	ex, _ := newTestExecutorLookup(ctrl, procs...)
	return ex
}

func newTestExecutorLookup(ctrl *fakeController, procs ...model.ProcessSnapshot) (*Executor, *staticLookup) {
	lk := newStaticLookup(procs...)
	for _, p := range procs {
		if _, ok := ctrl.procs[p.PID]; !ok {
			ctrl.add(p.PID)
		}
	}
	return NewExecutor(ExecutorConfig{
		Controller: ctrl,
		Lookup:     lk.lookup,
		SelfPID:    999990,
		ParentPID:  999991,
	}), lk
}
