package collector

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu    sync.Mutex
	procs []ProcessInfo
}

func (f *fakeSource) set(procs ...ProcessInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.procs = procs
}

func (f *fakeSource) List(context.Context) ([]ProcessInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ProcessInfo(nil), f.procs...), nil
}

func (f *fakeSource) Get(_ context.Context, pid int) (ProcessInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.procs {
		if p.PID == pid {
			return p, nil
		}
	}
	return ProcessInfo{}, errors.New("no such process")
}

func newTestSampler(src ProcessSource, cores int) (*Sampler, *time.Time) {
	s := NewSampler(src, cores, nil)
	now := time.Unix(1000, 0)
	s.now = func() time.Time { return now }
	return s, &now
}

func TestSamplerNormalizesByCoreCount(t *testing.T) {
	src := &fakeSource{}
	s, now := newTestSampler(src, 4)

	src.set(ProcessInfo{PID: 10, Name: "busy", CPUSeconds: 5, CreateTime: 1})
	first, err := s.Sample(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, first.Processes, 1)
	assert.Zero(t, first.Processes[0].CPUPct, "first sighting has no delta")

	*now = now.Add(time.Second)
	src.set(ProcessInfo{PID: 10, Name: "busy", CPUSeconds: 6, CreateTime: 1})
	second, err := s.Sample(context.Background(), 0)
	require.NoError(t, err)
	// one core busy for the whole second on four cores
	assert.InDelta(t, 25.0, second.Processes[0].CPUPct, 1e-9)
	assert.Same(t, second, s.Latest())
}

func TestSamplerResetsOnPidReuse(t *testing.T) {
	src := &fakeSource{}
	s, now := newTestSampler(src, 1)

	src.set(ProcessInfo{PID: 7, Name: "old", CPUSeconds: 100, CreateTime: 1})
	_, err := s.Sample(context.Background(), 0)
	require.NoError(t, err)

	*now = now.Add(time.Second)
	src.set(ProcessInfo{PID: 7, Name: "new", CPUSeconds: 100.5, CreateTime: 2})
	snap, err := s.Sample(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, snap.Processes[0].CPUPct)
}

func TestSamplerAssignsRoles(t *testing.T) {
	src := &fakeSource{}
	s, _ := newTestSampler(src, 2)
	src.set(ProcessInfo{PID: 1, Name: "a"}, ProcessInfo{PID: 2, Name: "b"})

	snap, err := s.Sample(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, "Background", snap.Processes[0].Role.String())
	assert.Equal(t, "Foreground", snap.Processes[1].Role.String())
	assert.Equal(t, 2, snap.ForegroundPID)
}

func TestSamplerProbe(t *testing.T) {
	src := &fakeSource{}
	s, _ := newTestSampler(src, 2)
	src.set(ProcessInfo{PID: 3, Name: "late", RSSBytes: 4096})

	p, err := s.Probe(context.Background(), 3, 0)
	require.NoError(t, err)
	assert.Equal(t, "late", p.Name)
	assert.Equal(t, uint64(4096), p.RSSBytes)

	_, err = s.Probe(context.Background(), 99, 0)
	require.Error(t, err)
}

func TestSamplerProbeSeesReusedPID(t *testing.T) {
	src := &fakeSource{}
	s, now := newTestSampler(src, 1)

	src.set(ProcessInfo{PID: 8, Name: "worker", CPUSeconds: 1, CreateTime: 1})
	_, err := s.Sample(context.Background(), 0)
	require.NoError(t, err)
	*now = now.Add(time.Second)
	src.set(ProcessInfo{PID: 8, Name: "worker", CPUSeconds: 1.5, CreateTime: 1})
	_, err = s.Sample(context.Background(), 0)
	require.NoError(t, err)

	p, err := s.Probe(context.Background(), 8, 0)
	require.NoError(t, err)
	assert.InDelta(t, 50.0, p.CPUPct, 1e-9, "same process keeps the tick's CPU")

	// worker exits and sshd takes its pid before the next tick
	src.set(ProcessInfo{PID: 8, Name: "sshd", CreateTime: 2})
	p, err = s.Probe(context.Background(), 8, 0)
	require.NoError(t, err)
	assert.Equal(t, "sshd", p.Name)
	assert.EqualValues(t, 2, p.StartTime)
	assert.Zero(t, p.CPUPct)

	src.set()
	_, err = s.Probe(context.Background(), 8, 0)
	assert.Error(t, err, "exited processes are not served from the last tick")
}
