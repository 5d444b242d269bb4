package collector

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ftahirops/xgov/model"
	"github.com/ftahirops/xgov/util"
)

type procKey struct {
	pid     int
	created int64
}

type cpuReading struct {
	seconds float64
	at      time.Time
}

// Sampler turns raw readings into published snapshots with CPU percentages
// normalized by logical core count.
type Sampler struct {
	source ProcessSource
	cores  int
	now    func() time.Time
	log    *zap.Logger

	sampleMu sync.Mutex // serializes Sample; guards prev
	prev     map[procKey]cpuReading

	mu     sync.RWMutex
	latest *model.Snapshot
}

// NewSampler creates a sampler over source.
func NewSampler(source ProcessSource, cores int, log *zap.Logger) *Sampler {
	if cores < 1 {
		cores = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Sampler{
		source: source,
		cores:  cores,
		now:    time.Now,
		log:    log,
		prev:   make(map[procKey]cpuReading),
	}
}

// CoreCount is the normalization divisor.
func (s *Sampler) CoreCount() int { return s.cores }

// Sample enumerates processes, computes CPU percentages against the previous
// tick, and publishes the result. fgPID marks the foreground process.
func (s *Sampler) Sample(ctx context.Context, fgPID int) (*model.Snapshot, error) {
	s.sampleMu.Lock()
	defer s.sampleMu.Unlock()

	infos, err := s.source.List(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	next := make(map[procKey]cpuReading, len(infos))
	snap := &model.Snapshot{
		Timestamp:     now,
		CoreCount:     s.cores,
		ForegroundPID: fgPID,
		Processes:     make([]model.ProcessSnapshot, 0, len(infos)),
	}
	for _, info := range infos {
		key := procKey{pid: info.PID, created: info.CreateTime}
		var pct float64
		if prev, ok := s.prev[key]; ok {
			pct = util.CPUPct(prev.seconds, info.CPUSeconds, now.Sub(prev.at), s.cores)
		}
		next[key] = cpuReading{seconds: info.CPUSeconds, at: now}
		snap.Processes = append(snap.Processes, s.toSnapshot(info, pct, fgPID, now))
	}
	s.prev = next

	s.mu.Lock()
	s.latest = snap
	s.mu.Unlock()

	s.log.Debug("sampled processes", zap.Int("count", len(snap.Processes)))
	return snap, nil
}

// Latest returns the most recently published snapshot, or nil before the
// first tick. The returned value must not be modified.
func (s *Sampler) Latest() *model.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// Probe reads one process outside the tick. The CPU figure of the last tick
// is reused only when the live process is the one that tick saw; a pid
// reused since then reads as a new process with no CPU history.
func (s *Sampler) Probe(ctx context.Context, pid, fgPID int) (model.ProcessSnapshot, error) {
	info, err := s.source.Get(ctx, pid)
	if err != nil {
		return model.ProcessSnapshot{}, err
	}
	var pct float64
	if p, ok := s.Latest().Find(pid); ok && p.StartTime == info.CreateTime {
		pct = p.CPUPct
	}
	return s.toSnapshot(info, pct, fgPID, s.now()), nil
}

func (s *Sampler) toSnapshot(info ProcessInfo, pct float64, fgPID int, now time.Time) model.ProcessSnapshot {
	role := model.RoleBackground
	if fgPID > 0 && info.PID == fgPID {
		role = model.RoleForeground
	}
	return model.ProcessSnapshot{
		PID:       info.PID,
		PPID:      info.PPID,
		Name:      info.Name,
		CPUPct:    pct,
		RSSBytes:  info.RSSBytes,
		Role:      role,
		StartTime: info.CreateTime,
		Timestamp: now,
	}
}
