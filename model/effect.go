package model

import (
	"encoding/json"
	"math"
	"time"
)

// EffectBaseline is a pending before-measurement for (PID, Action).
type EffectBaseline struct {
	PID    int
	Action string
	T0     time.Time
	CPU0   float64
	Mem0   float64 // MB
}

// EffectKey identifies a pending baseline.
type EffectKey struct {
	PID    int
	Action string
}

// EffectRecord is a finalized before/after measurement.
type EffectRecord struct {
	PID    int
	Action string
	T0     time.Time
	T1     time.Time
	CPU0   float64
	CPU1   float64
	Mem0   float64
	Mem1   float64
	DCPU   float64
	DMem   float64
}

// effectJSON is the persisted shape; t0/t1 are fractional unix seconds.
type effectJSON struct {
	PID    int     `json:"pid"`
	Action string  `json:"action"`
	T0     float64 `json:"t0"`
	T1     float64 `json:"t1"`
	CPU0   float64 `json:"cpu0"`
	CPU1   float64 `json:"cpu1"`
	Mem0   float64 `json:"mem0"`
	Mem1   float64 `json:"mem1"`
	DCPU   float64 `json:"d_cpu"`
	DMem   float64 `json:"d_mem"`
}

func (r EffectRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(effectJSON{
		PID:    r.PID,
		Action: r.Action,
		T0:     unixSeconds(r.T0),
		T1:     unixSeconds(r.T1),
		CPU0:   r.CPU0,
		CPU1:   r.CPU1,
		Mem0:   r.Mem0,
		Mem1:   r.Mem1,
		DCPU:   r.DCPU,
		DMem:   r.DMem,
	})
}

func (r *EffectRecord) UnmarshalJSON(data []byte) error {
	var j effectJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	*r = EffectRecord{
		PID:    j.PID,
		Action: j.Action,
		T0:     fromUnixSeconds(j.T0),
		T1:     fromUnixSeconds(j.T1),
		CPU0:   j.CPU0,
		CPU1:   j.CPU1,
		Mem0:   j.Mem0,
		Mem1:   j.Mem1,
		DCPU:   j.DCPU,
		DMem:   j.DMem,
	}
	return nil
}

func unixSeconds(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixNano()) / 1e9
}

func fromUnixSeconds(s float64) time.Time {
	if s == 0 {
		return time.Time{}
	}
	sec, frac := math.Modf(s)
	return time.Unix(int64(sec), int64(frac*1e9))
}

// HealthFlags are the trend-derived flags for one pid.
type HealthFlags struct {
	PID   int  `json:"pid"`
	Leak  bool `json:"leak"`
	Spike bool `json:"spike"`
}

// Any reports whether any flag is raised.
func (f HealthFlags) Any() bool { return f.Leak || f.Spike }
