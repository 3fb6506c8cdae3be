package eventbus

import (
	"context"
	"sync"
	"time"
)

// Tally keeps running counters over the bus for status reporting.
type Tally struct {
	mu        sync.Mutex
	sent      uint64
	failed    uint64
	sweeps    uint64
	lastSweep *SweepCompleted
	reloads   uint64
	lastEvent time.Time
}

type TallySnapshot struct {
	Sent      uint64          `json:"sent"`
	Failed    uint64          `json:"failed"`
	Sweeps    uint64          `json:"sweeps"`
	Reloads   uint64          `json:"config_reloads"`
	LastSweep *SweepCompleted `json:"last_sweep,omitempty"`
	LastEvent time.Time       `json:"last_event"`
}

// Run consumes events until ctx is done or the channel closes.
func (t *Tally) Run(ctx context.Context, ch <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			t.Observe(e)
		}
	}
}

func (t *Tally) Observe(e Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastEvent = e.Time
	switch e.Type {
	case TypeNotifySent:
		t.sent++
	case TypeNotifyFailed:
		t.failed++
	case TypeSweepCompleted:
		t.sweeps++
		if sc, ok := e.Data.(SweepCompleted); ok {
			t.lastSweep = &sc
		}
	case TypeConfigReloaded:
		t.reloads++
	}
}

func (t *Tally) Snapshot() TallySnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := TallySnapshot{
		Sent:      t.sent,
		Failed:    t.failed,
		Sweeps:    t.sweeps,
		Reloads:   t.reloads,
		LastEvent: t.lastEvent,
	}
	if t.lastSweep != nil {
		cp := *t.lastSweep
		s.LastSweep = &cp
	}
	return s
}
