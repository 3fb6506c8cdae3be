package app

import (
	"time"

	"github.com/tulikaff659/football-bot/internal/eventbus"
	"github.com/tulikaff659/football-bot/internal/runtime/supervisor"
	"github.com/tulikaff659/football-bot/internal/scheduler"
)

// Status is the body of the health endpoint's /status.
type Status struct {
	StartedAt      time.Time              `json:"started_at"`
	Uptime         string                 `json:"uptime"`
	LastSweep      *scheduler.Report      `json:"last_sweep,omitempty"`
	Deliveries     eventbus.TallySnapshot `json:"deliveries"`
	CachedFixtures int                    `json:"cached_fixtures"`
	Tasks          supervisor.Snapshot    `json:"tasks"`
}

func (a *App) Status() any {
	st := Status{
		StartedAt:      a.startedAt,
		Uptime:         time.Since(a.startedAt).Round(time.Second).String(),
		Deliveries:     a.tally.Snapshot(),
		CachedFixtures: a.gw.Cached(),
		Tasks:          a.sup.Snapshot(),
	}
	if r, ok := a.sched.LastReport(); ok {
		st.LastSweep = &r
	}
	return st
}
