package scheduler

import (
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/tulikaff659/football-bot/internal/notifier"
)

// Window is an inclusive range of minutes before kickoff.
type Window struct {
	From float64 // lower bound, minutes before kickoff
	To   float64 // upper bound
}

func (w Window) Contains(minutesLeft float64) bool {
	return minutesLeft >= w.From && minutesLeft <= w.To
}

func (w Window) Width() time.Duration {
	return time.Duration((w.To - w.From) * float64(time.Minute))
}

func (w Window) String() string { return fmt.Sprintf("[%g, %g] min", w.From, w.To) }

type Config struct {
	Interval time.Duration
	Hour     Window
	Lineup   Window
	Fifteen  Window
	// Horizon skips groups whose stored kickoff is further away than this.
	Horizon time.Duration
	// Grace skips groups whose stored kickoff passed more than this ago.
	Grace       time.Duration
	LineupLinks []notifier.Link
}

func DefaultConfig() Config {
	return Config{
		Interval: 60 * time.Second,
		Hour:     Window{From: 55, To: 65},
		Lineup:   Window{From: 55, To: 65},
		Fifteen:  Window{From: 10, To: 20},
		Horizon:  70 * time.Minute,
		Grace:    5 * time.Minute,
		LineupLinks: []notifier.Link{
			{Title: "football-data.org", URL: "https://www.football-data.org/match/{fixture_id}"},
		},
	}
}

// Validate checks that every window is wide enough to be hit by at least two
// consecutive sweeps with a minute to spare.
func (c Config) Validate() error {
	if c.Interval <= 0 {
		return errors.New("scheduler interval must be positive")
	}
	minWidth := 2*c.Interval + time.Minute
	for name, w := range map[string]Window{"hour": c.Hour, "lineup": c.Lineup, "fifteen": c.Fifteen} {
		if w.From < 0 || w.To < w.From {
			return errors.Errorf("%s window %s is inverted or negative", name, w)
		}
		if w.Width() < minWidth {
			return errors.Errorf("%s window %s is narrower than %s (2 x interval + 1m)", name, w, minWidth)
		}
	}
	if c.Horizon < time.Duration(max(c.Hour.To, c.Lineup.To, c.Fifteen.To)*float64(time.Minute)) {
		return errors.Errorf("horizon %s does not cover the widest window", c.Horizon)
	}
	if c.Grace < 0 {
		return errors.New("grace must not be negative")
	}
	return nil
}
