// Package matchdata fetches fixture details from the upstream football API.
// Calls are serialised, spaced by a minimum interval, retried with
// exponential backoff and cached for a fixed TTL.
package matchdata

import "time"

type Status string

const (
	StatusScheduled Status = "SCHEDULED"
	StatusTimed     Status = "TIMED"
	StatusInPlay    Status = "IN_PLAY"
	StatusPaused    Status = "PAUSED"
	StatusFinished  Status = "FINISHED"
	StatusSuspended Status = "SUSPENDED"
	StatusPostponed Status = "POSTPONED"
	StatusCancelled Status = "CANCELLED"
	StatusAwarded   Status = "AWARDED"
)

// Playable reports whether the fixture can still kick off as scheduled.
// Unknown statuses count as playable.
func (s Status) Playable() bool {
	switch s {
	case StatusFinished, StatusSuspended, StatusPostponed, StatusCancelled, StatusAwarded:
		return false
	}
	return true
}

// Started reports whether the fixture is underway or over.
func (s Status) Started() bool {
	switch s {
	case StatusInPlay, StatusPaused, StatusFinished, StatusAwarded:
		return true
	}
	return false
}

type Player struct {
	Name        string
	Position    string
	ShirtNumber int
}

type Team struct {
	ID        int64
	Name      string
	Formation string
	Coach     string
	Lineup    []Player
	Bench     []Player
}

// Snapshot is the state of one fixture as last fetched. Empty lineups mean
// they have not been announced yet.
type Snapshot struct {
	FixtureID       int64
	KickoffAt       time.Time
	Status          Status
	Home            Team
	Away            Team
	CompetitionCode string
	CompetitionName string
	Venue           string
	Attendance      int
	FetchedAt       time.Time
}

func (s *Snapshot) HasLineups() bool {
	return len(s.Home.Lineup) > 0 && len(s.Away.Lineup) > 0
}

// MinutesUntilKickoff returns the signed number of minutes from now to kickoff.
func (s *Snapshot) MinutesUntilKickoff(now time.Time) float64 {
	return s.KickoffAt.Sub(now).Minutes()
}

// Clone returns a deep copy.
func (s *Snapshot) Clone() Snapshot {
	out := *s
	out.Home = s.Home.clone()
	out.Away = s.Away.clone()
	return out
}

func (t Team) clone() Team {
	t.Lineup = append([]Player(nil), t.Lineup...)
	t.Bench = append([]Player(nil), t.Bench...)
	return t
}
