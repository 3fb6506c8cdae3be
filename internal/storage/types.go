package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// ErrNotFound is returned by SetFlags when the subscription no longer exists.
var ErrNotFound = errors.New("subscription not found")

// Config selects and configures a driver.
type Config struct {
	Driver      string // file | sqlite | postgres
	Path        string // file and sqlite
	DSN         string // postgres
	BusyTimeout time.Duration
}

type Subscription struct {
	UserID     int64
	FixtureID  int64
	KickoffAt  time.Time
	HomeName   string
	AwayName   string
	LeagueCode string

	NotifiedHour    bool
	NotifiedFifteen bool
	NotifiedLineup  bool

	CreatedAt time.Time
}

// Done reports whether every notification for the subscription went out.
func (s Subscription) Done() bool {
	return s.NotifiedHour && s.NotifiedFifteen && s.NotifiedLineup
}

// Flags names the flags to set. False fields are left untouched.
type Flags struct {
	Hour    bool
	Fifteen bool
	Lineup  bool
}

func (f Flags) Empty() bool { return !f.Hour && !f.Fifteen && !f.Lineup }

func (f Flags) apply(s *Subscription) {
	s.NotifiedHour = s.NotifiedHour || f.Hour
	s.NotifiedFifteen = s.NotifiedFifteen || f.Fifteen
	s.NotifiedLineup = s.NotifiedLineup || f.Lineup
}

type Store interface {
	// Upsert inserts or replaces the (UserID, FixtureID) row and clears its flags.
	Upsert(ctx context.Context, sub Subscription) error
	// Remove deletes the row; absent rows are not an error.
	Remove(ctx context.Context, userID, fixtureID int64) error
	// ListAll returns every subscription ordered by fixture then user.
	ListAll(ctx context.Context) ([]Subscription, error)
	// ListByUser returns one user's subscriptions ordered by kickoff.
	ListByUser(ctx context.Context, userID int64) ([]Subscription, error)
	// SetFlags sets the true fields of f and returns ErrNotFound if the row is gone.
	SetFlags(ctx context.Context, userID, fixtureID int64, f Flags) error
	// SetKickoff moves every subscription of the fixture to kickoff, keeping flags.
	SetKickoff(ctx context.Context, fixtureID int64, kickoff time.Time) error
	Ping(ctx context.Context) error
	Close() error
}
