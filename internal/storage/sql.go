package storage

import (
	"context"
	"embed"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	logx "github.com/tulikaff659/football-bot/pkg/logx"
)

//go:embed migrations/schema.sql
var migrationsFS embed.FS

func init() {
	// modernc registers itself as "sqlite", which sqlx does not know by default.
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// sqlStore implements Store on top of any sqlx-supported database. Queries
// are written with '?' placeholders and rebound for the driver.
type sqlStore struct {
	db  *sqlx.DB
	log logx.Logger
	now func() time.Time
}

type subscriptionRow struct {
	UserID          int64  `db:"user_id"`
	FixtureID       int64  `db:"fixture_id"`
	KickoffAtMS     int64  `db:"kickoff_at_ms"`
	HomeName        string `db:"home_name"`
	AwayName        string `db:"away_name"`
	LeagueCode      string `db:"league_code"`
	NotifiedHour    bool   `db:"notified_hour"`
	NotifiedFifteen bool   `db:"notified_fifteen"`
	NotifiedLineup  bool   `db:"notified_lineup"`
	CreatedAtMS     int64  `db:"created_at_ms"`
}

func (r subscriptionRow) subscription() Subscription {
	return Subscription{
		UserID:          r.UserID,
		FixtureID:       r.FixtureID,
		KickoffAt:       time.UnixMilli(r.KickoffAtMS).UTC(),
		HomeName:        r.HomeName,
		AwayName:        r.AwayName,
		LeagueCode:      r.LeagueCode,
		NotifiedHour:    r.NotifiedHour,
		NotifiedFifteen: r.NotifiedFifteen,
		NotifiedLineup:  r.NotifiedLineup,
		CreatedAt:       time.UnixMilli(r.CreatedAtMS).UTC(),
	}
}

const subscriptionColumns = `user_id, fixture_id, kickoff_at_ms, home_name, away_name, league_code,
	notified_hour, notified_fifteen, notified_lineup, created_at_ms`

const upsertQuery = `INSERT INTO subscriptions (` + subscriptionColumns + `)
VALUES (?, ?, ?, ?, ?, ?, FALSE, FALSE, FALSE, ?)
ON CONFLICT (user_id, fixture_id) DO UPDATE SET
	kickoff_at_ms = excluded.kickoff_at_ms,
	home_name = excluded.home_name,
	away_name = excluded.away_name,
	league_code = excluded.league_code,
	notified_hour = FALSE,
	notified_fifteen = FALSE,
	notified_lineup = FALSE,
	created_at_ms = excluded.created_at_ms`

func newSQLStore(db *sqlx.DB, log logx.Logger) *sqlStore {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &sqlStore{db: db, log: log, now: time.Now}
}

func (s *sqlStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations/schema.sql")
	if err != nil {
		return errors.Wrap(err, "read schema")
	}
	for _, stmt := range strings.Split(string(b), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "apply schema")
		}
	}
	return nil
}

func (s *sqlStore) Upsert(ctx context.Context, sub Subscription) error {
	created := sub.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(upsertQuery),
		sub.UserID, sub.FixtureID, sub.KickoffAt.UnixMilli(),
		sub.HomeName, sub.AwayName, sub.LeagueCode, created.UnixMilli(),
	)
	return errors.Wrapf(err, "upsert subscription %d/%d", sub.UserID, sub.FixtureID)
}

func (s *sqlStore) Remove(ctx context.Context, userID, fixtureID int64) error {
	_, err := s.db.ExecContext(ctx,
		s.db.Rebind(`DELETE FROM subscriptions WHERE user_id = ? AND fixture_id = ?`),
		userID, fixtureID)
	return errors.Wrapf(err, "remove subscription %d/%d", userID, fixtureID)
}

func (s *sqlStore) ListAll(ctx context.Context) ([]Subscription, error) {
	var rows []subscriptionRow
	q := `SELECT ` + subscriptionColumns + ` FROM subscriptions ORDER BY fixture_id, user_id`
	if err := s.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, errors.Wrap(err, "list subscriptions")
	}
	return toSubscriptions(rows), nil
}

func (s *sqlStore) ListByUser(ctx context.Context, userID int64) ([]Subscription, error) {
	var rows []subscriptionRow
	q := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE user_id = ? ORDER BY kickoff_at_ms, fixture_id`
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q), userID); err != nil {
		return nil, errors.Wrapf(err, "list subscriptions of user %d", userID)
	}
	return toSubscriptions(rows), nil
}

func (s *sqlStore) SetFlags(ctx context.Context, userID, fixtureID int64, f Flags) error {
	if f.Empty() {
		return nil
	}
	var set []string
	if f.Hour {
		set = append(set, "notified_hour = TRUE")
	}
	if f.Fifteen {
		set = append(set, "notified_fifteen = TRUE")
	}
	if f.Lineup {
		set = append(set, "notified_lineup = TRUE")
	}
	q := `UPDATE subscriptions SET ` + strings.Join(set, ", ") + ` WHERE user_id = ? AND fixture_id = ?`
	res, err := s.db.ExecContext(ctx, s.db.Rebind(q), userID, fixtureID)
	if err != nil {
		return errors.Wrapf(err, "set flags %d/%d", userID, fixtureID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqlStore) SetKickoff(ctx context.Context, fixtureID int64, kickoff time.Time) error {
	ms := kickoff.UnixMilli()
	_, err := s.db.ExecContext(ctx,
		s.db.Rebind(`UPDATE subscriptions SET kickoff_at_ms = ? WHERE fixture_id = ? AND kickoff_at_ms <> ?`),
		ms, fixtureID, ms)
	return errors.Wrapf(err, "set kickoff of fixture %d", fixtureID)
}

func (s *sqlStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}

func toSubscriptions(rows []subscriptionRow) []Subscription {
	out := make([]Subscription, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.subscription())
	}
	return out
}
