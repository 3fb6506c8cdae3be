package storage

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "github.com/tulikaff659/football-bot/pkg/logx"
)

func newMockStore(t *testing.T) (*sqlStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	st := newSQLStore(sqlx.NewDb(db, "postgres"), logx.Nop())
	st.now = func() time.Time { return kickoff.Add(-time.Hour) }
	t.Cleanup(func() { _ = db.Close() })
	return st, mock
}

func TestPostgresUpsertUsesDollarPlaceholders(t *testing.T) {
	st, mock := newMockStore(t)
	s := sub(7, 42, kickoff)
	s.CreatedAt = time.Time{}

	mock.ExpectExec(regexp.QuoteMeta(`VALUES ($1, $2, $3, $4, $5, $6, FALSE, FALSE, FALSE, $7)`)).
		WithArgs(int64(7), int64(42), kickoff.UnixMilli(), "Arsenal", "Chelsea", "PL", kickoff.Add(-time.Hour).UnixMilli()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, st.Upsert(context.Background(), s))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSetFlagsOnlyTouchesTrueFields(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE subscriptions SET notified_fifteen = TRUE WHERE user_id = $1 AND fixture_id = $2`)).
		WithArgs(int64(7), int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, st.SetFlags(context.Background(), 7, 42, Flags{Fifteen: true}))

	mock.ExpectExec(regexp.QuoteMeta(`SET notified_hour = TRUE, notified_lineup = TRUE WHERE`)).
		WithArgs(int64(7), int64(43)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := st.SetFlags(context.Background(), 7, 43, Flags{Hour: true, Lineup: true})
	require.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSetKickoffUpdatesWholeFixture(t *testing.T) {
	st, mock := newMockStore(t)
	moved := kickoff.Add(2 * time.Hour).UnixMilli()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE subscriptions SET kickoff_at_ms = $1 WHERE fixture_id = $2 AND kickoff_at_ms <> $3`)).
		WithArgs(moved, int64(42), moved).
		WillReturnResult(sqlmock.NewResult(0, 3))
	require.NoError(t, st.SetKickoff(context.Background(), 42, kickoff.Add(2*time.Hour)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListAllMapsRows(t *testing.T) {
	st, mock := newMockStore(t)
	rows := sqlmock.NewRows([]string{
		"user_id", "fixture_id", "kickoff_at_ms", "home_name", "away_name", "league_code",
		"notified_hour", "notified_fifteen", "notified_lineup", "created_at_ms",
	}).AddRow(int64(1), int64(42), kickoff.UnixMilli(), "Arsenal", "Chelsea", "PL", true, false, true, kickoff.Add(-time.Hour).UnixMilli())
	mock.ExpectQuery(regexp.QuoteMeta(`FROM subscriptions ORDER BY fixture_id, user_id`)).WillReturnRows(rows)

	got, err := st.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(42), got[0].FixtureID)
	assert.True(t, got[0].KickoffAt.Equal(kickoff))
	assert.True(t, got[0].NotifiedHour)
	assert.False(t, got[0].NotifiedFifteen)
	assert.True(t, got[0].NotifiedLineup)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListAllPropagatesErrors(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectQuery("SELECT").WillReturnError(assert.AnError)
	_, err := st.ListAll(context.Background())
	require.ErrorIs(t, err, assert.AnError)
}
