package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "github.com/tulikaff659/football-bot/pkg/logx"
)

var noEnv map[string]string

const minimalJSON = `{"telegram":{"token":"t"},"match_data":{"token":"m"}}`

func TestDecodeAppliesDefaults(t *testing.T) {
	cfg, err := Decode("config.json", []byte(minimalJSON), noEnv)
	require.NoError(t, err)

	rt, err := cfg.Runtime()
	require.NoError(t, err)

	assert.Equal(t, 60*time.Second, rt.Scheduler.Interval)
	assert.Equal(t, 55.0, rt.Scheduler.Hour.From)
	assert.Equal(t, 65.0, rt.Scheduler.Hour.To)
	assert.Equal(t, rt.Scheduler.Hour, rt.Scheduler.Lineup)
	assert.Equal(t, 10.0, rt.Scheduler.Fifteen.From)
	assert.Equal(t, 20.0, rt.Scheduler.Fifteen.To)
	assert.Equal(t, 70*time.Minute, rt.Scheduler.Horizon)
	assert.Equal(t, 5*time.Minute, rt.Scheduler.Grace)
	assert.NotEmpty(t, rt.Scheduler.LineupLinks)

	assert.Equal(t, "https://api.football-data.org/v4", rt.MatchData.BaseURL)
	assert.Equal(t, 10*time.Minute, rt.MatchData.TTL)
	assert.Equal(t, 6*time.Second, rt.MatchData.MinSpacing)
	assert.Equal(t, 15*time.Second, rt.MatchData.Timeout)
	assert.Equal(t, 3, rt.MatchData.Attempts)
	assert.Equal(t, time.Second, rt.MatchData.JitterMin)
	assert.Equal(t, 3*time.Second, rt.MatchData.JitterMax)

	assert.Equal(t, 25, rt.Notifier.RatePerSec)
	assert.Equal(t, "sqlite", rt.Storage.Driver)
	assert.Equal(t, "127.0.0.1:8089", rt.Health.Addr)
	assert.Equal(t, "info", rt.Logging.Level)
}

func TestDecodeFileOverridesDefaults(t *testing.T) {
	raw := `{
		"telegram": {"token": "t"},
		"match_data": {"token": "m", "min_spacing": "7s"},
		"scheduler": {"interval": "30s", "fifteen": {"from": 12, "to": 18}},
		"notifier": {"rate_per_sec": 5}
	}`
	cfg, err := Decode("config.json", []byte(raw), noEnv)
	require.NoError(t, err)
	rt, err := cfg.Runtime()
	require.NoError(t, err)

	assert.Equal(t, 7*time.Second, rt.MatchData.MinSpacing)
	assert.Equal(t, 30*time.Second, rt.Scheduler.Interval)
	assert.Equal(t, 12.0, rt.Scheduler.Fifteen.From)
	assert.Equal(t, 18.0, rt.Scheduler.Fifteen.To)
	assert.Equal(t, 55.0, rt.Scheduler.Hour.From)
	assert.Equal(t, 5, rt.Notifier.RatePerSec)
}

func TestDecodeYAML(t *testing.T) {
	raw := `
telegram:
  token: t
match_data:
  token: m
storage:
  driver: file
  path: ./subs
`
	cfg, err := Decode("config.yaml", []byte(raw), noEnv)
	require.NoError(t, err)
	assert.Equal(t, "file", cfg.Storage.Driver)
	assert.Equal(t, "./subs", cfg.Storage.Path)
}

func TestEnvOverridesSecrets(t *testing.T) {
	raw := `{"telegram":{"token":"from-file"},"storage":{"driver":"postgres"}}`
	cfg, err := Decode("config.json", []byte(raw), map[string]string{
		EnvBotToken:          "from-env",
		EnvFootballDataToken: "fd",
		EnvDatabaseDSN:       "postgres://u@h/db",
	})
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Telegram.Token)
	assert.Equal(t, "fd", cfg.MatchData.Token)
	assert.Equal(t, "postgres://u@h/db", cfg.Storage.DSN)
}

func TestEmptyEnvKeepsFileSecrets(t *testing.T) {
	raw := `{"telegram":{"token":"from-file"},"match_data":{"token":"m"}}`
	cfg, err := Decode("config.json", []byte(raw), map[string]string{EnvBotToken: ""})
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.Telegram.Token)
}

func TestDecodeRejects(t *testing.T) {
	cases := map[string]string{
		"unknown field":    `{"telegram":{"token":"t","nope":1},"match_data":{"token":"m"}}`,
		"trailing data":    minimalJSON + `{}`,
		"missing token":    `{"match_data":{"token":"m"}}`,
		"bad driver":       `{"telegram":{"token":"t"},"match_data":{"token":"m"},"storage":{"driver":"mongo"}}`,
		"postgres no dsn":  `{"telegram":{"token":"t"},"match_data":{"token":"m"},"storage":{"driver":"postgres"}}`,
		"bad duration":     `{"telegram":{"token":"t"},"match_data":{"token":"m","cache_ttl":"soon"}}`,
		"inverted window":  `{"telegram":{"token":"t"},"match_data":{"token":"m"},"scheduler":{"hour":{"from":65,"to":55}}}`,
		"narrow window":    `{"telegram":{"token":"t"},"match_data":{"token":"m"},"scheduler":{"fifteen":{"from":14,"to":16}}}`,
		"jitter inverted":  `{"telegram":{"token":"t"},"match_data":{"token":"m","jitter_min":"5s","jitter_max":"1s"}}`,
		"alert no chat id": `{"telegram":{"token":"t"},"match_data":{"token":"m"},"logging":{"alert":{"enabled":true}}}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode("config.json", []byte(raw), noEnv)
			require.Error(t, err)
		})
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	d, err := ParseDurationOrDefault("x", "", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, d)

	d, err = ParseDurationOrDefault("x", "90s", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)

	_, err = ParseDurationOrDefault("x", "-1s", time.Minute)
	require.Error(t, err)
}

func TestSummarizeChangeHidesSecrets(t *testing.T) {
	a, err := Decode("c.json", []byte(minimalJSON), noEnv)
	require.NoError(t, err)
	b := *a
	b.Notifier.RatePerSec = 10
	b.Health.Token = "secret"

	sections, _ := SummarizeChange(a, &b)
	assert.Equal(t, []string{"notifier", "health"}, sections)
	assert.Equal(t, []string{"health"}, RestartRequired(a, &b))
}

func TestManagerWatchPublishesValidChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(minimalJSON), 0o644))

	m := NewManager(path, logx.Nop())
	m.debounce = 20 * time.Millisecond
	_, err := m.Load()
	require.NoError(t, err)
	updates := m.Subscribe(1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Watch(ctx)
	}()

	// invalid content is ignored
	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte(`{"telegram":`), 0o644)
		time.Sleep(50 * time.Millisecond)
		return m.Get().Notifier.RatePerSec == 25
	}, 2*time.Second, 10*time.Millisecond)

	next := `{"telegram":{"token":"t"},"match_data":{"token":"m"},"notifier":{"rate_per_sec":7}}`
	var got *Config
	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte(next), 0o644)
		select {
		case got = <-updates:
			return true
		case <-time.After(100 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 7, got.Notifier.RatePerSec)
	assert.Equal(t, 7, m.Get().Notifier.RatePerSec)

	cancel()
	<-done
	m.Unsubscribe(updates)
}
