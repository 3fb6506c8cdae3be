package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/tulikaff659/football-bot/internal/health"
	"github.com/tulikaff659/football-bot/internal/matchdata"
	"github.com/tulikaff659/football-bot/internal/notifier"
	"github.com/tulikaff659/football-bot/internal/scheduler"
	"github.com/tulikaff659/football-bot/internal/storage"
	"github.com/tulikaff659/football-bot/internal/transport/telegram/adapter"
	logx "github.com/tulikaff659/football-bot/pkg/logx"
)

// Runtime holds the per-component configs derived from a Config.
type Runtime struct {
	Telegram  adapter.Config
	Logging   logx.Config
	MatchData matchdata.Config
	Scheduler scheduler.Config
	Notifier  notifier.Config
	Storage   storage.Config
	Health    health.Config
}

// Runtime parses every duration and maps the file sections onto component
// configs.
func (c *Config) Runtime() (Runtime, error) {
	var (
		rt  Runtime
		err error
	)
	d := func(path, raw string, def time.Duration) time.Duration {
		if err != nil {
			return 0
		}
		var v time.Duration
		v, err = ParseDurationOrDefault(path, raw, def)
		return v
	}

	rt.Telegram = adapter.Config{
		Token:       strings.TrimSpace(c.Telegram.Token),
		PollTimeout: d("telegram.poll_timeout", c.Telegram.PollTimeout, 10*time.Second),
	}

	rt.Logging = logx.Config{
		Level:   c.Logging.Level,
		Console: c.Logging.Console,
		File:    logx.FileConfig{Enabled: c.Logging.File.Enabled, Path: c.Logging.File.Path},
		Alert: logx.AlertConfig{
			Enabled:    c.Logging.Alert.Enabled,
			ChatID:     c.Logging.Alert.ChatID,
			ThreadID:   c.Logging.Alert.ThreadID,
			MinLevel:   c.Logging.Alert.MinLevel,
			RatePerSec: c.Logging.Alert.RatePerSec,
		},
	}

	md := c.MatchData
	rt.MatchData = matchdata.Config{
		BaseURL:    strings.TrimRight(strings.TrimSpace(md.BaseURL), "/"),
		Token:      strings.TrimSpace(md.Token),
		Timeout:    d("match_data.timeout", md.Timeout, 15*time.Second),
		TTL:        d("match_data.cache_ttl", md.CacheTTL, 10*time.Minute),
		MinSpacing: d("match_data.min_spacing", md.MinSpacing, 6*time.Second),
		Attempts:   md.Attempts,
		JitterMin:  d("match_data.jitter_min", md.JitterMin, time.Second),
		JitterMax:  d("match_data.jitter_max", md.JitterMax, 3*time.Second),
		CacheSize:  md.CacheSize,
	}

	sc := c.Scheduler
	def := scheduler.DefaultConfig()
	rt.Scheduler = scheduler.Config{
		Interval:    d("scheduler.interval", sc.Interval, def.Interval),
		Hour:        scheduler.Window{From: sc.Hour.From, To: sc.Hour.To},
		Lineup:      scheduler.Window{From: sc.Lineup.From, To: sc.Lineup.To},
		Fifteen:     scheduler.Window{From: sc.Fifteen.From, To: sc.Fifteen.To},
		Horizon:     d("scheduler.horizon", sc.Horizon, def.Horizon),
		Grace:       d("scheduler.grace", sc.Grace, def.Grace),
		LineupLinks: def.LineupLinks,
	}
	if len(sc.Links) > 0 {
		links := make([]notifier.Link, 0, len(sc.Links))
		for _, l := range sc.Links {
			links = append(links, notifier.Link{Title: l.Title, URL: l.URL})
		}
		rt.Scheduler.LineupLinks = links
	}

	rt.Notifier = notifier.Config{
		RatePerSec:  c.Notifier.RatePerSec,
		Workers:     c.Notifier.Workers,
		SendTimeout: d("notifier.send_timeout", c.Notifier.SendTimeout, 10*time.Second),
	}

	rt.Storage = storage.Config{
		Driver:      strings.ToLower(strings.TrimSpace(c.Storage.Driver)),
		Path:        strings.TrimSpace(c.Storage.Path),
		DSN:         strings.TrimSpace(c.Storage.DSN),
		BusyTimeout: d("storage.busy_timeout", c.Storage.BusyTimeout, 5*time.Second),
	}

	rt.Health = health.Config{
		Enabled:       c.Health.Enabled,
		Addr:          strings.TrimSpace(c.Health.Addr),
		Token:         strings.TrimSpace(c.Health.Token),
		AllowInsecure: c.Health.AllowInsecure,
		Pprof:         c.Health.Pprof,
	}

	return rt, err
}

// ParseDurationField parses a non-negative duration; empty is zero.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, errors.Wrapf(err, "%s: invalid duration %q", path, raw)
	}
	if d < 0 {
		return 0, errors.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault returns def for empty or zero values.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
