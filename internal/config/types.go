package config

// Config is the on-disk configuration. Durations are Go duration strings
// ("60s", "10m"). Defaults come from the `default` tags and are applied before
// the file is decoded, so any key present in the file wins.
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	MatchData MatchDataConfig `json:"match_data"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Notifier  NotifierConfig  `json:"notifier"`
	Storage   StorageConfig   `json:"storage"`
	Health    HealthConfig    `json:"health"`
}

type TelegramConfig struct {
	// Token may be left empty in the file and supplied via BOT_TOKEN.
	Token       string `json:"token" env:"BOT_TOKEN" validate:"required"`
	PollTimeout string `json:"poll_timeout" default:"10s"`
}

type LoggingConfig struct {
	Level   string       `json:"level" default:"info" validate:"oneof=trace debug info warn error"`
	Console bool         `json:"console"`
	File    LoggingFile  `json:"file"`
	Alert   LoggingAlert `json:"alert"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path" default:"./football-bot.log"`
}

// LoggingAlert forwards warn+ records to an operator chat.
type LoggingAlert struct {
	Enabled    bool   `json:"enabled"`
	ChatID     int64  `json:"chat_id" validate:"required_if=Enabled true"`
	ThreadID   int    `json:"thread_id" validate:"gte=0"`
	MinLevel   string `json:"min_level" default:"warn" validate:"oneof=debug info warn error"`
	RatePerSec int    `json:"rate_per_sec" default:"1" validate:"gte=1"`
}

type MatchDataConfig struct {
	BaseURL string `json:"base_url" default:"https://api.football-data.org/v4" validate:"url"`
	// Token may be supplied via FOOTBALL_DATA_TOKEN.
	Token      string `json:"token" env:"FOOTBALL_DATA_TOKEN" validate:"required"`
	Timeout    string `json:"timeout" default:"15s"`
	CacheTTL   string `json:"cache_ttl" default:"10m"`
	MinSpacing string `json:"min_spacing" default:"6s"`
	Attempts   int    `json:"attempts" default:"3" validate:"gte=1,lte=10"`
	JitterMin  string `json:"jitter_min" default:"1s"`
	JitterMax  string `json:"jitter_max" default:"3s"`
	CacheSize  int    `json:"cache_size" default:"1024" validate:"gte=1"`
}

// Window bounds are minutes before kickoff, inclusive.
type Window struct {
	From float64 `json:"from" validate:"gte=0"`
	To   float64 `json:"to" validate:"gtefield=From"`
}

type LineupLink struct {
	Title string `json:"title" validate:"required"`
	URL   string `json:"url" validate:"required"`
}

type SchedulerConfig struct {
	Interval string       `json:"interval" default:"60s"`
	Hour     Window       `json:"hour" default:"{\"from\":55,\"to\":65}"`
	Lineup   Window       `json:"lineup" default:"{\"from\":55,\"to\":65}"`
	Fifteen  Window       `json:"fifteen" default:"{\"from\":10,\"to\":20}"`
	Horizon  string       `json:"horizon" default:"70m"`
	Grace    string       `json:"grace" default:"5m"`
	Links    []LineupLink `json:"lineup_links" validate:"dive"`
}

type NotifierConfig struct {
	RatePerSec  int    `json:"rate_per_sec" default:"25" validate:"gte=1,lte=30"`
	Workers     int    `json:"workers" default:"8" validate:"gte=1,lte=64"`
	SendTimeout string `json:"send_timeout" default:"10s"`
}

// StorageConfig selects the subscription backend.
//
//	"storage": { "driver": "sqlite", "path": "./football-bot.db" }
type StorageConfig struct {
	Driver string `json:"driver" default:"sqlite" validate:"oneof=file sqlite sqlite3 postgres postgresql"`
	Path   string `json:"path" default:"./football-bot.db"`
	// DSN is used by postgres and may be supplied via DATABASE_DSN.
	DSN         string `json:"dsn" env:"DATABASE_DSN" validate:"required_if=Driver postgres,required_if=Driver postgresql"`
	BusyTimeout string `json:"busy_timeout" default:"5s"`
}

// HealthConfig controls the HTTP status endpoint.
//
// Binding to a non-loopback address requires a token unless allow_insecure
// is set.
type HealthConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr" default:"127.0.0.1:8089" validate:"hostname_port"`
	Token         string `json:"token"`
	AllowInsecure bool   `json:"allow_insecure"`
	Pprof         bool   `json:"pprof"`
}
