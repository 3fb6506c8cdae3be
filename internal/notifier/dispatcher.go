package notifier

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/tulikaff659/football-bot/internal/eventbus"
	kit "github.com/tulikaff659/football-bot/internal/transport"
	logx "github.com/tulikaff659/football-bot/pkg/logx"
)

type Kind string

const (
	KindHour    Kind = "hour"
	KindLineup  Kind = "lineup"
	KindFifteen Kind = "fifteen"
)

type Config struct {
	RatePerSec  int
	Workers     int
	SendTimeout time.Duration
}

// Message is one rendered notification, identical for every recipient.
type Message struct {
	FixtureID int64
	Text      string // Telegram HTML
}

// Report maps each recipient to its delivery error; nil means delivered.
type Report map[int64]error

func (r Report) Delivered() []int64 {
	out := make([]int64, 0, len(r))
	for id, err := range r {
		if err == nil {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r Report) Failed() int {
	n := 0
	for _, err := range r {
		if err != nil {
			n++
		}
	}
	return n
}

type Dispatcher struct {
	sender kit.Sender
	log    logx.Logger
	bus    eventbus.Bus

	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter
}

func New(cfg Config, sender kit.Sender, log logx.Logger, bus eventbus.Bus) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop{}
	}
	d := &Dispatcher{
		sender: sender,
		log:    log.With(logx.String("comp", "notifier")),
		bus:    bus,
	}
	d.Apply(cfg)
	return d
}

// Apply swaps the rate and concurrency settings. Sends already running keep
// the limiter they started with.
func (d *Dispatcher) Apply(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 25
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	d.mu.Lock()
	d.cfg = cfg
	d.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	d.mu.Unlock()
}

// Send delivers msg to every recipient and reports each outcome. It returns
// once every send finished or ctx is done.
func (d *Dispatcher) Send(ctx context.Context, kind Kind, recipients []int64, msg Message) Report {
	d.mu.Lock()
	cfg, lim := d.cfg, d.limiter
	d.mu.Unlock()

	report := make(Report, len(recipients))
	unique := make([]int64, 0, len(recipients))
	for _, id := range recipients {
		if _, dup := report[id]; !dup {
			report[id] = nil
			unique = append(unique, id)
		}
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(cfg.Workers)
	for _, id := range unique {
		g.Go(func() error {
			err := d.sendOne(ctx, lim, cfg.SendTimeout, kind, id, msg)
			mu.Lock()
			report[id] = err
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if n := report.Failed(); n > 0 {
		d.log.Warn("notification fan-out had failures",
			logx.String("kind", string(kind)),
			logx.Int64("fixture_id", msg.FixtureID),
			logx.Int("recipients", len(report)),
			logx.Int("failed", n),
		)
	}
	return report
}

func (d *Dispatcher) sendOne(ctx context.Context, lim *rate.Limiter, timeout time.Duration, kind Kind, userID int64, msg Message) error {
	err := func() error {
		if err := lim.Wait(ctx); err != nil {
			return err
		}
		cctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		_, err := d.sender.SendText(cctx, kit.ChatTarget{ChatID: userID}, msg.Text, &kit.SendOptions{
			ParseMode:      "HTML",
			DisablePreview: true,
		})
		return err
	}()

	ev := eventbus.Delivery{Kind: string(kind), FixtureID: msg.FixtureID, UserID: userID}
	if err != nil {
		ev.Err = err.Error()
		d.bus.Publish(eventbus.Event{Type: eventbus.TypeNotifyFailed, Data: ev})
		d.log.Warn("notification not delivered",
			logx.String("kind", string(kind)),
			logx.Int64("fixture_id", msg.FixtureID),
			logx.Int64("user_id", userID),
			logx.Err(err),
		)
		return err
	}
	d.bus.Publish(eventbus.Event{Type: eventbus.TypeNotifySent, Data: ev})
	return nil
}
