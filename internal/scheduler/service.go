// Package scheduler runs the periodic sweep that turns subscriptions into
// kickoff notifications.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/tulikaff659/football-bot/internal/eventbus"
	"github.com/tulikaff659/football-bot/internal/matchdata"
	"github.com/tulikaff659/football-bot/internal/notifier"
	"github.com/tulikaff659/football-bot/internal/storage"
	logx "github.com/tulikaff659/football-bot/pkg/logx"
)

// ErrSweepRunning is returned by Sweep while another sweep is in progress.
var ErrSweepRunning = errors.New("sweep already running")

type Store interface {
	ListAll(ctx context.Context) ([]storage.Subscription, error)
	SetFlags(ctx context.Context, userID, fixtureID int64, f storage.Flags) error
	SetKickoff(ctx context.Context, fixtureID int64, kickoff time.Time) error
	Remove(ctx context.Context, userID, fixtureID int64) error
}

type Gateway interface {
	GetMatch(ctx context.Context, fixtureID int64) (matchdata.Snapshot, error)
}

type Dispatcher interface {
	Send(ctx context.Context, kind notifier.Kind, recipients []int64, msg notifier.Message) notifier.Report
}

type Service struct {
	cfg   Config
	store Store
	gw    Gateway
	disp  Dispatcher
	log   logx.Logger
	bus   eventbus.Bus
	now   func() time.Time

	sweepMu sync.Mutex

	mu      sync.Mutex
	c       *cron.Cron
	cancel  context.CancelFunc
	running sync.WaitGroup
	last    *Report
}

func New(cfg Config, store Store, gw Gateway, disp Dispatcher, log logx.Logger, bus eventbus.Bus) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop{}
	}
	return &Service{
		cfg:   cfg,
		store: store,
		gw:    gw,
		disp:  disp,
		log:   log.With(logx.String("comp", "scheduler")),
		bus:   bus,
		now:   time.Now,
	}, nil
}

// Start runs one sweep right away and then every Interval until Stop or
// until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	clog := cronLogger{s.log}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
		cron.WithLogger(clog),
	)
	job := cron.FuncJob(func() { s.scheduledSweep(runCtx) })
	if _, err := c.AddJob("@every "+s.cfg.Interval.String(), job); err != nil {
		cancel()
		return errors.Wrap(err, "schedule sweep")
	}
	s.c, s.cancel = c, cancel

	s.running.Add(1)
	go func() {
		defer s.running.Done()
		s.scheduledSweep(runCtx)
	}()
	c.Start()
	s.log.Info("scheduler started", logx.Duration("interval", s.cfg.Interval))
	return nil
}

// Stop cancels any in-flight sweep and waits for it to return.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	c, cancel := s.c, s.cancel
	s.c, s.cancel = nil, nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}
	cancel()

	done := make(chan struct{})
	go func() {
		<-c.Stop().Done()
		s.running.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) scheduledSweep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.Sweep(ctx, s.now()); err != nil && !errors.Is(err, ErrSweepRunning) && !errors.Is(err, context.Canceled) {
		s.log.Error("sweep failed", logx.Err(err))
	}
}

// LastReport returns the report of the most recent completed sweep.
func (s *Service) LastReport() (Report, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return Report{}, false
	}
	return *s.last, true
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append(kvFields(keysAndValues), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			continue
		}
		out = append(out, logx.Any(k, kv[i+1]))
	}
	return out
}
