package matchdata

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	logx "github.com/tulikaff659/football-bot/pkg/logx"
)

const DefaultBaseURL = "https://api.football-data.org/v4"

type Config struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration // per HTTP call
	TTL        time.Duration
	MinSpacing time.Duration // between upstream call starts
	Attempts   int
	JitterMin  time.Duration
	JitterMax  time.Duration
	CacheSize  int
}

func (c Config) withDefaults() Config {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.TTL <= 0 {
		c.TTL = 10 * time.Minute
	}
	if c.MinSpacing <= 0 {
		c.MinSpacing = 6 * time.Second
	}
	if c.Attempts <= 0 {
		c.Attempts = 3
	}
	if c.JitterMin <= 0 && c.JitterMax <= 0 {
		c.JitterMin, c.JitterMax = time.Second, 3*time.Second
	}
	if c.JitterMax < c.JitterMin {
		c.JitterMax = c.JitterMin
	}
	if c.CacheSize <= 0 {
		c.CacheSize = 1024
	}
	return c
}

// Gateway is the single path to upstream match data.
type Gateway struct {
	cfg   Config
	log   logx.Logger
	clock Clock
	src   fetcher

	permit  *semaphore.Weighted
	spacing *rate.Limiter
	flight  singleflight.Group
	cache   *cache
	jitter  func() time.Duration

	// shared fetches run on base and stop when their last waiter leaves
	base    context.Context
	stop    context.CancelFunc
	wmu     sync.Mutex
	waiting map[int64]*waiters
}

type waiters struct {
	n   int
	ctl *fetchCtl
}

type fetchCtl struct{ cancel context.CancelFunc }

type Option func(*Gateway)

func WithClock(c Clock) Option { return func(g *Gateway) { g.clock = c } }

func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) {
		if hf, ok := g.src.(*httpFetcher); ok && c != nil {
			hf.client = c
		}
	}
}

// WithJitter replaces the random jitter added to each backoff sleep.
func WithJitter(f func() time.Duration) Option { return func(g *Gateway) { g.jitter = f } }

func New(cfg Config, log logx.Logger, opts ...Option) *Gateway {
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	g := &Gateway{
		cfg:   cfg,
		log:   log.With(logx.String("comp", "matchdata")),
		clock: realClock{},
		src: &httpFetcher{
			client:  &http.Client{},
			baseURL: cfg.BaseURL,
			token:   cfg.Token,
		},
		permit:  semaphore.NewWeighted(1),
		spacing: rate.NewLimiter(rate.Every(cfg.MinSpacing), 1),
		cache:   newCache(cfg.TTL, cfg.CacheSize),
		waiting: map[int64]*waiters{},
	}
	g.base, g.stop = context.WithCancel(context.Background())
	g.jitter = func() time.Duration {
		span := g.cfg.JitterMax - g.cfg.JitterMin
		if span <= 0 {
			return g.cfg.JitterMin
		}
		return g.cfg.JitterMin + rand.N(span)
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// GetMatch returns the fixture snapshot, from cache when it is younger than
// the TTL, otherwise from the upstream. Concurrent callers for the same
// fixture share one fetch.
func (g *Gateway) GetMatch(ctx context.Context, fixtureID int64) (Snapshot, error) {
	if fixtureID <= 0 {
		return Snapshot{}, errors.Errorf("invalid fixture id %d", fixtureID)
	}
	if s, ok := g.cache.get(fixtureID, g.clock.Now()); ok {
		return s.Clone(), nil
	}

	for try := 0; ; try++ {
		s, err := g.shared(ctx, fixtureID)
		if err == nil {
			return s.Clone(), nil
		}
		// joined a fetch whose other waiters all left; start our own
		if try < 2 && errors.Is(err, context.Canceled) && ctx.Err() == nil && g.base.Err() == nil {
			continue
		}
		return Snapshot{}, err
	}
}

// shared waits on its own ctx for the fixture's in-flight fetch, starting
// one when none is running. A caller leaving early does not fail the others.
func (g *Gateway) shared(ctx context.Context, fixtureID int64) (*Snapshot, error) {
	g.join(fixtureID)
	ch := g.flight.DoChan(strconv.FormatInt(fixtureID, 10), func() (any, error) {
		s, err := g.fetchShared(fixtureID)
		return s, err
	})
	select {
	case <-ctx.Done():
		g.leave(fixtureID)
		return nil, ctx.Err()
	case res := <-ch:
		g.leave(fixtureID)
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Snapshot), nil
	}
}

func (g *Gateway) join(fixtureID int64) {
	g.wmu.Lock()
	defer g.wmu.Unlock()
	w := g.waiting[fixtureID]
	if w == nil {
		w = &waiters{}
		g.waiting[fixtureID] = w
	}
	w.n++
}

func (g *Gateway) leave(fixtureID int64) {
	g.wmu.Lock()
	defer g.wmu.Unlock()
	w := g.waiting[fixtureID]
	if w == nil {
		return
	}
	if w.n--; w.n > 0 {
		return
	}
	if w.ctl != nil {
		w.ctl.cancel()
	}
	delete(g.waiting, fixtureID)
}

func (g *Gateway) fetchShared(fixtureID int64) (*Snapshot, error) {
	// another caller may have filled it while we waited on the flight
	if s, ok := g.cache.get(fixtureID, g.clock.Now()); ok {
		return s, nil
	}
	fctx, cancel := context.WithCancel(g.base)
	defer cancel()
	ctl := &fetchCtl{cancel: cancel}

	g.wmu.Lock()
	w := g.waiting[fixtureID]
	if w == nil {
		g.wmu.Unlock()
		return nil, context.Canceled
	}
	w.ctl = ctl
	g.wmu.Unlock()
	defer func() {
		g.wmu.Lock()
		if w.ctl == ctl {
			w.ctl = nil
		}
		g.wmu.Unlock()
	}()

	return g.fetchWithRetry(fctx, fixtureID)
}

// Close aborts in-flight fetches. Later calls fail with context.Canceled.
func (g *Gateway) Close() error {
	g.stop()
	return nil
}

// backoff is the sleep after the failed attempt (counted from 0).
func (g *Gateway) backoff(attempt int) time.Duration {
	return time.Duration(1<<attempt)*time.Second + g.jitter()
}

func (g *Gateway) fetchWithRetry(ctx context.Context, fixtureID int64) (*Snapshot, error) {
	var lastErr error
	for attempt := 0; attempt < g.cfg.Attempts; attempt++ {
		s, err := g.call(ctx, fixtureID)
		if err == nil {
			s.FetchedAt = g.clock.Now()
			g.cache.put(s, s.FetchedAt)
			g.log.Debug("fixture fetched", logx.Int64("fixture_id", fixtureID), logx.String("status", string(s.Status)))
			return s, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if !retryable(err) {
			return nil, err
		}
		lastErr = err
		if attempt == g.cfg.Attempts-1 {
			break
		}
		wait := g.backoff(attempt)
		g.log.Warn("fixture fetch failed, retrying",
			logx.Int64("fixture_id", fixtureID),
			logx.Int("attempt", attempt+1),
			logx.Duration("backoff", wait),
			logx.Err(err),
		)
		if err := g.clock.Sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: fixture %d after %d attempts: %w", ErrUnavailable, fixtureID, g.cfg.Attempts, lastErr)
}

// call performs one upstream request holding the single permit, starting no
// sooner than MinSpacing after the previous one.
func (g *Gateway) call(ctx context.Context, fixtureID int64) (*Snapshot, error) {
	if err := g.permit.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer g.permit.Release(1)

	now := g.clock.Now()
	r := g.spacing.ReserveN(now, 1)
	if wait := r.DelayFrom(now); wait > 0 {
		if err := g.clock.Sleep(ctx, wait); err != nil {
			r.CancelAt(g.clock.Now())
			return nil, err
		}
	}

	cctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()
	return g.src.fetch(cctx, fixtureID)
}

// Cached returns the number of snapshots held, expired ones included.
func (g *Gateway) Cached() int { return g.cache.len() }
