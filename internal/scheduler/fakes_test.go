package scheduler

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/tulikaff659/football-bot/internal/matchdata"
	"github.com/tulikaff659/football-bot/internal/notifier"
	"github.com/tulikaff659/football-bot/internal/storage"
	kit "github.com/tulikaff659/football-bot/internal/transport"
	logx "github.com/tulikaff659/football-bot/pkg/logx"
)

var kickoff = time.Date(2026, 5, 10, 15, 0, 0, 0, time.UTC)

func at(minutesBefore float64) time.Time {
	return kickoff.Add(-time.Duration(minutesBefore * float64(time.Minute)))
}

type memStore struct {
	mu      sync.Mutex
	subs    map[[2]int64]storage.Subscription
	listErr error
	flagErr error
}

func newMemStore() *memStore { return &memStore{subs: map[[2]int64]storage.Subscription{}} }

func (m *memStore) follow(user, fixture int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[[2]int64{user, fixture}] = storage.Subscription{
		UserID: user, FixtureID: fixture, KickoffAt: kickoff, HomeName: "Arsenal", AwayName: "Chelsea",
	}
}

func (m *memStore) remove(user, fixture int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subs, [2]int64{user, fixture})
}

func (m *memStore) get(user, fixture int64) (storage.Subscription, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[[2]int64{user, fixture}]
	return s, ok
}

func (m *memStore) ListAll(ctx context.Context) ([]storage.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]storage.Subscription, 0, len(m.subs))
	for _, s := range m.subs {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FixtureID != out[j].FixtureID {
			return out[i].FixtureID < out[j].FixtureID
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

func (m *memStore) SetFlags(ctx context.Context, user, fixture int64, f storage.Flags) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.flagErr != nil {
		return m.flagErr
	}
	s, ok := m.subs[[2]int64{user, fixture}]
	if !ok {
		return storage.ErrNotFound
	}
	s.NotifiedHour = s.NotifiedHour || f.Hour
	s.NotifiedFifteen = s.NotifiedFifteen || f.Fifteen
	s.NotifiedLineup = s.NotifiedLineup || f.Lineup
	m.subs[[2]int64{user, fixture}] = s
	return nil
}

func (m *memStore) SetKickoff(ctx context.Context, fixture int64, ko time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, s := range m.subs {
		if k[1] == fixture {
			s.KickoffAt = ko
			m.subs[k] = s
		}
	}
	return nil
}

func (m *memStore) Remove(ctx context.Context, user, fixture int64) error {
	m.remove(user, fixture)
	return nil
}

type fakeGateway struct {
	mu    sync.Mutex
	snaps map[int64]matchdata.Snapshot
	errs  map[int64]error
	calls map[int64]int

	block   chan struct{}
	entered chan struct{}
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{snaps: map[int64]matchdata.Snapshot{}, errs: map[int64]error{}, calls: map[int64]int{}}
}

func (g *fakeGateway) set(s matchdata.Snapshot) {
	g.mu.Lock()
	g.snaps[s.FixtureID] = s
	g.mu.Unlock()
}

func (g *fakeGateway) GetMatch(ctx context.Context, id int64) (matchdata.Snapshot, error) {
	if g.block != nil {
		select {
		case g.entered <- struct{}{}:
		default:
		}
		select {
		case <-g.block:
		case <-ctx.Done():
			return matchdata.Snapshot{}, ctx.Err()
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls[id]++
	if err := g.errs[id]; err != nil {
		return matchdata.Snapshot{}, err
	}
	s, ok := g.snaps[id]
	if !ok {
		return matchdata.Snapshot{}, matchdata.ErrUnavailable
	}
	return s.Clone(), nil
}

func (g *fakeGateway) callCount(id int64) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[id]
}

func fixture(id int64) matchdata.Snapshot {
	return matchdata.Snapshot{
		FixtureID: id,
		KickoffAt: kickoff,
		Status:    matchdata.StatusTimed,
		Home:      matchdata.Team{Name: "Arsenal"},
		Away:      matchdata.Team{Name: "Chelsea"},
	}
}

type sent struct {
	chat int64
	text string
}

type recordingSender struct {
	mu   sync.Mutex
	msgs []sent
	fail map[int64]error
}

func (r *recordingSender) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail[to.ChatID]; err != nil {
		return kit.MessageRef{}, err
	}
	r.msgs = append(r.msgs, sent{chat: to.ChatID, text: text})
	return kit.MessageRef{ChatID: to.ChatID}, nil
}

func (r *recordingSender) count(chat int64, contains string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.msgs {
		if m.chat == chat && containsStr(m.text, contains) {
			n++
		}
	}
	return n
}

func (r *recordingSender) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

type harness struct {
	store  *memStore
	gw     *fakeGateway
	sender *recordingSender
	svc    *Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:  newMemStore(),
		gw:     newFakeGateway(),
		sender: &recordingSender{fail: map[int64]error{}},
	}
	disp := notifier.New(notifier.Config{RatePerSec: 1000}, h.sender, logx.Nop(), nil)
	svc, err := New(DefaultConfig(), h.store, h.gw, disp, logx.Nop(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.svc = svc
	return h
}

const (
	hourText     = "kicks off in about 1 hour"
	fifteenText  = "starts in 15 minutes"
	fallbackText = "have not been announced yet"
	lineupText   = "Lineups: "
)
