package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tulikaff659/football-bot/internal/matchdata"
	"github.com/tulikaff659/football-bot/internal/storage"
	kit "github.com/tulikaff659/football-bot/internal/transport"
	logx "github.com/tulikaff659/football-bot/pkg/logx"
)

var now = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

type memStore struct {
	mu   sync.Mutex
	subs []storage.Subscription
	err  error
}

func (m *memStore) Upsert(ctx context.Context, s storage.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	for i := range m.subs {
		if m.subs[i].UserID == s.UserID && m.subs[i].FixtureID == s.FixtureID {
			m.subs[i] = s
			return nil
		}
	}
	m.subs = append(m.subs, s)
	return nil
}

func (m *memStore) Remove(ctx context.Context, userID, fixtureID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.subs[:0]
	for _, s := range m.subs {
		if s.UserID != userID || s.FixtureID != fixtureID {
			out = append(out, s)
		}
	}
	m.subs = out
	return m.err
}

func (m *memStore) ListByUser(ctx context.Context, userID int64) ([]storage.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []storage.Subscription
	for _, s := range m.subs {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, m.err
}

type stubGateway map[int64]any

func (g stubGateway) GetMatch(ctx context.Context, id int64) (matchdata.Snapshot, error) {
	switch v := g[id].(type) {
	case matchdata.Snapshot:
		return v, nil
	case error:
		return matchdata.Snapshot{}, v
	}
	return matchdata.Snapshot{}, fmt.Errorf("%w: fixture %d: %w", matchdata.ErrUnavailable, id, &matchdata.StatusError{Code: 404})
}

type replies struct {
	mu   sync.Mutex
	sent []string
}

func (r *replies) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	r.mu.Lock()
	r.sent = append(r.sent, text)
	r.mu.Unlock()
	return kit.MessageRef{}, nil
}

func newHandler(store *memStore, gw stubGateway) *Handler {
	h := New(store, gw, &replies{}, logx.Nop())
	h.now = func() time.Time { return now }
	return h
}

func private(text string) kit.Message {
	return kit.Message{ChatID: 7, FromID: 7, FromName: "Ana", Text: text, IsPrivate: true}
}

func upcoming() matchdata.Snapshot {
	return matchdata.Snapshot{
		FixtureID:       501,
		KickoffAt:       now.Add(3 * time.Hour),
		Status:          matchdata.StatusTimed,
		Home:            matchdata.Team{Name: "Arsenal"},
		Away:            matchdata.Team{Name: "Chelsea"},
		CompetitionCode: "PL",
	}
}

func TestFollowStoresSnapshotFields(t *testing.T) {
	store := &memStore{}
	h := newHandler(store, stubGateway{501: upcoming()})

	reply := h.Handle(context.Background(), private("/follow 501"))
	assert.Contains(t, reply, "Following <b>Arsenal vs Chelsea</b>")

	require.Len(t, store.subs, 1)
	s := store.subs[0]
	assert.Equal(t, int64(7), s.UserID)
	assert.Equal(t, int64(501), s.FixtureID)
	assert.True(t, s.KickoffAt.Equal(now.Add(3*time.Hour)))
	assert.Equal(t, "PL", s.LeagueCode)
}

func TestFollowRejectsStartedFixtures(t *testing.T) {
	live := upcoming()
	live.Status = matchdata.StatusInPlay
	past := upcoming()
	past.FixtureID = 502
	past.KickoffAt = now.Add(-time.Minute)
	postponed := upcoming()
	postponed.FixtureID = 503
	postponed.Status = matchdata.StatusPostponed

	store := &memStore{}
	h := newHandler(store, stubGateway{501: live, 502: past, 503: postponed})
	for _, id := range []string{"501", "502", "503"} {
		reply := h.Handle(context.Background(), private("/follow "+id))
		assert.Contains(t, reply, "already started", id)
	}
	assert.Empty(t, store.subs)
}

func TestFollowReportsLookupProblems(t *testing.T) {
	h := newHandler(&memStore{}, stubGateway{600: matchdata.ErrUnauthorized})

	assert.Contains(t, h.Handle(context.Background(), private("/follow 999")), "could not find fixture")
	assert.Contains(t, h.Handle(context.Background(), private("/follow 600")), "unavailable right now")
}

func TestFollowValidatesArgument(t *testing.T) {
	h := newHandler(&memStore{}, stubGateway{})
	for _, text := range []string{"/follow", "/follow abc", "/follow -4", "/follow 1 2"} {
		assert.Contains(t, h.Handle(context.Background(), private(text)), "fixture id", text)
	}
}

func TestUnfollowAndMatches(t *testing.T) {
	store := &memStore{}
	other := upcoming()
	other.FixtureID = 502
	other.Home.Name = "Brighton & Hove Albion"
	h := newHandler(store, stubGateway{501: upcoming(), 502: other})
	ctx := context.Background()

	h.Handle(ctx, private("/follow 501"))
	h.Handle(ctx, private("/follow@FixtureBot 502"))

	list := h.Handle(ctx, private("/matches"))
	assert.Contains(t, list, "Arsenal vs Chelsea")
	assert.Contains(t, list, "Brighton &amp; Hove Albion vs Chelsea")
	assert.Contains(t, list, "<code>502</code>")

	assert.Contains(t, h.Handle(ctx, private("/unfollow 501")), "no longer get reminders")
	list = h.Handle(ctx, private("/matches"))
	assert.NotContains(t, list, "Arsenal vs Chelsea")

	h.Handle(ctx, private("/unfollow 502"))
	assert.Contains(t, h.Handle(ctx, private("/matches")), "not following any")
}

func TestGroupChatsAndPlainText(t *testing.T) {
	h := newHandler(&memStore{}, stubGateway{})
	msg := private("/follow 501")
	msg.IsPrivate = false
	assert.Contains(t, h.Handle(context.Background(), msg), "private chat")
	assert.Empty(t, h.Handle(context.Background(), private("hello there")))
	assert.Contains(t, h.Handle(context.Background(), private("/start")), "Hi, Ana!")
	assert.Contains(t, h.Handle(context.Background(), private("/dance")), "Unknown command")
}

func TestRunRepliesUntilChannelCloses(t *testing.T) {
	sender := &replies{}
	h := New(&memStore{}, stubGateway{}, sender, logx.Nop())
	in := make(chan kit.Message, 2)
	in <- private("/start")
	in <- private("not a command")
	close(in)

	require.NoError(t, h.Run(context.Background(), in))
	require.Len(t, sender.sent, 1)
	assert.True(t, strings.HasPrefix(sender.sent[0], "Hi, Ana!"))
}

func TestParseCommand(t *testing.T) {
	cmd, args := parseCommand("  /Follow@SomeBot  42 ")
	assert.Equal(t, "follow", cmd)
	assert.Equal(t, []string{"42"}, args)
	cmd, _ = parseCommand("follow 42")
	assert.Empty(t, cmd)
}
