package scheduler

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/tulikaff659/football-bot/internal/eventbus"
	"github.com/tulikaff659/football-bot/internal/matchdata"
	"github.com/tulikaff659/football-bot/internal/notifier"
	"github.com/tulikaff659/football-bot/internal/storage"
	kit "github.com/tulikaff659/football-bot/internal/transport"
	logx "github.com/tulikaff659/football-bot/pkg/logx"
)

// Report summarises one sweep.
type Report struct {
	SweepID     string        `json:"sweep_id"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
	Groups      int           `json:"groups"`
	Fetched     int           `json:"fetched"`
	FetchFailed int           `json:"fetch_failed"`
	Skipped     int           `json:"skipped"`
	Sent        int           `json:"sent"`
	Failed      int           `json:"failed"`
	Dropped     int           `json:"dropped"`
}

// group is every subscription of one fixture, ordered by user.
type group struct {
	fixtureID int64
	members   []storage.Subscription
}

func groupByFixture(subs []storage.Subscription) []group {
	idx := map[int64]int{}
	var out []group
	for _, sub := range subs {
		i, ok := idx[sub.FixtureID]
		if !ok {
			i = len(out)
			idx[sub.FixtureID] = i
			out = append(out, group{fixtureID: sub.FixtureID})
		}
		out[i].members = append(out[i].members, sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].fixtureID < out[j].fixtureID })
	for _, g := range out {
		sort.Slice(g.members, func(i, j int) bool { return g.members[i].UserID < g.members[j].UserID })
	}
	return out
}

// worthFetching reports whether any member still lacks a flag and has a
// stored kickoff inside [-grace, horizon] of now.
func (s *Service) worthFetching(g group, now time.Time) bool {
	for _, m := range g.members {
		if m.Done() {
			continue
		}
		left := m.KickoffAt.Sub(now)
		if left <= s.cfg.Horizon && left >= -s.cfg.Grace {
			return true
		}
	}
	return false
}

// Sweep evaluates every subscription against the windows at instant now.
// Only a failure to list subscriptions is returned; per-fixture and
// per-recipient problems are logged and counted in the report.
func (s *Service) Sweep(ctx context.Context, now time.Time) (Report, error) {
	if !s.sweepMu.TryLock() {
		return Report{}, ErrSweepRunning
	}
	defer s.sweepMu.Unlock()

	now = now.UTC()
	started := time.Now()
	rep := Report{SweepID: uuid.NewString(), StartedAt: now}
	log := s.log.With(logx.String("sweep_id", rep.SweepID))

	subs, err := s.store.ListAll(ctx)
	if err != nil {
		return rep, errors.Wrap(err, "list subscriptions")
	}
	groups := groupByFixture(subs)
	rep.Groups = len(groups)

	for _, g := range groups {
		if ctx.Err() != nil {
			break
		}
		if !s.worthFetching(g, now) {
			rep.Skipped++
			continue
		}
		snap, err := s.gw.GetMatch(ctx, g.fixtureID)
		if err != nil {
			rep.FetchFailed++
			switch {
			case ctx.Err() != nil:
			case errors.Is(err, matchdata.ErrUnauthorized):
				log.Error("match data rejected our credentials", logx.Int64("fixture_id", g.fixtureID), logx.Err(err))
			default:
				log.Warn("fixture skipped this sweep", logx.Int64("fixture_id", g.fixtureID), logx.Err(err))
			}
			continue
		}
		rep.Fetched++
		s.syncKickoff(ctx, log, g, snap)
		s.evaluate(ctx, log, g, &snap, now, &rep)
	}

	rep.Duration = time.Since(started)
	s.mu.Lock()
	s.last = &rep
	s.mu.Unlock()

	s.bus.Publish(eventbus.Event{Type: eventbus.TypeSweepCompleted, Data: eventbus.SweepCompleted{
		SweepID:   rep.SweepID,
		Fixtures:  rep.Groups,
		Fetched:   rep.Fetched,
		Skipped:   rep.Skipped,
		Sent:      rep.Sent,
		Failed:    rep.Failed,
		Duration:  rep.Duration,
		StartedAt: rep.StartedAt,
	}})
	lvl := log.Debug
	if rep.Sent > 0 || rep.Failed > 0 || rep.FetchFailed > 0 {
		lvl = log.Info
	}
	lvl("sweep completed",
		logx.Int("groups", rep.Groups),
		logx.Int("fetched", rep.Fetched),
		logx.Int("fetch_failed", rep.FetchFailed),
		logx.Int("skipped", rep.Skipped),
		logx.Int("sent", rep.Sent),
		logx.Int("failed", rep.Failed),
		logx.Duration("took", rep.Duration),
	)
	return rep, ctx.Err()
}

// syncKickoff stores the upstream kickoff when the fixture was rescheduled,
// so later horizon checks look at the time the windows are measured from.
func (s *Service) syncKickoff(ctx context.Context, log logx.Logger, g group, snap matchdata.Snapshot) {
	if snap.KickoffAt.IsZero() {
		return
	}
	for _, m := range g.members {
		if m.KickoffAt.Equal(snap.KickoffAt) {
			continue
		}
		if err := s.store.SetKickoff(ctx, g.fixtureID, snap.KickoffAt); err != nil {
			log.Warn("rescheduled kickoff not stored", logx.Int64("fixture_id", g.fixtureID), logx.Err(err))
			return
		}
		log.Info("fixture rescheduled",
			logx.Int64("fixture_id", g.fixtureID),
			logx.Time("was", m.KickoffAt),
			logx.Time("kickoff", snap.KickoffAt),
		)
		return
	}
}

// evaluate dispatches whatever is due for one fixture. Order is hour,
// lineup, fifteen so a user who gets both the hour and lineup messages in
// one sweep reads them in that order.
func (s *Service) evaluate(ctx context.Context, log logx.Logger, g group, snap *matchdata.Snapshot, now time.Time, rep *Report) {
	log = log.With(logx.Int64("fixture_id", g.fixtureID))
	if !snap.Status.Playable() {
		log.Debug("fixture not playable", logx.String("status", string(snap.Status)))
		rep.Skipped++
		return
	}
	left := snap.MinutesUntilKickoff(now)

	due := func(w Window, has func(storage.Subscription) bool) []int64 {
		if !w.Contains(left) {
			return nil
		}
		var ids []int64
		for _, m := range g.members {
			if !has(m) {
				ids = append(ids, m.UserID)
			}
		}
		return ids
	}

	if ids := due(s.cfg.Hour, func(m storage.Subscription) bool { return m.NotifiedHour }); len(ids) > 0 {
		s.deliver(ctx, log, notifier.KindHour, ids, notifier.HourMessage(snap), storage.Flags{Hour: true}, g.fixtureID, rep)
	}
	if ids := due(s.cfg.Lineup, func(m storage.Subscription) bool { return m.NotifiedLineup }); len(ids) > 0 {
		msg := notifier.LineupFallbackMessage(snap, s.cfg.LineupLinks)
		if snap.HasLineups() {
			msg = notifier.LineupMessage(snap)
		}
		s.deliver(ctx, log, notifier.KindLineup, ids, msg, storage.Flags{Lineup: true}, g.fixtureID, rep)
	}
	if ids := due(s.cfg.Fifteen, func(m storage.Subscription) bool { return m.NotifiedFifteen }); len(ids) > 0 {
		s.deliver(ctx, log, notifier.KindFifteen, ids, notifier.FifteenMessage(snap), storage.Flags{Fifteen: true}, g.fixtureID, rep)
	}
}

// deliver sends msg and sets flag for the recipients that got it.
func (s *Service) deliver(ctx context.Context, log logx.Logger, kind notifier.Kind, ids []int64, msg notifier.Message, flag storage.Flags, fixtureID int64, rep *Report) {
	res := s.disp.Send(ctx, kind, ids, msg)
	rep.Failed += res.Failed()
	for _, userID := range ids {
		if err := res[userID]; err == nil || !errors.Is(err, kit.ErrRecipientGone) {
			continue
		}
		if err := s.store.Remove(ctx, userID, fixtureID); err != nil {
			log.Warn("unreachable subscriber not removed", logx.Int64("user_id", userID), logx.Err(err))
			continue
		}
		rep.Dropped++
		log.Info("subscription dropped; recipient unreachable", logx.Int64("user_id", userID))
	}
	for _, userID := range res.Delivered() {
		rep.Sent++
		err := s.store.SetFlags(ctx, userID, fixtureID, flag)
		switch {
		case err == nil:
		case errors.Is(err, storage.ErrNotFound):
			log.Debug("subscription removed during sweep", logx.Int64("user_id", userID))
		default:
			// the message went out; a later sweep inside the window will repeat it
			log.Warn("flag not persisted", logx.String("kind", string(kind)), logx.Int64("user_id", userID), logx.Err(err))
		}
	}
}
