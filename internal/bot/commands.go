// Package bot answers the user-facing chat commands.
package bot

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/tulikaff659/football-bot/internal/matchdata"
	"github.com/tulikaff659/football-bot/internal/storage"
	kit "github.com/tulikaff659/football-bot/internal/transport"
	logx "github.com/tulikaff659/football-bot/pkg/logx"
	"github.com/tulikaff659/football-bot/pkg/tgui"
)

type Store interface {
	Upsert(ctx context.Context, sub storage.Subscription) error
	Remove(ctx context.Context, userID, fixtureID int64) error
	ListByUser(ctx context.Context, userID int64) ([]storage.Subscription, error)
}

type Gateway interface {
	GetMatch(ctx context.Context, fixtureID int64) (matchdata.Snapshot, error)
}

type Handler struct {
	store  Store
	gw     Gateway
	sender kit.Sender
	log    logx.Logger
	now    func() time.Time

	// Concurrency bounds how many commands run at once.
	Concurrency int
	// Timeout bounds a single command, gateway wait included.
	Timeout time.Duration
}

func New(store Store, gw Gateway, sender kit.Sender, log logx.Logger) *Handler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Handler{
		store:       store,
		gw:          gw,
		sender:      sender,
		log:         log.With(logx.String("comp", "bot")),
		now:         time.Now,
		Concurrency: 4,
		Timeout:     90 * time.Second,
	}
}

// Commands lists the menu entries.
func (h *Handler) Commands() []kit.BotCommand {
	return []kit.BotCommand{
		{Command: "follow", Description: "Get kickoff reminders for a fixture: /follow <id>"},
		{Command: "unfollow", Description: "Stop reminders for a fixture: /unfollow <id>"},
		{Command: "matches", Description: "List the fixtures you follow"},
		{Command: "start", Description: "How this bot works"},
	}
}

// Run answers incoming messages until ctx is done or in is closed.
func (h *Handler) Run(ctx context.Context, in <-chan kit.Message) error {
	var g errgroup.Group
	g.SetLimit(max(h.Concurrency, 1))
	defer func() { _ = g.Wait() }()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-in:
			if !ok {
				return nil
			}
			g.Go(func() error {
				h.respond(ctx, msg)
				return nil
			})
		}
	}
}

func (h *Handler) respond(ctx context.Context, msg kit.Message) {
	cctx, cancel := context.WithTimeout(ctx, h.Timeout)
	defer cancel()
	reply := h.Handle(cctx, msg)
	if reply == "" {
		return
	}
	to := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
	if _, err := h.sender.SendText(cctx, to, reply, &kit.SendOptions{ParseMode: "HTML", DisablePreview: true}); err != nil {
		h.log.Warn("reply failed", logx.Int64("chat_id", msg.ChatID), logx.Err(err))
	}
}

// parseCommand splits "/cmd@bot arg ..." into cmd and args.
func parseCommand(text string) (string, []string) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil
	}
	cmd := strings.TrimPrefix(fields[0], "/")
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}
	return strings.ToLower(cmd), fields[1:]
}

// Handle returns the HTML reply for msg, or "" when there is nothing to say.
func (h *Handler) Handle(ctx context.Context, msg kit.Message) string {
	cmd, args := parseCommand(msg.Text)
	if cmd == "" {
		return ""
	}
	if !msg.IsPrivate {
		return "Reminders are personal. Please send me this command in a private chat."
	}
	log := h.log.With(logx.String("cmd", cmd), logx.Int64("user_id", msg.FromID))

	switch cmd {
	case "start", "help":
		return helpText(msg.FromName)
	case "follow":
		id, problem := fixtureArg(args)
		if problem != "" {
			return problem
		}
		return h.follow(ctx, log, msg.FromID, id)
	case "unfollow":
		id, problem := fixtureArg(args)
		if problem != "" {
			return problem
		}
		if err := h.store.Remove(ctx, msg.FromID, id); err != nil {
			log.Error("remove subscription", logx.Int64("fixture_id", id), logx.Err(err))
			return "Something went wrong, please try again later."
		}
		return "You will no longer get reminders for fixture " + tgui.Code(strconv.FormatInt(id, 10)).String() + "."
	case "matches":
		return h.matches(ctx, log, msg.FromID)
	default:
		return "Unknown command. Send /start to see what I can do."
	}
}

// fixtureArg parses the single fixture id argument. A non-empty second
// result is the reply explaining what is wrong.
func fixtureArg(args []string) (int64, string) {
	if len(args) != 1 {
		return 0, "Please give one fixture id, for example /follow 537785"
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, "A fixture id is a positive number, for example /follow 537785"
	}
	return id, ""
}

func (h *Handler) follow(ctx context.Context, log logx.Logger, userID, fixtureID int64) string {
	snap, err := h.gw.GetMatch(ctx, fixtureID)
	if err != nil {
		var se *matchdata.StatusError
		switch {
		case errors.As(err, &se) && se.Code == 404:
			return "I could not find fixture " + tgui.Code(strconv.FormatInt(fixtureID, 10)).String() + "."
		case errors.Is(err, matchdata.ErrUnauthorized):
			log.Error("match data rejected our credentials", logx.Err(err))
		default:
			log.Warn("fixture lookup failed", logx.Int64("fixture_id", fixtureID), logx.Err(err))
		}
		return "The match data source is unavailable right now, please try again later."
	}
	if snap.Status.Started() || !snap.Status.Playable() || !snap.KickoffAt.After(h.now()) {
		return tgui.B(snap.Home.Name+" vs "+snap.Away.Name).String() + " has already started or will not be played as scheduled."
	}

	err = h.store.Upsert(ctx, storage.Subscription{
		UserID:     userID,
		FixtureID:  fixtureID,
		KickoffAt:  snap.KickoffAt,
		HomeName:   snap.Home.Name,
		AwayName:   snap.Away.Name,
		LeagueCode: snap.CompetitionCode,
	})
	if err != nil {
		log.Error("upsert subscription", logx.Int64("fixture_id", fixtureID), logx.Err(err))
		return "Something went wrong, please try again later."
	}
	log.Info("fixture followed", logx.Int64("fixture_id", fixtureID))
	return tgui.Lines(
		"✅ Following "+tgui.B(snap.Home.Name+" vs "+snap.Away.Name),
		tgui.Esc("Kickoff "+snap.KickoffAt.UTC().Format("Mon 2 Jan 15:04")+" UTC"),
		"",
		"I will remind you about an hour before kickoff, send the lineups and remind you again 15 minutes before.",
	).String()
}

func (h *Handler) matches(ctx context.Context, log logx.Logger, userID int64) string {
	subs, err := h.store.ListByUser(ctx, userID)
	if err != nil {
		log.Error("list subscriptions", logx.Err(err))
		return "Something went wrong, please try again later."
	}
	now := h.now()
	lines := []tgui.H{tgui.B("Your fixtures")}
	for _, s := range subs {
		if s.KickoffAt.Before(now.Add(-3 * time.Hour)) {
			continue
		}
		lines = append(lines, "• "+tgui.Join(" · ",
			tgui.Esc(s.HomeName+" vs "+s.AwayName),
			tgui.Esc(s.KickoffAt.UTC().Format("Mon 2 Jan 15:04")+" UTC"),
			tgui.Code(strconv.FormatInt(s.FixtureID, 10)),
		))
	}
	if len(lines) == 1 {
		return "You are not following any upcoming fixtures. Use /follow &lt;id&gt; to add one."
	}
	return tgui.Lines(lines...).String()
}

func helpText(name string) string {
	greet := "Hi!"
	if name != "" {
		greet = "Hi, " + tgui.Esc(name).String() + "!"
	}
	return tgui.Lines(
		tgui.H(greet),
		"I send reminders before football fixtures you follow:",
		"• about 1 hour before kickoff",
		"• the starting lineups once they are announced",
		"• 15 minutes before kickoff",
		"",
		"/follow &lt;id&gt; start following a fixture",
		"/unfollow &lt;id&gt; stop following it",
		"/matches list what you follow",
	).String()
}
