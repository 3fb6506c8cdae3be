package notifier

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tulikaff659/football-bot/internal/matchdata"
	"github.com/tulikaff659/football-bot/pkg/tgui"
)

// Link is a trusted external page offered when lineups are not out yet.
// "{fixture_id}" in URL is replaced with the fixture id.
type Link struct {
	Title string
	URL   string
}

func fixtureTitle(s *matchdata.Snapshot) tgui.H {
	return tgui.B(s.Home.Name + " vs " + s.Away.Name)
}

func kickoffLine(s *matchdata.Snapshot) tgui.H {
	parts := []tgui.H{tgui.Esc(s.KickoffAt.UTC().Format("Mon 2 Jan, 15:04") + " UTC")}
	if s.CompetitionName != "" {
		parts = append(parts, tgui.Esc(s.CompetitionName))
	}
	if s.Venue != "" {
		parts = append(parts, tgui.Esc(s.Venue))
	}
	return tgui.Join(" · ", parts...)
}

func HourMessage(s *matchdata.Snapshot) Message {
	text := tgui.Lines(
		"⏰ "+fixtureTitle(s)+" kicks off in about 1 hour.",
		kickoffLine(s),
	)
	return Message{FixtureID: s.FixtureID, Text: text.String()}
}

func FifteenMessage(s *matchdata.Snapshot) Message {
	text := tgui.Lines(
		"⚽ "+fixtureTitle(s)+" starts in 15 minutes!",
		kickoffLine(s),
	)
	return Message{FixtureID: s.FixtureID, Text: text.String()}
}

// LineupMessage renders both starting elevens. Callers check HasLineups first.
func LineupMessage(s *matchdata.Snapshot) Message {
	lines := []tgui.H{"📋 Lineups: " + fixtureTitle(s), ""}
	lines = append(lines, teamBlock(s.Home)...)
	lines = append(lines, "")
	lines = append(lines, teamBlock(s.Away)...)
	return Message{FixtureID: s.FixtureID, Text: tgui.Lines(lines...).String()}
}

func teamBlock(t matchdata.Team) []tgui.H {
	head := tgui.B(t.Name)
	if t.Formation != "" {
		head += tgui.Esc(" (" + t.Formation + ")")
	}
	out := []tgui.H{head}
	for _, p := range t.Lineup {
		out = append(out, playerLine(p))
	}
	if len(t.Bench) > 0 {
		names := make([]string, 0, len(t.Bench))
		for _, p := range t.Bench {
			names = append(names, p.Name)
		}
		out = append(out, tgui.I("Bench: "+strings.Join(names, ", ")))
	}
	if t.Coach != "" {
		out = append(out, tgui.I("Coach: "+t.Coach))
	}
	return out
}

func playerLine(p matchdata.Player) tgui.H {
	num := "–"
	if p.ShirtNumber > 0 {
		num = strconv.Itoa(p.ShirtNumber)
	}
	line := tgui.Code(fmt.Sprintf("%2s", num)) + " " + tgui.Esc(p.Name)
	if p.Position != "" {
		line += tgui.Esc(" · " + p.Position)
	}
	return line
}

// LineupFallbackMessage tells the user lineups are not out yet and where to
// look for them.
func LineupFallbackMessage(s *matchdata.Snapshot, links []Link) Message {
	lines := []tgui.H{
		"📋 Lineups for " + fixtureTitle(s) + " have not been announced yet.",
	}
	id := strconv.FormatInt(s.FixtureID, 10)
	var refs []tgui.H
	for _, l := range links {
		if l.URL == "" {
			continue
		}
		title := l.Title
		if title == "" {
			title = l.URL
		}
		refs = append(refs, "• "+tgui.Link(title, strings.ReplaceAll(l.URL, "{fixture_id}", id)))
	}
	if len(refs) > 0 {
		lines = append(lines, "They usually appear about an hour before kickoff here:")
		lines = append(lines, refs...)
	}
	return Message{FixtureID: s.FixtureID, Text: tgui.Lines(lines...).String()}
}
