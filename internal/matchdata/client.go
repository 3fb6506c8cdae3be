package matchdata

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/tulikaff659/football-bot/pkg/tgui"
)

const maxBodyBytes = 4 << 20

type fetcher interface {
	fetch(ctx context.Context, fixtureID int64) (*Snapshot, error)
}

// httpFetcher talks to a football-data.org v4 compatible API.
type httpFetcher struct {
	client  *http.Client
	baseURL string
	token   string
}

func (f *httpFetcher) fetch(ctx context.Context, fixtureID int64) (*Snapshot, error) {
	u := f.baseURL + "/matches/" + strconv.FormatInt(fixtureID, 10)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if f.token != "" {
		req.Header.Set("X-Auth-Token", f.token)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "send request")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.Wrap(err, "read response body")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Body: abbreviate(raw)}
	}

	var m wireMatch
	if err := jsoniter.Unmarshal(raw, &m); err != nil {
		return nil, errors.Wrap(err, "decode match")
	}
	return m.snapshot(fixtureID)
}

func abbreviate(raw []byte) string {
	return tgui.TruncRunes(strings.ToValidUTF8(strings.TrimSpace(string(raw)), ""), 200)
}

type wireMatch struct {
	ID          int64    `json:"id"`
	UTCDate     string   `json:"utcDate"`
	Status      string   `json:"status"`
	Venue       string   `json:"venue"`
	Attendance  int      `json:"attendance"`
	HomeTeam    wireTeam `json:"homeTeam"`
	AwayTeam    wireTeam `json:"awayTeam"`
	Competition wireComp `json:"competition"`
}

type wireComp struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type wireCoach struct {
	Name string `json:"name"`
}

type wireTeam struct {
	ID        int64        `json:"id"`
	Name      string       `json:"name"`
	Formation string       `json:"formation"`
	Coach     wireCoach    `json:"coach"`
	Lineup    []wirePlayer `json:"lineup"`
	Bench     []wirePlayer `json:"bench"`
}

type wirePlayer struct {
	Name        string `json:"name"`
	Position    string `json:"position"`
	ShirtNumber int    `json:"shirtNumber"`
}

func (m wireMatch) snapshot(requested int64) (*Snapshot, error) {
	if m.ID != 0 && m.ID != requested {
		return nil, errors.Errorf("upstream returned fixture %d for %d", m.ID, requested)
	}
	ko, err := time.Parse(time.RFC3339, m.UTCDate)
	if err != nil {
		return nil, errors.Wrapf(err, "parse utcDate %q", m.UTCDate)
	}
	return &Snapshot{
		FixtureID:       requested,
		KickoffAt:       ko.UTC(),
		Status:          Status(strings.ToUpper(strings.TrimSpace(m.Status))),
		Home:            m.HomeTeam.team(),
		Away:            m.AwayTeam.team(),
		CompetitionCode: m.Competition.Code,
		CompetitionName: m.Competition.Name,
		Venue:           m.Venue,
		Attendance:      m.Attendance,
	}, nil
}

func (t wireTeam) team() Team {
	return Team{
		ID:        t.ID,
		Name:      t.Name,
		Formation: t.Formation,
		Coach:     t.Coach.Name,
		Lineup:    players(t.Lineup),
		Bench:     players(t.Bench),
	}
}

func players(in []wirePlayer) []Player {
	if len(in) == 0 {
		return nil
	}
	out := make([]Player, 0, len(in))
	for _, p := range in {
		out = append(out, Player{Name: p.Name, Position: p.Position, ShirtNumber: p.ShirtNumber})
	}
	return out
}
