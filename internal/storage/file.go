package storage

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	logx "github.com/tulikaff659/football-bot/pkg/logx"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// fileStore keeps all subscriptions in memory and persists them as
//
//	<prefix>.snapshot.json  full state, rewritten on compaction
//	<prefix>.journal.jsonl  one fsync'd record per mutation since the snapshot
type fileStore struct {
	log logx.Logger
	now func() time.Time

	mu           sync.Mutex
	snapshotPath string
	journal      *os.File
	subs         map[subKey]Subscription
	writes       int
	compactEvery int
}

type subKey struct {
	user    int64
	fixture int64
}

const (
	opUpsert  = "upsert"
	opRemove  = "remove"
	opFlags   = "flags"
	opKickoff = "kickoff"
)

type journalRecord struct {
	Op        string        `json:"op"`
	UserID    int64         `json:"user_id"`
	FixtureID int64         `json:"fixture_id"`
	Sub       *Subscription `json:"sub,omitempty"`
	Flags     *Flags        `json:"flags,omitempty"`
	Kickoff   *time.Time    `json:"kickoff,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	prefix := filepath.Join(dir, base)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create storage dir")
	}

	st := &fileStore{
		log:          log,
		now:          time.Now,
		snapshotPath: prefix + ".snapshot.json",
		subs:         map[subKey]Subscription{},
		compactEvery: 500,
	}
	if err := st.loadSnapshot(); err != nil && !os.IsNotExist(errors.Cause(err)) {
		return nil, err
	}
	journalPath := prefix + ".journal.jsonl"
	if err := st.replay(journalPath); err != nil && !os.IsNotExist(errors.Cause(err)) {
		return nil, err
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, errors.Wrap(err, "open journal")
	}
	st.journal = jf
	log.Info("file store opened", logx.String("prefix", prefix), logx.Int("subscriptions", len(st.subs)))
	return st, nil
}

func (s *fileStore) loadSnapshot() error {
	f, err := os.Open(s.snapshotPath)
	if err != nil {
		return errors.WithStack(err)
	}
	defer f.Close()
	var list []Subscription
	if err := json.NewDecoder(f).Decode(&list); err != nil {
		return errors.Wrap(err, "decode snapshot")
	}
	for _, sub := range list {
		s.subs[subKey{sub.UserID, sub.FixtureID}] = sub
	}
	return nil
}

// replay applies the journal and cuts off a record torn by a crash, so the
// next append starts on a fresh line.
func (s *fileStore) replay(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return errors.WithStack(err)
	}
	defer f.Close()

	var good int64
	rd := bufio.NewReader(f)
	for {
		line, err := rd.ReadBytes('\n')
		if err == io.EOF {
			if len(line) > 0 {
				s.log.Warn("dropping torn journal tail", logx.Int("bytes", len(line)))
			}
			break
		}
		if err != nil {
			return errors.Wrap(err, "read journal")
		}
		good += int64(len(line))
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var r journalRecord
		if err := json.Unmarshal(line, &r); err != nil {
			s.log.Warn("skipping unreadable journal record", logx.Err(err))
			continue
		}
		s.applyLocked(r)
	}

	st, err := f.Stat()
	if err != nil {
		return errors.WithStack(err)
	}
	if st.Size() > good {
		return errors.Wrap(f.Truncate(good), "truncate journal")
	}
	return nil
}

func (s *fileStore) applyLocked(r journalRecord) bool {
	k := subKey{r.UserID, r.FixtureID}
	switch r.Op {
	case opUpsert:
		if r.Sub == nil {
			return false
		}
		sub := *r.Sub
		sub.NotifiedHour, sub.NotifiedFifteen, sub.NotifiedLineup = false, false, false
		s.subs[k] = sub
	case opRemove:
		delete(s.subs, k)
	case opFlags:
		sub, ok := s.subs[k]
		if !ok || r.Flags == nil {
			return false
		}
		r.Flags.apply(&sub)
		s.subs[k] = sub
	case opKickoff:
		if r.Kickoff == nil {
			return false
		}
		for key, sub := range s.subs {
			if key.fixture == r.FixtureID {
				sub.KickoffAt = r.Kickoff.UTC()
				s.subs[key] = sub
			}
		}
	default:
		return false
	}
	return true
}

// commitLocked journals r, then applies it to memory.
func (s *fileStore) commitLocked(r journalRecord) error {
	if s.journal == nil {
		return errors.New("file store closed")
	}
	b, err := json.Marshal(r)
	if err != nil {
		return errors.Wrap(err, "encode journal record")
	}
	if _, err := s.journal.Write(append(b, '\n')); err != nil {
		return errors.Wrap(err, "append journal")
	}
	if err := s.journal.Sync(); err != nil {
		return errors.Wrap(err, "sync journal")
	}
	s.applyLocked(r)
	s.writes++
	if s.writes%s.compactEvery == 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Warn("journal compaction failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) compactLocked() error {
	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return errors.WithStack(err)
	}
	if err := json.NewEncoder(f).Encode(s.sortedLocked(nil)); err != nil {
		_ = f.Close()
		return errors.Wrap(err, "encode snapshot")
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return errors.WithStack(err)
	}
	if err := f.Close(); err != nil {
		return errors.WithStack(err)
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return errors.WithStack(err)
	}
	if err := s.journal.Truncate(0); err != nil {
		return errors.WithStack(err)
	}
	_, err = s.journal.Seek(0, 2)
	return errors.WithStack(err)
}

func (s *fileStore) sortedLocked(keep func(Subscription) bool) []Subscription {
	out := make([]Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		if keep == nil || keep(sub) {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FixtureID != out[j].FixtureID {
			return out[i].FixtureID < out[j].FixtureID
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

func (s *fileStore) Upsert(ctx context.Context, sub Subscription) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = s.now()
	}
	sub.KickoffAt = sub.KickoffAt.UTC()
	sub.CreatedAt = sub.CreatedAt.UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitLocked(journalRecord{Op: opUpsert, UserID: sub.UserID, FixtureID: sub.FixtureID, Sub: &sub})
}

func (s *fileStore) Remove(ctx context.Context, userID, fixtureID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[subKey{userID, fixtureID}]; !ok {
		return nil
	}
	return s.commitLocked(journalRecord{Op: opRemove, UserID: userID, FixtureID: fixtureID})
}

func (s *fileStore) ListAll(ctx context.Context) ([]Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLocked(nil), nil
}

func (s *fileStore) ListByUser(ctx context.Context, userID int64) ([]Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	out := s.sortedLocked(func(sub Subscription) bool { return sub.UserID == userID })
	s.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].KickoffAt.Before(out[j].KickoffAt) })
	return out, nil
}

func (s *fileStore) SetFlags(ctx context.Context, userID, fixtureID int64, f Flags) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.Empty() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[subKey{userID, fixtureID}]; !ok {
		return ErrNotFound
	}
	return s.commitLocked(journalRecord{Op: opFlags, UserID: userID, FixtureID: fixtureID, Flags: &f})
}

func (s *fileStore) SetKickoff(ctx context.Context, fixtureID int64, kickoff time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	kickoff = kickoff.UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	stale := false
	for key, sub := range s.subs {
		if key.fixture == fixtureID && !sub.KickoffAt.Equal(kickoff) {
			stale = true
			break
		}
	}
	if !stale {
		return nil
	}
	return s.commitLocked(journalRecord{Op: opKickoff, FixtureID: fixtureID, Kickoff: &kickoff})
}

func (s *fileStore) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return errors.New("file store closed")
	}
	return ctx.Err()
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil
	}
	cerr := s.compactLocked()
	err := s.journal.Close()
	s.journal = nil
	if cerr != nil {
		return cerr
	}
	return errors.WithStack(err)
}
