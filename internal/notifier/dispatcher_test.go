package notifier

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tulikaff659/football-bot/internal/eventbus"
	kit "github.com/tulikaff659/football-bot/internal/transport"
	logx "github.com/tulikaff659/football-bot/pkg/logx"
)

type fakeSender struct {
	mu       sync.Mutex
	sent     map[int64][]string
	fail     map[int64]error
	block    map[int64]bool
	inflight atomic.Int32
	peak     atomic.Int32
}

func newFakeSender() *fakeSender {
	return &fakeSender{sent: map[int64][]string{}, fail: map[int64]error{}, block: map[int64]bool{}}
}

func (f *fakeSender) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	f.mu.Lock()
	err, block := f.fail[to.ChatID], f.block[to.ChatID]
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return kit.MessageRef{}, ctx.Err()
	}
	if err != nil {
		return kit.MessageRef{}, err
	}
	if opt == nil || opt.ParseMode != "HTML" {
		return kit.MessageRef{}, errors.New("expected HTML parse mode")
	}
	f.mu.Lock()
	f.sent[to.ChatID] = append(f.sent[to.ChatID], text)
	f.mu.Unlock()
	return kit.MessageRef{ChatID: to.ChatID, MessageID: 1}, nil
}

func TestSendIsolatesFailures(t *testing.T) {
	s := newFakeSender()
	boom := errors.New("bot was blocked by the user")
	s.fail[2] = boom
	d := New(Config{RatePerSec: 1000}, s, logx.Nop(), nil)

	rep := d.Send(context.Background(), KindHour, []int64{1, 2, 3}, Message{FixtureID: 9, Text: "hi"})
	if len(rep) != 3 {
		t.Fatalf("report size = %d, want 3", len(rep))
	}
	if rep[1] != nil || rep[3] != nil {
		t.Fatalf("healthy recipients failed: %v", rep)
	}
	if !errors.Is(rep[2], boom) {
		t.Fatalf("rep[2] = %v, want boom", rep[2])
	}
	if got := rep.Delivered(); len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Fatalf("Delivered() = %v", got)
	}
	if rep.Failed() != 1 {
		t.Fatalf("Failed() = %d", rep.Failed())
	}
	if len(s.sent[1]) != 1 || s.sent[1][0] != "hi" {
		t.Fatalf("unexpected sends: %v", s.sent)
	}
}

func TestSendDeduplicatesRecipients(t *testing.T) {
	s := newFakeSender()
	d := New(Config{RatePerSec: 1000}, s, logx.Nop(), nil)
	rep := d.Send(context.Background(), KindFifteen, []int64{5, 5, 5}, Message{Text: "x"})
	if len(rep) != 1 || len(s.sent[5]) != 1 {
		t.Fatalf("recipient messaged %d times", len(s.sent[5]))
	}
}

func TestSendTimesOutSlowRecipient(t *testing.T) {
	s := newFakeSender()
	s.block[7] = true
	d := New(Config{RatePerSec: 1000, SendTimeout: 20 * time.Millisecond}, s, logx.Nop(), nil)

	rep := d.Send(context.Background(), KindHour, []int64{7, 8}, Message{Text: "x"})
	if !errors.Is(rep[7], context.DeadlineExceeded) {
		t.Fatalf("rep[7] = %v, want deadline exceeded", rep[7])
	}
	if rep[8] != nil {
		t.Fatalf("rep[8] = %v", rep[8])
	}
}

func TestSendRespectsWorkerLimit(t *testing.T) {
	s := newFakeSender()
	d := New(Config{RatePerSec: 1000, Workers: 2}, s, logx.Nop(), nil)
	ids := make([]int64, 20)
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	rep := d.Send(context.Background(), KindHour, ids, Message{Text: "x"})
	if len(rep.Delivered()) != 20 {
		t.Fatalf("delivered %d of 20", len(rep.Delivered()))
	}
	if p := s.peak.Load(); p > 2 {
		t.Fatalf("peak concurrency %d exceeds limit", p)
	}
}

func TestSendPublishesEvents(t *testing.T) {
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(16)
	defer unsub()

	s := newFakeSender()
	s.fail[2] = errors.New("nope")
	d := New(Config{RatePerSec: 1000}, s, logx.Nop(), bus)
	d.Send(context.Background(), KindLineup, []int64{1, 2}, Message{FixtureID: 44, Text: "x"})

	counts := map[string]int{}
	for i := 0; i < 2; i++ {
		select {
		case e := <-ch:
			counts[e.Type]++
			dv, ok := e.Data.(eventbus.Delivery)
			if !ok || dv.FixtureID != 44 || dv.Kind != "lineup" {
				t.Fatalf("unexpected payload %+v", e.Data)
			}
		case <-time.After(time.Second):
			t.Fatalf("missing event")
		}
	}
	if counts[eventbus.TypeNotifySent] != 1 || counts[eventbus.TypeNotifyFailed] != 1 {
		t.Fatalf("unexpected events %v", counts)
	}
}
