package eventbus

import (
	"context"
	"testing"
	"time"
)

func TestPublishFansOut(t *testing.T) {
	b := New()
	a, unsubA := b.Subscribe(1)
	c, unsubC := b.Subscribe(1)
	defer unsubA()
	defer unsubC()

	b.Publish(Event{Type: TypeNotifySent})
	for _, ch := range []<-chan Event{a, c} {
		select {
		case e := <-ch:
			if e.Type != TypeNotifySent || e.Time.IsZero() {
				t.Fatalf("unexpected event %+v", e)
			}
		case <-time.After(time.Second):
			t.Fatalf("event not delivered")
		}
	}
}

func TestPublishDropsForSlowSubscriber(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()
	b.Publish(Event{Type: "a"})
	b.Publish(Event{Type: "b"})
	if e := <-ch; e.Type != "a" {
		t.Fatalf("got %q, want a", e.Type)
	}
	select {
	case e := <-ch:
		t.Fatalf("unexpected second event %+v", e)
	default:
	}
}

func TestUnsubscribeClosesAndStopsDelivery(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()
	b.Publish(Event{Type: "x"})
	if _, ok := <-ch; ok {
		t.Fatalf("channel should be closed")
	}
}

func TestTallyCounts(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(16)
	var tally Tally
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		tally.Run(ctx, ch)
		close(done)
	}()

	b.Publish(Event{Type: TypeNotifySent})
	b.Publish(Event{Type: TypeNotifySent})
	b.Publish(Event{Type: TypeNotifyFailed})
	b.Publish(Event{Type: TypeSweepCompleted, Data: SweepCompleted{SweepID: "s1", Sent: 2}})
	unsub()
	<-done
	cancel()

	s := tally.Snapshot()
	if s.Sent != 2 || s.Failed != 1 || s.Sweeps != 1 {
		t.Fatalf("unexpected tally %+v", s)
	}
	if s.LastSweep == nil || s.LastSweep.SweepID != "s1" {
		t.Fatalf("last sweep not recorded: %+v", s.LastSweep)
	}
}
