package scheduler

import (
	"context"
	"testing"
	"time"
)

func TestStartRunsImmediateSweepAndStopWaits(t *testing.T) {
	h := newHarness(t)
	h.store.follow(1, 100)
	h.gw.set(fixture(100))
	h.svc.now = func() time.Time { return at(15) }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := h.svc.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := h.svc.Start(ctx); err != nil {
		t.Fatalf("second Start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for h.sender.count(1, fifteenText) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("immediate sweep did not run")
		}
		time.Sleep(5 * time.Millisecond)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	if err := h.svc.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := h.svc.Stop(stopCtx); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	if _, ok := h.svc.LastReport(); !ok {
		t.Fatalf("no report recorded")
	}
}

func TestStopCancelsBlockedSweep(t *testing.T) {
	h := newHarness(t)
	h.store.follow(1, 100)
	h.gw.set(fixture(100))
	h.gw.block = make(chan struct{})
	h.gw.entered = make(chan struct{}, 1)
	h.svc.now = func() time.Time { return at(60) }

	if err := h.svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case <-h.gw.entered:
	case <-time.After(2 * time.Second):
		t.Fatalf("sweep never reached the gateway")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.svc.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if h.sender.total() != 0 {
		t.Fatalf("cancelled sweep still sent")
	}
}
