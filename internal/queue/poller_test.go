package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func startedQueue(t *testing.T) *Queue {
	t.Helper()
	q := New(nil, Options{Workers: 1})
	ctx, cancel := context.WithCancel(context.Background())
	q.Start(ctx)
	t.Cleanup(func() {
		cancel()
		q.Stop()
	})
	return q
}

func TestPoller_RunsImmediatelyAndOnTicks(t *testing.T) {
	q := startedQueue(t)

	var calls atomic.Int32
	p := NewPoller(q, func(context.Context) error {
		calls.Add(1)
		return nil
	}, PollerOptions{Name: "test-poll", Interval: 30 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx)

	time.Sleep(100 * time.Millisecond)
	cancel()

	if got := calls.Load(); got < 3 {
		t.Fatalf("expected an immediate run plus ticks, got %d calls", got)
	}
	if p.LastGoodAt().IsZero() {
		t.Fatal("successful cycles must record LastGoodAt")
	}
}

func TestPoller_HideStopsPolling(t *testing.T) {
	q := startedQueue(t)

	var calls atomic.Int32
	p := NewPoller(q, func(context.Context) error {
		calls.Add(1)
		return nil
	}, PollerOptions{Name: "test-poll", Interval: 20 * time.Millisecond})

	p.Hide()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	time.Sleep(80 * time.Millisecond)
	if got := calls.Load(); got != 0 {
		t.Fatalf("hidden poller must not poll, got %d calls", got)
	}

	// Show немедленно просит догоняющий цикл, не дожидаясь тика.
	p.Show()
	time.Sleep(50 * time.Millisecond)
	if got := calls.Load(); got == 0 {
		t.Fatal("show must trigger a catch-up poll")
	}
}

func TestPoller_FailureKeepsPolling(t *testing.T) {
	q := startedQueue(t)

	var calls atomic.Int32
	p := NewPoller(q, func(context.Context) error {
		calls.Add(1)
		return errors.New("backend down")
	}, PollerOptions{Name: "test-poll", Interval: 20 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx)

	time.Sleep(90 * time.Millisecond)
	cancel()

	if got := calls.Load(); got < 2 {
		t.Fatalf("poller must keep the regular cadence after failures, got %d calls", got)
	}
	if !p.LastGoodAt().IsZero() {
		t.Fatal("failed cycles must not advance LastGoodAt")
	}
}
