package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDriver_RunsImmediatelyAndOnInterval(t *testing.T) {
	var ticks atomic.Int32
	d := NewDriver(func(context.Context, time.Time) error {
		ticks.Add(1)
		return nil
	}, testLogger(), 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for ticks.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("expected at least 3 ticks, got %d", ticks.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("driver did not stop after cancel")
	}
}

func TestDriver_TickErrorsAreNotFatal(t *testing.T) {
	var ticks atomic.Int32
	d := NewDriver(func(context.Context, time.Time) error {
		ticks.Add(1)
		return errors.New("boom")
	}, testLogger(), 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	deadline := time.After(2 * time.Second)
	for ticks.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("expected the driver to keep ticking after errors, got %d", ticks.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestDriver_DefaultsInterval(t *testing.T) {
	d := NewDriver(func(context.Context, time.Time) error { return nil }, testLogger(), 0)
	if d.interval != 5*time.Minute {
		t.Fatalf("expected the default interval, got %s", d.interval)
	}
}
