package playback

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestPollerTicksUntilStopped(t *testing.T) {
	var ticks atomic.Int32
	p := NewPoller(5*time.Millisecond, func(ctx context.Context) {
		ticks.Add(1)
	})

	p.Start(context.Background())
	p.Start(context.Background())
	if !p.Running() {
		t.Fatal("expected poller to be running")
	}

	deadline := time.Now().Add(2 * time.Second)
	for ticks.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("expected ticks, got %d", ticks.Load())
		}
		time.Sleep(time.Millisecond)
	}

	p.Stop()
	p.Stop()
	p.Wait()
	if p.Running() {
		t.Fatal("expected poller to be stopped")
	}

	after := ticks.Load()
	time.Sleep(30 * time.Millisecond)
	if ticks.Load() != after {
		t.Fatalf("ticks continued after stop: %d -> %d", after, ticks.Load())
	}
}

func TestPollerRestartGetsFreshContext(t *testing.T) {
	seen := make(chan context.Context, 16)
	p := NewPoller(5*time.Millisecond, func(ctx context.Context) {
		select {
		case seen <- ctx:
		default:
		}
	})

	p.Start(context.Background())
	first := <-seen
	p.Stop()
	if first.Err() == nil {
		t.Fatal("expected the stopped instance context to be cancelled")
	}

	p.Start(context.Background())
	defer p.Stop()
	for ctx := range seen {
		if ctx != first {
			if ctx.Err() != nil {
				t.Fatal("new instance context should be live")
			}
			return
		}
	}
}

func TestPollerStopsWithParent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := NewPoller(time.Millisecond, func(context.Context) {})
	p.Start(ctx)
	cancel()
	p.Wait()
}

func TestNewPollerDefaultsInterval(t *testing.T) {
	p := NewPoller(0, func(context.Context) {})
	if p.interval != DefaultPollInterval {
		t.Fatalf("interval = %s, want %s", p.interval, DefaultPollInterval)
	}
}
