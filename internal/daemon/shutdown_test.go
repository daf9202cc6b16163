package daemon

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestCoordinator_RunsPhasesInOrder(t *testing.T) {
	c := NewCoordinator(2*time.Second, nil)

	var mu sync.Mutex
	var order []string
	record := func(name string) ShutdownFunc {
		return func(ctx context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}

	c.Register(PhaseCleanup, "remove-pid", record("remove-pid"))
	c.Register(PhaseStopAccepting, "close-listener", record("close-listener"))
	c.Register(PhaseStore, "close-store", record("close-store"))
	c.Register(PhaseDrain, "drain-audio", record("drain-audio"))

	c.Shutdown(context.Background())

	want := []string{"close-listener", "drain-audio", "close-store", "remove-pid"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q (full: %v)", i, order[i], want[i], order)
		}
	}
}

func TestCoordinator_OnlyRunsOnce(t *testing.T) {
	c := NewCoordinator(time.Second, nil)
	var calls int
	c.Register(PhaseStore, "count", func(ctx context.Context) error {
		calls++
		return nil
	})

	c.Shutdown(context.Background())
	c.Shutdown(context.Background())

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestCoordinator_IsShuttingDownAfterShutdown(t *testing.T) {
	c := NewCoordinator(time.Second, nil)
	if c.IsShuttingDown() {
		t.Fatal("IsShuttingDown true before Shutdown called")
	}
	c.Shutdown(context.Background())
	if !c.IsShuttingDown() {
		t.Error("IsShuttingDown false after Shutdown called")
	}
}
