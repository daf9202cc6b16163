package metrics

import "testing"

func TestNew_RegistersWithoutPanicking(t *testing.T) {
	m := New()
	if m.HTTPRequestCounter == nil {
		t.Fatal("HTTPRequestCounter not initialized")
	}
	m.EventsIngested.WithLabelValues("Stop").Inc()
	m.TransactionsPending.Set(3)
	m.AudioQueueDepth.Set(1)
}
