package stream

import (
	"testing"

	"github.com/hgeldenhuys/trak/pkg/models"
)

func TestHub_FiltersByProject(t *testing.T) {
	h := New(nil)
	var seenA, seenB []int64

	h.Subscribe("a", func(e *models.Event) { seenA = append(seenA, e.ID) })
	h.Subscribe("b", func(e *models.Event) { seenB = append(seenB, e.ID) })

	h.Publish(&models.Event{ID: 1, ProjectName: "a"})
	h.Publish(&models.Event{ID: 2, ProjectName: "b"})

	if len(seenA) != 1 || seenA[0] != 1 {
		t.Errorf("seenA = %v, want [1]", seenA)
	}
	if len(seenB) != 1 || seenB[0] != 2 {
		t.Errorf("seenB = %v, want [2]", seenB)
	}
}

func TestHub_PanicContained(t *testing.T) {
	h := New(nil)
	h.Subscribe("", func(e *models.Event) { panic("boom") })

	var called bool
	h.Subscribe("", func(e *models.Event) { called = true })

	h.Publish(&models.Event{ID: 1, ProjectName: "demo"})
	if !called {
		t.Error("second subscriber was not invoked after the first panicked")
	}
}

func TestHub_Unsubscribe(t *testing.T) {
	h := New(nil)
	id := h.Subscribe("", func(e *models.Event) {})
	if h.SubscriberCount() != 1 {
		t.Fatalf("SubscriberCount = %d, want 1", h.SubscriberCount())
	}
	h.Unsubscribe(id)
	if h.SubscriberCount() != 0 {
		t.Errorf("SubscriberCount = %d, want 0 after Unsubscribe", h.SubscriberCount())
	}
}
