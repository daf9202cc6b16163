package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/hgeldenhuys/trak/pkg/models"
)

type memStore struct {
	txns map[string]*models.ActiveTransaction
}

func newMemStore() *memStore {
	return &memStore{txns: map[string]*models.ActiveTransaction{}}
}

func (m *memStore) key(p, s string) string { return p + "|" + s }

func (m *memStore) SaveTransaction(_ context.Context, state *models.ActiveTransaction) error {
	m.txns[m.key(state.ProjectID, state.SessionID)] = state.Clone()
	return nil
}

func (m *memStore) GetTransaction(_ context.Context, projectID, sessionID string) (*models.ActiveTransaction, error) {
	t, ok := m.txns[m.key(projectID, sessionID)]
	if !ok {
		return nil, nil
	}
	return t.Clone(), nil
}

func (m *memStore) MarkTransactionCompleted(_ context.Context, projectID, sessionID string, durationMs int64) error {
	t, ok := m.txns[m.key(projectID, sessionID)]
	if !ok {
		return nil
	}
	now := time.Now()
	t.CompletedAt = &now
	d := durationMs
	t.DurationMs = &d
	return nil
}

func (m *memStore) GetPendingTransactions(_ context.Context) ([]*models.ActiveTransaction, error) {
	var out []*models.ActiveTransaction
	for _, t := range m.txns {
		if t.CompletedAt == nil {
			out = append(out, t.Clone())
		}
	}
	return out, nil
}

func (m *memStore) ClearStaleTransactions(_ context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)
	n := 0
	for k, t := range m.txns {
		if t.StartTime.Before(cutoff) {
			delete(m.txns, k)
			n++
		}
	}
	return n, nil
}

// S2 — threshold-driven notification.
func TestProcessEvent_ThresholdDrivenNotification(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	tr := New(st, WithThresholdMs(1000))

	start := time.Unix(0, 0).UTC()
	_, err := tr.ProcessEvent(ctx, &models.Event{
		EventType: models.EventUserPromptSubmit,
		ProjectID: "p", SessionID: "s", ProjectName: "demo",
		Timestamp: start,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	res, err := tr.ProcessEvent(ctx, &models.Event{
		EventType: models.EventStop,
		ProjectID: "p", SessionID: "s", ProjectName: "demo",
		Timestamp: start.Add(100 * time.Millisecond),
	})
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if res.Completed == nil {
		t.Fatal("expected a completion")
	}
	if res.Completed.DurationMs < 100 || res.Completed.DurationMs > 200 {
		t.Errorf("durationMs = %d, want in [100,200]", res.Completed.DurationMs)
	}
	if res.ShouldNotify {
		t.Error("ShouldNotify = true, want false below threshold")
	}

	_, err = tr.ProcessEvent(ctx, &models.Event{
		EventType: models.EventUserPromptSubmit,
		ProjectID: "p", SessionID: "s2", ProjectName: "demo",
		Timestamp: start,
	})
	if err != nil {
		t.Fatalf("submit2: %v", err)
	}
	res, err = tr.ProcessEvent(ctx, &models.Event{
		EventType: models.EventStop,
		ProjectID: "p", SessionID: "s2", ProjectName: "demo",
		Timestamp: start.Add(5 * time.Second),
	})
	if err != nil {
		t.Fatalf("stop2: %v", err)
	}
	if !res.ShouldNotify {
		t.Error("ShouldNotify = false, want true at/above threshold")
	}
}

// S3 — crash recovery: state saved directly to the store, fresh tracker
// with an empty in-memory map still produces a correct completion.
func TestProcessEvent_CrashRecovery(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	start := time.Unix(0, 0).UTC()
	if err := st.SaveTransaction(ctx, &models.ActiveTransaction{
		ProjectID: "p", SessionID: "s", ProjectName: "demo", StartTime: start,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	tr := New(st) // fresh tracker, empty memory
	res, err := tr.ProcessEvent(ctx, &models.Event{
		EventType: models.EventStop,
		ProjectID: "p", SessionID: "s", ProjectName: "demo",
		Timestamp: start.Add(3 * time.Second),
	})
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if res.Completed.DurationMs < 3000 || res.Completed.DurationMs >= 4000 {
		t.Errorf("durationMs = %d, want in [3000,4000)", res.Completed.DurationMs)
	}

	pending, err := st.GetPendingTransactions(ctx)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	for _, p := range pending {
		if p.ProjectID == "p" && p.SessionID == "s" {
			t.Error("(p,s) still reported pending after completion")
		}
	}
}

// Zero-duration Stop without any prior Start still produces a completion.
func TestProcessEvent_OrphanStopSynthesizesZeroDuration(t *testing.T) {
	ctx := context.Background()
	tr := New(newMemStore())

	res, err := tr.ProcessEvent(ctx, &models.Event{
		EventType: models.EventStop,
		ProjectID: "p", SessionID: "orphan", ProjectName: "demo",
		Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if res.Completed == nil {
		t.Fatal("expected a synthesized completion")
	}
	if res.Completed.DurationMs != 0 {
		t.Errorf("durationMs = %d, want 0", res.Completed.DurationMs)
	}
}

func TestProcessEvent_DedupFilesAndTools(t *testing.T) {
	ctx := context.Background()
	tr := New(newMemStore())
	start := time.Unix(0, 0).UTC()

	if _, err := tr.ProcessEvent(ctx, &models.Event{
		EventType: models.EventUserPromptSubmit,
		ProjectID: "p", SessionID: "s", ProjectName: "demo", Timestamp: start,
	}); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		if _, err := tr.ProcessEvent(ctx, &models.Event{
			EventType: models.EventPostToolUse,
			ProjectID: "p", SessionID: "s", ProjectName: "demo",
			Timestamp: start, ToolName: "Edit",
			ToolInput: []byte(`{"file_path":"/a.ts"}`),
		}); err != nil {
			t.Fatal(err)
		}
	}

	res, err := tr.ProcessEvent(ctx, &models.Event{
		EventType: models.EventStop,
		ProjectID: "p", SessionID: "s", ProjectName: "demo",
		Timestamp: start.Add(time.Second),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Completed.FilesModified) != 1 {
		t.Errorf("FilesModified = %v, want exactly one deduplicated entry", res.Completed.FilesModified)
	}
	if len(res.Completed.ToolsUsed) != 1 {
		t.Errorf("ToolsUsed = %v, want exactly one deduplicated entry", res.Completed.ToolsUsed)
	}
}
