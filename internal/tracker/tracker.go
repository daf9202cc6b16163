// Package tracker implements the per-(project,session) transaction state
// machine: it turns a stream of lifecycle events into completed
// transactions, durably mirrored and crash-recoverable.
package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hgeldenhuys/trak/internal/metrics"
	"github.com/hgeldenhuys/trak/pkg/models"
)

// Store is the subset of the durable store the tracker depends on.
type Store interface {
	SaveTransaction(ctx context.Context, state *models.ActiveTransaction) error
	GetTransaction(ctx context.Context, projectID, sessionID string) (*models.ActiveTransaction, error)
	MarkTransactionCompleted(ctx context.Context, projectID, sessionID string, durationMs int64) error
	GetPendingTransactions(ctx context.Context) ([]*models.ActiveTransaction, error)
	ClearStaleTransactions(ctx context.Context, maxAge time.Duration) (int, error)
}

// DefaultStaleMaxAge is the default cutoff past which an unfinished
// transaction is considered abandoned.
const DefaultStaleMaxAge = time.Hour

// DefaultThresholdMs is the default notification duration threshold.
const DefaultThresholdMs int64 = 30_000

// Tracker owns the single in-memory map of in-flight transactions for one
// process. There is exactly one Tracker per daemon instance; it is
// constructed once at start-up and threaded into the HTTP handlers rather
// than reached via a package-level global.
type Tracker struct {
	mu          sync.Mutex
	active      map[key]*models.ActiveTransaction
	store       Store
	thresholdMs int64
	staleMaxAge time.Duration
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

type key struct {
	projectID string
	sessionID string
}

// setPendingGauge reports the active map's current size. Callers must hold
// t.mu.
func (t *Tracker) setPendingGauge() {
	if t.metrics != nil {
		t.metrics.TransactionsPending.Set(float64(len(t.active)))
	}
}

// Option configures a Tracker at construction time.
type Option func(*Tracker)

// WithThresholdMs overrides DefaultThresholdMs.
func WithThresholdMs(ms int64) Option {
	return func(t *Tracker) { t.thresholdMs = ms }
}

// WithStaleMaxAge overrides DefaultStaleMaxAge.
func WithStaleMaxAge(d time.Duration) Option {
	return func(t *Tracker) { t.staleMaxAge = d }
}

// WithLogger attaches a logger; nil falls back to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) { t.logger = logger }
}

// WithMetrics attaches a metrics sink; TransactionsPending tracks the
// in-memory active map's size whenever it changes. Optional.
func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Tracker) { t.metrics = m }
}

// New constructs a Tracker backed by store.
func New(store Store, opts ...Option) *Tracker {
	t := &Tracker{
		active:      map[key]*models.ActiveTransaction{},
		store:       store,
		thresholdMs: DefaultThresholdMs,
		staleMaxAge: DefaultStaleMaxAge,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	return t
}

// Result is returned by ProcessEvent. Completed is nil unless e was a Stop
// event; ShouldNotify is only meaningful when Completed is non-nil.
type Result struct {
	Completed    *models.CompletedTransaction
	ShouldNotify bool
}

// ProcessEvent advances the state machine for e's (projectId, sessionId)
// key. Calls are serialized by the Tracker's single mutex, which each call
// holds for its full duration, so events for different keys are also
// processed one at a time.
func (t *Tracker) ProcessEvent(ctx context.Context, e *models.Event) (Result, error) {
	k := key{projectID: e.ProjectID, sessionID: e.SessionID}

	t.mu.Lock()
	defer t.mu.Unlock()

	switch e.EventType {
	case models.EventUserPromptSubmit:
		return Result{}, t.handleUserPromptSubmit(ctx, k, e)
	case models.EventPostToolUse:
		return Result{}, t.handlePostToolUse(ctx, k, e)
	case models.EventStop:
		return t.handleStop(ctx, k, e)
	case models.EventSessionStart:
		return Result{}, nil
	default:
		return Result{}, fmt.Errorf("tracker: unrecognized event type %q", e.EventType)
	}
}

func (t *Tracker) handleUserPromptSubmit(ctx context.Context, k key, e *models.Event) error {
	// A new UserPromptSubmit always replaces whatever is present — either a
	// fresh task on the same session, or the session's first prompt.
	state := &models.ActiveTransaction{
		ProjectID:      e.ProjectID,
		SessionID:      e.SessionID,
		ProjectName:    e.ProjectName,
		SessionName:    e.SessionName,
		StartTime:      e.Timestamp,
		PromptText:     e.PromptText,
		TranscriptPath: e.TranscriptPath,
	}
	t.active[k] = state
	t.setPendingGauge()
	return t.store.SaveTransaction(ctx, state)
}

func (t *Tracker) handlePostToolUse(ctx context.Context, k key, e *models.Event) error {
	state, ok := t.active[k]
	if !ok {
		state = &models.ActiveTransaction{
			ProjectID:      e.ProjectID,
			SessionID:      e.SessionID,
			ProjectName:    e.ProjectName,
			SessionName:    e.SessionName,
			StartTime:      e.Timestamp,
			TranscriptPath: e.TranscriptPath,
		}
		t.active[k] = state
		t.setPendingGauge()
		if err := t.store.SaveTransaction(ctx, state); err != nil {
			return err
		}
	}

	state.EventCount++
	if e.ToolName != "" {
		state.ToolsUsed = appendUnique(state.ToolsUsed, e.ToolName)
	}
	if path := filePathFromToolInput(e.ToolInput); path != "" {
		state.FilesModified = appendUnique(state.FilesModified, path)
	}
	// Accumulator fields are in-memory only; no persist here.
	return nil
}

func (t *Tracker) handleStop(ctx context.Context, k key, e *models.Event) (Result, error) {
	state, ok := t.active[k]
	if !ok {
		recovered, err := t.store.GetTransaction(ctx, k.projectID, k.sessionID)
		if err == nil && recovered != nil {
			state = recovered
		} else {
			// No in-memory state and no durable row: synthesize a
			// zero-duration entry rather than drop the Stop.
			state = &models.ActiveTransaction{
				ProjectID:   e.ProjectID,
				SessionID:   e.SessionID,
				ProjectName: e.ProjectName,
				SessionName: e.SessionName,
				StartTime:   e.Timestamp,
			}
		}
	}

	promptText := state.PromptText
	if promptText == "" && e.PromptText != "" {
		promptText = e.PromptText
	}

	durationMs := e.Timestamp.Sub(state.StartTime).Milliseconds()
	if durationMs < 0 {
		durationMs = 0
	}

	filesModified := mergeUnique(state.FilesModified, e.FilesModified)
	toolsUsed := mergeUnique(state.ToolsUsed, e.ToolsUsed)

	completed := &models.CompletedTransaction{
		ProjectID:         e.ProjectID,
		SessionID:         e.SessionID,
		ProjectName:       state.ProjectName,
		SessionName:       state.SessionName,
		StartTime:         state.StartTime,
		CompletedAt:       e.Timestamp,
		DurationMs:        durationMs,
		PromptText:        promptText,
		TranscriptPath:    state.TranscriptPath,
		FilesModified:     filesModified,
		ToolsUsed:         toolsUsed,
		DiscordWebhookURL: e.DiscordWebhookURL,
		VoiceID:           e.VoiceID,
		Usage:             e.TokenUsage,
		Model:             e.Model,
	}

	if err := t.store.MarkTransactionCompleted(ctx, k.projectID, k.sessionID, durationMs); err != nil {
		return Result{}, err
	}
	delete(t.active, k)
	t.setPendingGauge()

	return Result{
		Completed:    completed,
		ShouldNotify: completed.ShouldNotify(t.thresholdMs),
	}, nil
}

// Sweep discards stale in-memory entries and delegates the durable sweep
// to the store, returning the total number of entries dropped across both.
func (t *Tracker) Sweep(ctx context.Context) (int, error) {
	t.mu.Lock()
	cutoff := time.Now().Add(-t.staleMaxAge)
	droppedMemory := 0
	for k, state := range t.active {
		if state.StartTime.Before(cutoff) {
			delete(t.active, k)
			droppedMemory++
		}
	}
	t.setPendingGauge()
	t.mu.Unlock()

	droppedStore, err := t.store.ClearStaleTransactions(ctx, t.staleMaxAge)
	if err != nil {
		return droppedMemory, fmt.Errorf("tracker: sweep: %w", err)
	}
	return droppedMemory + droppedStore, nil
}

// Warmup optionally rehydrates the in-memory map from pending durable
// transactions at start-up. The design does not require this — lazy
// recovery on Stop is sufficient — but it shortens the crash-recovery
// window for long-running sessions.
func (t *Tracker) Warmup(ctx context.Context) (int, error) {
	pending, err := t.store.GetPendingTransactions(ctx)
	if err != nil {
		return 0, fmt.Errorf("tracker: warmup: %w", err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, state := range pending {
		t.active[key{projectID: state.ProjectID, sessionID: state.SessionID}] = state
	}
	t.setPendingGauge()
	return len(pending), nil
}

func appendUnique(list []string, value string) []string {
	if value == "" {
		return list
	}
	for _, existing := range list {
		if existing == value {
			return list
		}
	}
	return append(list, value)
}

func mergeUnique(base, extra []string) []string {
	out := append([]string(nil), base...)
	for _, v := range extra {
		out = appendUnique(out, v)
	}
	return out
}

func filePathFromToolInput(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var fields struct {
		FilePath string `json:"file_path"`
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return ""
	}
	return fields.FilePath
}
