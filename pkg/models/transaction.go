package models

import "time"

// TransactionKey identifies a tracked transaction by its owning project
// and session.
type TransactionKey struct {
	ProjectID string
	SessionID string
}

// ActiveTransaction is the tracker's per-(project,session) state. The
// accumulator fields (FilesModified, ToolsUsed, EventCount) are rebuilt
// from event re-delivery and are never persisted — GetTransaction always
// returns them empty.
type ActiveTransaction struct {
	ProjectID      string
	SessionID      string
	ProjectName    string
	SessionName    string
	StartTime      time.Time
	PromptText     string
	TranscriptPath string

	FilesModified []string
	ToolsUsed     []string
	EventCount    int

	CompletedAt *time.Time
	DurationMs  *int64
}

// Key returns the composite identity of the transaction.
func (a *ActiveTransaction) Key() TransactionKey {
	return TransactionKey{ProjectID: a.ProjectID, SessionID: a.SessionID}
}

// Completed reports whether the transaction has a finalized Stop.
func (a *ActiveTransaction) Completed() bool {
	return a != nil && a.CompletedAt != nil
}

// Clone returns a deep copy safe to hand to callers outside the tracker's lock.
func (a *ActiveTransaction) Clone() *ActiveTransaction {
	if a == nil {
		return nil
	}
	clone := *a
	if a.FilesModified != nil {
		clone.FilesModified = append([]string(nil), a.FilesModified...)
	}
	if a.ToolsUsed != nil {
		clone.ToolsUsed = append([]string(nil), a.ToolsUsed...)
	}
	if a.CompletedAt != nil {
		t := *a.CompletedAt
		clone.CompletedAt = &t
	}
	if a.DurationMs != nil {
		d := *a.DurationMs
		clone.DurationMs = &d
	}
	return &clone
}

// CompletedTransaction is the ephemeral value synthesized at Stop and
// handed to the summarizer and dispatcher. It is never persisted as such;
// its identity fields mirror the ActiveTransaction it was built from.
type CompletedTransaction struct {
	ProjectID      string
	SessionID      string
	ProjectName    string
	SessionName    string
	StartTime      time.Time
	CompletedAt    time.Time
	DurationMs     int64
	PromptText     string
	TranscriptPath string
	FilesModified  []string
	ToolsUsed      []string

	// Per-project overrides carried on the terminating Stop event.
	DiscordWebhookURL string
	VoiceID           string

	Usage *TokenUsage
	Model string
}

// ShouldNotify reports whether this completion crosses the configured
// notification duration threshold. Comparison is inclusive (">=").
func (c *CompletedTransaction) ShouldNotify(thresholdMs int64) bool {
	return c != nil && c.DurationMs >= thresholdMs
}
