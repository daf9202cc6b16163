package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hgeldenhuys/trak/pkg/models"
)

// SaveTransaction upserts state by its composite (projectId, sessionId)
// key. Only identity, startTime, prompt, transcriptPath, and completion
// fields are persisted; accumulator fields (FilesModified, ToolsUsed,
// EventCount) are never written.
func (s *Store) SaveTransaction(ctx context.Context, state *models.ActiveTransaction) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO active_transactions (
				project_id, session_id, session_name, project_name, start_time,
				prompt_text, transcript_path, completed_at, duration_ms
			) VALUES (?,?,?,?,?,?,?,?,?)
			ON CONFLICT(project_id, session_id) DO UPDATE SET
				session_name = excluded.session_name,
				project_name = excluded.project_name,
				start_time = excluded.start_time,
				prompt_text = excluded.prompt_text,
				transcript_path = excluded.transcript_path,
				completed_at = excluded.completed_at,
				duration_ms = excluded.duration_ms`,
			state.ProjectID, state.SessionID, nullStr(state.SessionName), state.ProjectName, state.StartTime,
			nullStr(state.PromptText), nullStr(state.TranscriptPath), timePtrOrNil(state.CompletedAt), durationPtrOrNil(state.DurationMs),
		)
		if err != nil {
			return fmt.Errorf("store: save transaction: %w", err)
		}
		return nil
	})
}

// GetTransaction returns the persisted state for (projectId, sessionId),
// or ErrNotFound if no row exists. Accumulator fields read back empty.
func (s *Store) GetTransaction(ctx context.Context, projectID, sessionID string) (*models.ActiveTransaction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT project_id, session_id, session_name, project_name, start_time,
			prompt_text, transcript_path, completed_at, duration_ms
		FROM active_transactions WHERE project_id = ? AND session_id = ?`,
		projectID, sessionID)
	t, err := scanTransaction(row)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// MarkTransactionCompleted sets completedAt = now and the finalized
// duration for (projectId, sessionId).
func (s *Store) MarkTransactionCompleted(ctx context.Context, projectID, sessionID string, durationMs int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE active_transactions SET completed_at = ?, duration_ms = ? WHERE project_id = ? AND session_id = ?`,
			time.Now().UTC(), durationMs, projectID, sessionID)
		if err != nil {
			return fmt.Errorf("store: mark transaction completed: %w", err)
		}
		return nil
	})
}

// GetPendingTransactions returns all rows where completed_at is null.
func (s *Store) GetPendingTransactions(ctx context.Context) ([]*models.ActiveTransaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT project_id, session_id, session_name, project_name, start_time,
			prompt_text, transcript_path, completed_at, duration_ms
		FROM active_transactions WHERE completed_at IS NULL`)
	if err != nil {
		return nil, fmt.Errorf("store: get pending transactions: %w", err)
	}
	defer rows.Close()

	var out []*models.ActiveTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: get pending transactions: %w", err)
	}
	return out, nil
}

// ClearStaleTransactions deletes rows with start_time older than
// now-maxAge and returns the count deleted.
func (s *Store) ClearStaleTransactions(ctx context.Context, maxAge time.Duration) (int, error) {
	var n int64
	cutoff := time.Now().UTC().Add(-maxAge)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM active_transactions WHERE start_time < ?`, cutoff)
		if err != nil {
			return fmt.Errorf("store: clear stale transactions: %w", err)
		}
		n, err = res.RowsAffected()
		return err
	})
	return int(n), err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*models.ActiveTransaction, error) {
	var (
		t                                      models.ActiveTransaction
		sessionName, promptText, transcriptPath sql.NullString
		completedAt                            sql.NullTime
		durationMs                             sql.NullInt64
	)
	err := row.Scan(
		&t.ProjectID, &t.SessionID, &sessionName, &t.ProjectName, &t.StartTime,
		&promptText, &transcriptPath, &completedAt, &durationMs,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan transaction: %w", err)
	}
	t.SessionName = sessionName.String
	t.PromptText = promptText.String
	t.TranscriptPath = transcriptPath.String
	if completedAt.Valid {
		ts := completedAt.Time
		t.CompletedAt = &ts
	}
	if durationMs.Valid {
		d := durationMs.Int64
		t.DurationMs = &d
	}
	return &t, nil
}

func durationPtrOrNil(d *int64) any {
	if d == nil {
		return nil
	}
	return *d
}
