package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hgeldenhuys/trak/pkg/models"
)

// InsertEvent persists e and returns its assigned monotonic id.
func (s *Store) InsertEvent(ctx context.Context, e *models.Event) (int64, error) {
	filesModified, err := marshalStrings(e.FilesModified)
	if err != nil {
		return 0, fmt.Errorf("store: marshal filesModified: %w", err)
	}
	toolsUsed, err := marshalStrings(e.ToolsUsed)
	if err != nil {
		return 0, fmt.Errorf("store: marshal toolsUsed: %w", err)
	}
	var usage []byte
	if e.TokenUsage != nil {
		usage, err = json.Marshal(e.TokenUsage)
		if err != nil {
			return 0, fmt.Errorf("store: marshal tokenUsage: %w", err)
		}
	}

	var id int64
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO events (
				project_id, project_name, session_id, session_name, event_type,
				timestamp, received_at, transcript_path, cwd, git_context,
				prompt_text, tool_name, tool_input, files_modified, tools_used,
				usage, model, stop_reason, notification_sent, notification_id
			) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			e.ProjectID, e.ProjectName, e.SessionID, nullStr(e.SessionName), string(e.EventType),
			e.Timestamp, e.ReceivedAt, nullStr(e.TranscriptPath), nullStr(e.Cwd), nullBytes(e.GitContext),
			nullStr(e.PromptText), nullStr(e.ToolName), nullBytes(e.ToolInput), nullBytes(filesModified), nullBytes(toolsUsed),
			nullBytes(usage), nullStr(e.Model), nullStr(e.StopReason), boolToInt(e.NotificationSent), nullStr(e.NotificationID),
		)
		if err != nil {
			return fmt.Errorf("store: insert event: %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("store: last insert id: %w", err)
		}
		return nil
	})
	return id, err
}

// MarkNotificationSent sets the two notification fields on an event
// exactly once; it does not re-open the row for any other field.
func (s *Store) MarkNotificationSent(ctx context.Context, id int64, notificationID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE events SET notification_sent = 1, notification_id = ? WHERE id = ?`,
			notificationID, id)
		if err != nil {
			return fmt.Errorf("store: mark notification sent: %w", err)
		}
		return nil
	})
}

// EventsBySession returns all events for (projectId, sessionId), ordered
// by timestamp ascending.
func (s *Store) EventsBySession(ctx context.Context, projectID, sessionID string) ([]*models.Event, error) {
	rows, err := s.db.QueryContext(ctx, eventSelectCols+`
		FROM events WHERE project_id = ? AND session_id = ? ORDER BY timestamp ASC`,
		projectID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("store: events by session: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// RecentEventsByName returns the most recent `limit` events for
// projectName, returned in chronological (ascending id) order.
func (s *Store) RecentEventsByName(ctx context.Context, projectName string, limit int) ([]*models.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, eventSelectCols+`
		FROM events WHERE project_name = ? ORDER BY id DESC LIMIT ?`,
		projectName, limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent events by name: %w", err)
	}
	defer rows.Close()
	events, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return events, nil
}

// EventsSinceId returns events for projectName with id > sinceId, ordered
// by id ascending.
func (s *Store) EventsSinceId(ctx context.Context, projectName string, sinceID int64) ([]*models.Event, error) {
	rows, err := s.db.QueryContext(ctx, eventSelectCols+`
		FROM events WHERE project_name = ? AND id > ? ORDER BY id ASC`,
		projectName, sinceID)
	if err != nil {
		return nil, fmt.Errorf("store: events since id: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// MaxEventId returns the highest event id recorded for projectID, or 0 if
// none exist.
func (s *Store) MaxEventId(ctx context.Context, projectID string) (int64, error) {
	var max sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(id) FROM events WHERE project_id = ?`, projectID).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("store: max event id: %w", err)
	}
	return max.Int64, nil
}

// DeleteOldEvents removes events with received_at older than cutoff and
// returns the number of rows deleted.
func (s *Store) DeleteOldEvents(ctx context.Context, cutoff time.Time) (int, error) {
	var n int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM events WHERE received_at < ?`, cutoff)
		if err != nil {
			return fmt.Errorf("store: delete old events: %w", err)
		}
		n, err = res.RowsAffected()
		return err
	})
	return int(n), err
}

const eventSelectCols = `SELECT
	id, project_id, project_name, session_id, session_name, event_type,
	timestamp, received_at, transcript_path, cwd, git_context, prompt_text,
	tool_name, tool_input, files_modified, tools_used, usage, model,
	stop_reason, notification_sent, notification_id `

func scanEvents(rows *sql.Rows) ([]*models.Event, error) {
	var out []*models.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: scan events: %w", err)
	}
	return out, nil
}

func scanEvent(rows *sql.Rows) (*models.Event, error) {
	var (
		e                                                        models.Event
		sessionName, transcriptPath, cwd, promptText             sql.NullString
		toolName, model, stopReason, notificationID              sql.NullString
		gitContext, toolInput, filesModifiedJSON, toolsUsedJSON  []byte
		usageJSON                                                []byte
		eventType                                                string
		notificationSent                                         int
	)
	err := rows.Scan(
		&e.ID, &e.ProjectID, &e.ProjectName, &e.SessionID, &sessionName, &eventType,
		&e.Timestamp, &e.ReceivedAt, &transcriptPath, &cwd, &gitContext, &promptText,
		&toolName, &toolInput, &filesModifiedJSON, &toolsUsedJSON, &usageJSON, &model,
		&stopReason, &notificationSent, &notificationID,
	)
	if err != nil {
		return nil, fmt.Errorf("store: scan event: %w", err)
	}

	e.EventType = models.EventType(eventType)
	e.SessionName = sessionName.String
	e.TranscriptPath = transcriptPath.String
	e.Cwd = cwd.String
	e.PromptText = promptText.String
	e.ToolName = toolName.String
	e.Model = model.String
	e.StopReason = stopReason.String
	e.NotificationSent = notificationSent != 0
	e.NotificationID = notificationID.String
	if len(gitContext) > 0 {
		e.GitContext = gitContext
	}
	if len(toolInput) > 0 {
		e.ToolInput = toolInput
	}
	if len(filesModifiedJSON) > 0 {
		if err := json.Unmarshal(filesModifiedJSON, &e.FilesModified); err != nil {
			return nil, fmt.Errorf("store: unmarshal filesModified: %w", err)
		}
	}
	if len(toolsUsedJSON) > 0 {
		if err := json.Unmarshal(toolsUsedJSON, &e.ToolsUsed); err != nil {
			return nil, fmt.Errorf("store: unmarshal toolsUsed: %w", err)
		}
	}
	if len(usageJSON) > 0 {
		var u models.TokenUsage
		if err := json.Unmarshal(usageJSON, &u); err != nil {
			return nil, fmt.Errorf("store: unmarshal usage: %w", err)
		}
		e.TokenUsage = &u
	}
	return &e, nil
}

func marshalStrings(ss []string) ([]byte, error) {
	if len(ss) == 0 {
		return nil, nil
	}
	return json.Marshal(ss)
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
