package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/hgeldenhuys/trak/internal/notify"
	"github.com/hgeldenhuys/trak/internal/summarizer"
	"github.com/hgeldenhuys/trak/pkg/models"
)

// handleEvents implements POST /events: decode, validate the five required
// fields, persist, advance the tracker, broadcast to the stream hub, and
// on a Stop event dispatch a notification in the background. The response
// is returned before dispatch completes.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	var e models.Event
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "malformed request body"})
		return
	}
	if !e.RequiredFieldsPresent() {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "missing required event fields"})
		return
	}
	e.ReceivedAt = time.Now()

	id, err := s.Store.InsertEvent(r.Context(), &e)
	if err != nil {
		s.Logger.Error("httpapi: insert event failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": "internal error"})
		return
	}
	e.ID = id
	if s.Metrics != nil {
		s.Metrics.EventsIngested.WithLabelValues(string(e.EventType)).Inc()
	}

	result, err := s.Tracker.ProcessEvent(r.Context(), &e)
	if err != nil {
		s.Logger.Error("httpapi: tracker processing failed", "error", err)
	}

	s.Hub.Publish(&e)

	if e.EventType == models.EventStop && result.Completed != nil {
		if s.Metrics != nil {
			notified := "false"
			if result.ShouldNotify {
				notified = "true"
			}
			s.Metrics.TransactionsCompleted.WithLabelValues(notified).Inc()
		}
		go s.dispatchCompletion(*result.Completed, result.ShouldNotify)
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "eventId": strconv.FormatInt(id, 10)})
}

// dispatchCompletion runs the summarizer and channel dispatch for a
// completed transaction. It is invoked as a detached goroutine from the
// POST /events handler; any error here is logged, never surfaced to a
// caller.
func (s *Server) dispatchCompletion(txn models.CompletedTransaction, shouldNotify bool) {
	if !shouldNotify {
		return
	}
	ctx := backgroundContext()

	summary := s.Summarizer.Summarize(ctx, summarizer.Input{
		TranscriptPath: txn.TranscriptPath,
		DurationMs:     txn.DurationMs,
		FilesModified:  txn.FilesModified,
		ToolsUsed:      txn.ToolsUsed,
		PromptText:     txn.PromptText,
		Usage:          txn.Usage,
		Model:          txn.Model,
		Project:        txn.ProjectName,
		SessionName:    txn.SessionName,
	})

	var (
		responseURL string
		storedResp  *models.StoredResponse
	)
	if s.Responses != nil {
		storedResp = s.Responses.Put(txn.ProjectName, summary.TaskCompleted, summary.AIResponse, "", txn.PromptText, nil, time.Now())
		responseURL = s.resolveResponseURL(storedResp.ID)
	}

	if s.Dispatcher == nil {
		return
	}
	result := s.Dispatcher.Dispatch(ctx, notify.Request{
		Project:           txn.ProjectName,
		Summary:           summary,
		DurationMs:        txn.DurationMs,
		FilesModified:     txn.FilesModified,
		ToolsUsed:         txn.ToolsUsed,
		DiscordWebhookURL: txn.DiscordWebhookURL,
		VoiceID:           txn.VoiceID,
		ResponseURL:       responseURL,
	})

	if storedResp != nil && result.AudioPath != "" {
		s.Responses.SetAudioFilename(storedResp.ID, result.AudioPath)
	}
}
