package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/hgeldenhuys/trak/internal/notify"
	"github.com/hgeldenhuys/trak/internal/summarizer"
	"github.com/hgeldenhuys/trak/pkg/models"
)

// handleNotify implements POST /notify: accepts either the pre-summarized
// or the raw shape (§4.D/§6), summarizing server-side for the raw shape,
// then dispatches identically.
func (s *Server) handleNotify(w http.ResponseWriter, r *http.Request) {
	var req models.NotifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.NotifyResponse{Success: false, Error: "malformed request body"})
		return
	}

	var summary models.SummaryResult
	switch req.Kind() {
	case models.NotifyKindSummarized:
		summary = models.SummaryResult{
			TaskCompleted: req.Summary,
			ProjectName:   req.Project,
			AIResponse:    req.FullResponse,
			KeyOutcomes:   []string{},
		}
	case models.NotifyKindRaw:
		summary = s.Summarizer.Summarize(r.Context(), summarizer.Input{
			TranscriptPath: req.TranscriptPath,
			DurationMs:     req.DurationMs,
			FilesModified:  req.FilesModified,
			ToolsUsed:      req.ToolsUsed,
			PromptText:     req.PromptText,
			Usage:          req.Usage,
			Model:          req.Model,
			Project:        req.Project,
			SessionName:    req.SessionName,
		})
	default:
		writeJSON(w, http.StatusBadRequest, models.NotifyResponse{Success: false, Error: "body must contain either summary or transcriptPath"})
		return
	}

	var (
		responseURL string
		storedResp  *models.StoredResponse
	)
	if s.Responses != nil {
		storedResp = s.Responses.Put(req.Project, summary.TaskCompleted, summary.AIResponse, "", req.PromptText, req.Metadata, time.Now())
		responseURL = s.resolveResponseURL(storedResp.ID)
	}

	var result models.NotifyResponse
	if s.Dispatcher != nil {
		result = s.Dispatcher.Dispatch(r.Context(), notify.Request{
			Project:           req.Project,
			Summary:           summary,
			DurationMs:        req.DurationMs,
			FilesModified:     req.FilesModified,
			ToolsUsed:         req.ToolsUsed,
			DiscordWebhookURL: req.DiscordWebhookURL,
			VoiceID:           req.VoiceID,
			Prefs:             req.ChannelPrefs,
			ResponseURL:       responseURL,
		})
	} else {
		result = models.NotifyResponse{Success: true, ResponseURL: responseURL}
	}

	// TTS's output path is only known once Dispatch returns; record it
	// against the already-stored response so GET /audio/{id} can serve it.
	if storedResp != nil && result.AudioPath != "" {
		s.Responses.SetAudioFilename(storedResp.ID, result.AudioPath)
		result.AudioURL = "/audio/" + storedResp.ID
	}

	writeJSON(w, http.StatusOK, result)
}
