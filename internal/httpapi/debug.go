package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/hgeldenhuys/trak/pkg/models"
)

const (
	debugHeartbeatInterval = 15 * time.Second
	debugPollInterval      = 1 * time.Second
	debugDefaultLimit      = 50
)

// handleDebugIndex is a minimal JSON stand-in for the debug landing page:
// it returns a fixed hint pointing at the per-project stream and does not
// list projects.
func (s *Server) handleDebugIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"hint": "GET /debug/{project} for a live event stream"})
}

// handleDebugUI serves the same content as handleDebugStream; the spec
// treats /debug/{project}/ui as a browser-facing variant of the SSE route.
// Without an HTML template layer, it redirects to the SSE endpoint.
func (s *Server) handleDebugUI(w http.ResponseWriter, r *http.Request) {
	project := r.PathValue("project")
	http.Redirect(w, r, "/debug/"+project, http.StatusFound)
}

// handleDebugStream implements the SSE contract from §4.F/§6: connected →
// history backfill → live events → heartbeats, plus a 1s store poll
// safety net for events published from another process.
func (s *Server) handleDebugStream(w http.ResponseWriter, r *http.Request) {
	project := r.PathValue("project")
	limit := debugDefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	writeSSE(w, "connected", 0, map[string]any{"project": project, "connectedAt": time.Now()})
	flusher.Flush()

	history, err := s.Store.RecentEventsByName(r.Context(), project, limit)
	if err != nil {
		writeSSE(w, "error", 0, map[string]string{"error": "failed to load history"})
		flusher.Flush()
		return
	}
	writeSSE(w, "history", 0, map[string]any{"count": len(history)})
	var watermark int64
	for _, e := range history {
		writeSSE(w, "event", e.ID, e)
		if e.ID > watermark {
			watermark = e.ID
		}
	}
	flusher.Flush()

	live := make(chan *models.Event, 64)
	subID := s.Hub.Subscribe(project, func(e *models.Event) {
		select {
		case live <- e:
		default:
		}
	})
	defer s.Hub.Unsubscribe(subID)

	heartbeat := time.NewTicker(debugHeartbeatInterval)
	defer heartbeat.Stop()
	poll := time.NewTicker(debugPollInterval)
	defer poll.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case e := <-live:
			if e.ID > watermark {
				writeSSE(w, "event", e.ID, e)
				watermark = e.ID
				flusher.Flush()
			}
		case <-poll.C:
			missed, err := s.Store.EventsSinceId(r.Context(), project, watermark)
			if err != nil {
				continue
			}
			for _, e := range missed {
				writeSSE(w, "event", e.ID, e)
				if e.ID > watermark {
					watermark = e.ID
				}
			}
			if len(missed) > 0 {
				flusher.Flush()
			}
		case <-heartbeat.C:
			writeSSE(w, "heartbeat", 0, map[string]int64{"lastId": watermark})
			flusher.Flush()
		}
	}
}

func writeSSE(w io.Writer, event string, id int64, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if id > 0 {
		fmt.Fprintf(w, "id: %d\n", id)
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}
