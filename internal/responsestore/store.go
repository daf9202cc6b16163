// Package responsestore holds rendered summaries in memory for a bounded
// TTL so the response/audio HTML routes can serve them after a /notify
// call without re-running the summarizer.
package responsestore

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hgeldenhuys/trak/pkg/models"
)

// DefaultTTL is how long a stored response stays retrievable.
const DefaultTTL = 30 * time.Minute

// DefaultSweepInterval is how often the eviction sweep runs.
const DefaultSweepInterval = 5 * time.Minute

// Store is the process-wide singleton holding StoredResponse values keyed
// by opaque id. Guarded by one mutex; runs a periodic eviction sweep.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*models.StoredResponse
	ttl     time.Duration
	logger  *slog.Logger
}

// New constructs a Store with the given TTL (DefaultTTL if zero).
func New(ttl time.Duration, logger *slog.Logger) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{entries: map[string]*models.StoredResponse{}, ttl: ttl, logger: logger}
}

// Put stores resp under a new id and returns it.
func (s *Store) Put(project, summary, fullResponse, audioFilename, promptText string, metadata map[string]string, now time.Time) *models.StoredResponse {
	resp := &models.StoredResponse{
		ID:            uuid.NewString(),
		Project:       project,
		Summary:       summary,
		FullResponse:  fullResponse,
		AudioFilename: audioFilename,
		UserPrompt:    promptText,
		Metadata:      metadata,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.ttl),
	}
	s.mu.Lock()
	s.entries[resp.ID] = resp
	s.mu.Unlock()
	return resp
}

// SetAudioFilename records the TTS output path for an already-stored
// response, once dispatch determines it. A no-op if id has expired or was
// never stored (losing the audio link is not a correctness issue).
func (s *Store) SetAudioFilename(id, audioFilename string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if resp, ok := s.entries[id]; ok {
		resp.AudioFilename = audioFilename
	}
}

// Get returns the stored response for id, or (nil, false) if absent or
// expired as of now.
func (s *Store) Get(id string, now time.Time) (*models.StoredResponse, bool) {
	s.mu.RLock()
	resp, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok || resp.Expired(now) {
		return nil, false
	}
	return resp, true
}

// LatestForProject returns the most recently created, non-expired response
// for project, or (nil, false) if none.
func (s *Store) LatestForProject(project string, now time.Time) (*models.StoredResponse, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *models.StoredResponse
	for _, resp := range s.entries {
		if resp.Project != project || resp.Expired(now) {
			continue
		}
		if latest == nil || resp.CreatedAt.After(latest.CreatedAt) {
			latest = resp
		}
	}
	if latest == nil {
		return nil, false
	}
	return latest, true
}

// Sweep drops every entry expired as of now, returning the count removed.
func (s *Store) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, resp := range s.entries {
		if resp.Expired(now) {
			delete(s.entries, id)
			n++
		}
	}
	return n
}

// RunSweeper blocks, running Sweep every interval (DefaultSweepInterval if
// zero) until ctx is done.
func (s *Store) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(time.Now()); n > 0 {
				s.logger.Info("responsestore: swept expired entries", "count", n)
			}
		}
	}
}
