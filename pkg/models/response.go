package models

import "time"

// StoredResponse is a courtesy, non-durable record kept so a human can open
// a link and see what a completed transaction produced. It is evicted by
// TTL only; the response store has no bound on the number of entries.
// Losing one is never a correctness issue for the daemon itself.
type StoredResponse struct {
	ID            string
	Project       string
	Summary       string
	FullResponse  string
	AudioFilename string
	UserPrompt    string
	Metadata      map[string]string
	CreatedAt     time.Time
	ExpiresAt     time.Time
}

// Expired reports whether the response has passed its TTL at instant now.
func (r *StoredResponse) Expired(now time.Time) bool {
	return r != nil && now.After(r.ExpiresAt)
}
