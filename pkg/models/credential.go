package models

import "time"

// Credential is a stored bearer-key record. The plaintext key is never
// persisted; only KeyHash (hex-encoded SHA-256 over the plaintext) is.
type Credential struct {
	ID         int64
	KeyHash    string
	Name       string
	ProjectID  string
	CreatedAt  time.Time
	LastUsedAt *time.Time
	RevokedAt  *time.Time
}

// Revoked reports whether the credential has been soft-revoked.
func (c *Credential) Revoked() bool {
	return c != nil && c.RevokedAt != nil
}

// KeyPrefix is the literal prefix every issued bearer key starts with.
const KeyPrefix = "trak_"

// KeyRandomLen is the number of random alphabet characters following KeyPrefix.
const KeyRandomLen = 32

// KeyAlphabet is the lowercase alphanumeric alphabet bearer keys are drawn from.
const KeyAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
