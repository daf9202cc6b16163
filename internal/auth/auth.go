// Package auth implements the credential store and HTTP bearer-key
// middleware: key issuance with rejection-sampled randomness, SHA-256
// hashing, constant-time verification, and soft revocation.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/hgeldenhuys/trak/internal/store"
	"github.com/hgeldenhuys/trak/pkg/models"
)

// ErrInvalidKey is returned by Verify for any failed lookup — unknown,
// revoked, or malformed — never distinguished to the caller.
var ErrInvalidKey = errors.New("auth: invalid or revoked api key")

// rejectionBound is the largest multiple-of-36-minus-one byte value that
// keeps a uniform draw over models.KeyAlphabet's 36 symbols: floor(256/36)*36-1.
const rejectionBound = (256/len(models.KeyAlphabet))*len(models.KeyAlphabet) - 1

// Store is the subset of store.Store the credential service needs.
type Store interface {
	InsertCredential(ctx context.Context, c *models.Credential) (int64, error)
	FindCredentialByHash(ctx context.Context, keyHash string) (*models.Credential, error)
	GetCredentialById(ctx context.Context, id int64) (*models.Credential, error)
	UpdateLastUsed(ctx context.Context, id int64) error
	RevokeCredential(ctx context.Context, id int64) error
	ListCredentials(ctx context.Context) ([]*models.Credential, error)
	ListActiveCredentials(ctx context.Context) ([]*models.Credential, error)
}

// Service issues and verifies bearer credentials.
type Service struct {
	store Store
}

// NewService constructs a credential service over a durable store.
func NewService(st Store) *Service {
	return &Service{store: st}
}

// CreateKey generates a new bearer key, persists its hash, and returns the
// plaintext (shown to the caller exactly once) alongside the stored record.
func (s *Service) CreateKey(ctx context.Context, name, projectID string) (plaintext string, record *models.Credential, err error) {
	plaintext, err = generateKey()
	if err != nil {
		return "", nil, fmt.Errorf("auth: generate key: %w", err)
	}
	record = &models.Credential{
		KeyHash:   hashKey(plaintext),
		Name:      name,
		ProjectID: projectID,
		CreatedAt: time.Now().UTC(),
	}
	id, err := s.store.InsertCredential(ctx, record)
	if err != nil {
		return "", nil, fmt.Errorf("auth: create key: %w", err)
	}
	record.ID = id
	return plaintext, record, nil
}

// Verify validates a plaintext bearer key against the store. A key that
// fails the shape check is rejected before any lookup or comparison. For a
// well-formed key it always performs a constant-time comparison, even on a
// miss, via a dummy self-compare, so that timing does not distinguish
// unknown from revoked from mismatched keys.
func (s *Service) Verify(ctx context.Context, plaintext string) (*models.Credential, error) {
	if !validKeyShape(plaintext) {
		return nil, ErrInvalidKey
	}
	hash := hashKey(plaintext)
	record, err := s.store.FindCredentialByHash(ctx, hash)
	if errors.Is(err, store.ErrNotFound) {
		constantTimeSelfCompare(hash)
		return nil, ErrInvalidKey
	}
	if err != nil {
		return nil, fmt.Errorf("auth: verify: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(hash), []byte(record.KeyHash)) != 1 {
		return nil, ErrInvalidKey
	}
	if record.Revoked() {
		return nil, ErrInvalidKey
	}
	if err := s.store.UpdateLastUsed(ctx, record.ID); err != nil {
		return nil, fmt.Errorf("auth: update last used: %w", err)
	}
	return record, nil
}

// Revoke soft-revokes the credential with id.
func (s *Service) Revoke(ctx context.Context, id int64) error {
	return s.store.RevokeCredential(ctx, id)
}

// List returns every credential, revoked or not.
func (s *Service) List(ctx context.Context) ([]*models.Credential, error) {
	return s.store.ListCredentials(ctx)
}

// ListActive returns only non-revoked credentials.
func (s *Service) ListActive(ctx context.Context) ([]*models.Credential, error) {
	return s.store.ListActiveCredentials(ctx)
}

// GetById returns the credential with id.
func (s *Service) GetById(ctx context.Context, id int64) (*models.Credential, error) {
	return s.store.GetCredentialById(ctx, id)
}

func generateKey() (string, error) {
	buf := make([]byte, models.KeyRandomLen)
	alphabet := models.KeyAlphabet
	n := len(alphabet)
	for i := 0; i < len(buf); {
		var b [1]byte
		if _, err := rand.Read(b[:]); err != nil {
			return "", err
		}
		// Reject bytes that would bias the modulo reduction below.
		if int(b[0]) > rejectionBound {
			continue
		}
		buf[i] = alphabet[int(b[0])%n]
		i++
	}
	return models.KeyPrefix + string(buf), nil
}

func hashKey(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// validKeyShape checks the prefix, length, and alphabet before a DB hit,
// so junk input never reaches the store.
func validKeyShape(key string) bool {
	if len(key) != len(models.KeyPrefix)+models.KeyRandomLen {
		return false
	}
	if key[:len(models.KeyPrefix)] != models.KeyPrefix {
		return false
	}
	for _, c := range key[len(models.KeyPrefix):] {
		if !isKeyAlphabetRune(c) {
			return false
		}
	}
	return true
}

func isKeyAlphabetRune(c rune) bool {
	for _, a := range models.KeyAlphabet {
		if a == c {
			return true
		}
	}
	return false
}

// constantTimeSelfCompare burns the same comparison cost as a real hit so
// a miss and a hit take indistinguishable time.
func constantTimeSelfCompare(hash string) {
	subtle.ConstantTimeCompare([]byte(hash), []byte(hash))
}
