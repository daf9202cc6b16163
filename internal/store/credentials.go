package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hgeldenhuys/trak/pkg/models"
)

// InsertCredential persists a new credential row and assigns its id.
func (s *Store) InsertCredential(ctx context.Context, c *models.Credential) (int64, error) {
	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO credentials (key_hash, name, project_id, created_at, last_used_at, revoked_at)
			VALUES (?,?,?,?,?,?)`,
			c.KeyHash, c.Name, nullStr(c.ProjectID), c.CreatedAt, timePtrOrNil(c.LastUsedAt), timePtrOrNil(c.RevokedAt),
		)
		if err != nil {
			return fmt.Errorf("store: insert credential: %w", err)
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

// FindCredentialByHash returns the credential with the given key hash,
// including revoked ones — callers decide whether revocation matters.
func (s *Store) FindCredentialByHash(ctx context.Context, keyHash string) (*models.Credential, error) {
	row := s.db.QueryRowContext(ctx, credentialSelectCols+`WHERE key_hash = ?`, keyHash)
	return scanCredential(row)
}

// GetCredentialById returns the credential with the given id.
func (s *Store) GetCredentialById(ctx context.Context, id int64) (*models.Credential, error) {
	row := s.db.QueryRowContext(ctx, credentialSelectCols+`WHERE id = ?`, id)
	return scanCredential(row)
}

// UpdateLastUsed sets last_used_at = now for the credential with id.
func (s *Store) UpdateLastUsed(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE credentials SET last_used_at = ? WHERE id = ?`, time.Now().UTC(), id)
		if err != nil {
			return fmt.Errorf("store: update last used: %w", err)
		}
		return nil
	})
}

// RevokeCredential soft-revokes the credential with id by setting revoked_at.
func (s *Store) RevokeCredential(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE credentials SET revoked_at = ? WHERE id = ?`, time.Now().UTC(), id)
		if err != nil {
			return fmt.Errorf("store: revoke credential: %w", err)
		}
		return nil
	})
}

// ListCredentials returns every credential, revoked or not.
func (s *Store) ListCredentials(ctx context.Context) ([]*models.Credential, error) {
	return s.queryCredentials(ctx, credentialSelectCols+`ORDER BY id ASC`)
}

// ListActiveCredentials returns only non-revoked credentials.
func (s *Store) ListActiveCredentials(ctx context.Context) ([]*models.Credential, error) {
	return s.queryCredentials(ctx, credentialSelectCols+`WHERE revoked_at IS NULL ORDER BY id ASC`)
}

func (s *Store) queryCredentials(ctx context.Context, query string) ([]*models.Credential, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: query credentials: %w", err)
	}
	defer rows.Close()

	var out []*models.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: query credentials: %w", err)
	}
	return out, nil
}

const credentialSelectCols = `SELECT id, key_hash, name, project_id, created_at, last_used_at, revoked_at FROM credentials `

func scanCredential(row rowScanner) (*models.Credential, error) {
	var (
		c                     models.Credential
		projectID             sql.NullString
		lastUsedAt, revokedAt sql.NullTime
	)
	err := row.Scan(&c.ID, &c.KeyHash, &c.Name, &projectID, &c.CreatedAt, &lastUsedAt, &revokedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan credential: %w", err)
	}
	c.ProjectID = projectID.String
	if lastUsedAt.Valid {
		t := lastUsedAt.Time
		c.LastUsedAt = &t
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		c.RevokedAt = &t
	}
	return &c, nil
}
