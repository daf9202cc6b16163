package auth

import (
	"context"

	"github.com/hgeldenhuys/trak/pkg/models"
)

type credentialContextKey struct{}

// WithCredential attaches the verified credential to the context.
func WithCredential(ctx context.Context, cred *models.Credential) context.Context {
	if cred == nil {
		return ctx
	}
	return context.WithValue(ctx, credentialContextKey{}, cred)
}

// CredentialFromContext retrieves the verified credential, if any.
func CredentialFromContext(ctx context.Context) (*models.Credential, bool) {
	cred, ok := ctx.Value(credentialContextKey{}).(*models.Credential)
	return cred, ok
}
