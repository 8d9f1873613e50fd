package auth

import (
	"context"

	"github.com/sis061/pilltime-sub000/internal"
)

// Provider resolves a bearer token to a trusted user. Authentication itself
// happens elsewhere; the core only ever receives the resolved identity.
type Provider interface {
	ValidateTokenLocal(token string) (*internal.User, error)
	ValidateTokenRemote(ctx context.Context, token string) (*internal.User, error)
}
