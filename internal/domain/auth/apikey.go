package auth

import (
	"context"

	"github.com/xenking/storefront/internal/domain/fault"
)

// ErrUnknownKey is returned by Repository when no active key has the hash.
var ErrUnknownKey = fault.New(fault.KindUnauthorized, "unknown api key")

// APIKeyInfo is an active API key row. Raw keys are never stored, only
// the hex HMAC-SHA256 of the key under the server pepper.
type APIKeyInfo struct {
	ID        string
	KeyHash   string
	Name      string
	Principal Principal
}

// Repository resolves key hashes to their owners.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}
