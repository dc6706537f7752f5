package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/auth"
)

const findAPIKeySQL = `SELECT k.id, k.key_hash, k.name, u.id, u.role
	FROM api_keys k
	JOIN users u ON u.id = k.user_id
	WHERE k.key_hash = $1 AND k.active`

var _ auth.Repository = (*APIKeyRepository)(nil)

type APIKeyRepository struct {
	pool *pgxpool.Pool
}

func NewAPIKeyRepository(pool *pgxpool.Pool) *APIKeyRepository {
	return &APIKeyRepository{pool: pool}
}

// FindByHash returns the active key with the given hash and the role its
// owner currently has. Deactivated keys yield auth.ErrUnknownKey.
func (r *APIKeyRepository) FindByHash(ctx context.Context, hash string) (*auth.APIKeyInfo, error) {
	var (
		k    auth.APIKeyInfo
		role string
	)
	err := r.pool.QueryRow(ctx, findAPIKeySQL, hash).
		Scan(&k.ID, &k.KeyHash, &k.Name, &k.Principal.UserID, &role)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, auth.ErrUnknownKey
	case err != nil:
		return nil, errors.Wrap(err, "find api key")
	}
	if k.Principal.Role, err = auth.ParseRole(role); err != nil {
		return nil, errors.Wrapf(err, "api key %s", k.ID)
	}
	return &k, nil
}
