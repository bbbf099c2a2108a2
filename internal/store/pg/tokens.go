package pg

import (
	"context"

	"github.com/dropDatabas3/idpserver/internal/domain/repository"
)

type tokenRepo struct{ d *DAL }

func (r *tokenRepo) Register(ctx context.Context, tenantID string, t repository.OAuthToken) error {
	if err := t.Validate(); err != nil {
		return err
	}
	payload, err := encode(t)
	if err != nil {
		return err
	}
	var refreshHash *string
	if t.RefreshTokenHash != "" {
		refreshHash = &t.RefreshTokenHash
	}
	const query = `
		INSERT INTO oauth_tokens (id, tenant_id, client_id, access_token_hash, refresh_token_hash, payload, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err = r.d.q(ctx).Exec(ctx, query,
		t.ID, tenantID, t.Grant.ClientID, t.AccessTokenHash, refreshHash, payload, t.AccessTokenExpiresAt, t.CreatedAt)
	return mapErr(err)
}

func (r *tokenRepo) FindByAccessTokenHash(ctx context.Context, tenantID, hash string) (repository.OAuthToken, error) {
	const query = `SELECT payload FROM oauth_tokens WHERE tenant_id = $1 AND access_token_hash = $2`
	return findPayload[repository.OAuthToken](ctx, r.d.q(ctx), query, tenantID, hash)
}

func (r *tokenRepo) FindByRefreshTokenHash(ctx context.Context, tenantID, hash string) (repository.OAuthToken, error) {
	const query = `SELECT payload FROM oauth_tokens WHERE tenant_id = $1 AND refresh_token_hash = $2`
	return findPayload[repository.OAuthToken](ctx, r.d.q(ctx), query, tenantID, hash)
}

// Consume sigue el patrón del code: la segunda transacción espera el lock de
// la fila y ve 0 filas afectadas.
func (r *tokenRepo) Consume(ctx context.Context, tenantID, id string) error {
	const query = `DELETE FROM oauth_tokens WHERE tenant_id = $1 AND id = $2`
	tag, err := r.d.q(ctx).Exec(ctx, query, tenantID, id)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
