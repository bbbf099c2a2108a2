package pg

import (
	"context"
	"time"

	"github.com/dropDatabas3/idpserver/internal/domain/repository"
	"github.com/dropDatabas3/idpserver/internal/domain/types"
	tokens "github.com/dropDatabas3/idpserver/internal/security/token"
)

// codeGrantRepo guarda el hash del code; el valor en claro nunca llega a la DB.
type codeGrantRepo struct{ d *DAL }

func (r *codeGrantRepo) Register(ctx context.Context, tenantID string, g repository.AuthorizationCodeGrant) error {
	code := g.Code
	g.Code = ""
	payload, err := encode(g)
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO authorization_code_grants (code_hash, tenant_id, authorization_request_id, client_id, payload, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err = r.d.q(ctx).Exec(ctx, query,
		tokens.SHA256Base64URL(code), tenantID, g.AuthorizationRequestID, g.Grant.ClientID, payload, g.ExpiresAt)
	return mapErr(err)
}

func (r *codeGrantRepo) Find(ctx context.Context, tenantID, code string) (repository.AuthorizationCodeGrant, error) {
	const query = `SELECT payload FROM authorization_code_grants WHERE tenant_id = $1 AND code_hash = $2`
	g, err := findPayload[repository.AuthorizationCodeGrant](ctx, r.d.q(ctx), query, tenantID, tokens.SHA256Base64URL(code))
	if err != nil || g.AuthorizationRequestID == "" {
		return repository.AuthorizationCodeGrant{}, err
	}
	g.Code = code
	return g, nil
}

// Consume borra el code. Dos transacciones concurrentes bloquean sobre la misma
// fila; la segunda ve 0 filas afectadas tras el commit de la primera.
func (r *codeGrantRepo) Consume(ctx context.Context, tenantID, code string) error {
	const query = `DELETE FROM authorization_code_grants WHERE tenant_id = $1 AND code_hash = $2`
	tag, err := r.d.q(ctx).Exec(ctx, query, tenantID, tokens.SHA256Base64URL(code))
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

type cibaGrantRepo struct{ d *DAL }

func (r *cibaGrantRepo) Register(ctx context.Context, tenantID string, g repository.CibaGrant) error {
	payload, err := encode(g)
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO ciba_grants (auth_req_id, tenant_id, backchannel_authentication_request_id, client_id, status, payload, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err = r.d.q(ctx).Exec(ctx, query,
		g.AuthReqID, tenantID, g.BackchannelAuthenticationRequestID, g.Grant.ClientID, string(g.Status), payload, g.ExpiresAt)
	return mapErr(err)
}

// selectCibaGrant superpone las columnas mutables sobre el payload.
const selectCibaGrant = `
	SELECT payload || jsonb_build_object('status', status, 'last_polled_at', last_polled_at)
	FROM ciba_grants WHERE tenant_id = $1 AND auth_req_id = $2`

func (r *cibaGrantRepo) Get(ctx context.Context, tenantID, authReqID string) (*repository.CibaGrant, error) {
	g, err := queryPayload[repository.CibaGrant](ctx, r.d.q(ctx), selectCibaGrant, tenantID, authReqID)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *cibaGrantRepo) Find(ctx context.Context, tenantID, authReqID string) (repository.CibaGrant, error) {
	return findPayload[repository.CibaGrant](ctx, r.d.q(ctx), selectCibaGrant, tenantID, authReqID)
}

// Transition es un UPDATE condicionado por estado: de dos transiciones
// concurrentes sobre el mismo auth_req_id sólo una afecta la fila.
func (r *cibaGrantRepo) Transition(ctx context.Context, tenantID, authReqID string, from, to types.CibaStatus, grant repository.AuthorizationGrant) error {
	grantJSON, err := encode(grant)
	if err != nil {
		return err
	}
	const query = `
		UPDATE ciba_grants
		SET status = $4, payload = jsonb_set(payload, '{grant}', $5::jsonb)
		WHERE tenant_id = $1 AND auth_req_id = $2 AND status = $3`
	tag, err := r.d.q(ctx).Exec(ctx, query, tenantID, authReqID, string(from), string(to), grantJSON)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	const check = `SELECT EXISTS (SELECT 1 FROM ciba_grants WHERE tenant_id = $1 AND auth_req_id = $2)`
	if err := r.d.q(ctx).QueryRow(ctx, check, tenantID, authReqID).Scan(&exists); err != nil {
		return mapErr(err)
	}
	if !exists {
		return repository.ErrNotFound
	}
	return repository.ErrConflict
}

func (r *cibaGrantRepo) TouchPolled(ctx context.Context, tenantID, authReqID string, at time.Time) error {
	const query = `UPDATE ciba_grants SET last_polled_at = $3 WHERE tenant_id = $1 AND auth_req_id = $2`
	_, err := r.d.q(ctx).Exec(ctx, query, tenantID, authReqID, at)
	return mapErr(err)
}

func (r *cibaGrantRepo) DeleteIfStatus(ctx context.Context, tenantID, authReqID string, status types.CibaStatus) error {
	const query = `DELETE FROM ciba_grants WHERE tenant_id = $1 AND auth_req_id = $2 AND status = $3`
	tag, err := r.d.q(ctx).Exec(ctx, query, tenantID, authReqID, string(status))
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

type grantedRepo struct{ d *DAL }

func (r *grantedRepo) Find(ctx context.Context, tenantID, clientID, userSub string) (repository.AuthorizationGranted, error) {
	const query = `
		SELECT payload FROM authorization_granted
		WHERE tenant_id = $1 AND client_id = $2 AND user_sub = $3`
	return findPayload[repository.AuthorizationGranted](ctx, r.d.q(ctx), query, tenantID, clientID, userSub)
}

func (r *grantedRepo) FindForUpdate(ctx context.Context, tenantID, clientID, userSub string) (repository.AuthorizationGranted, error) {
	const query = `
		SELECT payload FROM authorization_granted
		WHERE tenant_id = $1 AND client_id = $2 AND user_sub = $3
		FOR UPDATE`
	return findPayload[repository.AuthorizationGranted](ctx, r.d.q(ctx), query, tenantID, clientID, userSub)
}

// Register inserta con ON CONFLICT DO NOTHING: bajo primer consentimiento
// concurrente sólo una fila gana y el resto recibe ErrConflict.
func (r *grantedRepo) Register(ctx context.Context, tenantID string, g repository.AuthorizationGranted) error {
	payload, err := encode(g)
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO authorization_granted (id, tenant_id, client_id, user_sub, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tenant_id, client_id, user_sub) DO NOTHING`
	tag, err := r.d.q(ctx).Exec(ctx, query, g.ID, tenantID, g.ClientID, g.UserSub, payload, g.CreatedAt, g.UpdatedAt)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrConflict
	}
	return nil
}

func (r *grantedRepo) Update(ctx context.Context, tenantID string, g repository.AuthorizationGranted) error {
	payload, err := encode(g)
	if err != nil {
		return err
	}
	const query = `
		UPDATE authorization_granted SET payload = $3, updated_at = $4
		WHERE tenant_id = $1 AND id = $2`
	tag, err := r.d.q(ctx).Exec(ctx, query, tenantID, g.ID, payload, g.UpdatedAt)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
