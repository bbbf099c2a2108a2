package pg

import (
	"context"

	"github.com/dropDatabas3/idpserver/internal/domain/repository"
)

type authorizationRequestRepo struct{ d *DAL }

func (r *authorizationRequestRepo) Register(ctx context.Context, tenantID string, req repository.AuthorizationRequest) error {
	payload, err := encode(req)
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO authorization_requests (id, tenant_id, client_id, payload, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err = r.d.q(ctx).Exec(ctx, query, req.ID, tenantID, req.ClientID, payload, req.CreatedAt, req.ExpiresAt)
	return mapErr(err)
}

func (r *authorizationRequestRepo) Get(ctx context.Context, tenantID, id string) (*repository.AuthorizationRequest, error) {
	const query = `SELECT payload FROM authorization_requests WHERE tenant_id = $1 AND id = $2`
	req, err := queryPayload[repository.AuthorizationRequest](ctx, r.d.q(ctx), query, tenantID, id)
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *authorizationRequestRepo) Find(ctx context.Context, tenantID, id string) (repository.AuthorizationRequest, error) {
	const query = `SELECT payload FROM authorization_requests WHERE tenant_id = $1 AND id = $2`
	return findPayload[repository.AuthorizationRequest](ctx, r.d.q(ctx), query, tenantID, id)
}

func (r *authorizationRequestRepo) Delete(ctx context.Context, tenantID, id string) error {
	const query = `DELETE FROM authorization_requests WHERE tenant_id = $1 AND id = $2`
	_, err := r.d.q(ctx).Exec(ctx, query, tenantID, id)
	return mapErr(err)
}

type backchannelRequestRepo struct{ d *DAL }

func (r *backchannelRequestRepo) Register(ctx context.Context, tenantID string, req repository.BackchannelAuthenticationRequest) error {
	payload, err := encode(req)
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO backchannel_authentication_requests (id, tenant_id, client_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err = r.d.q(ctx).Exec(ctx, query, req.ID, tenantID, req.ClientID, payload, req.CreatedAt)
	return mapErr(err)
}

func (r *backchannelRequestRepo) Get(ctx context.Context, tenantID, id string) (*repository.BackchannelAuthenticationRequest, error) {
	const query = `SELECT payload FROM backchannel_authentication_requests WHERE tenant_id = $1 AND id = $2`
	req, err := queryPayload[repository.BackchannelAuthenticationRequest](ctx, r.d.q(ctx), query, tenantID, id)
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *backchannelRequestRepo) Find(ctx context.Context, tenantID, id string) (repository.BackchannelAuthenticationRequest, error) {
	const query = `SELECT payload FROM backchannel_authentication_requests WHERE tenant_id = $1 AND id = $2`
	return findPayload[repository.BackchannelAuthenticationRequest](ctx, r.d.q(ctx), query, tenantID, id)
}

func (r *backchannelRequestRepo) Delete(ctx context.Context, tenantID, id string) error {
	const query = `DELETE FROM backchannel_authentication_requests WHERE tenant_id = $1 AND id = $2`
	_, err := r.d.q(ctx).Exec(ctx, query, tenantID, id)
	return mapErr(err)
}
