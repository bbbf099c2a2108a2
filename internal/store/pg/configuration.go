package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/dropDatabas3/idpserver/internal/domain/repository"
)

type serverConfigRepo struct{ d *DAL }

func (r *serverConfigRepo) Get(ctx context.Context, tenantID string) (*repository.ServerConfiguration, error) {
	const query = `SELECT payload FROM server_configurations WHERE tenant_id = $1`
	cfg, err := queryPayload[repository.ServerConfiguration](ctx, r.d.q(ctx), query, tenantID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("server configuration %q: %w", tenantID, repository.ErrConfigurationNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r *serverConfigRepo) Put(ctx context.Context, cfg repository.ServerConfiguration) error {
	payload, err := encode(cfg)
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO server_configurations (tenant_id, payload, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (tenant_id) DO UPDATE SET payload = EXCLUDED.payload, updated_at = NOW()`
	_, err = r.d.q(ctx).Exec(ctx, query, cfg.TenantID, payload)
	return mapErr(err)
}

type clientConfigRepo struct{ d *DAL }

func (r *clientConfigRepo) Get(ctx context.Context, tenantID, clientID string) (*repository.ClientConfiguration, error) {
	const query = `SELECT payload FROM client_configurations WHERE tenant_id = $1 AND client_id = $2`
	cfg, err := queryPayload[repository.ClientConfiguration](ctx, r.d.q(ctx), query, tenantID, clientID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("client configuration %q: %w", clientID, repository.ErrConfigurationNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r *clientConfigRepo) Put(ctx context.Context, cfg repository.ClientConfiguration) error {
	payload, err := encode(cfg)
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO client_configurations (tenant_id, client_id, payload, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (tenant_id, client_id) DO UPDATE SET payload = EXCLUDED.payload, updated_at = NOW()`
	_, err = r.d.q(ctx).Exec(ctx, query, cfg.TenantID, cfg.ClientID, payload)
	return mapErr(err)
}

type userRepo struct{ d *DAL }

const selectUser = `SELECT payload || jsonb_build_object('password_hash', password_hash) FROM users`

// userRow agrega el hash que User no serializa.
type userRow struct {
	repository.User
	PasswordHash string `json:"password_hash"`
}

func (r *userRepo) one(ctx context.Context, where string, args ...any) (*repository.User, error) {
	row, err := queryPayload[userRow](ctx, r.d.q(ctx), selectUser+" WHERE "+where, args...)
	if err != nil {
		return nil, err
	}
	u := row.User
	u.PasswordHash = row.PasswordHash
	return &u, nil
}

func (r *userRepo) Get(ctx context.Context, tenantID, sub string) (*repository.User, error) {
	return r.one(ctx, "tenant_id = $1 AND sub = $2", tenantID, sub)
}

func (r *userRepo) FindByEmail(ctx context.Context, tenantID, email string) (*repository.User, error) {
	return r.one(ctx, "tenant_id = $1 AND lower(email) = lower($2)", tenantID, email)
}

func (r *userRepo) FindByPhone(ctx context.Context, tenantID, phone string) (*repository.User, error) {
	return r.one(ctx, "tenant_id = $1 AND phone_number = $2", tenantID, phone)
}

func (r *userRepo) FindByUsername(ctx context.Context, tenantID, username string) (*repository.User, error) {
	return r.one(ctx, "tenant_id = $1 AND preferred_username = $2", tenantID, username)
}

func (r *userRepo) Put(ctx context.Context, tenantID string, u repository.User) error {
	payload, err := encode(u)
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO users (tenant_id, sub, email, phone_number, preferred_username, password_hash, payload)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), $6, $7)
		ON CONFLICT (tenant_id, sub) DO UPDATE SET
			email = EXCLUDED.email,
			phone_number = EXCLUDED.phone_number,
			preferred_username = EXCLUDED.preferred_username,
			password_hash = EXCLUDED.password_hash,
			payload = EXCLUDED.payload`
	_, err = r.d.q(ctx).Exec(ctx, query, tenantID, u.Sub, u.Email, u.PhoneNumber, u.PreferredUsername, u.PasswordHash, payload)
	return mapErr(err)
}
