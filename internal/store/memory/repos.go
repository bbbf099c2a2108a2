package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dropDatabas3/idpserver/internal/domain/repository"
	"github.com/dropDatabas3/idpserver/internal/domain/types"
)

type authorizationRequestRepo struct{ d *DAL }

func (r authorizationRequestRepo) Register(ctx context.Context, tenantID string, req repository.AuthorizationRequest) error {
	return r.d.write(ctx, func(t *tables) error {
		k := key(tenantID, req.ID)
		if _, dup := t.authorizationRequests[k]; dup {
			return repository.ErrConflict
		}
		t.authorizationRequests[k] = req
		return nil
	})
}

func (r authorizationRequestRepo) Get(ctx context.Context, tenantID, id string) (*repository.AuthorizationRequest, error) {
	req, err := r.Find(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if !req.Exists() {
		return nil, repository.ErrNotFound
	}
	return &req, nil
}

func (r authorizationRequestRepo) Find(ctx context.Context, tenantID, id string) (out repository.AuthorizationRequest, err error) {
	err = r.d.read(ctx, func(t *tables) error {
		out = t.authorizationRequests[key(tenantID, id)]
		return nil
	})
	return out, err
}

func (r authorizationRequestRepo) Delete(ctx context.Context, tenantID, id string) error {
	return r.d.write(ctx, func(t *tables) error {
		delete(t.authorizationRequests, key(tenantID, id))
		return nil
	})
}

type codeGrantRepo struct{ d *DAL }

func (r codeGrantRepo) Register(ctx context.Context, tenantID string, g repository.AuthorizationCodeGrant) error {
	return r.d.write(ctx, func(t *tables) error {
		k := key(tenantID, g.Code)
		if _, dup := t.codeGrants[k]; dup {
			return repository.ErrConflict
		}
		t.codeGrants[k] = g
		return nil
	})
}

func (r codeGrantRepo) Find(ctx context.Context, tenantID, code string) (out repository.AuthorizationCodeGrant, err error) {
	err = r.d.read(ctx, func(t *tables) error {
		out = t.codeGrants[key(tenantID, code)]
		return nil
	})
	return out, err
}

func (r codeGrantRepo) Consume(ctx context.Context, tenantID, code string) error {
	return r.d.write(ctx, func(t *tables) error {
		k := key(tenantID, code)
		if _, ok := t.codeGrants[k]; !ok {
			return repository.ErrNotFound
		}
		delete(t.codeGrants, k)
		return nil
	})
}

type backchannelRequestRepo struct{ d *DAL }

func (r backchannelRequestRepo) Register(ctx context.Context, tenantID string, req repository.BackchannelAuthenticationRequest) error {
	return r.d.write(ctx, func(t *tables) error {
		k := key(tenantID, req.ID)
		if _, dup := t.backchannelRequests[k]; dup {
			return repository.ErrConflict
		}
		t.backchannelRequests[k] = req
		return nil
	})
}

func (r backchannelRequestRepo) Get(ctx context.Context, tenantID, id string) (*repository.BackchannelAuthenticationRequest, error) {
	req, err := r.Find(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if !req.Exists() {
		return nil, repository.ErrNotFound
	}
	return &req, nil
}

func (r backchannelRequestRepo) Find(ctx context.Context, tenantID, id string) (out repository.BackchannelAuthenticationRequest, err error) {
	err = r.d.read(ctx, func(t *tables) error {
		out = t.backchannelRequests[key(tenantID, id)]
		return nil
	})
	return out, err
}

func (r backchannelRequestRepo) Delete(ctx context.Context, tenantID, id string) error {
	return r.d.write(ctx, func(t *tables) error {
		delete(t.backchannelRequests, key(tenantID, id))
		return nil
	})
}

type cibaGrantRepo struct{ d *DAL }

func (r cibaGrantRepo) Register(ctx context.Context, tenantID string, g repository.CibaGrant) error {
	return r.d.write(ctx, func(t *tables) error {
		k := key(tenantID, g.AuthReqID)
		if _, dup := t.cibaGrants[k]; dup {
			return repository.ErrConflict
		}
		t.cibaGrants[k] = g
		return nil
	})
}

func (r cibaGrantRepo) Get(ctx context.Context, tenantID, authReqID string) (*repository.CibaGrant, error) {
	g, err := r.Find(ctx, tenantID, authReqID)
	if err != nil {
		return nil, err
	}
	if !g.Exists() {
		return nil, repository.ErrNotFound
	}
	return &g, nil
}

func (r cibaGrantRepo) Find(ctx context.Context, tenantID, authReqID string) (out repository.CibaGrant, err error) {
	err = r.d.read(ctx, func(t *tables) error {
		out = t.cibaGrants[key(tenantID, authReqID)]
		return nil
	})
	return out, err
}

func (r cibaGrantRepo) Transition(ctx context.Context, tenantID, authReqID string, from, to types.CibaStatus, grant repository.AuthorizationGrant) error {
	return r.d.write(ctx, func(t *tables) error {
		k := key(tenantID, authReqID)
		g, ok := t.cibaGrants[k]
		if !ok {
			return repository.ErrNotFound
		}
		if g.Status != from {
			return repository.ErrConflict
		}
		g.Status = to
		g.Grant = grant
		t.cibaGrants[k] = g
		return nil
	})
}

func (r cibaGrantRepo) TouchPolled(ctx context.Context, tenantID, authReqID string, at time.Time) error {
	return r.d.write(ctx, func(t *tables) error {
		k := key(tenantID, authReqID)
		g, ok := t.cibaGrants[k]
		if !ok {
			return nil
		}
		g.LastPolledAt = &at
		t.cibaGrants[k] = g
		return nil
	})
}

func (r cibaGrantRepo) DeleteIfStatus(ctx context.Context, tenantID, authReqID string, status types.CibaStatus) error {
	return r.d.write(ctx, func(t *tables) error {
		k := key(tenantID, authReqID)
		g, ok := t.cibaGrants[k]
		if !ok || g.Status != status {
			return repository.ErrNotFound
		}
		delete(t.cibaGrants, k)
		return nil
	})
}

type tokenRepo struct{ d *DAL }

func (r tokenRepo) Register(ctx context.Context, tenantID string, tok repository.OAuthToken) error {
	if err := tok.Validate(); err != nil {
		return err
	}
	// Los valores en claro no se guardan, igual que en pg.
	tok.AccessToken, tok.RefreshToken, tok.IDToken = "", "", ""
	return r.d.write(ctx, func(t *tables) error {
		for k, existing := range t.tokens {
			if !strings.HasPrefix(k, tenantID+"\x00") {
				continue
			}
			if existing.AccessTokenHash == tok.AccessTokenHash ||
				(tok.RefreshTokenHash != "" && existing.RefreshTokenHash == tok.RefreshTokenHash) {
				return repository.ErrConflict
			}
		}
		t.tokens[key(tenantID, tok.ID)] = tok
		return nil
	})
}

func (r tokenRepo) find(ctx context.Context, tenantID string, match func(repository.OAuthToken) bool) (out repository.OAuthToken, err error) {
	err = r.d.read(ctx, func(t *tables) error {
		for k, tok := range t.tokens {
			if strings.HasPrefix(k, tenantID+"\x00") && match(tok) {
				out = tok
				return nil
			}
		}
		return nil
	})
	return out, err
}

func (r tokenRepo) FindByAccessTokenHash(ctx context.Context, tenantID, hash string) (repository.OAuthToken, error) {
	return r.find(ctx, tenantID, func(t repository.OAuthToken) bool { return t.AccessTokenHash == hash })
}

func (r tokenRepo) FindByRefreshTokenHash(ctx context.Context, tenantID, hash string) (repository.OAuthToken, error) {
	if hash == "" {
		return repository.OAuthToken{}, nil
	}
	return r.find(ctx, tenantID, func(t repository.OAuthToken) bool { return t.RefreshTokenHash == hash })
}

func (r tokenRepo) Consume(ctx context.Context, tenantID, id string) error {
	return r.d.write(ctx, func(t *tables) error {
		k := key(tenantID, id)
		if _, ok := t.tokens[k]; !ok {
			return repository.ErrNotFound
		}
		delete(t.tokens, k)
		return nil
	})
}

type grantedRepo struct{ d *DAL }

func (r grantedRepo) Find(ctx context.Context, tenantID, clientID, userSub string) (out repository.AuthorizationGranted, err error) {
	err = r.d.read(ctx, func(t *tables) error {
		out = t.granted[key(tenantID, clientID, userSub)]
		return nil
	})
	return out, err
}

// FindForUpdate no necesita bloqueo de fila: el unit of work ya es exclusivo.
func (r grantedRepo) FindForUpdate(ctx context.Context, tenantID, clientID, userSub string) (repository.AuthorizationGranted, error) {
	return r.Find(ctx, tenantID, clientID, userSub)
}

func (r grantedRepo) Register(ctx context.Context, tenantID string, g repository.AuthorizationGranted) error {
	return r.d.write(ctx, func(t *tables) error {
		k := key(tenantID, g.ClientID, g.UserSub)
		if _, dup := t.granted[k]; dup {
			return repository.ErrConflict
		}
		t.granted[k] = g
		return nil
	})
}

func (r grantedRepo) Update(ctx context.Context, tenantID string, g repository.AuthorizationGranted) error {
	return r.d.write(ctx, func(t *tables) error {
		k := key(tenantID, g.ClientID, g.UserSub)
		existing, ok := t.granted[k]
		if !ok || existing.ID != g.ID {
			return repository.ErrNotFound
		}
		t.granted[k] = g
		return nil
	})
}

type serverConfigRepo struct{ d *DAL }

func (r serverConfigRepo) Get(ctx context.Context, tenantID string) (*repository.ServerConfiguration, error) {
	var out repository.ServerConfiguration
	var ok bool
	_ = r.d.read(ctx, func(t *tables) error {
		out, ok = t.serverConfigs[tenantID]
		return nil
	})
	if !ok {
		return nil, fmt.Errorf("server configuration %q: %w", tenantID, repository.ErrConfigurationNotFound)
	}
	return &out, nil
}

func (r serverConfigRepo) Put(ctx context.Context, cfg repository.ServerConfiguration) error {
	return r.d.write(ctx, func(t *tables) error {
		t.serverConfigs[cfg.TenantID] = cfg
		return nil
	})
}

type clientConfigRepo struct{ d *DAL }

func (r clientConfigRepo) Get(ctx context.Context, tenantID, clientID string) (*repository.ClientConfiguration, error) {
	var out repository.ClientConfiguration
	var ok bool
	_ = r.d.read(ctx, func(t *tables) error {
		out, ok = t.clientConfigs[key(tenantID, clientID)]
		return nil
	})
	if !ok {
		return nil, fmt.Errorf("client configuration %q: %w", clientID, repository.ErrConfigurationNotFound)
	}
	return &out, nil
}

func (r clientConfigRepo) Put(ctx context.Context, cfg repository.ClientConfiguration) error {
	return r.d.write(ctx, func(t *tables) error {
		t.clientConfigs[key(cfg.TenantID, cfg.ClientID)] = cfg
		return nil
	})
}

type userRepo struct{ d *DAL }

func (r userRepo) Get(ctx context.Context, tenantID, sub string) (*repository.User, error) {
	return r.first(ctx, tenantID, func(u repository.User) bool { return u.Sub == sub })
}

func (r userRepo) FindByEmail(ctx context.Context, tenantID, email string) (*repository.User, error) {
	return r.first(ctx, tenantID, func(u repository.User) bool {
		return u.Email != "" && strings.EqualFold(u.Email, email)
	})
}

func (r userRepo) FindByPhone(ctx context.Context, tenantID, phone string) (*repository.User, error) {
	return r.first(ctx, tenantID, func(u repository.User) bool { return u.PhoneNumber != "" && u.PhoneNumber == phone })
}

func (r userRepo) FindByUsername(ctx context.Context, tenantID, username string) (*repository.User, error) {
	return r.first(ctx, tenantID, func(u repository.User) bool {
		return u.PreferredUsername != "" && u.PreferredUsername == username
	})
}

func (r userRepo) first(ctx context.Context, tenantID string, match func(repository.User) bool) (*repository.User, error) {
	var out *repository.User
	_ = r.d.read(ctx, func(t *tables) error {
		for k, u := range t.users {
			if strings.HasPrefix(k, tenantID+"\x00") && match(u) {
				u := u
				out = &u
				return nil
			}
		}
		return nil
	})
	if out == nil {
		return nil, repository.ErrNotFound
	}
	return out, nil
}

func (r userRepo) Put(ctx context.Context, tenantID string, u repository.User) error {
	return r.d.write(ctx, func(t *tables) error {
		t.users[key(tenantID, u.Sub)] = u
		return nil
	})
}
