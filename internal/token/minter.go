package token

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/idpserver/internal/claims"
	"github.com/dropDatabas3/idpserver/internal/domain/repository"
	"github.com/dropDatabas3/idpserver/internal/domain/types"
	jwtx "github.com/dropDatabas3/idpserver/internal/jwt"
	tokens "github.com/dropDatabas3/idpserver/internal/security/token"
	"github.com/dropDatabas3/idpserver/internal/store"
)

// TokenTypeBearer es el token_type de todos los access tokens emitidos.
const TokenTypeBearer = "Bearer"

// MintParams describe un bundle a emitir sobre un grant ya verificado.
type MintParams struct {
	Server repository.ServerConfiguration
	Client repository.ClientConfiguration
	Grant  repository.AuthorizationGrant

	WithRefresh bool
	WithIDToken bool
	Nonce       string
	// CertificateThumbprint liga el access token al certificado mTLS cuando
	// server y client lo habilitan.
	CertificateThumbprint string
}

// IDTokenParams son las entradas de un id_token emitido fuera del token endpoint
// (implicit/hybrid). Code y State producen c_hash y s_hash.
type IDTokenParams struct {
	Server      repository.ServerConfiguration
	Client      repository.ClientConfiguration
	Grant       repository.AuthorizationGrant
	Nonce       string
	AccessToken string
	Code        string
	State       string
}

// Minter emite access/refresh tokens opacos y id_tokens firmados, y persiste
// el OAuthToken resultante. Debe usarse dentro de un unit of work ReadWrite.
type Minter struct {
	dal    store.DataAccessLayer
	issuer *jwtx.Issuer
	now    func() time.Time
}

func NewMinter(dal store.DataAccessLayer, issuer *jwtx.Issuer) *Minter {
	return &Minter{dal: dal, issuer: issuer, now: time.Now}
}

// IssuesRefreshToken indica si server y client habilitan refresh_token.
func IssuesRefreshToken(server repository.ServerConfiguration, client repository.ClientConfiguration) bool {
	return server.SupportsGrantType(types.GrantTypeRefreshToken) && client.SupportsGrantType(types.GrantTypeRefreshToken)
}

// Mint emite y persiste un OAuthToken. Los valores en claro sólo viven en el
// valor retornado.
func (m *Minter) Mint(ctx context.Context, p MintParams) (repository.OAuthToken, error) {
	now := m.now().UTC()
	access, err := tokens.NewIdentifier()
	if err != nil {
		return repository.OAuthToken{}, fmt.Errorf("token: access token: %w", err)
	}
	t := repository.OAuthToken{
		ID:                   uuid.NewString(),
		TenantID:             p.Grant.TenantID,
		TokenType:            TokenTypeBearer,
		AccessToken:          access,
		AccessTokenHash:      tokens.SHA256Base64URL(access),
		AccessTokenExpiresAt: now.Add(p.Server.AccessTokenTTL()),
		Grant:                p.Grant,
		CreatedAt:            now,
	}
	if p.Server.TLSClientCertificateBoundAccessTokens && p.Client.IsCertificateBound() {
		t.CnfX5tS256 = p.CertificateThumbprint
	}
	if p.WithRefresh {
		refresh, err := tokens.NewIdentifier()
		if err != nil {
			return repository.OAuthToken{}, fmt.Errorf("token: refresh token: %w", err)
		}
		t.RefreshToken = refresh
		t.RefreshTokenHash = tokens.SHA256Base64URL(refresh)
		t.RefreshTokenExpiresAt = now.Add(p.Server.RefreshTokenTTL())
	}
	if p.WithIDToken && p.Grant.HasUser() {
		idt, err := m.IDToken(IDTokenParams{
			Server:      p.Server,
			Client:      p.Client,
			Grant:       p.Grant,
			Nonce:       p.Nonce,
			AccessToken: access,
		})
		if err != nil {
			return repository.OAuthToken{}, err
		}
		t.IDToken = idt
	}

	if err := m.dal.Tokens().Register(ctx, t.TenantID, t); err != nil {
		return repository.OAuthToken{}, fmt.Errorf("token: register: %w", err)
	}
	return t, nil
}

// IDToken firma un id_token con los claims de usuario consentidos.
func (m *Minter) IDToken(p IDTokenParams) (string, error) {
	g := p.Grant
	raw, _, err := m.issuer.IssueIDToken(jwtx.IDTokenParams{
		Issuer:      p.Server.Issuer,
		Subject:     g.User.Sub,
		Audience:    p.Client.ClientID,
		Nonce:       p.Nonce,
		AuthTime:    g.Authentication.Time,
		ACR:         g.Authentication.ACR,
		AMR:         g.Authentication.Methods,
		TTL:         p.Server.IDTokenTTL(),
		AccessToken: p.AccessToken,
		Code:        p.Code,
		State:       p.State,
		Claims:      claims.WithCustomProperties(g.User.Claims(g.Claims.IDToken), p.Server.Issuer, g.CustomProperties),
	})
	if err != nil {
		return "", fmt.Errorf("token: id_token: %w", err)
	}
	return raw, nil
}

// ExpiresIn devuelve los segundos de vida restantes del access token.
func ExpiresIn(t repository.OAuthToken) int64 {
	return int64(t.AccessTokenExpiresAt.Sub(t.CreatedAt).Seconds())
}
