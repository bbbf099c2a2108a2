package token

import (
	"context"
	"fmt"

	"github.com/dropDatabas3/idpserver/internal/domain/repository"
	"github.com/dropDatabas3/idpserver/internal/domain/types"
)

// service verifica y emite para un grant_type. create sólo escribe después
// de que todos los chequeos pasan.
type service interface {
	create(ctx context.Context, d Deps, tc tokenContext) (Response, error)
}

var services = map[types.GrantType]service{
	types.GrantTypeAuthorizationCode: authorizationCodeService{},
	types.GrantTypeRefreshToken:      refreshTokenService{},
	types.GrantTypeClientCredentials: clientCredentialsService{},
	types.GrantTypePassword:          passwordService{},
	types.GrantTypeCIBA:              cibaService{},
}

func serviceFor(gt types.GrantType) (service, error) {
	s, ok := services[gt]
	if !ok {
		return nil, fmt.Errorf("token: no service for grant_type %q", gt)
	}
	return s, nil
}

type authorizationCodeService struct{}

func (authorizationCodeService) create(ctx context.Context, d Deps, tc tokenContext) (Response, error) {
	v, err := verifyAuthorizationCode(ctx, d.DAL, tc)
	if err != nil {
		return Response{}, err
	}
	// Consume es el punto de serialización: de dos canjes concurrentes sólo uno gana.
	if err := d.DAL.CodeGrants().Consume(ctx, tc.tenantID, v.code.Code); err != nil {
		if repository.IsNotFound(err) {
			return Response{}, invalidGrant("authorization code already used")
		}
		return Response{}, fmt.Errorf("token: consume code: %w", err)
	}
	t, err := d.Minter.Mint(ctx, MintParams{
		Server:                tc.server,
		Client:                tc.client,
		Grant:                 v.code.Grant,
		WithRefresh:           IssuesRefreshToken(tc.server, tc.client),
		WithIDToken:           v.code.Grant.Scopes.HasOpenID(),
		Nonce:                 v.req.Nonce,
		CertificateThumbprint: tc.auth.CertificateThumbprint,
	})
	if err != nil {
		return Response{}, err
	}
	if err := d.DAL.AuthorizationRequests().Delete(ctx, tc.tenantID, v.req.ID); err != nil {
		return Response{}, fmt.Errorf("token: delete authorization request: %w", err)
	}
	return responseFrom(t), nil
}

// refreshTokenService rota: el token anterior se elimina y se emite uno nuevo
// sobre el mismo grant.
type refreshTokenService struct{}

func (refreshTokenService) create(ctx context.Context, d Deps, tc tokenContext) (Response, error) {
	old, scopes, err := verifyRefreshToken(ctx, d.DAL, tc)
	if err != nil {
		return Response{}, err
	}
	if err := d.DAL.Tokens().Consume(ctx, tc.tenantID, old.ID); err != nil {
		if repository.IsNotFound(err) {
			return Response{}, invalidGrant("refresh token already used")
		}
		return Response{}, fmt.Errorf("token: consume rotated token: %w", err)
	}
	g := old.Grant
	g.Scopes = scopes
	t, err := d.Minter.Mint(ctx, MintParams{
		Server:                tc.server,
		Client:                tc.client,
		Grant:                 g,
		WithRefresh:           true,
		WithIDToken:           scopes.HasOpenID(),
		CertificateThumbprint: tc.auth.CertificateThumbprint,
	})
	if err != nil {
		return Response{}, err
	}
	return responseFrom(t), nil
}

// clientCredentialsService emite un token sin usuario ni refresh token.
type clientCredentialsService struct{}

func (clientCredentialsService) create(ctx context.Context, d Deps, tc tokenContext) (Response, error) {
	scopes, err := requestedScopes(tc)
	if err != nil {
		return Response{}, err
	}
	scopes = scopes.Remove(types.Scopes{types.ScopeOpenID})
	if len(scopes) == 0 {
		return Response{}, invalidScope("openid is not available without an end-user")
	}
	t, err := d.Minter.Mint(ctx, MintParams{
		Server: tc.server,
		Client: tc.client,
		Grant: repository.AuthorizationGrant{
			TenantID:  tc.tenantID,
			ClientID:  tc.auth.ClientID,
			GrantType: types.GrantTypeClientCredentials,
			Scopes:    scopes,
		},
		CertificateThumbprint: tc.auth.CertificateThumbprint,
	})
	if err != nil {
		return Response{}, err
	}
	return responseFrom(t), nil
}

type passwordService struct{}

func (passwordService) create(ctx context.Context, d Deps, tc tokenContext) (Response, error) {
	scopes, err := requestedScopes(tc)
	if err != nil {
		return Response{}, err
	}
	user, err := verifyResourceOwner(ctx, d.DAL, tc)
	if err != nil {
		return Response{}, err
	}
	g := repository.AuthorizationGrant{
		TenantID:       tc.tenantID,
		User:           user,
		Authentication: repository.Authentication{Time: tc.now, Methods: []string{"pwd"}},
		ClientID:       tc.auth.ClientID,
		GrantType:      types.GrantTypePassword,
		Scopes:         scopes,
		Claims:         repository.NewGrantedClaims(scopes, types.ResponseTypeCode, tc.server, repository.RequestedClaims{}),
	}
	if _, err := d.Ledger.Merge(ctx, g); err != nil {
		return Response{}, err
	}
	t, err := d.Minter.Mint(ctx, MintParams{
		Server:                tc.server,
		Client:                tc.client,
		Grant:                 g,
		WithRefresh:           IssuesRefreshToken(tc.server, tc.client),
		WithIDToken:           scopes.HasOpenID(),
		CertificateThumbprint: tc.auth.CertificateThumbprint,
	})
	if err != nil {
		return Response{}, err
	}
	return responseFrom(t), nil
}

type cibaService struct{}

func (cibaService) create(ctx context.Context, d Deps, tc tokenContext) (Response, error) {
	g, err := verifyCibaGrant(ctx, d.DAL, tc, d.pollCheck(tc.tenantID))
	if err != nil {
		return Response{}, err
	}
	// DeleteIfStatus serializa dos polls concurrentes sobre un grant autorizado.
	if err := d.DAL.CibaGrants().DeleteIfStatus(ctx, tc.tenantID, g.AuthReqID, types.CibaStatusAuthorized); err != nil {
		if repository.IsNotFound(err) {
			return Response{}, invalidGrant("auth_req_id already redeemed")
		}
		return Response{}, fmt.Errorf("token: delete ciba grant: %w", err)
	}
	if _, err := d.Ledger.Merge(ctx, g.Grant); err != nil {
		return Response{}, err
	}
	t, err := d.Minter.Mint(ctx, MintParams{
		Server:                tc.server,
		Client:                tc.client,
		Grant:                 g.Grant,
		WithRefresh:           IssuesRefreshToken(tc.server, tc.client),
		WithIDToken:           true,
		CertificateThumbprint: tc.auth.CertificateThumbprint,
	})
	if err != nil {
		return Response{}, err
	}
	if err := d.DAL.BackchannelRequests().Delete(ctx, tc.tenantID, g.BackchannelAuthenticationRequestID); err != nil {
		return Response{}, fmt.Errorf("token: delete backchannel request: %w", err)
	}
	return responseFrom(t), nil
}

// pollCheck usa el rate limiter con límite 1 por intervalo del grant.
func (d Deps) pollCheck(tenantID string) cibaPoll {
	if d.Limiter == nil {
		return nil
	}
	return func(ctx context.Context, g repository.CibaGrant) (bool, error) {
		res, err := d.Limiter.AllowWithLimits(ctx, "ciba:"+tenantID+":"+g.AuthReqID, 1, pollInterval(g))
		if err != nil {
			return false, fmt.Errorf("token: poll limiter: %w", err)
		}
		return !res.Allowed, nil
	}
}
