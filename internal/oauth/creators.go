package oauth

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/dropDatabas3/idpserver/internal/domain/repository"
	"github.com/dropDatabas3/idpserver/internal/domain/types"
	"github.com/dropDatabas3/idpserver/internal/metrics"
	tokens "github.com/dropDatabas3/idpserver/internal/security/token"
	"github.com/dropDatabas3/idpserver/internal/token"
)

// responseCreator arma los parámetros de respuesta de un response_type.
type responseCreator struct {
	code    bool
	token   bool
	idToken bool
}

var creators = map[types.ResponseType]responseCreator{
	types.ResponseTypeCode:             {code: true},
	types.ResponseTypeToken:            {token: true},
	types.ResponseTypeIDToken:          {idToken: true},
	types.ResponseTypeCodeToken:        {code: true, token: true},
	types.ResponseTypeCodeIDToken:      {code: true, idToken: true},
	types.ResponseTypeIDTokenToken:     {idToken: true, token: true},
	types.ResponseTypeCodeIDTokenToken: {code: true, idToken: true, token: true},
	types.ResponseTypeNone:             {},
}

func creatorFor(rt types.ResponseType) (responseCreator, error) {
	c, ok := creators[rt]
	if !ok {
		return responseCreator{}, fmt.Errorf("oauth: no response creator for response_type %q", rt)
	}
	return c, nil
}

type authorizeContext struct {
	req    repository.AuthorizationRequest
	server repository.ServerConfiguration
	client repository.ClientConfiguration
	grant  repository.AuthorizationGrant
	now    time.Time
}

// create persiste el code grant y/o el token y devuelve los parámetros.
// El orden importa: c_hash y at_hash del id_token se calculan sobre los
// valores ya emitidos.
func (c responseCreator) create(ctx context.Context, d Deps, ac authorizeContext) (url.Values, error) {
	params := url.Values{}
	var code, access string

	if c.code {
		var err error
		code, err = tokens.NewIdentifier()
		if err != nil {
			return nil, fmt.Errorf("oauth: code: %w", err)
		}
		cg := repository.AuthorizationCodeGrant{
			Code:                   code,
			TenantID:               ac.req.TenantID,
			AuthorizationRequestID: ac.req.ID,
			Grant:                  ac.grant,
			RedirectURI:            ac.req.RedirectURI,
			ExpiresAt:              ac.now.Add(ac.server.AuthorizationCodeTTL()),
			CreatedAt:              ac.now,
		}
		if err := d.DAL.CodeGrants().Register(ctx, ac.req.TenantID, cg); err != nil {
			return nil, fmt.Errorf("oauth: register code grant: %w", err)
		}
		metrics.CodesIssued.Inc()
		params.Set("code", code)
	}

	if c.token {
		t, err := d.Minter.Mint(ctx, token.MintParams{
			Server: ac.server,
			Client: ac.client,
			Grant:  ac.grant,
		})
		if err != nil {
			return nil, err
		}
		access = t.AccessToken
		params.Set("access_token", t.AccessToken)
		params.Set("token_type", t.TokenType)
		params.Set("expires_in", strconv.FormatInt(token.ExpiresIn(t), 10))
		params.Set("scope", ac.grant.Scopes.String())
	}

	if c.idToken && ac.grant.Scopes.HasOpenID() {
		idt, err := d.Minter.IDToken(token.IDTokenParams{
			Server:      ac.server,
			Client:      ac.client,
			Grant:       ac.grant,
			Nonce:       ac.req.Nonce,
			AccessToken: access,
			Code:        code,
			State:       ac.req.State,
		})
		if err != nil {
			return nil, err
		}
		params.Set("id_token", idt)
	}
	return params, nil
}
