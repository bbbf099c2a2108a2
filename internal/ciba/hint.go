package ciba

import (
	"context"
	"errors"
	"strings"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	"github.com/dropDatabas3/idpserver/internal/domain/repository"
	"github.com/dropDatabas3/idpserver/internal/jose"
	jwtx "github.com/dropDatabas3/idpserver/internal/jwt"
	"github.com/dropDatabas3/idpserver/internal/oautherr"
)

// hintResolver resuelve el usuario desde el único hint del request.
type hintResolver struct {
	users  repository.UserRepository
	issuer *jwtx.Issuer
}

func (h hintResolver) resolve(ctx context.Context, c *Context) (repository.User, error) {
	r := c.Request
	var (
		u   *repository.User
		err error
	)
	switch {
	case r.LoginHint != "":
		u, err = h.byLoginHint(ctx, r.TenantID, r.LoginHint)
	case r.IDTokenHint != "":
		u, err = h.byIDTokenHint(ctx, c)
	case r.LoginHintToken != "":
		u, err = h.byLoginHintToken(ctx, c)
	default:
		return repository.User{}, badRequest(oautherr.CodeInvalidRequest, "a user hint is required")
	}
	if repository.IsNotFound(err) {
		return repository.User{}, badRequest(oautherr.CodeUnknownUserID, "the hint does not identify a known user")
	}
	if err != nil {
		return repository.User{}, err
	}
	return *u, nil
}

// byLoginHint acepta "sub:", "email:", "phone:" o un username sin prefijo.
func (h hintResolver) byLoginHint(ctx context.Context, tenantID, hint string) (*repository.User, error) {
	kind, value, ok := strings.Cut(hint, ":")
	if !ok {
		return h.users.FindByUsername(ctx, tenantID, hint)
	}
	switch kind {
	case "sub":
		return h.users.Get(ctx, tenantID, value)
	case "email":
		return h.users.FindByEmail(ctx, tenantID, value)
	case "phone":
		return h.users.FindByPhone(ctx, tenantID, value)
	default:
		return h.users.FindByUsername(ctx, tenantID, hint)
	}
}

// byIDTokenHint verifica que el id_token lo haya emitido este tenant; vencido sigue siendo válido.
func (h hintResolver) byIDTokenHint(ctx context.Context, c *Context) (*repository.User, error) {
	claims, err := h.issuer.ParseOwn(c.Request.IDTokenHint, c.Server.Issuer)
	if err != nil {
		return nil, badRequest(oautherr.CodeInvalidRequest, "id_token_hint is invalid").WithCause(err)
	}
	sub, _ := claims.GetSubject()
	if sub == "" {
		return nil, badRequest(oautherr.CodeInvalidRequest, "id_token_hint has no sub")
	}
	return h.users.Get(ctx, c.Request.TenantID, sub)
}

// byLoginHintToken verifica el token contra el JWKS del client y busca por
// sub, email o phone_number, en ese orden.
func (h hintResolver) byLoginHintToken(ctx context.Context, c *Context) (*repository.User, error) {
	set, err := jose.ParseJWKS(c.Client.JWKS)
	if err != nil {
		return nil, badRequest(oautherr.CodeInvalidRequest, "login_hint_token cannot be verified without a client jwks").WithCause(err)
	}
	tok, err := jose.Verify(c.Request.LoginHintToken, jose.Keyfunc(set), jose.VerifyOptions{
		Algs: signingAlgs(c.Server, ""),
		Now:  func() time.Time { return c.Now },
	})
	if err != nil {
		if isExpired(err) {
			return nil, badRequest(oautherr.CodeExpiredLoginHintToken, "login_hint_token expired")
		}
		return nil, badRequest(oautherr.CodeInvalidRequest, "login_hint_token is invalid").WithCause(err)
	}
	tenantID := c.Request.TenantID
	switch {
	case tok.String("sub") != "":
		return h.users.Get(ctx, tenantID, tok.String("sub"))
	case tok.String("email") != "":
		return h.users.FindByEmail(ctx, tenantID, tok.String("email"))
	case tok.String("phone_number") != "":
		return h.users.FindByPhone(ctx, tenantID, tok.String("phone_number"))
	}
	return nil, badRequest(oautherr.CodeInvalidRequest, "login_hint_token identifies no user")
}

func isExpired(err error) bool { return errors.Is(err, jwtv5.ErrTokenExpired) }

// signingAlgs son los algoritmos del server restringidos al registrado por el client.
// "none" nunca se acepta en el backchannel.
func signingAlgs(server repository.ServerConfiguration, registered string) []string {
	var out []string
	for _, alg := range server.RequestObjectSigningAlgValuesSupported {
		if alg == jose.AlgNone {
			continue
		}
		if registered == "" || registered == alg {
			out = append(out, alg)
		}
	}
	return out
}

// verifyRequestObject verifica el request object firmado del backchannel.
func verifyRequestObject(raw string, server repository.ServerConfiguration, client repository.ClientConfiguration, now time.Time) (*jose.SignedJWT, error) {
	algs := signingAlgs(server, client.BackchannelAuthRequestSigningAlg)
	if len(algs) == 0 {
		return nil, badRequest(oautherr.CodeInvalidRequest, "no signing algorithm is available for this client")
	}
	set, err := jose.ParseJWKS(client.JWKS)
	if err != nil {
		return nil, badRequest(oautherr.CodeInvalidRequest, "request object cannot be verified without a client jwks").WithCause(err)
	}
	ro, err := jose.Verify(raw, jose.Keyfunc(set), jose.VerifyOptions{
		Algs: algs,
		Now:  func() time.Time { return now },
	})
	if err != nil {
		return nil, badRequest(oautherr.CodeInvalidRequest, "request object verification failed").WithCause(err)
	}
	if iss := ro.String("iss"); iss != "" && iss != client.ClientID {
		return nil, badRequest(oautherr.CodeInvalidRequest, "request object iss must be the client_id")
	}
	if ro.Has(ParamRequest) {
		return nil, badRequest(oautherr.CodeInvalidRequest, "request object must not contain request")
	}
	return ro, nil
}
