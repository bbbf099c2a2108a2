package token

import (
	"context"
	"fmt"
	"time"

	"github.com/dropDatabas3/idpserver/internal/domain/repository"
	"github.com/dropDatabas3/idpserver/internal/domain/types"
	"github.com/dropDatabas3/idpserver/internal/oautherr"
	"github.com/dropDatabas3/idpserver/internal/security/password"
	"github.com/dropDatabas3/idpserver/internal/security/pkce"
	tokens "github.com/dropDatabas3/idpserver/internal/security/token"
	"github.com/dropDatabas3/idpserver/internal/store"
)

// codeVerification es lo que queda cargado tras verificar un authorization_code.
type codeVerification struct {
	code repository.AuthorizationCodeGrant
	req  repository.AuthorizationRequest
}

// codeProfileVerifier aplica los chequeos propios de un perfil.
type codeProfileVerifier interface {
	verify(tc tokenContext, v codeVerification) error
}

type baseCodeVerifier struct{}

func (baseCodeVerifier) verify(tc tokenContext, v codeVerification) error {
	if !v.code.Grant.IsGrantedTo(tc.auth.ClientID) {
		return invalidGrant("authorization code was not issued to this client")
	}
	if v.code.IsExpired(tc.now) {
		return invalidGrant("authorization code expired")
	}
	if v.code.RedirectURI != "" && tc.form.Get("redirect_uri") != v.code.RedirectURI {
		return invalidGrant("redirect_uri does not match the authorization request")
	}
	return nil
}

// fapiCodeVerifier exige autenticación fuerte del client (FAPI 1.0 §5.2.2).
type fapiCodeVerifier struct {
	base baseCodeVerifier
}

func (f fapiCodeVerifier) verify(tc tokenContext, v codeVerification) error {
	if err := f.base.verify(tc, v); err != nil {
		return err
	}
	if tc.auth.Method.IsSharedSecret() || tc.auth.Method.IsPublic() {
		return oautherr.TokenBadRequest(oautherr.CodeUnauthorizedClient,
			"FAPI requires private_key_jwt or mutual TLS client authentication")
	}
	return nil
}

var codeProfileVerifiers = map[types.Profile]codeProfileVerifier{
	types.ProfileUndefined:    baseCodeVerifier{},
	types.ProfileOAuth2:       baseCodeVerifier{},
	types.ProfileOIDC:         baseCodeVerifier{},
	types.ProfileFAPIBaseline: fapiCodeVerifier{},
	types.ProfileFAPIAdvance:  fapiCodeVerifier{},
}

// verifyAuthorizationCode carga el code y su request, aplica el verifier del
// perfil del request y, si hubo code_challenge, PKCE.
func verifyAuthorizationCode(ctx context.Context, dal store.DataAccessLayer, tc tokenContext) (codeVerification, error) {
	raw := tc.form.Get("code")
	if raw == "" {
		return codeVerification{}, invalidRequest("code is required")
	}
	code, err := dal.CodeGrants().Find(ctx, tc.tenantID, raw)
	if err != nil {
		return codeVerification{}, fmt.Errorf("token: find code: %w", err)
	}
	if !code.Exists() {
		return codeVerification{}, invalidGrant("authorization code not found")
	}
	req, err := dal.AuthorizationRequests().Find(ctx, tc.tenantID, code.AuthorizationRequestID)
	if err != nil {
		return codeVerification{}, fmt.Errorf("token: find authorization request: %w", err)
	}
	if !req.Exists() {
		return codeVerification{}, invalidGrant("authorization request not found")
	}
	v := codeVerification{code: code, req: req}

	pv, ok := codeProfileVerifiers[req.Profile]
	if !ok {
		return codeVerification{}, oautherr.ServerError(fmt.Errorf("token: unknown profile %q", req.Profile))
	}
	if err := pv.verify(tc, v); err != nil {
		return codeVerification{}, err
	}
	if req.IsPKCE() {
		verifier := tc.form.Get("code_verifier")
		if verifier == "" {
			return codeVerification{}, invalidRequest("code_verifier is required")
		}
		if !pkce.Verify(req.PKCE.Method, req.PKCE.Challenge, verifier) {
			return codeVerification{}, invalidGrant("code_verifier does not match code_challenge")
		}
	}
	return v, nil
}

// verifyRefreshToken carga el token y valida pertenencia, vigencia y el
// scope opcional, que sólo puede reducir lo otorgado.
func verifyRefreshToken(ctx context.Context, dal store.DataAccessLayer, tc tokenContext) (repository.OAuthToken, types.Scopes, error) {
	raw := tc.form.Get("refresh_token")
	if raw == "" {
		return repository.OAuthToken{}, nil, invalidRequest("refresh_token is required")
	}
	t, err := dal.Tokens().FindByRefreshTokenHash(ctx, tc.tenantID, tokens.SHA256Base64URL(raw))
	if err != nil {
		return repository.OAuthToken{}, nil, fmt.Errorf("token: find refresh token: %w", err)
	}
	if !t.Exists() || !t.HasRefreshToken() {
		return repository.OAuthToken{}, nil, invalidGrant("refresh token not found")
	}
	if !t.Grant.IsGrantedTo(tc.auth.ClientID) {
		return repository.OAuthToken{}, nil, invalidGrant("refresh token was not issued to this client")
	}
	if t.IsRefreshTokenExpired(tc.now) {
		return repository.OAuthToken{}, nil, invalidGrant("refresh token expired")
	}
	scopes := t.Grant.Scopes
	if s := tc.form.Get("scope"); s != "" {
		requested := types.ParseScopes(s)
		if !t.Grant.Scopes.Covers(requested) {
			return repository.OAuthToken{}, nil, invalidScope("requested scope exceeds the original grant")
		}
		scopes = requested
	}
	return t, scopes, nil
}

// requestedScopes filtra el scope pedido por lo registrado para el client.
// Vacío tras filtrar es invalid_scope.
func requestedScopes(tc tokenContext) (types.Scopes, error) {
	scopes := tc.client.FilterScopes(types.ParseScopes(tc.form.Get("scope")))
	if len(scopes) == 0 {
		return nil, invalidScope("no registered scope was requested")
	}
	return scopes, nil
}

// verifyResourceOwner resuelve el usuario por username (o email) y verifica
// la contraseña. Usuario inexistente y contraseña errónea son indistinguibles.
func verifyResourceOwner(ctx context.Context, dal store.DataAccessLayer, tc tokenContext) (repository.User, error) {
	username, plain := tc.form.Get("username"), tc.form.Get("password")
	if username == "" || plain == "" {
		return repository.User{}, invalidRequest("username and password are required")
	}
	users := dal.Users()
	u, err := users.FindByUsername(ctx, tc.tenantID, username)
	if repository.IsNotFound(err) {
		u, err = users.FindByEmail(ctx, tc.tenantID, username)
	}
	if repository.IsNotFound(err) {
		return repository.User{}, invalidGrant("invalid resource owner credentials")
	}
	if err != nil {
		return repository.User{}, fmt.Errorf("token: find user: %w", err)
	}
	if u.PasswordHash == "" || !password.Verify(plain, u.PasswordHash) {
		return repository.User{}, invalidGrant("invalid resource owner credentials")
	}
	return *u, nil
}

// cibaPoll decide si un poll está demasiado cerca del anterior.
type cibaPoll func(ctx context.Context, g repository.CibaGrant) (tooSoon bool, err error)

// verifyCibaGrant aplica los chequeos del poll en orden estricto: pertenencia,
// modo push, expiración, pendiente (con slow_down) y denegado.
func verifyCibaGrant(ctx context.Context, dal store.DataAccessLayer, tc tokenContext, poll cibaPoll) (repository.CibaGrant, error) {
	id := tc.form.Get("auth_req_id")
	if id == "" {
		return repository.CibaGrant{}, invalidRequest("auth_req_id is required")
	}
	g, err := dal.CibaGrants().Find(ctx, tc.tenantID, id)
	if err != nil {
		return repository.CibaGrant{}, fmt.Errorf("token: find ciba grant: %w", err)
	}
	if !g.Exists() || !g.Grant.IsGrantedTo(tc.auth.ClientID) {
		return repository.CibaGrant{}, invalidGrant("auth_req_id not found")
	}
	if g.DeliveryMode == types.DeliveryModePush || tc.client.DeliveryMode() == types.DeliveryModePush {
		return repository.CibaGrant{}, oautherr.TokenBadRequest(oautherr.CodeUnauthorizedClient,
			"push clients cannot poll the token endpoint")
	}
	if g.IsExpired(tc.now) {
		return repository.CibaGrant{}, oautherr.TokenBadRequest(oautherr.CodeExpiredToken, "auth_req_id expired")
	}
	switch {
	case g.IsPending():
		if poll != nil {
			tooSoon, err := poll(ctx, g)
			if err != nil {
				return repository.CibaGrant{}, err
			}
			if tooSoon {
				return repository.CibaGrant{}, oautherr.TokenBadRequest(oautherr.CodeSlowDown, "polling too frequently")
			}
		}
		return repository.CibaGrant{}, oautherr.TokenBadRequest(oautherr.CodeAuthorizationPending, "authorization is pending")
	case g.IsAccessDenied():
		return repository.CibaGrant{}, oautherr.TokenBadRequest(oautherr.CodeAccessDenied, "the end-user denied the authorization request")
	case g.IsAuthorized():
		return g, nil
	}
	return repository.CibaGrant{}, oautherr.ServerError(fmt.Errorf("token: unexpected ciba status %q", g.Status))
}

func pollInterval(g repository.CibaGrant) time.Duration {
	if g.Interval <= 0 {
		return 5 * time.Second
	}
	return time.Duration(g.Interval) * time.Second
}
