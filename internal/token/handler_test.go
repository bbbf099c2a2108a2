package token

import (
	"context"
	"encoding/base64"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/idpserver/internal/clientauth"
	"github.com/dropDatabas3/idpserver/internal/configuration"
	"github.com/dropDatabas3/idpserver/internal/domain/repository"
	"github.com/dropDatabas3/idpserver/internal/domain/types"
	"github.com/dropDatabas3/idpserver/internal/grant"
	jwtx "github.com/dropDatabas3/idpserver/internal/jwt"
	"github.com/dropDatabas3/idpserver/internal/oautherr"
	"github.com/dropDatabas3/idpserver/internal/rate"
	"github.com/dropDatabas3/idpserver/internal/security/password"
	"github.com/dropDatabas3/idpserver/internal/security/pkce"
	tokens "github.com/dropDatabas3/idpserver/internal/security/token"
	"github.com/dropDatabas3/idpserver/internal/store/memory"
	"github.com/dropDatabas3/idpserver/internal/testutil"
)

const verifier = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"

type env struct {
	dal     *memory.DAL
	issuer  *jwtx.Issuer
	handler Handler
}

func newEnv(t *testing.T, limiter rate.MultiLimiter) *env {
	t.Helper()
	dal := memory.New()
	push := testutil.ClientConfig("push-app")
	push.BackchannelTokenDeliveryMode = "push"
	testutil.Seed(t, dal, testutil.ServerConfig(), testutil.ClientConfig("app"), testutil.ClientConfig("other"), push)

	issuer := jwtx.NewIssuer(testutil.SigningKey(t, "idp-1"))
	d := Deps{
		DAL:           dal,
		Config:        configuration.NewService(dal, nil, 0),
		Authenticator: clientauth.New(),
		Minter:        NewMinter(dal, issuer),
		Ledger:        grant.New(dal),
		Limiter:       limiter,
	}
	return &env{dal: dal, issuer: issuer, handler: NewHandler(d)}
}

func basic(clientID string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(clientID+":s3cret"))
}

func (e *env) call(clientID string, form url.Values) (Response, error) {
	return e.handler.Handle(context.Background(), Request{
		TenantID:      testutil.Tenant,
		Form:          form,
		Authorization: basic(clientID),
	})
}

func userGrant(clientID string, gt types.GrantType, scopes ...string) repository.AuthorizationGrant {
	s := types.NewScopes(scopes...)
	return repository.AuthorizationGrant{
		TenantID:       testutil.Tenant,
		User:           testutil.User(),
		Authentication: testutil.Authentication(time.Now()),
		ClientID:       clientID,
		GrantType:      gt,
		Scopes:         s,
		Claims:         repository.NewGrantedClaims(s, types.ResponseTypeCode, testutil.ServerConfig(), repository.RequestedClaims{}),
	}
}

// seedCode registra un request y su code como lo haría el authorization endpoint.
func (e *env) seedCode(t *testing.T, profile types.Profile, withPKCE bool) string {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	req := repository.AuthorizationRequest{
		ID:           "req-" + string(profile),
		TenantID:     testutil.Tenant,
		Profile:      profile,
		Scopes:       types.NewScopes("openid", "profile", "email"),
		ResponseType: types.ResponseTypeCode,
		ClientID:     "app",
		RedirectURI:  testutil.RedirectURI,
		Nonce:        "n-1",
		CreatedAt:    now,
		ExpiresAt:    now.Add(time.Hour),
	}
	if withPKCE {
		req.PKCE = &repository.PKCEChallenge{Challenge: pkce.S256(verifier), Method: types.CodeChallengeS256}
	}
	require.NoError(t, e.dal.AuthorizationRequests().Register(ctx, testutil.Tenant, req))

	code, err := tokens.NewIdentifier()
	require.NoError(t, err)
	require.NoError(t, e.dal.CodeGrants().Register(ctx, testutil.Tenant, repository.AuthorizationCodeGrant{
		Code:                   code,
		TenantID:               testutil.Tenant,
		AuthorizationRequestID: req.ID,
		Grant:                  userGrant("app", types.GrantTypeAuthorizationCode, "openid", "profile", "email"),
		RedirectURI:            testutil.RedirectURI,
		ExpiresAt:              now.Add(10 * time.Minute),
		CreatedAt:              now,
	}))
	return code
}

func codeForm(code string) url.Values {
	return url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {testutil.RedirectURI},
		"code_verifier": {verifier},
	}
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code, oautherr.From(err).Code)
}

func TestAuthorizationCode(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	code := e.seedCode(t, types.ProfileOIDC, true)

	resp, err := e.call("app", codeForm(code))
	require.NoError(t, err)
	require.Equal(t, TokenTypeBearer, resp.TokenType)
	require.NotEmpty(t, resp.AccessToken)
	require.NotEmpty(t, resp.RefreshToken)
	require.Equal(t, int64(3600), resp.ExpiresIn)
	require.Equal(t, "openid profile email", resp.Scope)

	claims, err := e.issuer.ParseOwn(resp.IDToken, testutil.Issuer)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims["sub"])
	require.Equal(t, "n-1", claims["nonce"])
	require.Equal(t, "alice@example.com", claims["email"])

	stored, err := e.dal.Tokens().FindByAccessTokenHash(ctx, testutil.Tenant, tokens.SHA256Base64URL(resp.AccessToken))
	require.NoError(t, err)
	require.True(t, stored.Exists())

	req, err := e.dal.AuthorizationRequests().Find(ctx, testutil.Tenant, "req-OIDC")
	require.NoError(t, err)
	require.False(t, req.Exists())

	_, err = e.call("app", codeForm(code))
	requireCode(t, err, oautherr.CodeInvalidGrant)
}

func TestAuthorizationCode_Rejections(t *testing.T) {
	e := newEnv(t, nil)

	code := e.seedCode(t, types.ProfileOIDC, true)
	form := codeForm(code)
	form.Set("code_verifier", "x"+verifier[1:])
	_, err := e.call("app", form)
	requireCode(t, err, oautherr.CodeInvalidGrant)

	_, err = e.call("other", codeForm(code))
	requireCode(t, err, oautherr.CodeInvalidGrant)

	form = codeForm(code)
	form.Set("redirect_uri", "https://rp.example/other")
	_, err = e.call("app", form)
	requireCode(t, err, oautherr.CodeInvalidGrant)

	form = codeForm(code)
	form.Del("code_verifier")
	_, err = e.call("app", form)
	requireCode(t, err, oautherr.CodeInvalidRequest)

	// El code sigue canjeable: ningún rechazo lo consumió.
	_, err = e.call("app", codeForm(code))
	require.NoError(t, err)
}

func TestAuthorizationCode_FAPIRequiresStrongClientAuth(t *testing.T) {
	e := newEnv(t, nil)
	code := e.seedCode(t, types.ProfileFAPIBaseline, false)
	_, err := e.call("app", codeForm(code))
	requireCode(t, err, oautherr.CodeUnauthorizedClient)
}

func TestAuthorizationCode_ConcurrentRedemption(t *testing.T) {
	e := newEnv(t, nil)
	code := e.seedCode(t, types.ProfileOIDC, true)

	const n = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, lost int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.call("app", codeForm(code))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else if oautherr.From(err).Code == oautherr.CodeInvalidGrant {
				lost++
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, ok)
	require.Equal(t, n-1, lost)
}

func TestClientAuthentication(t *testing.T) {
	e := newEnv(t, nil)
	form := url.Values{"grant_type": {"client_credentials"}, "scope": {"read"}}

	_, err := e.handler.Handle(context.Background(), Request{
		TenantID:      testutil.Tenant,
		Form:          form,
		Authorization: "Basic " + base64.StdEncoding.EncodeToString([]byte("app:wrong")),
	})
	require.Error(t, err)
	require.Equal(t, oautherr.KindUnauthorized, oautherr.From(err).Kind)

	_, err = e.call("ghost", form)
	require.Equal(t, oautherr.KindUnauthorized, oautherr.From(err).Kind)

	_, err = e.call("app", url.Values{"grant_type": {"urn:ietf:params:oauth:grant-type:device_code"}})
	requireCode(t, err, oautherr.CodeUnsupportedGrantType)

	_, err = e.call("app", url.Values{"grant_type": {"implicit"}})
	requireCode(t, err, oautherr.CodeUnsupportedGrantType)
}

func TestRefreshTokenRotation(t *testing.T) {
	e := newEnv(t, nil)
	first, err := e.call("app", codeForm(e.seedCode(t, types.ProfileOIDC, true)))
	require.NoError(t, err)

	form := url.Values{"grant_type": {"refresh_token"}, "refresh_token": {first.RefreshToken}, "scope": {"openid email"}}
	second, err := e.call("app", form)
	require.NoError(t, err)
	require.NotEqual(t, first.RefreshToken, second.RefreshToken)
	require.Equal(t, "openid email", second.Scope)
	require.NotEmpty(t, second.IDToken)

	// El refresh token rotado deja de servir.
	_, err = e.call("app", form)
	requireCode(t, err, oautherr.CodeInvalidGrant)

	_, err = e.call("app", url.Values{"grant_type": {"refresh_token"}, "refresh_token": {second.RefreshToken}, "scope": {"openid write"}})
	requireCode(t, err, oautherr.CodeInvalidScope)

	_, err = e.call("other", url.Values{"grant_type": {"refresh_token"}, "refresh_token": {second.RefreshToken}})
	requireCode(t, err, oautherr.CodeInvalidGrant)
}

func TestRefreshToken_ConcurrentRotation(t *testing.T) {
	e := newEnv(t, nil)
	first, err := e.call("app", codeForm(e.seedCode(t, types.ProfileOIDC, true)))
	require.NoError(t, err)
	form := url.Values{"grant_type": {"refresh_token"}, "refresh_token": {first.RefreshToken}}

	const n = 6
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, lost int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.call("app", form)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else if oautherr.From(err).Code == oautherr.CodeInvalidGrant {
				lost++
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, ok)
	require.Equal(t, n-1, lost)
}

func TestClientCredentials(t *testing.T) {
	e := newEnv(t, nil)

	resp, err := e.call("app", url.Values{"grant_type": {"client_credentials"}, "scope": {"read write unknown openid"}})
	require.NoError(t, err)
	require.Equal(t, "read write", resp.Scope)
	require.Empty(t, resp.RefreshToken)
	require.Empty(t, resp.IDToken)

	_, err = e.call("app", url.Values{"grant_type": {"client_credentials"}, "scope": {"unknown"}})
	requireCode(t, err, oautherr.CodeInvalidScope)
}

func TestPasswordGrant(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	u := testutil.User()
	hash, err := password.Hash(password.Params{Memory: 1024, Time: 1, Parallelism: 1, KeyLen: 32}, "correct horse")
	require.NoError(t, err)
	u.PasswordHash = hash
	require.NoError(t, e.dal.Users().Put(ctx, testutil.Tenant, u))

	resp, err := e.call("app", url.Values{
		"grant_type": {"password"}, "scope": {"openid email"}, "username": {"alice"}, "password": {"correct horse"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.IDToken)

	granted, err := e.dal.Granted().Find(ctx, testutil.Tenant, "app", "user-1")
	require.NoError(t, err)
	require.True(t, granted.IsGrantedScopes(types.NewScopes("openid", "email")))

	_, err = e.call("app", url.Values{
		"grant_type": {"password"}, "scope": {"openid"}, "username": {"alice"}, "password": {"wrong"},
	})
	requireCode(t, err, oautherr.CodeInvalidGrant)

	_, err = e.call("app", url.Values{
		"grant_type": {"password"}, "scope": {"openid"}, "username": {"bob"}, "password": {"correct horse"},
	})
	requireCode(t, err, oautherr.CodeInvalidGrant)
}

func (e *env) seedCiba(t *testing.T, clientID, authReqID string, mode types.DeliveryMode, expiresAt time.Time) {
	t.Helper()
	require.NoError(t, e.dal.CibaGrants().Register(context.Background(), testutil.Tenant, repository.CibaGrant{
		AuthReqID:                          authReqID,
		TenantID:                           testutil.Tenant,
		BackchannelAuthenticationRequestID: "bc-" + authReqID,
		Grant:                              userGrant(clientID, types.GrantTypeCIBA, "openid", "email"),
		Status:                             types.CibaStatusPending,
		DeliveryMode:                       mode,
		Interval:                           5,
		ExpiresAt:                          expiresAt,
		CreatedAt:                          time.Now().UTC(),
	}))
}

func cibaForm(id string) url.Values {
	return url.Values{"grant_type": {string(types.GrantTypeCIBA)}, "auth_req_id": {id}}
}

func TestCibaPoll(t *testing.T) {
	e := newEnv(t, rate.NewMemoryLimiter())
	ctx := context.Background()
	e.seedCiba(t, "app", "ar-1", types.DeliveryModePoll, time.Now().Add(time.Minute))

	_, err := e.call("app", cibaForm("ar-1"))
	requireCode(t, err, oautherr.CodeAuthorizationPending)
	_, err = e.call("app", cibaForm("ar-1"))
	requireCode(t, err, oautherr.CodeSlowDown)

	_, err = e.call("other", cibaForm("ar-1"))
	requireCode(t, err, oautherr.CodeInvalidGrant)

	g := userGrant("app", types.GrantTypeCIBA, "openid", "email")
	require.NoError(t, e.dal.CibaGrants().Transition(ctx, testutil.Tenant, "ar-1", types.CibaStatusPending, types.CibaStatusAuthorized, g))

	resp, err := e.call("app", cibaForm("ar-1"))
	require.NoError(t, err)
	require.NotEmpty(t, resp.IDToken)

	_, err = e.call("app", cibaForm("ar-1"))
	requireCode(t, err, oautherr.CodeInvalidGrant)
}

func TestCibaPoll_Order(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	e.seedCiba(t, "push-app", "ar-push", types.DeliveryModePush, time.Now().Add(time.Minute))
	_, err := e.call("push-app", cibaForm("ar-push"))
	requireCode(t, err, oautherr.CodeUnauthorizedClient)

	e.seedCiba(t, "app", "ar-old", types.DeliveryModePoll, time.Now().Add(-time.Second))
	_, err = e.call("app", cibaForm("ar-old"))
	requireCode(t, err, oautherr.CodeExpiredToken)

	e.seedCiba(t, "app", "ar-denied", types.DeliveryModePoll, time.Now().Add(time.Minute))
	g := userGrant("app", types.GrantTypeCIBA, "openid")
	require.NoError(t, e.dal.CibaGrants().Transition(ctx, testutil.Tenant, "ar-denied", types.CibaStatusPending, types.CibaStatusAccessDenied, g))
	_, err = e.call("app", cibaForm("ar-denied"))
	requireCode(t, err, oautherr.CodeAccessDenied)

	_, err = e.call("app", cibaForm("ar-missing"))
	requireCode(t, err, oautherr.CodeInvalidGrant)
}

func TestCibaPoll_ExpiredRegardlessOfStatus(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	for _, status := range []types.CibaStatus{types.CibaStatusPending, types.CibaStatusAuthorized, types.CibaStatusAccessDenied} {
		t.Run(string(status), func(t *testing.T) {
			id := "ar-expired-" + string(status)
			e.seedCiba(t, "app", id, types.DeliveryModePoll, time.Now().Add(-time.Second))
			if status != types.CibaStatusPending {
				g := userGrant("app", types.GrantTypeCIBA, "openid")
				require.NoError(t, e.dal.CibaGrants().Transition(ctx, testutil.Tenant, id, types.CibaStatusPending, status, g))
			}
			_, err := e.call("app", cibaForm(id))
			requireCode(t, err, oautherr.CodeExpiredToken)
		})
	}
}
