package oauth

import (
	"context"
	"net/url"
	"testing"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/idpserver/internal/cache"
	"github.com/dropDatabas3/idpserver/internal/configuration"
	"github.com/dropDatabas3/idpserver/internal/domain/repository"
	"github.com/dropDatabas3/idpserver/internal/domain/types"
	"github.com/dropDatabas3/idpserver/internal/grant"
	jwtx "github.com/dropDatabas3/idpserver/internal/jwt"
	"github.com/dropDatabas3/idpserver/internal/oautherr"
	"github.com/dropDatabas3/idpserver/internal/security/pkce"
	tokens "github.com/dropDatabas3/idpserver/internal/security/token"
	"github.com/dropDatabas3/idpserver/internal/session"
	"github.com/dropDatabas3/idpserver/internal/store/memory"
	"github.com/dropDatabas3/idpserver/internal/testutil"
	"github.com/dropDatabas3/idpserver/internal/token"
)

type env struct {
	dal       *memory.DAL
	issuer    *jwtx.Issuer
	sessions  *session.Store
	request   RequestHandler
	authorize AuthorizeHandler
	deny      DenyHandler
}

func newEnv(t *testing.T, clients ...repository.ClientConfiguration) *env {
	t.Helper()
	dal := memory.New()
	if len(clients) == 0 {
		clients = []repository.ClientConfiguration{testutil.ClientConfig("app")}
	}
	testutil.Seed(t, dal, testutil.ServerConfig(), clients...)

	issuer := jwtx.NewIssuer(testutil.SigningKey(t, "idp-1"))
	sessions := session.NewStore(cache.NewMemory("test:"))
	d := Deps{
		DAL:       dal,
		Config:    configuration.NewService(dal, nil, 0),
		Sessions:  sessions,
		Ledger:    grant.New(dal),
		Minter:    token.NewMinter(dal, issuer),
		Responder: NewResponder(issuer),
	}
	return &env{
		dal:       dal,
		issuer:    issuer,
		sessions:  sessions,
		request:   NewRequestHandler(d),
		authorize: NewAuthorizeHandler(d),
		deny:      NewDenyHandler(d),
	}
}

func codeParams() url.Values {
	return url.Values{
		"client_id":             {"app"},
		"response_type":         {"code"},
		"scope":                 {"openid profile email"},
		"redirect_uri":          {testutil.RedirectURI},
		"state":                 {"st-1"},
		"code_challenge":        {pkce.S256("dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk")},
		"code_challenge_method": {"S256"},
	}
}

func (e *env) authorizeAs(t *testing.T, id string, denied ...string) Response {
	t.Helper()
	resp, err := e.authorize.Handle(context.Background(), AuthorizeRequest{
		TenantID:               testutil.Tenant,
		AuthorizationRequestID: id,
		User:                   testutil.User(),
		Authentication:         testutil.Authentication(time.Now()),
		DeniedScopes:           types.NewScopes(denied...),
	})
	require.NoError(t, err)
	return resp
}

func parseLocation(t *testing.T, loc string) (*url.URL, url.Values) {
	t.Helper()
	u, err := url.Parse(loc)
	require.NoError(t, err)
	if u.Fragment != "" {
		v, err := url.ParseQuery(u.Fragment)
		require.NoError(t, err)
		return u, v
	}
	return u, u.Query()
}

func TestCodeFlow(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	res, err := e.request.Handle(ctx, testutil.Tenant, codeParams())
	require.NoError(t, err)
	require.Equal(t, StatusOK, res.Status)
	require.Equal(t, types.ProfileOIDC, res.Request.Profile)
	require.False(t, res.SessionEnabled())

	stored, err := e.dal.AuthorizationRequests().Find(ctx, testutil.Tenant, res.Request.ID)
	require.NoError(t, err)
	require.True(t, stored.Exists())

	resp := e.authorizeAs(t, res.Request.ID)
	require.Equal(t, types.ResponseModeQuery, resp.Mode)
	u, q := parseLocation(t, resp.Location())
	require.Equal(t, "rp.example", u.Host)
	require.Equal(t, "st-1", q.Get("state"))
	require.NotEmpty(t, q.Get("code"))

	cg, err := e.dal.CodeGrants().Find(ctx, testutil.Tenant, q.Get("code"))
	require.NoError(t, err)
	require.True(t, cg.Exists())
	require.Equal(t, res.Request.ID, cg.AuthorizationRequestID)
	require.Equal(t, types.GrantTypeAuthorizationCode, cg.Grant.GrantType)
	require.Contains(t, cg.Grant.Claims.UserInfo, "email")

	sess, err := e.sessions.Find(ctx, repository.SessionKey(testutil.Tenant, "app"))
	require.NoError(t, err)
	require.Equal(t, "user-1", sess.User.Sub)

	granted, err := e.dal.Granted().Find(ctx, testutil.Tenant, "app", "user-1")
	require.NoError(t, err)
	require.True(t, granted.IsGrantedScopes(types.NewScopes("openid", "profile", "email")))
}

func TestSessionAndPromptNone(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	t.Run("prompt none without session", func(t *testing.T) {
		v := codeParams()
		v.Set("prompt", "none")
		_, err := e.request.Handle(ctx, testutil.Tenant, v)
		oe := oautherr.From(err)
		require.Equal(t, oautherr.CodeLoginRequired, oe.Code)
		require.True(t, oe.IsRedirectable())
		require.Equal(t, "st-1", oe.Target.State)
	})

	res, err := e.request.Handle(ctx, testutil.Tenant, codeParams())
	require.NoError(t, err)
	e.authorizeAs(t, res.Request.ID)

	t.Run("live session", func(t *testing.T) {
		res, err := e.request.Handle(ctx, testutil.Tenant, codeParams())
		require.NoError(t, err)
		require.Equal(t, StatusOKSessionEnable, res.Status)
		require.True(t, res.Granted.Exists())
	})
	t.Run("prompt none with consent", func(t *testing.T) {
		v := codeParams()
		v.Set("prompt", "none")
		res, err := e.request.Handle(ctx, testutil.Tenant, v)
		require.NoError(t, err)
		require.True(t, res.IsNoInteraction())
	})
	t.Run("prompt none with new scope", func(t *testing.T) {
		v := codeParams()
		v.Set("prompt", "none")
		v.Set("scope", "openid profile email phone")
		_, err := e.request.Handle(ctx, testutil.Tenant, v)
		require.Equal(t, oautherr.CodeInteractionRequired, oautherr.From(err).Code)
	})
	t.Run("prompt create", func(t *testing.T) {
		v := codeParams()
		v.Set("prompt", "create")
		res, err := e.request.Handle(ctx, testutil.Tenant, v)
		require.NoError(t, err)
		require.Equal(t, StatusOKAccountCreation, res.Status)
	})
}

func TestSessionTTL(t *testing.T) {
	now := time.Now()
	server := testutil.ServerConfig()
	maxAge := func(v int64) *int64 { return &v }

	cases := []struct {
		name   string
		maxAge *int64
		authAt time.Time
		want   time.Duration
	}{
		{"no max_age", nil, now, server.SessionTTL()},
		{"deadline ahead", maxAge(600), now.Add(-time.Minute), 9 * time.Minute},
		{"deadline passed", maxAge(60), now.Add(-time.Hour), 0},
		{"max_age above server ttl", maxAge(1 << 40), now.Add(-time.Hour), server.SessionTTL()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := repository.AuthorizationRequest{MaxAge: tc.maxAge}
			got := sessionTTL(req, repository.Authentication{Time: tc.authAt}, server, now)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestAuthorize_StaleAuthenticationLeavesNoSession(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	v := codeParams()
	v.Set("max_age", "60")
	res, err := e.request.Handle(ctx, testutil.Tenant, v)
	require.NoError(t, err)

	_, err = e.authorize.Handle(ctx, AuthorizeRequest{
		TenantID:               testutil.Tenant,
		AuthorizationRequestID: res.Request.ID,
		User:                   testutil.User(),
		Authentication:         testutil.Authentication(time.Now().Add(-time.Hour)),
	})
	require.NoError(t, err)

	sess, err := e.sessions.Find(ctx, repository.SessionKey(testutil.Tenant, "app"))
	require.NoError(t, err)
	require.False(t, sess.Exists())
}

func TestRequestErrors(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	t.Run("unregistered redirect is not redirected", func(t *testing.T) {
		v := codeParams()
		v.Set("redirect_uri", "https://evil.example/cb")
		oe := oautherr.From(func() error { _, err := e.request.Handle(ctx, testutil.Tenant, v); return err }())
		require.Equal(t, oautherr.KindBadRequest, oe.Kind)
	})
	t.Run("duplicated parameter is redirected", func(t *testing.T) {
		v := codeParams()
		v.Add("scope", "openid")
		_, err := e.request.Handle(ctx, testutil.Tenant, v)
		oe := oautherr.From(err)
		require.Equal(t, oautherr.CodeInvalidRequest, oe.Code)
		require.True(t, oe.IsRedirectable())
	})
	t.Run("unknown client", func(t *testing.T) {
		v := codeParams()
		v.Set("client_id", "ghost")
		_, err := e.request.Handle(ctx, testutil.Tenant, v)
		oe := oautherr.From(err)
		require.Equal(t, oautherr.KindConfigNotFound, oe.Kind)
		require.Equal(t, 400, oe.HTTPStatus())
	})
	t.Run("unknown authorization request", func(t *testing.T) {
		_, err := e.authorize.Handle(ctx, AuthorizeRequest{
			TenantID:               testutil.Tenant,
			AuthorizationRequestID: "missing",
			User:                   testutil.User(),
			Authentication:         testutil.Authentication(time.Now()),
		})
		require.Equal(t, oautherr.CodeInvalidRequest, oautherr.From(err).Code)
	})
	t.Run("authorize without user", func(t *testing.T) {
		_, err := e.authorize.Handle(ctx, AuthorizeRequest{TenantID: testutil.Tenant, AuthorizationRequestID: "x"})
		require.Equal(t, oautherr.KindBadRequest, oautherr.From(err).Kind)
	})
}

func TestDeny(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res, err := e.request.Handle(ctx, testutil.Tenant, codeParams())
	require.NoError(t, err)

	resp, err := e.deny.Handle(ctx, DenyRequest{TenantID: testutil.Tenant, AuthorizationRequestID: res.Request.ID, Error: "bogus"})
	require.NoError(t, err)
	_, q := parseLocation(t, resp.Location())
	require.Equal(t, oautherr.CodeAccessDenied, q.Get("error"))
	require.Equal(t, "st-1", q.Get("state"))
	require.Empty(t, q.Get("code"))
}

func TestImplicitFlow(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	v := codeParams()
	v.Set("response_type", "id_token token")
	v.Set("nonce", "n-1")
	v.Del("code_challenge")
	v.Del("code_challenge_method")

	res, err := e.request.Handle(ctx, testutil.Tenant, v)
	require.NoError(t, err)
	resp := e.authorizeAs(t, res.Request.ID)
	require.Equal(t, types.ResponseModeFragment, resp.Mode)

	_, q := parseLocation(t, resp.Location())
	access := q.Get("access_token")
	require.NotEmpty(t, access)
	require.Equal(t, token.TokenTypeBearer, q.Get("token_type"))

	stored, err := e.dal.Tokens().FindByAccessTokenHash(ctx, testutil.Tenant, tokens.SHA256Base64URL(access))
	require.NoError(t, err)
	require.True(t, stored.Exists())
	require.False(t, stored.HasRefreshToken())

	claims, err := e.issuer.ParseOwn(q.Get("id_token"), testutil.Issuer)
	require.NoError(t, err)
	require.Equal(t, "n-1", claims["nonce"])
	require.Equal(t, jwtx.LeftHash(access), claims["at_hash"])

	// sin code no queda nada que canjear
	gone, err := e.dal.AuthorizationRequests().Find(ctx, testutil.Tenant, res.Request.ID)
	require.NoError(t, err)
	require.False(t, gone.Exists())
}

func TestDeniedScopes(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res, err := e.request.Handle(ctx, testutil.Tenant, codeParams())
	require.NoError(t, err)

	resp := e.authorizeAs(t, res.Request.ID, "email")
	_, q := parseLocation(t, resp.Location())
	cg, err := e.dal.CodeGrants().Find(ctx, testutil.Tenant, q.Get("code"))
	require.NoError(t, err)
	require.Equal(t, types.Scopes{"openid", "profile"}, cg.Grant.Scopes)
	require.NotContains(t, cg.Grant.Claims.UserInfo, "email")
}

func TestJWTResponseMode(t *testing.T) {
	e := newEnv(t)
	v := codeParams()
	v.Set("response_mode", "jwt")
	res, err := e.request.Handle(context.Background(), testutil.Tenant, v)
	require.NoError(t, err)

	resp := e.authorizeAs(t, res.Request.ID)
	require.Equal(t, types.ResponseModeQuery, resp.Mode)
	_, q := parseLocation(t, resp.Location())
	require.Empty(t, q.Get("code"))

	claims := jwtv5.MapClaims{}
	_, err = jwtv5.NewParser().ParseWithClaims(q.Get("response"), claims, func(*jwtv5.Token) (any, error) {
		return e.issuer.Key.Public(), nil
	})
	require.NoError(t, err)
	require.Equal(t, testutil.Issuer, claims["iss"])
	require.Equal(t, "app", claims["aud"])
	require.Equal(t, "st-1", claims["state"])
	require.NotEmpty(t, claims["code"])
}

func TestResponseLocation(t *testing.T) {
	r := Response{RedirectURI: "https://rp.example/cb?x=1", Mode: types.ResponseModeQuery, Params: url.Values{"code": {"c"}}}
	require.Equal(t, "https://rp.example/cb?code=c&x=1", r.Location())

	r.Mode = types.ResponseModeFragment
	require.Equal(t, "https://rp.example/cb?x=1#code=c", r.Location())

	r.Mode = types.ResponseModeFormPost
	require.True(t, r.IsFormPost())
	require.Equal(t, "https://rp.example/cb?x=1", r.Location())
}
