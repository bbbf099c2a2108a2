package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/dropDatabas3/idpserver/internal/cache"
	"github.com/dropDatabas3/idpserver/internal/ciba"
	"github.com/dropDatabas3/idpserver/internal/clientauth"
	"github.com/dropDatabas3/idpserver/internal/configuration"
	"github.com/dropDatabas3/idpserver/internal/grant"
	jwtx "github.com/dropDatabas3/idpserver/internal/jwt"
	"github.com/dropDatabas3/idpserver/internal/notification"
	"github.com/dropDatabas3/idpserver/internal/oauth"
	"github.com/dropDatabas3/idpserver/internal/session"
	"github.com/dropDatabas3/idpserver/internal/store/memory"
	"github.com/dropDatabas3/idpserver/internal/testutil"
	"github.com/dropDatabas3/idpserver/internal/token"
)

// pinged registra las notificaciones recibidas por el client.
type pinged struct {
	mu     sync.Mutex
	bodies []map[string]any
	bearer []string
}

func (p *pinged) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	p.mu.Lock()
	p.bodies = append(p.bodies, body)
	p.bearer = append(p.bearer, r.Header.Get("Authorization"))
	p.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

type testServer struct {
	srv    *httptest.Server
	client *http.Client
	ping   *pinged
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ping := &pinged{}
	rp := httptest.NewServer(ping)
	t.Cleanup(rp.Close)

	dal := memory.New()
	cc := cache.NewMemory("test")
	pingClient := testutil.ClientConfig("ping-app")
	pingClient.BackchannelTokenDeliveryMode = "ping"
	pingClient.BackchannelClientNotificationEndpoint = rp.URL
	testutil.Seed(t, dal, testutil.ServerConfig(), testutil.ClientConfig("app"), pingClient)

	key := testutil.SigningKey(t, "idp-1")
	issuer := jwtx.NewIssuer(key)
	cfg := configuration.NewService(dal, nil, 0)
	authn := clientauth.New()
	minter := token.NewMinter(dal, issuer)
	ledger := grant.New(dal)
	responder := oauth.NewResponder(issuer)

	od := oauth.Deps{
		DAL:       dal,
		Config:    cfg,
		Sessions:  session.NewStore(cc),
		Ledger:    ledger,
		Minter:    minter,
		Responder: responder,
	}
	gateway := notification.New(notification.Config{Timeout: 2 * time.Second, MaxAttempts: 1, InitialInterval: time.Millisecond}, rp.Client())
	cd := ciba.Deps{
		DAL:           dal,
		Config:        cfg,
		Authenticator: authn,
		Issuer:        issuer,
		Notifier:      ciba.NewNotificationService(dal, minter, ledger, gateway),
	}
	metricsHandler, err := RegisterMetrics(MetricsConfig{Registry: prometheus.NewRegistry(), Cache: cc})
	require.NoError(t, err)

	h := NewRouter(Deps{
		OAuthRequest:   oauth.NewRequestHandler(od),
		OAuthAuthorize: oauth.NewAuthorizeHandler(od),
		OAuthDeny:      oauth.NewDenyHandler(od),
		Responder:      responder,
		Token: token.NewHandler(token.Deps{
			DAL:           dal,
			Config:        cfg,
			Authenticator: authn,
			Minter:        minter,
			Ledger:        ledger,
		}),
		Backchannel:          ciba.NewRequestHandler(cd),
		BackchannelAuthorize: ciba.NewAuthorizeHandler(cd),
		BackchannelDeny:      ciba.NewDenyHandler(cd),
		Config:               cfg,
		Keys:                 key,
		Metrics:              metricsHandler,
	})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	client := srv.Client()
	client.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	return &testServer{srv: srv, client: client, ping: ping}
}

func (s *testServer) url(path string) string { return s.srv.URL + "/" + testutil.Tenant + "/v1" + path }

func (s *testServer) postJSON(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := s.client.Post(s.url(path), "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (s *testServer) postForm(t *testing.T, path, clientID string, form url.Values) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, s.url(path), strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if clientID != "" {
		req.SetBasicAuth(clientID, "s3cret")
	}
	resp, err := s.client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func decision() map[string]any {
	return map[string]any{
		"user":           testutil.User(),
		"authentication": testutil.Authentication(time.Now()),
	}
}

func (s *testServer) oauth2Config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "app",
		ClientSecret: "s3cret",
		RedirectURL:  testutil.RedirectURI,
		Scopes:       []string{"openid", "profile"},
		Endpoint: oauth2.Endpoint{
			AuthURL:   s.url("/authorizations"),
			TokenURL:  s.url("/tokens"),
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
}

func TestCodeFlowWithPKCE(t *testing.T) {
	s := newTestServer(t)
	conf := s.oauth2Config()
	verifier := oauth2.GenerateVerifier()

	resp, err := s.client.Get(conf.AuthCodeURL("st-1", oauth2.S256ChallengeOption(verifier)))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	view := decode[authorizationView](t, resp)
	require.Equal(t, oauth.StatusOK, view.Status)
	require.Equal(t, "app", view.ClientID)
	require.False(t, view.SessionEnabled)

	authz := s.postJSON(t, "/authorizations/"+view.ID+"/authorize", decision())
	require.Equal(t, http.StatusOK, authz.StatusCode)
	redirect := decode[redirectView](t, authz)
	u, err := url.Parse(redirect.RedirectURI)
	require.NoError(t, err)
	require.Equal(t, "st-1", u.Query().Get("state"))
	code := u.Query().Get("code")
	require.NotEmpty(t, code)

	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, s.client)
	tok, err := conf.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	require.NoError(t, err)
	require.NotEmpty(t, tok.AccessToken)
	require.Equal(t, "Bearer", tok.TokenType)
	require.NotEmpty(t, tok.Extra("id_token"))

	// El code es de un solo uso.
	_, err = conf.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	var rerr *oauth2.RetrieveError
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, "invalid_grant", rerr.ErrorCode)

	// Con sesión y consentimiento, prompt=none redirige directo con un code nuevo.
	resp, err = s.client.Get(conf.AuthCodeURL("st-2",
		oauth2.S256ChallengeOption(oauth2.GenerateVerifier()),
		oauth2.SetAuthURLParam("prompt", "none")))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)
	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "st-2", loc.Query().Get("state"))
	require.NotEmpty(t, loc.Query().Get("code"))
}

func TestAuthorizationErrors(t *testing.T) {
	s := newTestServer(t)
	conf := s.oauth2Config()

	t.Run("prompt none without session redirects", func(t *testing.T) {
		resp, err := s.client.Get(conf.AuthCodeURL("st-1",
			oauth2.S256ChallengeOption(oauth2.GenerateVerifier()),
			oauth2.SetAuthURLParam("prompt", "none")))
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusFound, resp.StatusCode)
		loc, err := url.Parse(resp.Header.Get("Location"))
		require.NoError(t, err)
		require.Equal(t, "rp.example", loc.Host)
		require.Equal(t, "login_required", loc.Query().Get("error"))
	})
	t.Run("form_post renders an auto-submit form", func(t *testing.T) {
		resp, err := s.client.Get(conf.AuthCodeURL("st-1",
			oauth2.S256ChallengeOption(oauth2.GenerateVerifier()),
			oauth2.SetAuthURLParam("prompt", "none"),
			oauth2.SetAuthURLParam("response_mode", "form_post")))
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Contains(t, resp.Header.Get("Content-Type"), "text/html")
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.Contains(t, string(body), `action="https://rp.example/cb"`)
		require.Contains(t, string(body), `name="error" value="login_required"`)
	})
	t.Run("unregistered redirect is a 400 body", func(t *testing.T) {
		c := s.oauth2Config()
		c.RedirectURL = "https://evil.example/cb"
		resp, err := s.client.Get(c.AuthCodeURL("st-1"))
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.Empty(t, resp.Header.Get("Location"))
	})
	t.Run("unknown tenant is a 400", func(t *testing.T) {
		resp, err := s.client.Get(s.srv.URL + "/ghost/v1/authorizations?client_id=app&response_type=code")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
	t.Run("deny returns the error redirect", func(t *testing.T) {
		resp, err := s.client.Get(conf.AuthCodeURL("st-9", oauth2.S256ChallengeOption(oauth2.GenerateVerifier())))
		require.NoError(t, err)
		defer resp.Body.Close()
		view := decode[authorizationView](t, resp)

		deny := s.postJSON(t, "/authorizations/"+view.ID+"/deny", map[string]string{"error": "access_denied"})
		require.Equal(t, http.StatusOK, deny.StatusCode)
		u, err := url.Parse(decode[redirectView](t, deny).RedirectURI)
		require.NoError(t, err)
		require.Equal(t, "access_denied", u.Query().Get("error"))
		require.Equal(t, "st-9", u.Query().Get("state"))
	})
	t.Run("authorize requires a JSON body", func(t *testing.T) {
		resp, err := s.client.Post(s.url("/authorizations/x/authorize"), "text/plain", strings.NewReader("{}"))
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestTokenEndpointErrors(t *testing.T) {
	s := newTestServer(t)

	t.Run("bad client secret", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodPost, s.url("/tokens"), strings.NewReader("grant_type=client_credentials"))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.SetBasicAuth("app", "wrong")
		resp, err := s.client.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.NotEmpty(t, resp.Header.Get("WWW-Authenticate"))
		require.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
		require.Equal(t, "invalid_client", decode[apiError](t, resp).Error)
	})
	t.Run("json body is rejected", func(t *testing.T) {
		resp, err := s.client.Post(s.url("/tokens"), "application/json", strings.NewReader(`{"grant_type":"client_credentials"}`))
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
	t.Run("client credentials", func(t *testing.T) {
		resp := s.postForm(t, "/tokens", "app", url.Values{"grant_type": {"client_credentials"}, "scope": {"read"}})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		tr := decode[token.Response](t, resp)
		require.NotEmpty(t, tr.AccessToken)
		require.Empty(t, tr.IDToken)
	})
}

func TestBackchannelPingOverHTTP(t *testing.T) {
	s := newTestServer(t)

	resp := s.postForm(t, "/backchannel/authentications", "ping-app", url.Values{
		"scope":                     {"openid profile"},
		"login_hint":                {"email:alice@example.com"},
		"client_notification_token": {"cnt-1"},
		"binding_message":           {"W4SCT"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	accepted := decode[ciba.Response](t, resp)
	require.NotEmpty(t, accepted.AuthReqID)

	pending := s.postForm(t, "/tokens", "ping-app", url.Values{
		"grant_type":  {"urn:openid:params:grant-type:ciba"},
		"auth_req_id": {accepted.AuthReqID},
	})
	require.Equal(t, http.StatusBadRequest, pending.StatusCode)
	require.Equal(t, "authorization_pending", decode[apiError](t, pending).Error)

	authz := s.postJSON(t, "/backchannel/authentications/"+accepted.AuthReqID+"/authorize", decision())
	require.Equal(t, http.StatusOK, authz.StatusCode)
	require.Equal(t, "authorized", string(decode[ciba.DecisionResponse](t, authz).Status))

	s.ping.mu.Lock()
	require.Len(t, s.ping.bodies, 1)
	require.Equal(t, accepted.AuthReqID, s.ping.bodies[0]["auth_req_id"])
	require.Equal(t, "Bearer cnt-1", s.ping.bearer[0])
	s.ping.mu.Unlock()

	tok := s.postForm(t, "/tokens", "ping-app", url.Values{
		"grant_type":  {"urn:openid:params:grant-type:ciba"},
		"auth_req_id": {accepted.AuthReqID},
	})
	require.Equal(t, http.StatusOK, tok.StatusCode)
	require.NotEmpty(t, decode[token.Response](t, tok).IDToken)
}

func TestBackchannelErrorStatus(t *testing.T) {
	s := newTestServer(t)

	t.Run("unknown client is 401", func(t *testing.T) {
		resp := s.postForm(t, "/backchannel/authentications", "ghost", url.Values{"scope": {"openid"}, "login_hint": {"alice"}})
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.Equal(t, "invalid_client", decode[apiError](t, resp).Error)
	})
	t.Run("missing hint is 400", func(t *testing.T) {
		resp := s.postForm(t, "/backchannel/authentications", "ping-app", url.Values{
			"scope":                     {"openid"},
			"client_notification_token": {"cnt-1"},
		})
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
	t.Run("unknown auth_req_id", func(t *testing.T) {
		resp := s.postJSON(t, "/backchannel/authentications/missing/deny", decision())
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.Equal(t, "invalid_request", decode[apiError](t, resp).Error)
	})
}

func TestOperationalRoutes(t *testing.T) {
	s := newTestServer(t)

	resp, err := s.client.Get(s.srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get(RequestIDHeader))
	require.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))

	jwks, err := s.client.Get(s.url("/jwks"))
	require.NoError(t, err)
	defer jwks.Body.Close()
	require.Equal(t, http.StatusOK, jwks.StatusCode)
	set := decode[struct {
		Keys []map[string]any `json:"keys"`
	}](t, jwks)
	require.Len(t, set.Keys, 1)
	require.Equal(t, "idp-1", set.Keys[0]["kid"])
	require.NotContains(t, set.Keys[0], "d")

	m, err := s.client.Get(s.srv.URL + "/metrics")
	require.NoError(t, err)
	defer m.Body.Close()
	body, err := io.ReadAll(m.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `route="/{tenant}/v1/jwks"`)
	require.Contains(t, string(body), `idp_cache_keys{driver="memory"}`)
}

func TestRequestIDPropagation(t *testing.T) {
	s := newTestServer(t)
	req, err := http.NewRequest(http.MethodGet, s.srv.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set(RequestIDHeader, "rid-123")
	resp, err := s.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "rid-123", resp.Header.Get(RequestIDHeader))
}

func TestRecover(t *testing.T) {
	h := WithRequestID(WithRecover(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") })))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var body apiError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "server_error", body.Error)
	require.NotEmpty(t, body.RequestID)
}

func TestEndpointURL(t *testing.T) {
	c := &controller{}
	r := httptest.NewRequest(http.MethodPost, "http://idp.local/acme/v1/tokens", nil)
	require.Equal(t, "http://idp.local/acme/v1/tokens", c.endpointURL(r))
	r.Header.Set("X-Forwarded-Proto", "https")
	require.Equal(t, "https://idp.local/acme/v1/tokens", c.endpointURL(r))

	c.d.BaseURL = "https://idp.example/"
	require.Equal(t, "https://idp.example/acme/v1/tokens", c.endpointURL(r))
}
