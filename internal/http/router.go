// Package http expone los endpoints del authorization server sobre chi.
//
// Los controllers sólo traducen transporte: leen form/JSON, resuelven el
// certificado mTLS y delegan en los handlers de dominio. El mapeo de errores a
// status y body vive en errors.go.
package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/idpserver/internal/ciba"
	"github.com/dropDatabas3/idpserver/internal/configuration"
	"github.com/dropDatabas3/idpserver/internal/jose"
	"github.com/dropDatabas3/idpserver/internal/oauth"
	"github.com/dropDatabas3/idpserver/internal/token"
)

// Deps son los handlers y servicios que el router expone.
type Deps struct {
	OAuthRequest   oauth.RequestHandler
	OAuthAuthorize oauth.AuthorizeHandler
	OAuthDeny      oauth.DenyHandler
	Responder      *oauth.Responder

	Token token.Handler

	Backchannel          ciba.RequestHandler
	BackchannelAuthorize ciba.AuthorizeHandler
	BackchannelDeny      ciba.DenyHandler

	Config *configuration.Service
	Keys   *jose.SigningKey

	// BaseURL es la URL pública; vacío la deriva del request.
	BaseURL string
	// Metrics sirve /metrics; nil lo omite.
	Metrics http.Handler
	// Health verifica dependencias (ej: ping a la base); nil siempre responde ok.
	Health func(ctx context.Context) error
}

// NewRouter arma el mux con middlewares y rutas.
func NewRouter(d Deps) http.Handler {
	c := &controller{d: d}

	r := chi.NewRouter()
	r.Use(
		WithRequestID,
		WithTracing,
		WithLogging,
		WithRecover,
		WithMetrics,
		WithSecurityHeaders,
	)

	r.Get("/healthz", c.health)
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	r.Route("/{tenant}/v1", func(r chi.Router) {
		r.Get("/jwks", c.jwks)

		r.Route("/authorizations", func(r chi.Router) {
			r.Get("/", c.authorizationRequest)
			r.Post("/", c.authorizationRequest)
			r.Post("/{id}/authorize", c.authorizationAuthorize)
			r.Post("/{id}/deny", c.authorizationDeny)
		})

		r.With(WithNoStore).Post("/tokens", c.token)

		r.Route("/backchannel/authentications", func(r chi.Router) {
			r.Use(WithNoStore)
			r.Post("/", c.backchannelRequest)
			r.Post("/{auth_req_id}/authorize", c.backchannelAuthorize)
			r.Post("/{auth_req_id}/deny", c.backchannelDeny)
		})
	})
	return r
}

type controller struct {
	d Deps
}

// endpointURL es la URL absoluta del endpoint atendido; se acepta como aud de
// client assertions.
func (c *controller) endpointURL(r *http.Request) string {
	base := strings.TrimRight(c.d.BaseURL, "/")
	if base == "" {
		scheme := "http"
		if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
			scheme = "https"
		}
		base = scheme + "://" + r.Host
	}
	return base + r.URL.Path
}

func (c *controller) health(w http.ResponseWriter, r *http.Request) {
	if c.d.Health != nil {
		if err := c.d.Health(r.Context()); err != nil {
			WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (c *controller) jwks(w http.ResponseWriter, r *http.Request) {
	if _, err := c.d.Config.Server(r.Context(), chi.URLParam(r, "tenant")); err != nil {
		writeOAuthError(w, r, err)
		return
	}
	body, err := c.d.Keys.JWKSJSON()
	if err != nil {
		writeOAuthError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
