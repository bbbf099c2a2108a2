package ciba

import (
	"fmt"
	"slices"
	"time"

	"github.com/dropDatabas3/idpserver/internal/clientauth"
	"github.com/dropDatabas3/idpserver/internal/domain/repository"
	"github.com/dropDatabas3/idpserver/internal/domain/types"
	"github.com/dropDatabas3/idpserver/internal/jose"
	"github.com/dropDatabas3/idpserver/internal/oautherr"
)

// MaxRequestObjectLifetime es el máximo de exp - nbf en FAPI CIBA.
const MaxRequestObjectLifetime = 60 * time.Minute

// Context es un backchannel request ya construido, con la configuración y la
// autenticación del client que lo envió.
type Context struct {
	Pattern       Pattern
	Request       repository.BackchannelAuthenticationRequest
	Server        repository.ServerConfiguration
	Client        repository.ClientConfiguration
	RequestObject *jose.SignedJWT
	Auth          clientauth.Result
	Now           time.Time
}

// Verifier rechaza el request con el primer chequeo que no pasa.
type Verifier interface {
	Verify(c *Context) error
}

var verifiers = map[types.Profile]Verifier{
	types.ProfileUndefined:    baseVerifier{},
	types.ProfileOAuth2:       baseVerifier{},
	types.ProfileOIDC:         baseVerifier{},
	types.ProfileFAPIBaseline: fapiVerifier{},
	types.ProfileFAPIAdvance:  fapiVerifier{},
}

// Verify despacha por el perfil del request.
func Verify(c *Context) error {
	v, ok := verifiers[c.Request.Profile]
	if !ok {
		return oautherr.ServerError(fmt.Errorf("ciba: unknown profile %q", c.Request.Profile))
	}
	return v.Verify(c)
}

type baseVerifier struct{}

func (baseVerifier) Verify(c *Context) error {
	r := c.Request
	if !r.Scopes.Exists() || !r.Scopes.HasOpenID() {
		return badRequest(oautherr.CodeInvalidScope, "scope must contain openid")
	}
	mode := c.Client.DeliveryMode()
	if _, ok := types.ParseDeliveryMode(string(mode)); !ok || !c.Server.SupportsDeliveryMode(mode) {
		return badRequest(oautherr.CodeUnauthorizedClient, "client has no supported backchannel_token_delivery_mode")
	}
	if r.DeliveryMode != mode {
		return badRequest(oautherr.CodeInvalidRequest, "delivery mode does not match the client registration")
	}
	if mode.RequiresNotification() {
		if r.ClientNotificationToken == "" {
			return badRequest(oautherr.CodeInvalidRequest, "client_notification_token is required for ping and push")
		}
		if c.Client.BackchannelClientNotificationEndpoint == "" {
			return badRequest(oautherr.CodeInvalidRequest, "client has no backchannel_client_notification_endpoint")
		}
	}
	if r.HintCount() != 1 {
		return badRequest(oautherr.CodeInvalidRequest, "exactly one of login_hint, id_token_hint or login_hint_token is required")
	}
	if c.Client.BackchannelUserCodeParameter && r.UserCode == "" {
		return badRequest(oautherr.CodeMissingUserCode, "user_code is required")
	}
	return nil
}

// fapiVerifier: FAPI-CIBA §5.2.2.
type fapiVerifier struct {
	base baseVerifier
}

func (f fapiVerifier) Verify(c *Context) error {
	if err := f.base.Verify(c); err != nil {
		return err
	}
	ro := c.RequestObject
	if ro == nil || ro.Alg == jose.AlgNone {
		return badRequest(oautherr.CodeInvalidRequest, "FAPI-CIBA requires a signed request object")
	}
	if !ro.Has("iat") {
		return badRequest(oautherr.CodeInvalidRequest, "request object must contain iat")
	}
	exp, nbf := ro.Time("exp"), ro.Time("nbf")
	if exp == nil || nbf == nil {
		return badRequest(oautherr.CodeInvalidRequest, "request object must contain exp and nbf")
	}
	if exp.Sub(*nbf) > MaxRequestObjectLifetime {
		return badRequest(oautherr.CodeInvalidRequest, "request object lifetime (exp - nbf) exceeds 60 minutes")
	}
	if !jose.IsFAPIStrength(ro.Alg, ro.PublicKey) {
		return badRequest(oautherr.CodeInvalidRequest, "request object must be signed with PS256 or ES256 and a strong enough key")
	}
	if !slices.Contains(ro.Audience(), c.Server.Issuer) {
		return badRequest(oautherr.CodeInvalidRequest, "request object aud must contain the issuer")
	}

	method := c.Auth.Method
	if method.IsPublic() {
		return badRequest(oautherr.CodeUnauthorizedClient, "FAPI-CIBA requires a confidential client")
	}
	if method.IsSharedSecret() {
		return badRequest(oautherr.CodeUnauthorizedClient, "FAPI-CIBA forbids client_secret_basic, client_secret_post and client_secret_jwt")
	}
	if method.IsMTLS() && (!c.Server.TLSClientCertificateBoundAccessTokens || !c.Client.IsCertificateBound()) {
		return badRequest(oautherr.CodeInvalidRequest, "mutual TLS clients require certificate-bound access tokens")
	}
	if c.Request.DeliveryMode == types.DeliveryModePush {
		return badRequest(oautherr.CodeInvalidRequest, "FAPI-CIBA forbids the push delivery mode")
	}
	if c.Request.BindingMessage == "" && !c.Request.AuthorizationDetails.Exists() {
		return badRequest(oautherr.CodeInvalidRequest, "binding_message is required unless authorization_details is present")
	}
	return nil
}
