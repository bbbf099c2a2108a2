package verifier

import (
	"net/url"
	"slices"
	"time"

	"github.com/dropDatabas3/idpserver/internal/domain/types"
	"github.com/dropDatabas3/idpserver/internal/jose"
	"github.com/dropDatabas3/idpserver/internal/oauth/request"
	"github.com/dropDatabas3/idpserver/internal/oautherr"
)

// MaxRequestObjectLifetime es el máximo de exp - nbf en FAPI Advance.
const MaxRequestObjectLifetime = 60 * time.Minute

// fapiBaselineVerifier: FAPI 1.0 Baseline §5.2.2.
type fapiBaselineVerifier struct{}

func (fapiBaselineVerifier) Verify(c *request.Context) error {
	if len(c.Client.RedirectURIs) == 0 {
		return badRequest("FAPI requires pre-registered redirect_uris")
	}
	if !c.Request.HasRedirectURI() {
		return badRequest("FAPI requires redirect_uri in the authorization request")
	}
	if !c.Client.IsRegisteredRedirectURI(c.Request.RedirectURI) {
		return badRequest("redirect_uri does not match the registered redirect_uris")
	}
	if err := requireHTTPS(c); err != nil {
		return err
	}
	if err := base(c); err != nil {
		return err
	}
	switch c.Client.AuthMethod() {
	case types.ClientAuthSecretBasic, types.ClientAuthSecretPost:
		return redirectable(c, oautherr.CodeUnauthorizedClient, "FAPI forbids client_secret_basic and client_secret_post")
	}
	if c.Request.PKCE == nil || c.Request.PKCE.Method != types.CodeChallengeS256 {
		return redirectable(c, oautherr.CodeInvalidRequest, "FAPI requires PKCE with S256")
	}
	return requireNonceOrState(c)
}

// fapiAdvanceVerifier: FAPI 1.0 Advanced §5.2.2 y §8.6.
type fapiAdvanceVerifier struct{}

func (fapiAdvanceVerifier) Verify(c *request.Context) error {
	if err := base(c); err != nil {
		return err
	}
	if err := requireHTTPS(c); err != nil {
		return err
	}
	if err := requireNonceOrState(c); err != nil {
		return err
	}
	if c.Client.AuthMethod().IsSharedSecret() {
		return redirectable(c, oautherr.CodeUnauthorizedClient, "FAPI Advance forbids client_secret_basic, client_secret_post and client_secret_jwt")
	}
	if !c.IsRequestObjectPattern() {
		return redirectable(c, oautherr.CodeInvalidRequest, "FAPI Advance requires a signed request object")
	}
	if c.IsUnsignedRequestObject() {
		return redirectable(c, oautherr.CodeInvalidRequestObject, "FAPI Advance forbids unsigned request objects")
	}
	if err := verifySigningKey(c); err != nil {
		return err
	}

	rt, mode := c.Request.ResponseType, c.Request.ResponseMode
	if rt != types.ResponseTypeCodeIDToken && !(rt == types.ResponseTypeCode && mode.IsJWT()) {
		return redirectable(c, oautherr.CodeInvalidRequest, "FAPI Advance requires response_type code id_token, or code with a jwt response_mode")
	}
	if !c.Server.TLSClientCertificateBoundAccessTokens || !c.Client.IsCertificateBound() {
		return redirectable(c, oautherr.CodeInvalidRequest, "FAPI Advance requires sender-constrained access tokens")
	}
	if c.Client.AuthMethod().IsPublic() {
		return redirectable(c, oautherr.CodeUnauthorizedClient, "FAPI Advance forbids public clients")
	}
	return verifyRequestObjectClaims(c)
}

func verifySigningKey(c *request.Context) error {
	ro := c.RequestObject
	if !jose.IsFAPIStrength(ro.Alg, ro.PublicKey) {
		return redirectable(c, oautherr.CodeInvalidRequestObject, "request object must be signed with PS256 or ES256 and a strong enough key")
	}
	return nil
}

func verifyRequestObjectClaims(c *request.Context) error {
	ro := c.RequestObject
	exp, nbf := ro.Time("exp"), ro.Time("nbf")
	if exp == nil || nbf == nil {
		return redirectable(c, oautherr.CodeInvalidRequestObject, "request object must contain exp and nbf")
	}
	if exp.Sub(*nbf) > MaxRequestObjectLifetime {
		return redirectable(c, oautherr.CodeInvalidRequestObject, "request object lifetime (exp - nbf) exceeds 60 minutes")
	}
	if c.Now.Sub(*nbf) > MaxRequestObjectLifetime {
		return redirectable(c, oautherr.CodeInvalidRequestObject, "request object nbf is more than 60 minutes in the past")
	}
	if !slices.Contains(ro.Audience(), c.Server.Issuer) {
		return redirectable(c, oautherr.CodeInvalidRequestObject, "request object aud must contain the issuer")
	}
	return nil
}

func requireHTTPS(c *request.Context) error {
	u, err := url.Parse(c.RedirectURI())
	if err != nil || u.Scheme != "https" {
		return badRequest("FAPI requires https redirect_uris")
	}
	return nil
}

// requireNonceOrState: nonce con openid, state sin openid.
func requireNonceOrState(c *request.Context) error {
	if c.Request.IsOIDC() {
		if c.Request.Nonce == "" {
			return redirectable(c, oautherr.CodeInvalidRequest, "FAPI requires nonce for openid requests")
		}
		return nil
	}
	if c.Request.State == "" {
		return redirectable(c, oautherr.CodeInvalidRequest, "FAPI requires state when openid is not requested")
	}
	return nil
}
