// Package clientauth autentica clients en el token endpoint y en el endpoint
// de backchannel authentication según su token_endpoint_auth_method.
package clientauth

import (
	"crypto/subtle"
	"crypto/x509"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"

	"github.com/dropDatabas3/idpserver/internal/domain/repository"
	"github.com/dropDatabas3/idpserver/internal/domain/types"
	"github.com/dropDatabas3/idpserver/internal/jose"
	"github.com/dropDatabas3/idpserver/internal/oautherr"
	tokens "github.com/dropDatabas3/idpserver/internal/security/token"
)

// AssertionTypeJWTBearer es el client_assertion_type de RFC 7523.
const AssertionTypeJWTBearer = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

// Algoritmos aceptados en client assertions.
var (
	secretJWTAlgs     = []string{"HS256", "HS384", "HS512"}
	privateKeyJWTAlgs = []string{"RS256", "PS256", "ES256"}
)

// Credentials son las credenciales presentadas en el request, sin verificar.
type Credentials struct {
	ClientID      string
	ClientSecret  string
	BasicAuth     bool
	AssertionType string
	Assertion     string
	Certificate   *x509.Certificate
}

// Extract arma las credenciales desde el header Authorization, el form y el
// certificado TLS. El secreto de Basic se decodifica según RFC 6749 §2.3.1.
func Extract(authorization string, form url.Values, cert *x509.Certificate) (Credentials, error) {
	c := Credentials{
		ClientID:      form.Get("client_id"),
		ClientSecret:  form.Get("client_secret"),
		AssertionType: form.Get("client_assertion_type"),
		Assertion:     form.Get("client_assertion"),
		Certificate:   cert,
	}
	if user, pass, ok := parseBasic(authorization); ok {
		id, err1 := url.QueryUnescape(user)
		secret, err2 := url.QueryUnescape(pass)
		if err1 != nil || err2 != nil {
			return c, oautherr.Unauthorized("malformed basic credentials")
		}
		if c.ClientID != "" && c.ClientID != id {
			return c, oautherr.Unauthorized("client_id mismatch")
		}
		if c.ClientSecret != "" {
			return c, oautherr.Unauthorized("multiple client authentication methods")
		}
		c.ClientID, c.ClientSecret, c.BasicAuth = id, secret, true
	}
	if c.Assertion != "" && c.ClientID == "" {
		// client_id implícito en el sub de la assertion.
		tok, _, err := jwtv5.NewParser().ParseUnverified(c.Assertion, jwtv5.MapClaims{})
		if err != nil {
			return c, oautherr.Unauthorized("malformed client_assertion")
		}
		c.ClientID, _ = tok.Claims.GetSubject()
	}
	return c, nil
}

func parseBasic(h string) (user, pass string, ok bool) {
	const prefix = "Basic "
	if len(h) < len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", "", false
	}
	dec, err := decodeBase64(h[len(prefix):])
	if err != nil {
		return "", "", false
	}
	user, pass, ok = strings.Cut(dec, ":")
	return user, pass, ok
}

// Result es el client autenticado.
type Result struct {
	ClientID string
	Method   types.ClientAuthMethod
	// CertificateThumbprint es x5t#S256 del certificado presentado (vacío sin mTLS).
	CertificateThumbprint string
}

// Authenticator verifica credenciales contra la configuración del client.
type Authenticator struct {
	Now func() time.Time
}

func New() *Authenticator { return &Authenticator{Now: time.Now} }

// Authenticate valida que las credenciales correspondan al método registrado.
// audiences son los valores aceptados en el aud de una client assertion
// (issuer y URL del endpoint). Todos los fallos son invalid_client.
func (a *Authenticator) Authenticate(creds Credentials, client repository.ClientConfiguration, audiences []string) (Result, error) {
	if creds.ClientID == "" || creds.ClientID != client.ClientID {
		return Result{}, oautherr.Unauthorized("client authentication failed")
	}
	method := client.AuthMethod()
	res := Result{ClientID: client.ClientID, Method: method}
	if creds.Certificate != nil {
		res.CertificateThumbprint = tokens.CertificateThumbprint(creds.Certificate)
	}

	var err error
	switch method {
	case types.ClientAuthSecretBasic:
		err = a.secret(creds, client, true)
	case types.ClientAuthSecretPost:
		err = a.secret(creds, client, false)
	case types.ClientAuthSecretJWT:
		err = a.assertion(creds, client, audiences, secretJWTAlgs, func(*jwtv5.Token) (any, error) {
			return []byte(client.ClientSecret), nil
		})
	case types.ClientAuthPrivateKeyJWT:
		set, perr := jose.ParseJWKS(client.JWKS)
		if perr != nil {
			return Result{}, oautherr.Unauthorized("client has no usable jwks").WithCause(perr)
		}
		err = a.assertion(creds, client, audiences, privateKeyJWTAlgs, jose.Keyfunc(set))
	case types.ClientAuthTLS:
		err = tlsClientAuth(creds, client)
	case types.ClientAuthSelfSignedTLS:
		err = selfSignedTLSClientAuth(creds, client)
	case types.ClientAuthNone:
		if creds.ClientSecret != "" || creds.Assertion != "" {
			err = errors.New("public client presented credentials")
		}
	default:
		err = fmt.Errorf("unsupported auth method %q", method)
	}
	if err != nil {
		return Result{}, oautherr.Unauthorized("client authentication failed").WithCause(err)
	}
	return res, nil
}

func (a *Authenticator) secret(creds Credentials, client repository.ClientConfiguration, basic bool) error {
	if creds.BasicAuth != basic {
		return errors.New("auth method mismatch")
	}
	if creds.Assertion != "" {
		return errors.New("unexpected client_assertion")
	}
	if client.ClientSecret == "" || subtle.ConstantTimeCompare([]byte(creds.ClientSecret), []byte(client.ClientSecret)) != 1 {
		return errors.New("invalid client secret")
	}
	return nil
}

func (a *Authenticator) assertion(creds Credentials, client repository.ClientConfiguration, audiences, algs []string, keyfunc jwtv5.Keyfunc) error {
	if creds.BasicAuth || creds.ClientSecret != "" {
		return errors.New("auth method mismatch")
	}
	if creds.AssertionType != AssertionTypeJWTBearer || creds.Assertion == "" {
		return errors.New("missing client_assertion")
	}
	signed, err := jose.Verify(creds.Assertion, keyfunc, jose.VerifyOptions{
		Algs:       algs,
		Issuer:     client.ClientID,
		RequireExp: true,
		Now:        a.Now,
	})
	if err != nil {
		return err
	}
	if sub, _ := signed.Claims.GetSubject(); sub != client.ClientID {
		return errors.New("assertion sub must equal client_id")
	}
	for _, aud := range signed.Audience() {
		if slices.Contains(audiences, aud) {
			return nil
		}
	}
	return errors.New("assertion audience mismatch")
}

func tlsClientAuth(creds Credentials, client repository.ClientConfiguration) error {
	if creds.Certificate == nil {
		return errors.New("client certificate required")
	}
	if client.TLSClientAuthSubjectDN == "" {
		return errors.New("client has no registered subject dn")
	}
	if !strings.EqualFold(creds.Certificate.Subject.String(), client.TLSClientAuthSubjectDN) {
		return errors.New("certificate subject mismatch")
	}
	return nil
}

func selfSignedTLSClientAuth(creds Credentials, client repository.ClientConfiguration) error {
	if creds.Certificate == nil {
		return errors.New("client certificate required")
	}
	set, err := jose.ParseJWKS(client.JWKS)
	if err != nil {
		return err
	}
	presented, err := jwk.FromRaw(creds.Certificate.PublicKey)
	if err != nil {
		return err
	}
	want, err := jose.Thumbprint(presented)
	if err != nil {
		return err
	}
	for i := 0; i < set.Len(); i++ {
		key, ok := set.Key(i)
		if !ok {
			continue
		}
		pub, err := jwk.PublicKeyOf(key)
		if err != nil {
			continue
		}
		if got, err := jose.Thumbprint(pub); err == nil && got == want {
			return nil
		}
	}
	return errors.New("certificate key not registered")
}
