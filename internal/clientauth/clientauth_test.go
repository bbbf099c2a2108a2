package clientauth

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"math/big"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/idpserver/internal/domain/repository"
	"github.com/dropDatabas3/idpserver/internal/oautherr"
)

const tokenEndpoint = "https://idp.example/acme/v1/tokens"

func basic(id, secret string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(url.QueryEscape(id)+":"+url.QueryEscape(secret)))
}

func requireInvalidClient(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	oe := oautherr.From(err)
	require.Equal(t, oautherr.CodeInvalidClient, oe.Code)
	require.Equal(t, 401, oe.HTTPStatus())
}

func TestSecretBasic(t *testing.T) {
	client := repository.ClientConfiguration{ClientID: "app", ClientSecret: "s3cr3t:/"}
	a := New()

	creds, err := Extract(basic("app", "s3cr3t:/"), url.Values{}, nil)
	require.NoError(t, err)
	res, err := a.Authenticate(creds, client, []string{tokenEndpoint})
	require.NoError(t, err)
	require.Equal(t, "app", res.ClientID)

	creds, err = Extract(basic("app", "wrong"), url.Values{}, nil)
	require.NoError(t, err)
	_, err = a.Authenticate(creds, client, nil)
	requireInvalidClient(t, err)

	// Secreto correcto por el método equivocado.
	creds, err = Extract("", url.Values{"client_id": {"app"}, "client_secret": {"s3cr3t:/"}}, nil)
	require.NoError(t, err)
	_, err = a.Authenticate(creds, client, nil)
	requireInvalidClient(t, err)
}

func TestExtract_ClientIDMismatch(t *testing.T) {
	_, err := Extract(basic("app", "x"), url.Values{"client_id": {"other"}}, nil)
	requireInvalidClient(t, err)
}

func TestSecretPost(t *testing.T) {
	client := repository.ClientConfiguration{ClientID: "app", ClientSecret: "s", TokenEndpointAuthMethod: "client_secret_post"}
	creds, err := Extract("", url.Values{"client_id": {"app"}, "client_secret": {"s"}}, nil)
	require.NoError(t, err)
	_, err = New().Authenticate(creds, client, nil)
	require.NoError(t, err)
}

func TestSecretJWT(t *testing.T) {
	client := repository.ClientConfiguration{ClientID: "app", ClientSecret: "0123456789abcdef0123456789abcdef", TokenEndpointAuthMethod: "client_secret_jwt"}
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, jwtv5.MapClaims{
		"iss": "app", "sub": "app", "aud": tokenEndpoint, "exp": time.Now().Add(time.Minute).Unix(), "jti": "1",
	})
	assertion, err := tk.SignedString([]byte(client.ClientSecret))
	require.NoError(t, err)

	creds, err := Extract("", url.Values{"client_assertion_type": {AssertionTypeJWTBearer}, "client_assertion": {assertion}}, nil)
	require.NoError(t, err)
	require.Equal(t, "app", creds.ClientID)

	_, err = New().Authenticate(creds, client, []string{tokenEndpoint})
	require.NoError(t, err)

	_, err = New().Authenticate(creds, client, []string{"https://elsewhere"})
	requireInvalidClient(t, err)
}

func TestPrivateKeyJWT(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	key, err := jwk.FromRaw(&priv.PublicKey)
	require.NoError(t, err)
	require.NoError(t, key.Set(jwk.KeyIDKey, "k1"))
	set := jwk.NewSet()
	require.NoError(t, set.AddKey(key))
	jwks, err := json.Marshal(set)
	require.NoError(t, err)

	client := repository.ClientConfiguration{ClientID: "app", JWKS: string(jwks), TokenEndpointAuthMethod: "private_key_jwt"}
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodES256, jwtv5.MapClaims{
		"iss": "app", "sub": "app", "aud": []string{tokenEndpoint}, "exp": time.Now().Add(time.Minute).Unix(),
	})
	tk.Header["kid"] = "k1"
	assertion, err := tk.SignedString(priv)
	require.NoError(t, err)

	creds, err := Extract("", url.Values{"client_id": {"app"}, "client_assertion_type": {AssertionTypeJWTBearer}, "client_assertion": {assertion}}, nil)
	require.NoError(t, err)
	_, err = New().Authenticate(creds, client, []string{tokenEndpoint})
	require.NoError(t, err)

	// Sin exp la assertion no es aceptada.
	tk = jwtv5.NewWithClaims(jwtv5.SigningMethodES256, jwtv5.MapClaims{"iss": "app", "sub": "app", "aud": tokenEndpoint})
	tk.Header["kid"] = "k1"
	assertion, err = tk.SignedString(priv)
	require.NoError(t, err)
	creds.Assertion = assertion
	_, err = New().Authenticate(creds, client, []string{tokenEndpoint})
	requireInvalidClient(t, err)
}

func selfSignedCert(t *testing.T, cn string) (*x509.Certificate, *ecdsa.PrivateKey) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &priv.PublicKey, priv)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert, priv
}

func TestTLSClientAuth(t *testing.T) {
	cert, _ := selfSignedCert(t, "app.example")
	client := repository.ClientConfiguration{ClientID: "app", TokenEndpointAuthMethod: "tls_client_auth", TLSClientAuthSubjectDN: "CN=app.example"}

	creds, err := Extract("", url.Values{"client_id": {"app"}}, cert)
	require.NoError(t, err)
	res, err := New().Authenticate(creds, client, nil)
	require.NoError(t, err)
	require.NotEmpty(t, res.CertificateThumbprint)

	client.TLSClientAuthSubjectDN = "CN=other"
	_, err = New().Authenticate(creds, client, nil)
	requireInvalidClient(t, err)

	creds.Certificate = nil
	_, err = New().Authenticate(creds, client, nil)
	requireInvalidClient(t, err)
}

func TestSelfSignedTLSClientAuth(t *testing.T) {
	cert, priv := selfSignedCert(t, "app")
	key, err := jwk.FromRaw(&priv.PublicKey)
	require.NoError(t, err)
	set := jwk.NewSet()
	require.NoError(t, set.AddKey(key))
	jwks, err := json.Marshal(set)
	require.NoError(t, err)

	client := repository.ClientConfiguration{ClientID: "app", TokenEndpointAuthMethod: "self_signed_tls_client_auth", JWKS: string(jwks)}
	creds, err := Extract("", url.Values{"client_id": {"app"}}, cert)
	require.NoError(t, err)
	_, err = New().Authenticate(creds, client, nil)
	require.NoError(t, err)

	other, _ := selfSignedCert(t, "app")
	creds.Certificate = other
	_, err = New().Authenticate(creds, client, nil)
	requireInvalidClient(t, err)
}

func TestNone(t *testing.T) {
	client := repository.ClientConfiguration{ClientID: "spa", TokenEndpointAuthMethod: "none"}
	creds, err := Extract("", url.Values{"client_id": {"spa"}}, nil)
	require.NoError(t, err)
	_, err = New().Authenticate(creds, client, nil)
	require.NoError(t, err)

	creds.ClientSecret = "x"
	_, err = New().Authenticate(creds, client, nil)
	requireInvalidClient(t, err)
}

func TestCertificateFromHeader(t *testing.T) {
	cert, _ := selfSignedCert(t, "app")
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})

	r := httptest.NewRequest("POST", "/acme/v1/tokens", nil)
	r.Header.Set(CertificateHeader, url.QueryEscape(string(pemBytes)))
	got, err := CertificateFromRequest(r)
	require.NoError(t, err)
	require.Equal(t, cert.Raw, got.Raw)

	r = httptest.NewRequest("POST", "/acme/v1/tokens", nil)
	got, err = CertificateFromRequest(r)
	require.NoError(t, err)
	require.Nil(t, got)
}
