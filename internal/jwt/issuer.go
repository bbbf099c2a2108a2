// Package jwt emite los JWT firmados por el servidor: id_token, respuestas
// JARM y tokens de verificación del propio issuer (id_token_hint).
package jwt

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	"github.com/dropDatabas3/idpserver/internal/jose"
)

var ErrInvalidIssuer = errors.New("invalid_issuer")

// Issuer firma con la clave ES256 activa.
type Issuer struct {
	Key *jose.SigningKey
	Now func() time.Time
}

func NewIssuer(key *jose.SigningKey) *Issuer {
	return &Issuer{Key: key, Now: time.Now}
}

func (i *Issuer) now() time.Time {
	if i.Now == nil {
		return time.Now()
	}
	return i.Now()
}

// SignRaw firma un MapClaims arbitrario, setea header kid/typ y devuelve el JWT firmado.
func (i *Issuer) SignRaw(claims jwtv5.MapClaims, typ string) (string, error) {
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodES256, claims)
	tk.Header["kid"] = i.Key.KID
	if typ != "" {
		tk.Header["typ"] = typ
	}
	return tk.SignedString(i.Key.Private)
}

// IDTokenParams son las entradas de un id_token.
type IDTokenParams struct {
	Issuer   string
	Subject  string
	Audience string
	Nonce    string
	AuthTime time.Time
	ACR      string
	AMR      []string
	TTL      time.Duration
	// AccessToken, Code y State producen at_hash, c_hash y s_hash cuando no están vacíos.
	AccessToken string
	Code        string
	State       string
	// Claims son los claims de usuario ya filtrados por lo consentido.
	Claims map[string]any
}

// IssueIDToken emite un id_token OIDC.
func (i *Issuer) IssueIDToken(p IDTokenParams) (string, time.Time, error) {
	now := i.now().UTC()
	exp := now.Add(p.TTL)

	claims := jwtv5.MapClaims{}
	for k, v := range p.Claims {
		claims[k] = v
	}
	claims["iss"] = p.Issuer
	claims["sub"] = p.Subject
	claims["aud"] = p.Audience
	claims["iat"] = now.Unix()
	claims["exp"] = exp.Unix()
	if !p.AuthTime.IsZero() {
		claims["auth_time"] = p.AuthTime.Unix()
	}
	if p.Nonce != "" {
		claims["nonce"] = p.Nonce
	}
	if p.ACR != "" {
		claims["acr"] = p.ACR
	}
	if len(p.AMR) > 0 {
		claims["amr"] = p.AMR
	}
	if p.AccessToken != "" {
		claims["at_hash"] = LeftHash(p.AccessToken)
	}
	if p.Code != "" {
		claims["c_hash"] = LeftHash(p.Code)
	}
	if p.State != "" {
		claims["s_hash"] = LeftHash(p.State)
	}

	signed, err := i.SignRaw(claims, "JWT")
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// JARMTTL es la vida de una respuesta de autorización JWT.
const JARMTTL = 10 * time.Minute

// IssueJARM firma los parámetros de respuesta de autorización (JARM).
func (i *Issuer) IssueJARM(issuer, clientID string, params map[string]string) (string, error) {
	now := i.now().UTC()
	claims := jwtv5.MapClaims{
		"iss": issuer,
		"aud": clientID,
		"exp": now.Add(JARMTTL).Unix(),
	}
	for k, v := range params {
		claims[k] = v
	}
	return i.SignRaw(claims, "JWT")
}

// ParseOwn verifica un JWT firmado por este servidor (id_token_hint).
// Un id_token vencido sigue siendo un hint válido, así que no se valida exp.
func (i *Issuer) ParseOwn(raw, expectedIss string) (jwtv5.MapClaims, error) {
	signed, err := jose.Verify(raw, func(t *jwtv5.Token) (any, error) {
		return i.Key.Public(), nil
	}, jose.VerifyOptions{
		Algs:               []string{jose.AlgES256},
		SkipTimeValidation: true,
	})
	if err != nil {
		return nil, err
	}
	if expectedIss != "" {
		if iss, _ := signed.Claims.GetIssuer(); iss != expectedIss {
			return nil, ErrInvalidIssuer
		}
	}
	return signed.Claims, nil
}

// LeftHash es la mitad izquierda del SHA-256 en base64url (at_hash/c_hash/s_hash para ES256).
func LeftHash(v string) string {
	sum := sha256.Sum256([]byte(v))
	return base64.RawURLEncoding.EncodeToString(sum[:len(sum)/2])
}
