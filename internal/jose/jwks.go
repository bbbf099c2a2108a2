package jose

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"slices"
	"strings"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

var (
	ErrNoJWKS      = errors.New("jose: client has no jwks")
	ErrKeyNotFound = errors.New("jose: key not found in jwks")
)

// ParseJWKS parsea el JWKS inline registrado para un client.
func ParseJWKS(raw string) (jwk.Set, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, ErrNoJWKS
	}
	set, err := jwk.Parse([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("jose: parse jwks: %w", err)
	}
	return set, nil
}

// Keyfunc resuelve la clave pública por kid. Sin kid, sólo se acepta un JWKS
// con una única clave de firma.
func Keyfunc(set jwk.Set) jwtv5.Keyfunc {
	return func(t *jwtv5.Token) (any, error) {
		key, err := lookup(set, t)
		if err != nil {
			return nil, err
		}
		var raw any
		if err := key.Raw(&raw); err != nil {
			return nil, fmt.Errorf("jose: raw key: %w", err)
		}
		if !keyMatchesAlg(raw, t.Method.Alg()) {
			return nil, fmt.Errorf("jose: key type does not match alg %s", t.Method.Alg())
		}
		return raw, nil
	}
}

func lookup(set jwk.Set, t *jwtv5.Token) (jwk.Key, error) {
	kid, _ := t.Header["kid"].(string)
	if kid != "" {
		key, ok := set.LookupKeyID(kid)
		if !ok {
			return nil, fmt.Errorf("%w: kid %q", ErrKeyNotFound, kid)
		}
		return key, nil
	}
	var found jwk.Key
	for i := 0; i < set.Len(); i++ {
		key, ok := set.Key(i)
		if !ok || (key.KeyUsage() != "" && key.KeyUsage() != "sig") {
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("%w: kid required with multiple keys", ErrKeyNotFound)
		}
		found = key
	}
	if found == nil {
		return nil, ErrKeyNotFound
	}
	return found, nil
}

func keyMatchesAlg(raw any, alg string) bool {
	switch raw.(type) {
	case *rsa.PublicKey:
		return strings.HasPrefix(alg, "RS") || strings.HasPrefix(alg, "PS")
	case *ecdsa.PublicKey:
		return strings.HasPrefix(alg, "ES")
	case ed25519.PublicKey:
		return alg == "EdDSA"
	default:
		return false
	}
}

// KeySize devuelve el tamaño en bits de una clave pública RSA o EC (0 si es otro tipo).
func KeySize(pub any) int {
	switch k := pub.(type) {
	case *rsa.PublicKey:
		return k.N.BitLen()
	case *ecdsa.PublicKey:
		return k.Curve.Params().BitSize
	default:
		return 0
	}
}

// FAPISigningAlgs son los algoritmos de firma permitidos por FAPI 1.0 §8.6.
var FAPISigningAlgs = []string{"PS256", "ES256"}

// IsFAPIStrength indica si alg y clave cumplen FAPI 1.0 §8.6: RSA de al menos
// 2048 bits o EC de al menos 160.
func IsFAPIStrength(alg string, pub any) bool {
	if !slices.Contains(FAPISigningAlgs, alg) {
		return false
	}
	switch pub.(type) {
	case *rsa.PublicKey:
		return KeySize(pub) >= 2048
	case *ecdsa.PublicKey:
		return KeySize(pub) >= 160
	}
	return false
}

// Thumbprint devuelve el thumbprint SHA-256 (RFC 7638) en base64url.
func Thumbprint(key jwk.Key) (string, error) {
	tp, err := key.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(tp), nil
}
