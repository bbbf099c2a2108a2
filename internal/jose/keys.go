// Package jose agrupa las primitivas JOSE del servidor: la clave de firma ES256
// propia, el JWKS público y la verificación de JWS firmados por clients
// (request objects, client assertions, login_hint_token).
package jose

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

// AlgES256 es el único algoritmo con el que firma el servidor.
const AlgES256 = "ES256"

// SigningKey es la clave activa del servidor.
type SigningKey struct {
	KID     string
	Private *ecdsa.PrivateKey
}

// Alg devuelve el algoritmo JWS de la clave.
func (k *SigningKey) Alg() string { return AlgES256 }

// Public devuelve la clave pública.
func (k *SigningKey) Public() *ecdsa.PublicKey { return &k.Private.PublicKey }

// GenerateES256 genera una clave P-256 en memoria (dev/tests).
func GenerateES256(kid string) (*SigningKey, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	if kid == "" {
		kid, err = thumbprintKID(priv)
		if err != nil {
			return nil, err
		}
	}
	return &SigningKey{KID: kid, Private: priv}, nil
}

// LoadES256File lee una clave PEM (SEC1 o PKCS#8).
func LoadES256File(path, kid string) (*SigningKey, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("jose: read signing key: %w", err)
	}
	return ParseES256PEM(b, kid)
}

// ParseES256PEM parsea una clave privada P-256 en PEM.
// Si kid está vacío se usa el thumbprint JWK (RFC 7638).
func ParseES256PEM(b []byte, kid string) (*SigningKey, error) {
	block, _ := pem.Decode(b)
	if block == nil {
		return nil, errors.New("jose: signing key is not PEM")
	}
	var priv *ecdsa.PrivateKey
	switch block.Type {
	case "EC PRIVATE KEY":
		k, err := x509.ParseECPrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("jose: parse EC key: %w", err)
		}
		priv = k
	case "PRIVATE KEY":
		k, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("jose: parse PKCS8 key: %w", err)
		}
		ec, ok := k.(*ecdsa.PrivateKey)
		if !ok {
			return nil, errors.New("jose: signing key is not ECDSA")
		}
		priv = ec
	default:
		return nil, fmt.Errorf("jose: unsupported PEM block %q", block.Type)
	}
	if priv.Curve != elliptic.P256() {
		return nil, errors.New("jose: signing key must use P-256")
	}
	if kid == "" {
		var err error
		if kid, err = thumbprintKID(priv); err != nil {
			return nil, err
		}
	}
	return &SigningKey{KID: kid, Private: priv}, nil
}

// EncodePEM serializa la clave en PKCS#8 (comando keygen).
func (k *SigningKey) EncodePEM() ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(k.Private)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// PublicJWK devuelve la clave pública como JWK con kid/alg/use.
func (k *SigningKey) PublicJWK() (jwk.Key, error) {
	key, err := jwk.FromRaw(k.Public())
	if err != nil {
		return nil, err
	}
	if err := key.Set(jwk.KeyIDKey, k.KID); err != nil {
		return nil, err
	}
	if err := key.Set(jwk.AlgorithmKey, jwa.ES256); err != nil {
		return nil, err
	}
	if err := key.Set(jwk.KeyUsageKey, "sig"); err != nil {
		return nil, err
	}
	return key, nil
}

// JWKSJSON devuelve el JWKS público del servidor.
func (k *SigningKey) JWKSJSON() ([]byte, error) {
	key, err := k.PublicJWK()
	if err != nil {
		return nil, err
	}
	set := jwk.NewSet()
	if err := set.AddKey(key); err != nil {
		return nil, err
	}
	return json.Marshal(set)
}

func thumbprintKID(priv *ecdsa.PrivateKey) (string, error) {
	key, err := jwk.FromRaw(&priv.PublicKey)
	if err != nil {
		return "", err
	}
	return Thumbprint(key)
}
