// Package tokens genera identificadores opacos y hashes de secretos.
//
// Los identificadores (authorization request id, auth_req_id, codes, access y
// refresh tokens) son aleatorios de alta entropía sin significado estructural.
package tokens

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
)

// IdentifierBytes es la entropía de los identificadores emitidos (256 bits).
const IdentifierBytes = 32

// GenerateOpaqueToken genera un token opaco aleatorio (base64url sin padding).
func GenerateOpaqueToken(nBytes int) (string, error) {
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// NewIdentifier genera un identificador opaco de IdentifierBytes bytes.
func NewIdentifier() (string, error) {
	return GenerateOpaqueToken(IdentifierBytes)
}

// SHA256Base64URL devuelve sha256(input) en base64url sin padding (para guardar en DB).
func SHA256Base64URL(s string) string {
	sum := sha256.Sum256([]byte(s))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// SHA256Hex devuelve sha256(input) en hexadecimal.
func SHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// CertificateThumbprint devuelve el x5t#S256 de un certificado (RFC 8705).
func CertificateThumbprint(cert *x509.Certificate) string {
	if cert == nil {
		return ""
	}
	sum := sha256.Sum256(cert.Raw)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
