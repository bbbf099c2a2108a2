package clientauth

import (
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"net/http"
	"net/url"
)

// CertificateHeader es el header con el certificado PEM (URL-escaped) cuando
// TLS termina en un proxy.
const CertificateHeader = "X-SSL-Cert"

// CertificateFromRequest devuelve el certificado de cliente mTLS, o nil.
func CertificateFromRequest(r *http.Request) (*x509.Certificate, error) {
	if r.TLS != nil && len(r.TLS.PeerCertificates) > 0 {
		return r.TLS.PeerCertificates[0], nil
	}
	raw := r.Header.Get(CertificateHeader)
	if raw == "" {
		return nil, nil
	}
	unescaped, err := url.QueryUnescape(raw)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode([]byte(unescaped))
	if block == nil {
		return nil, errors.New("clientauth: invalid certificate header")
	}
	return x509.ParseCertificate(block.Bytes)
}

func decodeBase64(s string) (string, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
