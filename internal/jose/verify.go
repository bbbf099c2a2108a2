package jose

import (
	"errors"
	"fmt"
	"slices"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// AlgNone marca un request object sin firma.
const AlgNone = "none"

// DefaultLeeway tolera desfasaje de reloj al validar exp/nbf/iat.
const DefaultLeeway = 30 * time.Second

var (
	ErrUnsignedNotAllowed = errors.New("jose: unsigned jwt not allowed")
	ErrAlgNotAllowed      = errors.New("jose: signing alg not allowed")
)

// SignedJWT es un JWS ya verificado (o aceptado sin firma) con sus claims.
type SignedJWT struct {
	Raw       string
	Alg       string
	Claims    jwtv5.MapClaims
	PublicKey any
}

// VerifyOptions parametriza Verify.
type VerifyOptions struct {
	// Algs limita los algoritmos aceptados. "none" sólo se acepta si está aquí.
	Algs []string
	// Issuer y Audience se validan sólo si no están vacíos.
	Issuer   string
	Audience string
	// RequireExp exige el claim exp.
	RequireExp bool
	// SkipTimeValidation omite exp/nbf/iat (id_token_hint vencido es válido como hint).
	SkipTimeValidation bool
	Now                func() time.Time
}

// Verify valida firma y claims registrados de un JWS firmado por un client.
func Verify(raw string, keyfunc jwtv5.Keyfunc, opts VerifyOptions) (*SignedJWT, error) {
	alg, err := HeaderAlg(raw)
	if err != nil {
		return nil, err
	}
	if len(opts.Algs) > 0 && !slices.Contains(opts.Algs, alg) {
		return nil, fmt.Errorf("%w: %s", ErrAlgNotAllowed, alg)
	}
	if alg == AlgNone {
		return verifyNone(raw, opts)
	}

	parserOpts := []jwtv5.ParserOption{jwtv5.WithLeeway(DefaultLeeway)}
	if len(opts.Algs) > 0 {
		parserOpts = append(parserOpts, jwtv5.WithValidMethods(opts.Algs))
	}
	if opts.Issuer != "" {
		parserOpts = append(parserOpts, jwtv5.WithIssuer(opts.Issuer))
	}
	if opts.Audience != "" {
		parserOpts = append(parserOpts, jwtv5.WithAudience(opts.Audience))
	}
	if opts.RequireExp {
		parserOpts = append(parserOpts, jwtv5.WithExpirationRequired())
	}
	if opts.SkipTimeValidation {
		parserOpts = append(parserOpts, jwtv5.WithoutClaimsValidation())
	}
	if opts.Now != nil {
		parserOpts = append(parserOpts, jwtv5.WithTimeFunc(opts.Now))
	}

	var pub any
	capture := func(t *jwtv5.Token) (any, error) {
		k, err := keyfunc(t)
		pub = k
		return k, err
	}
	claims := jwtv5.MapClaims{}
	if _, err := jwtv5.ParseWithClaims(raw, claims, capture, parserOpts...); err != nil {
		return nil, fmt.Errorf("jose: verify: %w", err)
	}
	return &SignedJWT{Raw: raw, Alg: alg, Claims: claims, PublicKey: pub}, nil
}

func verifyNone(raw string, opts VerifyOptions) (*SignedJWT, error) {
	if !slices.Contains(opts.Algs, AlgNone) {
		return nil, ErrUnsignedNotAllowed
	}
	claims := jwtv5.MapClaims{}
	if _, _, err := jwtv5.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("jose: parse unsigned: %w", err)
	}
	if opts.Issuer != "" {
		if iss, _ := claims.GetIssuer(); iss != opts.Issuer {
			return nil, fmt.Errorf("jose: verify: %w", jwtv5.ErrTokenInvalidIssuer)
		}
	}
	return &SignedJWT{Raw: raw, Alg: AlgNone, Claims: claims}, nil
}

// HeaderAlg lee el alg del header sin verificar la firma.
func HeaderAlg(raw string) (string, error) {
	tok, _, err := jwtv5.NewParser().ParseUnverified(raw, jwtv5.MapClaims{})
	if err != nil {
		return "", fmt.Errorf("jose: malformed jwt: %w", err)
	}
	alg, _ := tok.Header["alg"].(string)
	if alg == "" {
		return "", errors.New("jose: missing alg header")
	}
	return alg, nil
}

// String devuelve un claim string ("" si falta o es de otro tipo).
func (s *SignedJWT) String(name string) string {
	v, _ := s.Claims[name].(string)
	return v
}

// Has indica si el claim está presente.
func (s *SignedJWT) Has(name string) bool {
	_, ok := s.Claims[name]
	return ok
}

// Time devuelve un NumericDate (nil si falta).
func (s *SignedJWT) Time(name string) *time.Time {
	switch v := s.Claims[name].(type) {
	case float64:
		t := time.Unix(int64(v), 0)
		return &t
	case int64:
		t := time.Unix(v, 0)
		return &t
	default:
		return nil
	}
}

// Audience devuelve aud como lista.
func (s *SignedJWT) Audience() []string {
	aud, _ := s.Claims.GetAudience()
	return aud
}
