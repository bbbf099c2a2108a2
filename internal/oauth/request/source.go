package request

import (
	"encoding/json"
	"strconv"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// source resuelve el valor de un parámetro. ok es false si no está presente.
type source interface {
	lookup(name string) (string, bool)
}

type paramSource Parameters

func (s paramSource) lookup(name string) (string, bool) {
	v := Parameters(s).Get(name)
	return v, v != ""
}

// claimSource lee parámetros desde los claims de un request object.
// Objetos y arrays (claims, authorization_details) se devuelven como JSON.
type claimSource jwtv5.MapClaims

func (s claimSource) lookup(name string) (string, bool) {
	v, ok := s[name]
	if !ok || v == nil {
		return "", false
	}
	switch x := v.(type) {
	case string:
		return x, x != ""
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case json.Number:
		return x.String(), true
	case bool:
		return strconv.FormatBool(x), true
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return "", false
		}
		return string(b), true
	}
}

// overlay prioriza primary y cae a fallback parámetro por parámetro.
type overlay struct {
	primary  source
	fallback source
}

func (s overlay) lookup(name string) (string, bool) {
	if v, ok := s.primary.lookup(name); ok {
		return v, true
	}
	return s.fallback.lookup(name)
}

func get(s source, name string) string {
	v, _ := s.lookup(name)
	return v
}

// ClaimString lee un claim de un request object como valor de parámetro.
func ClaimString(claims jwtv5.MapClaims, name string) (string, bool) {
	return claimSource(claims).lookup(name)
}
