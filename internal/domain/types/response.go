package types

import (
	"sort"
	"strings"
)

// ResponseType es el response_type de un authorization request, normalizado.
type ResponseType string

const (
	ResponseTypeCode             ResponseType = "code"
	ResponseTypeToken            ResponseType = "token"
	ResponseTypeIDToken          ResponseType = "id_token"
	ResponseTypeCodeToken        ResponseType = "code token"
	ResponseTypeCodeIDToken      ResponseType = "code id_token"
	ResponseTypeIDTokenToken     ResponseType = "id_token token"
	ResponseTypeCodeIDTokenToken ResponseType = "code id_token token"
	ResponseTypeNone             ResponseType = "none"
)

var responseTypes = map[ResponseType]struct{}{
	ResponseTypeCode:             {},
	ResponseTypeToken:            {},
	ResponseTypeIDToken:          {},
	ResponseTypeCodeToken:        {},
	ResponseTypeCodeIDToken:      {},
	ResponseTypeIDTokenToken:     {},
	ResponseTypeCodeIDTokenToken: {},
	ResponseTypeNone:             {},
}

// responseTypeOrder fija el orden canónico de los componentes.
var responseTypeOrder = map[string]int{"code": 0, "id_token": 1, "token": 2, "none": 3}

// ParseResponseType normaliza el orden de los componentes ("token code" == "code token").
// ok es false si la combinación no es conocida.
func ParseResponseType(raw string) (ResponseType, bool) {
	parts := strings.Fields(raw)
	if len(parts) == 0 {
		return "", false
	}
	for _, p := range parts {
		if _, ok := responseTypeOrder[p]; !ok {
			return "", false
		}
	}
	sort.SliceStable(parts, func(i, j int) bool {
		return responseTypeOrder[parts[i]] < responseTypeOrder[parts[j]]
	})
	rt := ResponseType(strings.Join(parts, " "))
	if _, ok := responseTypes[rt]; !ok {
		return "", false
	}
	return rt, true
}

func (r ResponseType) has(part string) bool {
	for _, p := range strings.Fields(string(r)) {
		if p == part {
			return true
		}
	}
	return false
}

// HasCode indica si la respuesta incluye authorization code.
func (r ResponseType) HasCode() bool { return r.has("code") }

// HasToken indica si la respuesta incluye access token.
func (r ResponseType) HasToken() bool { return r.has("token") }

// HasIDToken indica si la respuesta incluye id_token.
func (r ResponseType) HasIDToken() bool { return r.has("id_token") }

// IsImplicitOrHybrid indica si se emite algún token por el front channel.
func (r ResponseType) IsImplicitOrHybrid() bool { return r.HasToken() || r.HasIDToken() }

// DefaultResponseMode devuelve query para code/none y fragment para el resto.
func (r ResponseType) DefaultResponseMode() ResponseMode {
	if r == ResponseTypeCode || r == ResponseTypeNone {
		return ResponseModeQuery
	}
	return ResponseModeFragment
}

// ResponseMode indica cómo se entregan los parámetros de respuesta.
type ResponseMode string

const (
	ResponseModeUndefined   ResponseMode = ""
	ResponseModeQuery       ResponseMode = "query"
	ResponseModeFragment    ResponseMode = "fragment"
	ResponseModeFormPost    ResponseMode = "form_post"
	ResponseModeJWT         ResponseMode = "jwt"
	ResponseModeQueryJWT    ResponseMode = "query.jwt"
	ResponseModeFragmentJWT ResponseMode = "fragment.jwt"
	ResponseModeFormPostJWT ResponseMode = "form_post.jwt"
)

// ParseResponseMode devuelve ok=false si el modo no es conocido.
func ParseResponseMode(raw string) (ResponseMode, bool) {
	switch m := ResponseMode(raw); m {
	case ResponseModeUndefined, ResponseModeQuery, ResponseModeFragment, ResponseModeFormPost,
		ResponseModeJWT, ResponseModeQueryJWT, ResponseModeFragmentJWT, ResponseModeFormPostJWT:
		return m, true
	}
	return "", false
}

// IsJWT indica si la respuesta va firmada (JARM).
func (m ResponseMode) IsJWT() bool {
	switch m {
	case ResponseModeJWT, ResponseModeQueryJWT, ResponseModeFragmentJWT, ResponseModeFormPostJWT:
		return true
	}
	return false
}

// Resolve devuelve el modo de transporte efectivo (query/fragment/form_post).
func (m ResponseMode) Resolve(rt ResponseType) ResponseMode {
	switch m {
	case ResponseModeQuery, ResponseModeQueryJWT:
		return ResponseModeQuery
	case ResponseModeFragment, ResponseModeFragmentJWT:
		return ResponseModeFragment
	case ResponseModeFormPost, ResponseModeFormPostJWT:
		return ResponseModeFormPost
	}
	return rt.DefaultResponseMode()
}
