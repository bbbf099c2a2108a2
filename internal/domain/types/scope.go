// Package types define tipos de dominio compartidos entre paquetes.
//
// Todos los enums son cerrados: los parsers devuelven ok=false ante un valor
// desconocido en lugar de caer en un default silencioso.
package types

import (
	"sort"
	"strings"
)

// ScopeOpenID es el scope que convierte un request OAuth2 en OIDC.
const ScopeOpenID = "openid"

// Scopes es un conjunto ordenado de scopes (sin duplicados).
type Scopes []string

// ParseScopes parsea un string separado por espacios.
func ParseScopes(raw string) Scopes {
	return NewScopes(strings.Fields(raw)...)
}

// NewScopes construye Scopes eliminando vacíos y duplicados, preservando el orden.
func NewScopes(values ...string) Scopes {
	seen := make(map[string]struct{}, len(values))
	out := make(Scopes, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// String devuelve la representación separada por espacios.
func (s Scopes) String() string { return strings.Join(s, " ") }

// Exists indica si hay al menos un scope.
func (s Scopes) Exists() bool { return len(s) > 0 }

// Contains indica si el scope está presente.
func (s Scopes) Contains(scope string) bool {
	for _, v := range s {
		if v == scope {
			return true
		}
	}
	return false
}

// HasOpenID indica si el request es OIDC.
func (s Scopes) HasOpenID() bool { return s.Contains(ScopeOpenID) }

// ContainsAny indica si alguno de los candidatos está presente.
func (s Scopes) ContainsAny(candidates []string) bool {
	for _, c := range candidates {
		if s.Contains(c) {
			return true
		}
	}
	return false
}

// Filter devuelve sólo los scopes presentes en allowed.
func (s Scopes) Filter(allowed Scopes) Scopes {
	out := make(Scopes, 0, len(s))
	for _, v := range s {
		if allowed.Contains(v) {
			out = append(out, v)
		}
	}
	return out
}

// Remove devuelve los scopes sin los indicados.
func (s Scopes) Remove(denied Scopes) Scopes {
	out := make(Scopes, 0, len(s))
	for _, v := range s {
		if !denied.Contains(v) {
			out = append(out, v)
		}
	}
	return out
}

// Union devuelve la unión ordenada de ambos conjuntos.
// Nunca pierde elementos de s.
func (s Scopes) Union(other Scopes) Scopes {
	all := make([]string, 0, len(s)+len(other))
	all = append(all, s...)
	all = append(all, other...)
	out := NewScopes(all...)
	sort.Strings(out)
	return out
}

// Missing devuelve los elementos de requested que no están en s.
func (s Scopes) Missing(requested Scopes) Scopes {
	out := Scopes{}
	for _, v := range requested {
		if !s.Contains(v) {
			out = append(out, v)
		}
	}
	return out
}

// Covers indica si s contiene todos los scopes de requested.
func (s Scopes) Covers(requested Scopes) bool {
	return len(s.Missing(requested)) == 0
}
