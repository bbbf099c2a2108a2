// Package claims arma los claims privados que el servidor agrega a sus JWT.
package claims

import "strings"

const fallbackNS = "urn:idp:claims:"

// Namespace construye un nombre de claim privado anclado al issuer.
// Ej: https://idp.example/acme/claims/custom
func Namespace(issuer, name string) string {
	iss := strings.TrimSpace(issuer)
	if iss == "" {
		return fallbackNS + name
	}
	return strings.TrimRight(iss, "/") + "/claims/" + name
}

// WithCustomProperties devuelve una copia de base con las custom properties
// del grant bajo el namespace "custom". Sin propiedades devuelve base tal cual.
func WithCustomProperties(base map[string]any, issuer string, props map[string]any) map[string]any {
	if len(props) == 0 {
		return base
	}
	out := make(map[string]any, len(base)+1)
	for k, v := range base {
		out[k] = v
	}
	out[Namespace(issuer, "custom")] = props
	return out
}
