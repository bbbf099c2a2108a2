package types

import "strings"

// Prompt es un valor del parámetro prompt de OIDC.
type Prompt string

const (
	PromptNone          Prompt = "none"
	PromptLogin         Prompt = "login"
	PromptConsent       Prompt = "consent"
	PromptSelectAccount Prompt = "select_account"
	PromptCreate        Prompt = "create"
)

// Prompts es la lista de prompts de un request.
type Prompts []Prompt

// ParsePrompts devuelve ok=false si algún valor es desconocido
// o si "none" aparece combinado con otro valor.
func ParsePrompts(raw string) (Prompts, bool) {
	fields := strings.Fields(raw)
	out := make(Prompts, 0, len(fields))
	for _, f := range fields {
		switch p := Prompt(f); p {
		case PromptNone, PromptLogin, PromptConsent, PromptSelectAccount, PromptCreate:
			out = append(out, p)
		default:
			return nil, false
		}
	}
	if out.Has(PromptNone) && len(out) > 1 {
		return nil, false
	}
	return out, true
}

// Has indica si el prompt está presente.
func (p Prompts) Has(v Prompt) bool {
	for _, x := range p {
		if x == v {
			return true
		}
	}
	return false
}

// String devuelve la representación separada por espacios.
func (p Prompts) String() string {
	parts := make([]string, len(p))
	for i, x := range p {
		parts[i] = string(x)
	}
	return strings.Join(parts, " ")
}

// Display es el parámetro display de OIDC.
type Display string

// ValidDisplay indica si el valor es vacío o uno de los definidos por OIDC Core.
func ValidDisplay(raw string) bool {
	switch raw {
	case "", "page", "popup", "touch", "wap":
		return true
	}
	return false
}
