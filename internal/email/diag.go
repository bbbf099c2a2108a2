package email

import (
	"errors"
	"net"
	"strings"
)

// Diag clasifica un error SMTP para el log.
type Diag struct {
	Code      string // auth|tls|dial|timeout|rate_limited|invalid_recipient|rejected|network|unknown
	Temporary bool
}

type diagRule struct {
	diag    Diag
	matches func(s string) bool
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// El orden importa: un handshake TLS fallido también contiene "dial tcp".
var diagRules = []diagRule{
	{Diag{"timeout", true}, func(s string) bool { return containsAny(s, "i/o timeout", "timeout") }},
	{Diag{"tls", false}, func(s string) bool {
		return strings.Contains(s, "x509:") || strings.Contains(s, "tls") && containsAny(s, "handshake", "certificate")
	}},
	{Diag{"dial", true}, func(s string) bool { return containsAny(s, "connection refused", "no such host", "dial tcp") }},
	{Diag{"auth", false}, func(s string) bool {
		return containsAny(s, "5.7.8", "535", "authentication failed", "username and password not accepted")
	}},
	{Diag{"rate_limited", true}, func(s string) bool {
		return containsAny(s, "4.7.0", "rate limit", "try again later", "421", "451")
	}},
	{Diag{"invalid_recipient", false}, func(s string) bool { return containsAny(s, "5.1.1", "user unknown", "mailbox not found") }},
	{Diag{"rejected", false}, func(s string) bool { return containsAny(s, "5.7.1", "message rejected", "dmarc", "spf") }},
}

// Diagnose clasifica err por su mensaje.
func Diagnose(err error) Diag {
	if err == nil {
		return Diag{Code: "unknown"}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return Diag{Code: "timeout", Temporary: true}
	}
	s := strings.ToLower(err.Error())
	for _, r := range diagRules {
		if r.matches(s) {
			return r.diag
		}
	}
	if ne != nil {
		return Diag{Code: "network", Temporary: true}
	}
	return Diag{Code: "unknown"}
}
