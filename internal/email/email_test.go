package email

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBackchannelNoticeRender(t *testing.T) {
	msg, err := BackchannelNotice{
		To:             "alice@example.com",
		UserName:       "Alice",
		ClientName:     "Bank <App>",
		Scopes:         "openid payments",
		BindingMessage: "W4SCT",
	}.Render()
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", msg.To)
	require.Contains(t, msg.Text, "Hola Alice")
	require.Contains(t, msg.Text, "Bank <App> solicita acceso")
	require.Contains(t, msg.Text, "W4SCT")
	require.Contains(t, msg.HTML, "Bank &lt;App&gt;")

	msg, err = BackchannelNotice{To: "bob@example.com", ClientName: "app", Scopes: "openid"}.Render()
	require.NoError(t, err)
	require.Contains(t, msg.Text, "Hola bob@example.com")
	require.NotContains(t, msg.Text, "Código")
}

func TestDiagnose(t *testing.T) {
	cases := map[string]string{
		"dial tcp 10.0.0.1:25: connect: connection refused": "dial",
		"535 5.7.8 authentication failed":                   "auth",
		"x509: certificate signed by unknown authority":     "tls",
		"421 try again later":                               "rate_limited",
		"550 5.1.1 user unknown":                            "invalid_recipient",
		"550 5.7.1 message rejected by policy":              "rejected",
		"something odd":                                     "unknown",
	}
	for msg, code := range cases {
		require.Equal(t, code, Diagnose(errors.New(msg)).Code, msg)
	}
	require.Equal(t, "unknown", Diagnose(nil).Code)
}
