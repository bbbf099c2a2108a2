package claims

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNamespace(t *testing.T) {
	require.Equal(t, "https://idp.example/acme/claims/custom", Namespace("https://idp.example/acme/", "custom"))
	require.Equal(t, "urn:idp:claims:custom", Namespace(" ", "custom"))
}

func TestWithCustomProperties(t *testing.T) {
	base := map[string]any{"email": "alice@example.com"}
	require.Equal(t, base, WithCustomProperties(base, "https://idp.example", nil))

	out := WithCustomProperties(base, "https://idp.example", map[string]any{"tier": "gold"})
	require.Equal(t, map[string]any{"tier": "gold"}, out["https://idp.example/claims/custom"])
	require.Equal(t, "alice@example.com", out["email"])
	require.Len(t, base, 1)
}
