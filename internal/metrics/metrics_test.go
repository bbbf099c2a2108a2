package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRegisterTwice(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))
	require.NoError(t, Register(reg))
}

func TestObserveToken(t *testing.T) {
	before := testutil.ToFloat64(TokenRequests.WithLabelValues("password", "invalid_grant"))
	ObserveToken("password", Result("invalid_grant"), time.Now())
	require.Equal(t, before+1, testutil.ToFloat64(TokenRequests.WithLabelValues("password", "invalid_grant")))
	require.Equal(t, "ok", Result(""))
}
