package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dropDatabas3/idpserver/internal/observability/logger"
)

func TestLog(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	ctx := logger.ToContext(context.Background(), zap.New(core))

	Log(ctx, EventBackchannelDenied, logger.AuthReqID("ar-1"))

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Equal(t, "audit", entries[0].LoggerName)
	fields := entries[0].ContextMap()
	require.Equal(t, EventBackchannelDenied, fields["event"])
	require.Equal(t, "ar-1", fields["auth_req_id"])
}
