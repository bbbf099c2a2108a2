package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestStartEnd_RecordsError(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	ctx, span := Start(context.Background(), "token.Handle", Tenant("acme"))
	require.NotEmpty(t, TraceID(ctx))
	End(span, errors.New("boom"))

	ended := rec.Ended()
	require.Len(t, ended, 1)
	require.Equal(t, "token.Handle", ended[0].Name())
	require.Equal(t, codes.Error, ended[0].Status().Code)
}

func TestInit_Disabled(t *testing.T) {
	shutdown, err := Init(Config{})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
	require.Empty(t, TraceID(context.Background()))
}
