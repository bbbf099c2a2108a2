package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fastConfig() Config {
	return Config{Timeout: time.Second, MaxAttempts: 3, InitialInterval: time.Millisecond}
}

func TestSend_PingWithBearer(t *testing.T) {
	var got PingPayload
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := New(fastConfig(), srv.Client()).Send(context.Background(), srv.URL, "tok-1", PingPayload{AuthReqID: "ar-1"})
	require.NoError(t, err)
	require.Equal(t, "Bearer tok-1", auth)
	require.Equal(t, "ar-1", got.AuthReqID)
}

func TestSend_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := New(fastConfig(), srv.Client()).Send(context.Background(), srv.URL, "tok", PingPayload{AuthReqID: "ar"})
	require.NoError(t, err)
	require.Equal(t, int32(2), calls.Load())
}

func TestSend_ClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := New(fastConfig(), srv.Client()).Send(context.Background(), srv.URL, "tok", ErrorPayload{AuthReqID: "ar", Error: "access_denied"})
	require.Error(t, err)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	require.Equal(t, http.StatusBadRequest, se.StatusCode)
	require.Equal(t, int32(1), calls.Load())
}

func TestSend_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := New(fastConfig(), srv.Client()).Send(context.Background(), srv.URL, "tok", PingPayload{AuthReqID: "ar"})
	require.Error(t, err)
	require.Equal(t, int32(3), calls.Load())
}
