package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"oracle-router/oracle/types"
)

func newTestSession(onMetric func(RequestMetric)) *Session {
	return NewSession(SessionConfig{
		APIKey:   "test-key",
		Retry:    testRetryConfig(),
		OnMetric: onMetric,
	}, zerolog.Nop())
}

func TestSessionGetJSON(t *testing.T) {
	var metric RequestMetric
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"),
			"It should attach the bearer credential")
		w.Write([]byte(`{"healthy":true}`))
	}))
	defer server.Close()

	session := newTestSession(func(m RequestMetric) { metric = m })

	var out struct {
		Healthy bool `json:"healthy"`
	}
	err := session.GetJSON(context.Background(), server.URL, &out)
	require.NoError(t, err, "It should successfully fetch and decode the response")
	require.True(t, out.Healthy)

	require.NotEmpty(t, metric.ID)
	require.Equal(t, http.StatusOK, metric.Status)
	require.Zero(t, metric.Retries)
	require.False(t, metric.End.Before(metric.Start))
}

func TestSessionRetriesServerErrors(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	var metric RequestMetric
	session := newTestSession(func(m RequestMetric) { metric = m })

	_, err := session.Get(context.Background(), server.URL)
	require.NoError(t, err, "It should succeed after retrying transient server errors")
	require.EqualValues(t, 3, atomic.LoadInt32(&hits))
	require.Equal(t, 2, metric.Retries)
}

func TestSessionDoesNotRetryClientErrors(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.Error(w, "no such feed", http.StatusBadRequest)
	}))
	defer server.Close()

	session := newTestSession(nil)

	_, err := session.Get(context.Background(), server.URL)
	require.Error(t, err)
	require.EqualValues(t, 1, atomic.LoadInt32(&hits),
		"It should not retry a client error")

	var oerr *types.Error
	require.ErrorAs(t, err, &oerr)
	require.Equal(t, types.KindValidation, oerr.Kind)
}

func TestSessionHonorsRetryAfter(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	session := newTestSession(nil)

	_, err := session.Get(context.Background(), server.URL)
	require.Error(t, err)

	var oerr *types.Error
	require.ErrorAs(t, err, &oerr)
	require.Equal(t, types.KindRateLimit, oerr.Kind)
	require.EqualValues(t, 1, atomic.LoadInt32(&hits),
		"It should stop hitting the upstream once the embargo is set")

	_, err = session.Get(context.Background(), server.URL)
	require.Error(t, err)
	require.EqualValues(t, 1, atomic.LoadInt32(&hits),
		"It should reject later calls locally until the embargo expires")
}

func TestSessionTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	session := NewSession(SessionConfig{
		Timeout: 20 * time.Millisecond,
		Retry:   RetryConfig{MaxAttempts: 1},
	}, zerolog.Nop())

	_, err := session.Get(context.Background(), server.URL)
	require.Error(t, err)

	var oerr *types.Error
	require.ErrorAs(t, err, &oerr)
	require.Equal(t, types.KindTimeout, oerr.Kind)
}
