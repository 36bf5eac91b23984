package agent

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffWithJitterBounds(t *testing.T) {
	initial, max := 100*time.Millisecond, time.Second
	for attempt := 0; attempt < 8; attempt++ {
		d := backoffWithJitter(initial, max, attempt)
		ceiling := initial << attempt
		if ceiling > max {
			ceiling = max
		}
		assert.GreaterOrEqual(t, d, ceiling/2)
		assert.LessOrEqual(t, d, ceiling)
	}
}

func TestRetrierStopsOnPermanentError(t *testing.T) {
	r := newRetrier(RetryConfig{Initial: time.Millisecond, MaxRetries: 5})
	calls := 0
	err := r.do(context.Background(), "test", func() error {
		calls++
		return &StatusError{Code: http.StatusForbidden}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetrierRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	api := newAPIClient(srv.URL, time.Second, newRetrier(RetryConfig{Initial: time.Millisecond, Max: 2 * time.Millisecond, MaxRetries: 3}))
	require.NoError(t, api.heartbeat(context.Background(), dummyHeartbeat()))
	assert.Equal(t, int32(3), hits.Load())
}

func TestRetrierGivesUpAfterBudget(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	api := newAPIClient(srv.URL, time.Second, newRetrier(RetryConfig{Initial: time.Millisecond, MaxRetries: 2}))
	err := api.heartbeat(context.Background(), dummyHeartbeat())
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusTooManyRequests, statusErr.Code)
	assert.Equal(t, int32(3), hits.Load())
}

func TestRetrierHonorsContext(t *testing.T) {
	r := newRetrier(RetryConfig{Initial: time.Hour, MaxRetries: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := r.do(ctx, "test", func() error { return &StatusError{Code: http.StatusBadGateway} })
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestUnauthorizedIsDetectable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid token"}`))
	}))
	defer srv.Close()

	api := newAPIClient(srv.URL, time.Second, newRetrier(RetryConfig{}))
	err := api.heartbeat(context.Background(), dummyHeartbeat())
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.ErrorContains(t, err, "invalid token")
}
