package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/terminal-planner/pkg/errors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	opts = append([]Option{WithRetry(RetryPolicy{MinWait: time.Millisecond, MaxWait: 5 * time.Millisecond})}, opts...)
	c, err := NewClient(server.URL, opts...)
	require.NoError(t, err)
	return c
}

type testLogger struct {
	count int32
}

func (l *testLogger) Debugf(string, ...interface{}) { atomic.AddInt32(&l.count, 1) }
func (l *testLogger) Infof(string, ...interface{})  { atomic.AddInt32(&l.count, 1) }
func (l *testLogger) Errorf(string, ...interface{}) { atomic.AddInt32(&l.count, 1) }

func TestNewClient(t *testing.T) {
	c, err := NewClient("http://planner.example/")
	require.NoError(t, err)
	assert.Equal(t, "http://planner.example", c.baseURL)
	assert.Equal(t, DefaultRetryPolicy, c.retry)
	assert.Contains(t, c.userAgent, "tplanner-go-client/")

	for _, bad := range []string{"", "ftp://planner.example", "planner.example"} {
		_, err := NewClient(bad)
		require.Error(t, err, bad)
		assert.True(t, errors.IsCode(err, errors.ErrCodeValidation), bad)
	}
}

func TestNewClient_Options(t *testing.T) {
	hc := &http.Client{Timeout: time.Second}
	logger := &testLogger{}
	c, err := NewClient("https://planner.example",
		WithHTTPClient(hc),
		WithLogger(logger),
		WithRetry(RetryPolicy{Attempts: 5, MinWait: time.Second, MaxWait: 2 * time.Second}),
		WithUserAgent("dashboard/1"),
		WithAPIKey("secret"),
	)
	require.NoError(t, err)
	assert.Same(t, hc, c.httpClient)
	assert.Equal(t, logger, c.logger)
	assert.Equal(t, RetryPolicy{Attempts: 5, MinWait: time.Second, MaxWait: 2 * time.Second}, c.retry)
	assert.Equal(t, "dashboard/1 tplanner-go-client/"+Version, c.userAgent)
	assert.Equal(t, "secret", c.apiKey)

	c, err = NewClient("https://planner.example",
		WithRetry(RetryPolicy{Attempts: -1, MinWait: 10 * time.Second}), WithUserAgent(""), WithHTTPClient(nil))
	require.NoError(t, err)
	assert.Equal(t, RetryPolicy{Attempts: 3, MinWait: 10 * time.Second, MaxWait: 10 * time.Second}, c.retry)
	assert.Equal(t, defaultUserAgent, c.userAgent)
	assert.NotNil(t, c.httpClient)

	c, err = NewClient("https://planner.example", WithoutRetry())
	require.NoError(t, err)
	assert.Zero(t, c.retry.Attempts)
}

func TestClient_Simulations_LazyInit(t *testing.T) {
	c, err := NewClient("http://planner.example")
	require.NoError(t, err)
	assert.Nil(t, c.simulations)
	s := c.Simulations()
	assert.Same(t, s, c.Simulations())
}

func TestDo_Headers(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		assert.Contains(t, r.Header.Get("User-Agent"), "tplanner-go-client/")
		_, _ = w.Write([]byte(`{"runs":[],"offset":0,"limit":20}`))
	}, WithAPIKey("secret"))

	list, err := c.Simulations().List(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 20, list.Limit)
}

func TestDo_NoAuthorizationWithoutKey(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{}`))
	})
	_, err := c.Simulations().List(context.Background(), nil)
	require.NoError(t, err)
}

func TestDo_RetriesServerErrors(t *testing.T) {
	var calls int32
	logger := &testLogger{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"id":"r1","status":"completed"}`))
	}, WithLogger(logger))

	run, err := c.Simulations().Get(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, run.Status)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Positive(t, atomic.LoadInt32(&logger.count))
}

func TestDo_GivesUpAfterRetryMax(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"code":"COMMON_001","message":"internal error"}`))
	}, WithRetry(RetryPolicy{Attempts: 2}))

	_, err := c.Simulations().Get(context.Background(), "r1")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsServerError())
	assert.Equal(t, "COMMON_001", apiErr.Code)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestDo_ClientErrorsAreNotRetried(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("X-Request-ID", "req-42")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":"SIM_002","message":"simulation run not found","detail":"r9"}`))
	})

	_, err := c.Simulations().Get(context.Background(), "r9")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsNotFound())
	assert.Equal(t, "SIM_002", apiErr.Code)
	assert.Equal(t, "r9", apiErr.Detail)
	assert.Equal(t, "req-42", apiErr.RequestID)
	assert.Contains(t, apiErr.Error(), "HTTP 404")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestDo_NonJSONErrorBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = io.WriteString(w, "run is not completed")
	})
	_, err := c.Simulations().NPV(context.Background(), "r1")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsConflict())
	assert.Equal(t, "run is not completed", apiErr.Message)
}

func TestDo_RateLimitedRetryAfter(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"id":"r1"}`))
	})
	run, err := c.Simulations().Get(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "r1", run.ID)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}, WithRetry(RetryPolicy{MinWait: time.Hour, MaxWait: time.Hour}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Simulations().Get(ctx, "r1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDo_MalformedSuccessBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "{not json")
	})
	_, err := c.Simulations().Get(context.Background(), "r1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal")
}

func TestCalculateBackoff(t *testing.T) {
	c, err := NewClient("http://planner.example", WithRetry(RetryPolicy{MinWait: 100 * time.Millisecond, MaxWait: time.Second}))
	require.NoError(t, err)
	for attempt := 1; attempt <= 6; attempt++ {
		base := 100 * time.Millisecond * time.Duration(1<<uint(attempt-1))
		if base > time.Second {
			base = time.Second
		}
		got := c.calculateBackoff(attempt)
		assert.GreaterOrEqual(t, got, base, fmt.Sprintf("attempt %d", attempt))
		assert.Less(t, got, base+base/4+time.Nanosecond, fmt.Sprintf("attempt %d", attempt))
	}
}
