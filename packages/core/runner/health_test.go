package runner

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/reqx/packages/core/env"
	"github.com/abdul-hamid-achik/reqx/packages/http"
)

const healthDoc = `
[request]
method = "GET"
url = "{{base}}/health"

[assert]
status = 200
`

func TestHealthCheck_BecomesReady(t *testing.T) {
	var calls atomic.Int32
	ft := newFakeTransport()
	ft.routes["GET /health"] = func(*http.Request) (*http.Response, error) {
		if calls.Add(1) < 3 {
			return &http.Response{StatusCode: 503}, nil
		}
		return &http.Response{StatusCode: 200}, nil
	}

	o := New(ft).HealthCheck(context.Background(), doc(t, "health", healthDoc), testEnv(nil), HealthOptions{
		Interval: 10 * time.Millisecond,
		Timeout:  2 * time.Second,
	})

	assert.Equal(t, Pass, o.Classification)
	assert.Equal(t, 3, o.Attempts)
}

func TestHealthCheck_TimesOut(t *testing.T) {
	ft := newFakeTransport()
	ft.on("GET /health", 500, `{}`)

	start := time.Now()
	o := New(ft).HealthCheck(context.Background(), doc(t, "health", healthDoc), testEnv(nil), HealthOptions{
		Interval: 50 * time.Millisecond,
		Timeout:  300 * time.Millisecond,
	})
	elapsed := time.Since(start)

	assert.Equal(t, ExecutionError, o.Classification)
	var nr *NotReadyError
	require.True(t, errors.As(o.Err, &nr))
	assert.Greater(t, nr.Attempts, 1)
	assert.Contains(t, nr.Error(), "status")
	assert.GreaterOrEqual(t, elapsed, 250*time.Millisecond)
	assert.Less(t, elapsed, 2*time.Second)
}

func TestHealthCheck_TransportErrorsKeepPolling(t *testing.T) {
	var calls atomic.Int32
	ft := newFakeTransport()
	ft.routes["GET /health"] = func(req *http.Request) (*http.Response, error) {
		if calls.Add(1) == 1 {
			return nil, &http.TransportError{Method: req.Method, URL: req.URL, Err: errors.New("connection refused")}
		}
		return &http.Response{StatusCode: 200}, nil
	}

	o := New(ft).HealthCheck(context.Background(), doc(t, "health", healthDoc), testEnv(nil), HealthOptions{
		Interval: 10 * time.Millisecond,
		Timeout:  time.Second,
	})

	assert.Equal(t, Pass, o.Classification)
	assert.Equal(t, 2, o.Attempts)
}

func TestHealthCheck_TemplatingErrorFailsFast(t *testing.T) {
	ft := newFakeTransport()

	start := time.Now()
	o := New(ft).HealthCheck(context.Background(), doc(t, "health", healthDoc), &env.Environment{Name: "empty", Variables: map[string]any{}}, HealthOptions{
		Interval: 10 * time.Millisecond,
		Timeout:  5 * time.Second,
	})

	assert.Equal(t, ExecutionError, o.Classification)
	assert.Equal(t, PhaseTemplating, o.Phase)
	assert.Less(t, time.Since(start), time.Second)
	assert.Empty(t, ft.urls())
}

func TestHealthCheck_Canceled(t *testing.T) {
	ft := newFakeTransport()
	ft.on("GET /health", 500, `{}`)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	o := New(ft).HealthCheck(ctx, doc(t, "health", healthDoc), testEnv(nil), HealthOptions{
		Interval: 10 * time.Millisecond,
		Timeout:  5 * time.Second,
	})

	assert.Equal(t, Skipped, o.Classification)
}
