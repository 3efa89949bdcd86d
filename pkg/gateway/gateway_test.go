package gateway

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowdeck/flowdeck/pkg/models"
	"github.com/flowdeck/flowdeck/pkg/platforms"
)

func testClient(opts ...Option) *Client {
	return NewClient(slog.Default(), opts...)
}

func TestDo_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-Test-Key"))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	header := http.Header{}
	header.Set("X-Test-Key", "secret")

	resp, err := testClient().Do(t.Context(), &Request{
		Platform:   models.PlatformN8N,
		Op:         "Get",
		Method:     http.MethodGet,
		URL:        server.URL,
		Header:     header,
		Idempotent: true,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"ok":true}`, string(resp.Body))
}

func TestDo_RetriesIdempotentOnServerError(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)

			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	resp, err := testClient().Do(t.Context(), &Request{
		Platform:   models.PlatformN8N,
		Op:         "List",
		Method:     http.MethodGet,
		URL:        server.URL,
		Idempotent: true,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDo_ExhaustedRetriesReturnUnreachable(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := testClient().Do(t.Context(), &Request{
		Platform:   models.PlatformN8N,
		Op:         "List",
		Method:     http.MethodGet,
		URL:        server.URL,
		Idempotent: true,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, platforms.ErrUpstreamUnreachable)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDo_WriteNotRetriedAfterResponse(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := testClient().Do(t.Context(), &Request{
		Platform: models.PlatformN8N,
		Op:       "SetStatus",
		Method:   http.MethodPost,
		URL:      server.URL,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, platforms.ErrUpstreamUnreachable)

	// A response arrived; the write must not be replayed into a
	// partial-success ambiguity.
	assert.Equal(t, int32(1), calls.Load())
}

func TestDo_WriteRetriedOnConnectionFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // connection refused from the first attempt

	started := time.Now()

	_, err := testClient().Do(t.Context(), &Request{
		Platform: models.PlatformN8N,
		Op:       "SetStatus",
		Method:   http.MethodPost,
		URL:      server.URL,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, platforms.ErrUpstreamUnreachable)

	// Two attempts with one backoff between them.
	assert.GreaterOrEqual(t, time.Since(started), baseBackoff)
}

func TestDo_AuthFailureNotRetried(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := testClient().Do(t.Context(), &Request{
		Platform:   models.PlatformMake,
		Op:         "List",
		Method:     http.MethodGet,
		URL:        server.URL,
		Idempotent: true,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, platforms.ErrUpstreamAuthFailed)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDo_ForbiddenMapsToAuthFailed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	_, err := testClient().Do(t.Context(), &Request{
		Platform:   models.PlatformMake,
		Op:         "Get",
		Method:     http.MethodGet,
		URL:        server.URL,
		Idempotent: true,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, platforms.ErrUpstreamAuthFailed)
}

func TestDo_NotFoundMapsToWorkflowNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := testClient().Do(t.Context(), &Request{
		Platform:   models.PlatformN8N,
		Op:         "Get",
		Method:     http.MethodGet,
		URL:        server.URL,
		Idempotent: true,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, platforms.ErrWorkflowNotFound)
}

func TestDo_TimeoutMapsToUpstreamTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := testClient(WithTimeout(20 * time.Millisecond))

	_, err := client.Do(t.Context(), &Request{
		Platform: models.PlatformN8N,
		Op:       "SetStatus",
		Method:   http.MethodPost,
		URL:      server.URL,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, platforms.ErrUpstreamTimeout)
}

func TestDo_ErrorCarriesPlatformAndOp(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := testClient().Do(t.Context(), &Request{
		Platform:   models.PlatformMake,
		Op:         "Get",
		Method:     http.MethodGet,
		URL:        server.URL,
		Idempotent: true,
	})
	require.Error(t, err)

	var upstreamErr *platforms.UpstreamError

	require.ErrorAs(t, err, &upstreamErr)
	assert.Equal(t, models.PlatformMake, upstreamErr.Platform)
	assert.Equal(t, "Get", upstreamErr.Op)
	assert.Equal(t, http.StatusNotFound, upstreamErr.StatusCode)
}

func TestBackoffFor_Caps(t *testing.T) {
	assert.Equal(t, baseBackoff, backoffFor(1))
	assert.Equal(t, 2*baseBackoff, backoffFor(2))
	assert.Equal(t, maxBackoff, backoffFor(5))
}
