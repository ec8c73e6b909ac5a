package httputil

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(method, url string) RequestConfig {
	config := DefaultRequestConfig(method, url)
	config.InitialBackoff = time.Millisecond
	config.MaxBackoff = 5 * time.Millisecond
	return config
}

func TestRequestRetriesUntilSuccess(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"q":"pulse"}`, string(body), "payload is resent on every attempt")
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`ok`))
	}))
	defer srv.Close()

	resp, err := Request(context.Background(), fastRetry(http.MethodPost, srv.URL), map[string]string{"q": "pulse"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(resp.Body))
	assert.Equal(t, int32(3), calls.Load())
}

func TestRequestStatusErrorWithoutRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "k", r.Header.Get("X-Api-Key"))
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("down"))
	}))
	defer srv.Close()

	config := DefaultRequestConfig(http.MethodGet, srv.URL)
	config.RetryEnabled = false
	config.Headers = map[string][]string{"X-Api-Key": {"k"}}

	resp, err := Request(context.Background(), config, nil)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	require.NotNil(t, resp)
	assert.Equal(t, "down", string(resp.Body))
	assert.Equal(t, int32(1), calls.Load())
}

func TestRequestGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	config := fastRetry(http.MethodGet, srv.URL)
	config.MaxRetries = 2

	_, err := Request(context.Background(), config, nil)
	assert.Error(t, err)
	assert.Equal(t, int32(3), calls.Load(), "one attempt plus two retries")
}

func TestRequestInvalidURLIsPermanent(t *testing.T) {
	_, err := Request(context.Background(), fastRetry("BAD METHOD", "http://example.invalid"), nil)
	assert.ErrorContains(t, err, "failed to create request")
}

func TestRequestResponseHandler(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Rate-Limit", "0")
	}))
	defer srv.Close()

	config := DefaultRequestConfig(http.MethodGet, srv.URL)
	config.RetryEnabled = false
	limited := errors.New("rate limited")
	config.ResponseHandler = func(resp *http.Response) error {
		if resp.Header.Get("X-Rate-Limit") == "0" {
			return limited
		}
		return nil
	}

	_, err := Request(context.Background(), config, nil)
	assert.ErrorIs(t, err, limited)
}
