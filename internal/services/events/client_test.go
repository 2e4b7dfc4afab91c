package events

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientPostDecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"accepted": true}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	defer client.Close()

	var result map[string]bool
	err := client.Post("", map[string]string{"hello": "world"}, &result, nil)

	require.NoError(t, err)
	assert.True(t, result["accepted"])
}

func TestClientRetriesServerErrors(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	defer client.Close()

	err := client.Post("", map[string]string{"x": "y"}, nil, &RequestOptions{
		Retries:    3,
		RetryDelay: time.Millisecond,
	})

	require.NoError(t, err)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	defer client.Close()

	err := client.Post("", map[string]string{"x": "y"}, nil, &RequestOptions{
		Retries:    3,
		RetryDelay: time.Millisecond,
	})

	require.Error(t, err)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestClientGivesUpAfterRetryBudget(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	defer client.Close()

	err := client.Post("", map[string]string{"x": "y"}, nil, &RequestOptions{
		Retries:    2,
		RetryDelay: time.Millisecond,
	})

	require.Error(t, err)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestClientSendsCustomHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer some-token", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	defer client.Close()

	err := client.Post("", map[string]string{"x": "y"}, nil, &RequestOptions{
		Headers:    map[string]string{"Authorization": "Bearer some-token"},
		RetryDelay: time.Millisecond,
	})

	require.NoError(t, err)
}

func TestClientGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	defer client.Close()

	var result map[string]string
	err := client.Get("/status", &result, &RequestOptions{RetryDelay: time.Millisecond})

	require.NoError(t, err)
	assert.Equal(t, "ok", result["status"])
}
