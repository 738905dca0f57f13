package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nfviz.dev/core/log"
)

func TestExecute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, ExecutePath, r.URL.Path)
		assert.True(t, strings.HasPrefix(r.UserAgent(), "nfviz/"), r.UserAgent())

		var req ExecuteRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, ExecuteRequest{StepID: "create-sa", Phase: "setup"}, req)

		io.WriteString(w, "data: {\"status\":\"complete\"}\n\n")
	}))
	defer srv.Close()

	c := NewClient(srv.URL + "/")
	body, err := c.Execute(context.Background(), ExecuteRequest{StepID: "create-sa", Phase: "setup"})
	require.NoError(t, err)
	defer body.Close()

	b, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "data: {\"status\":\"complete\"}\n\n", string(b))
}

func TestExecuteNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Execute(context.Background(), ExecuteRequest{StepID: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrHTTPStatus)
	assert.Equal(t, "HTTP error: status 502", err.Error())
}

func TestStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, StatusPath, r.URL.Path)
		io.WriteString(w, `{"bucket":{"exists":true,"location":"gs://demo"},"tasks":{"fastqc":"running"},"pipelineRunning":true,"allComplete":false}`)
	}))
	defer srv.Close()

	snap, err := NewClient(srv.URL).Status(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.Bucket.Exists)
	assert.Equal(t, "gs://demo", snap.Bucket.Location)
	assert.Equal(t, "running", snap.Tasks["fastqc"])
	assert.True(t, snap.PipelineRunning)
	assert.False(t, snap.AllComplete)
}

func TestStatusMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"bucket":`)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Status(context.Background())
	assert.ErrorContains(t, err, "decoding status")
}

func TestWaitReadyRetries(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, `{"status":"healthy","project":"demo"}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithLogger(log.Discard()))
	h, err := c.WaitReady(context.Background(), 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "healthy", h.Status)
	assert.Equal(t, int32(3), hits.Load())
}

func TestWaitReadyTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithLogger(log.Discard()))
	_, err := c.WaitReady(context.Background(), 300*time.Millisecond)
	assert.Error(t, err)
}
