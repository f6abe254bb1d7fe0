package web_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gossipmesh/gossipmesh"
	"github.com/gossipmesh/gossipmesh/internal/fixtures"
	"github.com/gossipmesh/gossipmesh/pkg/healthcheck"
	"github.com/gossipmesh/gossipmesh/pkg/overlay"
	"github.com/gossipmesh/gossipmesh/pkg/registry"
	"github.com/gossipmesh/gossipmesh/pkg/web"
)

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestStatusServerShutsdown(t *testing.T) {
	testCtx, completed := testContext()
	defer completed()

	ss, err := web.NewStatusServer(
		fixtures.NewTestLogger(t),
		"TestStatusServerShutsdown",
		"127.0.0.1:0", // should pick a random port to bind to
		false,
		false,
		false,
		true,
		nil,
		nil,
		nil,
		nil,
		nil,
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(testCtx)
	chDone := make(chan struct{}, 1)
	go func() {
		ss.Run(ctx)
		chDone <- struct{}{}
	}()

	cancel()
	select {
	case <-testCtx.Done():
	case <-chDone:
	}
}

func TestStatusServerRequiresRoutes(t *testing.T) {
	t.Parallel()
	_, err := web.NewStatusServer(fixtures.NewTestLogger(t), "test", "127.0.0.1:0",
		false, false, false, false, nil, nil, nil, nil, nil)
	require.Error(t, err)
}

func TestStatusServerRequiresAddress(t *testing.T) {
	t.Parallel()
	_, err := web.NewStatusServer(fixtures.NewTestLogger(t), "test", "",
		false, false, false, true, nil, nil, nil, nil, nil)
	require.Error(t, err)
}

func TestHealthcheckEndpoints(t *testing.T) {
	t.Parallel()
	selfChecks := []healthcheck.Check{
		func() (string, bool) {
			return "server running", true
		},
	}
	meshChecks := []healthcheck.Check{
		func() (string, bool) {
			return "no nodes registered", false
		},
	}
	ss, err := web.NewStatusServer(fixtures.NewTestLogger(t), "test", "127.0.0.1:0",
		false, false, false, true, nil, nil, nil, selfChecks, meshChecks)
	require.NoError(t, err)

	srv := httptest.NewServer(ss.Router)
	defer srv.Close()

	status, body := get(t, srv.URL+"/healthcheck")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"ok":["server running"],"failed":[]}`, body)

	status, body = get(t, srv.URL+"/deepcheck")
	require.Equal(t, http.StatusInternalServerError, status)
	assert.JSONEq(t, `{"ok":[],"failed":["no nodes registered"]}`, body)
}

func TestPeersEndpoint(t *testing.T) {
	t.Parallel()
	source := &staticStatus{
		self: gossipmesh.Address{Host: "127.0.0.1", Port: 8000},
		peers: []gossipmesh.Address{
			{Host: "127.0.0.1", Port: 8001},
			{Host: "127.0.0.1", Port: 8002},
		},
		bootstrapped: time.Date(2024, 3, 5, 17, 28, 19, 0, time.UTC),
	}
	ss, err := web.NewStatusServer(fixtures.NewTestLogger(t), "test", "127.0.0.1:0",
		false, false, false, false, source, nil, nil, nil, nil)
	require.NoError(t, err)

	srv := httptest.NewServer(ss.Router)
	defer srv.Close()

	status, body := get(t, srv.URL+"/peers")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{
		"self": {"host": "127.0.0.1", "port": 8000},
		"peers": [
			{"host": "127.0.0.1", "port": 8001},
			{"host": "127.0.0.1", "port": 8002}
		],
		"bootstrapped_at": "2024-03-05T17:28:19Z"
	}`, body)
}

func TestRegistryEndpoint(t *testing.T) {
	t.Parallel()
	source := &staticStatus{
		entries: []registry.Entry{
			{
				Addr:         gossipmesh.Address{Host: "127.0.0.1", Port: 8000},
				RegisteredAt: time.Date(2024, 3, 5, 17, 28, 19, 0, time.UTC),
			},
		},
	}
	ss, err := web.NewStatusServer(fixtures.NewTestLogger(t), "test", "127.0.0.1:0",
		false, false, false, false, nil, source, nil, nil, nil)
	require.NoError(t, err)

	srv := httptest.NewServer(ss.Router)
	defer srv.Close()

	status, body := get(t, srv.URL+"/registry")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{
		"nodes": [
			{
				"addr": {"host": "127.0.0.1", "port": 8000},
				"registered_at": "2024-03-05T17:28:19Z"
			}
		]
	}`, body)
}

func TestGossipEndpoint(t *testing.T) {
	t.Parallel()
	msg := gossipmesh.NewMessage("hello:mesh", "Designated: 127.0.0.1:8000")
	source := &staticStatus{
		log: []overlay.GossipEntry{
			{
				Message:    msg,
				ReceivedAt: time.Date(2024, 3, 5, 17, 28, 19, 0, time.UTC),
			},
		},
	}
	ss, err := web.NewStatusServer(fixtures.NewTestLogger(t), "test", "127.0.0.1:0",
		false, false, false, false, nil, nil, source, nil, nil)
	require.NoError(t, err)

	srv := httptest.NewServer(ss.Router)
	defer srv.Close()

	status, body := get(t, srv.URL+"/gossip")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, fmt.Sprintf(`{
		"messages": [
			{
				"message": {
					"payload": "hello:mesh",
					"id": "%s",
					"provenance": ["Designated: 127.0.0.1:8000"]
				},
				"received_at": "2024-03-05T17:28:19Z"
			}
		]
	}`, msg.ID), body)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	ss, err := web.NewStatusServer(fixtures.NewTestLogger(t), "test", "127.0.0.1:0",
		false, false, true, false, nil, nil, nil, nil, nil)
	require.NoError(t, err)

	srv := httptest.NewServer(ss.Router)
	defer srv.Close()

	status, body := get(t, srv.URL+"/metrics")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "gossipmesh_uptime_seconds")
}

func TestNotFound(t *testing.T) {
	t.Parallel()
	ss, err := web.NewStatusServer(fixtures.NewTestLogger(t), "test", "127.0.0.1:0",
		false, false, false, true, nil, nil, nil, nil, nil)
	require.NoError(t, err)

	srv := httptest.NewServer(ss.Router)
	defer srv.Close()

	status, body := get(t, srv.URL+"/bogus")
	require.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "404 page not found\n", body)
}
