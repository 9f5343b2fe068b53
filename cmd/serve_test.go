package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePort_FlagSet(t *testing.T) {
	assert.Equal(t, 9090, resolvePort(9090, 8080))
}

func TestResolvePort_FlagZero(t *testing.T) {
	assert.Equal(t, 8080, resolvePort(0, 8080))
}

func TestStartServer_GracefulShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	errCh := make(chan error, 1)
	go func() {
		errCh <- startServer(ctx, mux, port)
	}()

	var ready bool
	for i := 0; i < 50; i++ {
		resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/health", port))
		if err == nil {
			_ = resp.Body.Close()
			ready = resp.StatusCode == http.StatusOK
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.True(t, ready, "server did not become ready in time")

	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down in time")
	}
}

func TestStartServer_PortInUse(t *testing.T) {
	l, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer l.Close() //nolint:errcheck

	port := l.Addr().(*net.TCPAddr).Port
	err = startServer(context.Background(), http.NewServeMux(), port)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server listen")
}
