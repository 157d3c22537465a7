package httpserver

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vidfriends/accounts/internal/config"
)

func TestNewAppliesConfig(t *testing.T) {
	cfg := config.HTTPConfig{ReadTimeout: 3 * time.Second, WriteTimeout: 20 * time.Second}
	srv := New(9090, cfg, http.NotFoundHandler())

	require.Equal(t, ":9090", srv.Addr())
	require.Equal(t, 3*time.Second, srv.inner.ReadHeaderTimeout)
	require.Equal(t, 20*time.Second, srv.inner.WriteTimeout)
	require.Equal(t, 40*time.Second, srv.inner.IdleTimeout)
}

func TestShutdownStopsStart(t *testing.T) {
	srv := New(0, config.HTTPConfig{ReadTimeout: time.Second, WriteTimeout: time.Second}, http.NotFoundHandler())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	// give ListenAndServe a moment to bind before shutting down
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	select {
	case err := <-errCh:
		require.True(t, errors.Is(err, http.ErrServerClosed), "unexpected error: %v", err)
	case <-time.After(ShutdownTimeout):
		t.Fatal("server did not stop")
	}
}
