package main

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-affiliates/pkg/config"
	"github.com/angelmondragon/storefront-affiliates/pkg/logger"
)

func TestListenPortPrefersPlatformPort(t *testing.T) {
	cfg := &config.Config{}
	cfg.App.Port = "8080"

	t.Setenv("PORT", "")
	assert.Equal(t, "8080", listenPort(cfg))

	t.Setenv("PORT", "5000")
	assert.Equal(t, "5000", listenPort(cfg))
}

func TestServeShutsDownOnCancel(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	server := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, logg, server) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
}

func TestServeReportsListenErrors(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	err := serve(context.Background(), logg, &http.Server{Addr: "not-an-address"})
	assert.Error(t, err)
}
