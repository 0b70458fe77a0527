package server

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig(okHandler())

	assert.Equal(t, ":8080", config.Address)
	assert.Equal(t, 15*time.Second, config.ReadTimeout)
	assert.Equal(t, 15*time.Second, config.WriteTimeout)
	assert.Equal(t, 60*time.Second, config.IdleTimeout)
	assert.Equal(t, 30*time.Second, config.ShutdownTimeout)
}

func TestNew_Invalid(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	_, err = New(&Config{Address: ":0"})
	assert.Error(t, err)
}

func TestRun_ServesUntilCancelled(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	config := DefaultConfig(okHandler())
	config.Address = "127.0.0.1:0"
	config.ShutdownTimeout = 2 * time.Second
	config.Logger = zap.New(core)

	srv, err := New(config)
	require.NoError(t, err)
	require.NoError(t, srv.Listen())

	var hooks []int
	srv.RegisterHook(func(context.Context) error {
		hooks = append(hooks, 1)
		return errors.New("flush failed")
	})
	srv.RegisterHook(func(context.Context) error {
		hooks = append(hooks, 2)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	resp, err := http.Get("http://" + srv.Addr() + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "OK", string(body))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}

	assert.Equal(t, []int{1, 2}, hooks)
	assert.Equal(t, 1, logs.FilterMessage("shutdown hook failed").Len())
	assert.Equal(t, 1, logs.FilterMessage("shutdown complete").Len())
}

func TestRun_ListenError(t *testing.T) {
	config := DefaultConfig(okHandler())
	config.Address = "127.0.0.1:-1"

	srv, err := New(config)
	require.NoError(t, err)
	assert.Error(t, srv.Run(context.Background()))
}

func TestConfigurePool(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	err = ConfigurePool(context.Background(), db, PoolConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: time.Minute,
	})
	require.NoError(t, err)
	assert.Equal(t, 25, db.Stats().MaxOpenConnections)

	assert.Error(t, ConfigurePool(context.Background(), nil, PoolConfig{}))
}
