package singleinstance

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAcquireNotifyRoundTrip(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "instance.sock")

	lock, err := Acquire(socket, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan Launch, 1)
	done := make(chan error, 1)
	go func() {
		done <- lock.Serve(ctx, func(l Launch) { received <- l })
	}()

	require.NoError(t, Notify(socket, Launch{
		Args: []string{"--open", "file.txt"},
		Cwd:  "/home/user",
	}))

	select {
	case launch := <-received:
		assert.Equal(t, []string{"--open", "file.txt"}, launch.Args)
		assert.Equal(t, "/home/user", launch.Cwd)
	case <-time.After(5 * time.Second):
		t.Fatal("launch notification never arrived")
	}

	cancel()
	require.NoError(t, <-done)
}

func TestAcquire_SecondInstanceRefused(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "instance.sock")

	lock, err := Acquire(socket, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go lock.Serve(ctx, func(Launch) {})
	defer cancel()

	_, err = Acquire(socket, zap.NewNop())
	assert.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestAcquire_ReclaimsStaleSocket(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "instance.sock")

	first, err := Acquire(socket, zap.NewNop())
	require.NoError(t, err)

	// Simulate a crash: the socket file stays behind with nobody
	// listening.
	first.listener.Close()

	second, err := Acquire(socket, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go second.Serve(ctx, func(Launch) {})

	require.NoError(t, Notify(socket, Launch{Cwd: "/tmp"}))
}

func TestNotify_NoPrimary(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "missing.sock")
	assert.Error(t, Notify(socket, Launch{}))
}
