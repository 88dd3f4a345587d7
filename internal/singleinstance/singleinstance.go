package singleinstance

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"time"

	"go.uber.org/zap"
)

// ErrAlreadyRunning means another instance holds the socket. The
// caller should Notify it and exit.
var ErrAlreadyRunning = errors.New("another instance is already running")

// Launch carries what a secondary instance was started with, so the
// primary can surface it to the UI.
type Launch struct {
	Args []string `json:"args"`
	Cwd  string   `json:"cwd"`
}

// Lock is the primary instance's side of the socket.
type Lock struct {
	listener net.Listener
	path     string
	logger   *zap.Logger
}

// Acquire claims the instance socket. If a live instance already
// listens there it returns ErrAlreadyRunning; a stale socket file left
// by a crashed process is removed and re-claimed.
func Acquire(path string, logger *zap.Logger) (*Lock, error) {
	if conn, err := net.DialTimeout("unix", path, time.Second); err == nil {
		conn.Close()
		return nil, ErrAlreadyRunning
	}

	if _, err := os.Stat(path); err == nil {
		if err := os.Remove(path); err != nil {
			return nil, err
		}
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}

	return &Lock{listener: listener, path: path, logger: logger}, nil
}

// Serve accepts launch notifications from secondary instances until
// the context is cancelled, invoking handler once per notification.
func (l *Lock) Serve(ctx context.Context, handler func(Launch)) error {
	go func() {
		<-ctx.Done()
		l.listener.Close()
	}()
	defer os.Remove(l.path)

	for {
		conn, err := l.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		go func() {
			defer conn.Close()
			conn.SetReadDeadline(time.Now().Add(5 * time.Second))

			var launch Launch
			if err := json.NewDecoder(conn).Decode(&launch); err != nil {
				l.logger.Warn("Malformed launch notification", zap.Error(err))
				return
			}
			l.logger.Info("Secondary instance launched",
				zap.Strings("args", launch.Args),
				zap.String("cwd", launch.Cwd))
			handler(launch)
		}()
	}
}

// Notify tells the primary instance about this launch. Called by the
// secondary right before it exits.
func Notify(path string, launch Launch) error {
	conn, err := net.DialTimeout("unix", path, time.Second)
	if err != nil {
		return err
	}
	defer conn.Close()

	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return json.NewEncoder(conn).Encode(launch)
}
