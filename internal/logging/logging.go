package logging

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/SkybridgeApp/Skybridge/internal/config"
)

// Broadcaster is the piece of the UI hub the webview sink needs.
type Broadcaster interface {
	Broadcast(eventType string, data interface{})
}

// New builds the process logger from the configured targets: "stdout"
// writes console lines, "file" appends JSON lines under the log
// directory, "webview" mirrors each entry to the UI console over the
// event hub.
func New(cfg config.LogConfig, hub Broadcaster) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var cores []zapcore.Core
	for _, target := range cfg.Targets {
		switch target {
		case "stdout":
			encoder := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
			cores = append(cores, zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), level))

		case "file":
			if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
				return nil, err
			}
			file, err := os.OpenFile(
				filepath.Join(cfg.Dir, "skybridge.log"),
				os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return nil, err
			}
			encoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
			cores = append(cores, zapcore.NewCore(encoder, zapcore.Lock(file), level))

		case "webview":
			if hub == nil {
				continue
			}
			encoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
			cores = append(cores, zapcore.NewCore(encoder, &hubSink{hub: hub}, level))
		}
	}

	if len(cores) == 0 {
		return zap.NewNop(), nil
	}
	return zap.New(zapcore.NewTee(cores...)), nil
}

// hubSink forwards each encoded log line to the UI as a "log" event.
type hubSink struct {
	hub Broadcaster
}

func (s *hubSink) Write(p []byte) (int, error) {
	s.hub.Broadcast("log", string(p))
	return len(p), nil
}

func (s *hubSink) Sync() error { return nil }
