package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SkybridgeApp/Skybridge/internal/config"
)

type recordingHub struct {
	events []string
}

func (h *recordingHub) Broadcast(eventType string, data interface{}) {
	h.events = append(h.events, eventType)
}

func TestNew_WebviewTargetForwardsToHub(t *testing.T) {
	hub := &recordingHub{}
	logger, err := New(config.LogConfig{Level: "info", Targets: []string{"webview"}}, hub)
	require.NoError(t, err)

	logger.Info("window ready")
	logger.Sync()

	require.NotEmpty(t, hub.events)
	assert.Equal(t, "log", hub.events[0])
}

func TestNew_FileTargetWritesUnderDir(t *testing.T) {
	dir := t.TempDir()
	logger, err := New(config.LogConfig{Level: "debug", Targets: []string{"file"}, Dir: dir}, nil)
	require.NoError(t, err)

	logger.Info("started")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(filepath.Join(dir, "skybridge.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "started")
}

func TestNew_NoTargetsYieldsNopLogger(t *testing.T) {
	logger, err := New(config.LogConfig{Level: "info"}, nil)
	require.NoError(t, err)
	logger.Info("goes nowhere")
}

func TestNew_BadLevelFallsBackToInfo(t *testing.T) {
	hub := &recordingHub{}
	logger, err := New(config.LogConfig{Level: "chatty", Targets: []string{"webview"}}, hub)
	require.NoError(t, err)

	logger.Debug("below info, suppressed")
	logger.Info("visible")

	assert.Len(t, hub.events, 1)
}
