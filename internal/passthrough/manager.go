package passthrough

import (
	"crypto/tls"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// SessionGauge tracks how many relays are currently open.
type SessionGauge interface {
	Inc()
	Dec()
}

type noopGauge struct{}

func (noopGauge) Inc() {}
func (noopGauge) Dec() {}

// Session is the caller-visible description of one open relay.
type Session struct {
	ID       string    `json:"id"`
	URL      string    `json:"url"`
	OpenedAt time.Time `json:"opened_at"`
}

type session struct {
	Session
	local  *websocket.Conn
	remote *websocket.Conn
	once   sync.Once
}

func (s *session) close() {
	s.once.Do(func() {
		s.local.Close()
		s.remote.Close()
	})
}

// Manager relays WebSocket frames between the webview and an arbitrary
// remote endpoint. The remote dial uses the same TLS policy as the
// HTTP forwarder, so both channels behave identically toward hosts
// with broken certificates.
type Manager struct {
	dialer   *websocket.Dialer
	upgrader websocket.Upgrader
	logger   *zap.Logger
	gauge    SessionGauge

	mu       sync.RWMutex
	sessions map[string]*session
}

func NewManager(insecureTLS bool, logger *zap.Logger, gauge SessionGauge) *Manager {
	if gauge == nil {
		gauge = noopGauge{}
	}
	return &Manager{
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 45 * time.Second,
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: insecureTLS,
			},
		},
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger:   logger,
		gauge:    gauge,
		sessions: make(map[string]*session),
	}
}

// ServeWS upgrades the UI connection, dials the remote URL from the
// "url" query parameter and pumps frames both ways until either side
// closes.
func (m *Manager) ServeWS(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("url")
	if target == "" {
		http.Error(w, "url parameter is required", http.StatusBadRequest)
		return
	}

	remote, resp, err := m.dialer.Dial(target, nil)
	if err != nil {
		m.logger.Warn("Passthrough dial failed", zap.String("url", target), zap.Error(err))
		status := http.StatusBadGateway
		if resp != nil {
			status = resp.StatusCode
		}
		http.Error(w, "failed to connect to remote endpoint", status)
		return
	}

	local, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Warn("Passthrough upgrade failed", zap.Error(err))
		remote.Close()
		return
	}

	s := &session{
		Session: Session{
			ID:       uuid.New().String(),
			URL:      target,
			OpenedAt: time.Now(),
		},
		local:  local,
		remote: remote,
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	m.gauge.Inc()
	m.logger.Info("Passthrough session opened", zap.String("id", s.ID), zap.String("url", target))

	go m.pump(s, local, remote)
	go m.pump(s, remote, local)
}

// pump copies frames in one direction and tears the session down on
// the first error from either side.
func (m *Manager) pump(s *session, from, to *websocket.Conn) {
	defer m.teardown(s)

	for {
		messageType, payload, err := from.ReadMessage()
		if err != nil {
			return
		}
		if err := to.WriteMessage(messageType, payload); err != nil {
			return
		}
	}
}

func (m *Manager) teardown(s *session) {
	s.close()

	m.mu.Lock()
	_, open := m.sessions[s.ID]
	delete(m.sessions, s.ID)
	m.mu.Unlock()

	if open {
		m.gauge.Dec()
		m.logger.Info("Passthrough session closed", zap.String("id", s.ID))
	}
}

// Sessions lists the currently open relays.
func (m *Manager) Sessions() []Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s.Session)
	}
	return sessions
}

// Close shuts down one relay by id.
func (m *Manager) Close(id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		s.close()
		m.gauge.Dec()
		m.logger.Info("Passthrough session closed", zap.String("id", id))
	}
	return ok
}

// CloseAll is called on shutdown.
func (m *Manager) CloseAll() {
	m.mu.RLock()
	open := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		open = append(open, s)
	}
	m.mu.RUnlock()

	for _, s := range open {
		s.close()
	}
}
