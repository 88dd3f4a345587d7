package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/SkybridgeApp/Skybridge/internal/config"
	"github.com/SkybridgeApp/Skybridge/internal/forward"
	"github.com/SkybridgeApp/Skybridge/internal/middlewares"
	"github.com/SkybridgeApp/Skybridge/internal/passthrough"
	"github.com/SkybridgeApp/Skybridge/internal/websocket"
)

// Metrics is what the server records about forwarded calls.
type Metrics interface {
	ObserveForward(outcome string, duration time.Duration)
}

// InvokeRequest is the command envelope the webview posts. The bridge
// currently dispatches a single command, "fetch".
type InvokeRequest struct {
	Cmd     string          `json:"cmd"`
	Payload json.RawMessage `json:"payload"`
}

// InvokeResponse mirrors the plugin-style reply shape: data on
// success, a short human-readable string on failure.
type InvokeResponse struct {
	Success bool        `json:"success"`
	Error   string      `json:"error,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// Server is the loopback HTTP surface the webview talks to.
type Server struct {
	config    *config.Config
	forwarder *forward.Forwarder
	hub       *websocket.Hub
	sessions  *passthrough.Manager
	metrics   Metrics
	logger    *zap.Logger
	server    *http.Server

	metricsHandler http.Handler
}

func NewServer(
	cfg *config.Config,
	forwarder *forward.Forwarder,
	hub *websocket.Hub,
	sessions *passthrough.Manager,
	metrics Metrics,
	metricsHandler http.Handler,
	logger *zap.Logger,
) *Server {
	return &Server{
		config:         cfg,
		forwarder:      forwarder,
		hub:            hub,
		sessions:       sessions,
		metrics:        metrics,
		metricsHandler: metricsHandler,
		logger:         logger,
	}
}

func (s *Server) Start() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/invoke", s.handleInvoke)
	mux.HandleFunc("/api/sessions", s.handleSessions)
	mux.HandleFunc("/api/sessions/", s.handleCloseSession)

	mux.HandleFunc("/ws", s.hub.ServeWS)
	mux.HandleFunc("/ws/connect", s.sessions.ServeWS)

	if s.metricsHandler != nil {
		mux.Handle("/metrics", s.metricsHandler)
	}

	mux.HandleFunc(
		"/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		},
	)

	s.server = &http.Server{
		Addr:         s.config.Bridge.ListenAddr,
		Handler:      middlewares.CORS(mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // forwarded calls may legitimately run long
	}

	s.logger.Info("Bridge listening", zap.String("addr", s.config.Bridge.ListenAddr))
	return s.server.ListenAndServe()
}

func (s *Server) Stop() error {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var invoke InvokeRequest
	if err := json.NewDecoder(r.Body).Decode(&invoke); err != nil {
		s.writeInvokeError(w, "malformed invoke envelope")
		return
	}

	switch invoke.Cmd {
	case "fetch":
		s.handleFetch(w, r, invoke.Payload)
	default:
		s.writeInvokeError(w, fmt.Sprintf("unknown command: %s", invoke.Cmd))
	}
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request, payload json.RawMessage) {
	var req forward.Request
	if err := json.Unmarshal(payload, &req); err != nil {
		s.writeInvokeError(w, "malformed fetch payload")
		return
	}

	start := time.Now()
	resp, err := s.forwarder.Forward(r.Context(), req)
	if s.metrics != nil {
		s.metrics.ObserveForward(outcome(err), time.Since(start))
	}
	if err != nil {
		s.logger.Info("Forward failed",
			zap.String("method", req.Method),
			zap.String("url", req.URL),
			zap.Error(err))
		s.writeInvokeError(w, shortError(err))
		return
	}

	s.logger.Info("Forwarded request",
		zap.String("method", req.Method),
		zap.String("url", req.URL),
		zap.Uint16("status", resp.Status))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(InvokeResponse{Success: true, Data: resp})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.sessions.Sessions())
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Path[len("/api/sessions/"):]
	if !s.sessions.Close(id) {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeInvokeError(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(InvokeResponse{Success: false, Error: msg})
}

// outcome buckets a forward result for the metrics counter.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, forward.ErrInvalidMethod):
		return "invalid_method"
	case errors.Is(err, forward.ErrDecode):
		return "decode_failed"
	case errors.Is(err, forward.ErrTransport):
		return "transport_failed"
	default:
		return "error"
	}
}

// shortError reduces a classified failure to the static string the UI
// shows the user.
func shortError(err error) string {
	for _, sentinel := range []error{
		forward.ErrClientInit,
		forward.ErrInvalidMethod,
		forward.ErrTransport,
		forward.ErrDecode,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}
