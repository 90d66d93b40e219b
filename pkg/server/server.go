package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sync"
	"time"

	"tokensite/pkg/analytics"
	"tokensite/pkg/config"
	"tokensite/pkg/models"
	"tokensite/pkg/wallet"
	"tokensite/pkg/watcher"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	maxBodyBytes    = 64 << 10
	walletTimeout   = 2 * time.Minute
	shutdownTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// eventName matches GA4 event names.
var eventName = regexp.MustCompile(`^[a-z][a-z0-9_]{0,39}$`)

type Server struct {
	watcher    *watcher.Watcher
	reconciler *wallet.Reconciler
	recorder   analytics.Recorder
	site       config.Site
	logger     *zap.Logger

	clients map[*websocket.Conn]bool
	mu      sync.Mutex
	mux     *http.ServeMux
}

func NewServer(cfg *config.AppConfig, w *watcher.Watcher, r *wallet.Reconciler, recorder analytics.Recorder, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = analytics.Nop{}
	}
	s := &Server{
		watcher:    w,
		reconciler: r,
		recorder:   recorder,
		site:       cfg.Site(),
		logger:     logger.Named("server"),
		clients:    make(map[*websocket.Conn]bool),
		mux:        http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("GET /api/site", s.handleSite)
	s.mux.HandleFunc("GET /api/market", s.handleMarket)
	s.mux.HandleFunc("POST /api/market/refresh", s.handleRefresh)
	s.mux.HandleFunc("GET /api/wallet", s.handleWallet)
	s.mux.HandleFunc("POST /api/wallet/connect", s.handleConnect)
	s.mux.HandleFunc("POST /api/wallet/network", s.handleNetwork)
	s.mux.HandleFunc("POST /api/wallet/token", s.handleToken)
	s.mux.HandleFunc("POST /api/wallet/logout", s.handleLogout)
	s.mux.HandleFunc("POST /api/track", s.handleTrack)
	s.mux.HandleFunc("GET /ws", s.handleWS)
}

// Handler exposes the routes without listening.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves on port until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, port int) error {
	go s.listenToWatcher(s.watcher.Subscribe())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API server listening", zap.Int("port", port))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen on :%d: %w", port, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.closeClients()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) state() map[string]interface{} {
	return map[string]interface{}{
		"market":       s.watcher.Snapshot(),
		"wallet":       s.reconciler.Session(),
		"capabilities": s.capabilities(),
	}
}

func (s *Server) capabilities() []models.WalletSource {
	caps := s.reconciler.Capabilities()
	if caps == nil {
		return []models.WalletSource{}
	}
	return caps
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state())
}

func (s *Server) handleSite(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"site":    s.site,
		"wallets": s.capabilities(),
	})
}

func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.watcher.Snapshot())
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.watcher.Refresh()
	writeJSON(w, http.StatusAccepted, map[string]bool{"ok": true})
}

func (s *Server) handleWallet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.reconciler.Session())
}

type connectRequest struct {
	Source string `json:"source"`
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	source, err := models.ParseWalletSource(req.Source)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), walletTimeout)
	defer cancel()
	address, err := s.reconciler.Connect(ctx, source)
	s.writeWalletResult(w, "connect", err, map[string]interface{}{"address": address})
}

func (s *Server) handleNetwork(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), walletTimeout)
	defer cancel()
	err := s.reconciler.EnsureNetwork(ctx, s.reconciler.Network())
	s.writeWalletResult(w, "network", err, nil)
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), walletTimeout)
	defer cancel()
	err := s.reconciler.RegisterToken(ctx, s.reconciler.Token())
	s.writeWalletResult(w, "token", err, nil)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	err := s.reconciler.Logout(r.Context())
	s.writeWalletResult(w, "logout", err, nil)
}

// writeWalletResult answers 200 for every wallet outcome; failures carry their
// reason.
func (s *Server) writeWalletResult(w http.ResponseWriter, op string, err error, extra map[string]interface{}) {
	resp := map[string]interface{}{
		"ok":      err == nil,
		"session": s.reconciler.Session(),
	}
	if err != nil {
		reason := wallet.ReasonOf(err)
		s.logger.Info("wallet operation failed", zap.String("op", op), zap.String("reason", string(reason)), zap.Error(err))
		resp["reason"] = reason
		resp["message"] = reason.Message()
	} else {
		for k, v := range extra {
			resp[k] = v
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type trackRequest struct {
	Event      string         `json:"event"`
	Attributes map[string]any `json:"attributes"`
}

func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	var req trackRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !eventName.MatchString(req.Event) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid event name %q", req.Event))
		return
	}
	s.recorder.Record(req.Event, req.Attributes)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	// Send initial state before registering so broadcasts never interleave
	// with it.
	s.mu.Lock()
	err = conn.WriteJSON(map[string]interface{}{
		"type": "initial",
		"data": s.state(),
	})
	if err == nil {
		s.clients[conn] = true
	}
	s.mu.Unlock()
	if err != nil {
		return
	}

	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (s *Server) listenToWatcher(sub watcher.Subscriber) {
	defer s.watcher.Unsubscribe(sub)

	for event := range sub {
		s.broadcast(event)
	}
}

func (s *Server) broadcast(event watcher.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for client := range s.clients {
		if err := client.WriteJSON(event); err != nil {
			_ = client.Close()
			delete(s.clients, client)
		}
	}
}

func (s *Server) closeClients() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for client := range s.clients {
		_ = client.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		_ = client.Close()
		delete(s.clients, client)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
