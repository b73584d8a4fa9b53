// Package server provides HTTP and WebSocket server infrastructure for the CGM agent.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/grandcat/zeroconf"

	"github.com/dotside-studios/cgm-agent/buildinfo"
	"github.com/dotside-studios/cgm-agent/logging"
	"github.com/dotside-studios/cgm-agent/protocol"
	"github.com/dotside-studios/cgm-agent/sensor"
	"github.com/dotside-studios/cgm-agent/session"
)

// SessionController is the part of a session the server drives.
type SessionController interface {
	Scan(ctx context.Context) (sensor.SensorInfo, error)
	Connect(ctx context.Context) error
	Poll(ctx context.Context) ([]sensor.GlucoseReading, error)
	Disconnect() error
	Status() session.Status
	SensorInfo() (sensor.SensorInfo, bool)
	Window() sensor.ReadingWindow
}

// Config holds the server configuration
type Config struct {
	Session   SessionController
	Port      int
	APISecret string // Optional API secret for WebSocket connection
	MDNS      bool
	History   *logging.History // Optional; enables /api/v1/logs
	Logger    *slog.Logger
}

// Server manages the HTTP and WebSocket server
type Server struct {
	config     Config
	logger     *slog.Logger
	httpServer *http.Server
	mu         sync.Mutex

	// Client WebSocket management
	clients    map[*Client]bool
	clientsMux sync.RWMutex
	upgrader   websocket.Upgrader

	handlerRegistry *HandlerRegistry

	// mDNS service for auto-discovery
	mdnsServer *zeroconf.Server
}

// New creates a new server instance
func New(config Config) (*Server, error) {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	s := &Server{
		config:  config,
		logger:  config.Logger.With("component", "server"),
		clients: make(map[*Client]bool),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins
			},
		},
		handlerRegistry: NewHandlerRegistry(),
	}

	if config.Session != nil {
		if err := NewSessionHandler(config.Session, s.logger).Register(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Handle implements HandlerServer interface.
func (s *Server) Handle(messageType string, handler HandlerFunc) error {
	return s.handlerRegistry.Handle(messageType, handler)
}

// StartLifecycle implements HandlerServer interface.
func (s *Server) StartLifecycle(start func(ctx context.Context)) {
	s.handlerRegistry.RegisterLifecycle(start)
}

// Clients returns the number of connected WebSocket clients.
func (s *Server) Clients() int {
	s.clientsMux.RLock()
	defer s.clientsMux.RUnlock()
	return len(s.clients)
}

// broadcast sends a message to all connected clients. Writes happen on a
// snapshot of the client set, so clients can join or leave while a slow
// peer is being written to; writeWait bounds how long that peer stalls.
func (s *Server) broadcast(message *protocol.WebSocketMessage) {
	s.clientsMux.RLock()
	clients := make([]*Client, 0, len(s.clients))
	for client := range s.clients {
		clients = append(clients, client)
	}
	s.clientsMux.RUnlock()

	for _, client := range clients {
		if err := client.WriteJSON(message); err != nil {
			s.logger.Warn("websocket write error", "client", client.ID(), "error", err)
			s.removeClient(client)
		}
	}
}

func (s *Server) removeClient(client *Client) {
	s.clientsMux.Lock()
	delete(s.clients, client)
	s.clientsMux.Unlock()
	client.Close()
}

// HandleUpdate broadcasts a session update to every client. Updates other
// than status changes are followed by a status message.
func (s *Server) HandleUpdate(u session.Update) error {
	switch u.Kind {
	case session.UpdateSensorInfo:
		if u.Info != nil {
			s.broadcast(&protocol.WebSocketMessage{
				Type:    protocol.WSTypeSensorInfo,
				Payload: protocol.NewSensorInfo(*u.Info),
			})
		}
	case session.UpdateReadings:
		payload := protocol.ReadingsPayload{
			SerialNumber: u.Status.Serial,
			Readings:     protocol.NewReadings(u.Readings),
		}
		if u.Status.Latest != nil {
			r := protocol.NewReading(*u.Status.Latest)
			payload.Latest = &r
		}
		s.broadcast(&protocol.WebSocketMessage{Type: protocol.WSTypeReadings, Payload: payload})
	case session.UpdateError:
		s.broadcast(&protocol.WebSocketMessage{
			Type: protocol.WSTypeError,
			Payload: protocol.ErrorPayload{
				Code:    errorCode(u.Err, protocol.ErrCodeInternalError),
				Message: errString(u.Err),
			},
		})
	}

	s.broadcast(&protocol.WebSocketMessage{
		Type:    protocol.WSTypeSessionStatus,
		Payload: protocol.NewSessionStatus(u.Status),
	})
	return nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// errorCode maps session and protocol errors to wire codes.
func errorCode(err error, fallback string) string {
	switch {
	case errors.Is(err, sensor.ErrKeysUnavailable):
		return protocol.ErrCodeKeysUnavailable
	case errors.Is(err, session.ErrScanInFlight), errors.Is(err, session.ErrConnectInFlight),
		errors.Is(err, session.ErrPollInFlight):
		return protocol.ErrCodeBusy
	case errors.Is(err, session.ErrNotConnected):
		return protocol.ErrCodeConnectFailed
	}
	return fallback
}

// enableCORS is a middleware that adds CORS headers to responses
func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", CORSAllowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", CORSAllowMethods)
		w.Header().Set("Access-Control-Allow-Headers", CORSAllowHeaders)

		// Handle preflight OPTIONS requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.Use(enableCORS)

	api := router.PathPrefix(apiV1).Subrouter()
	api.HandleFunc("/health", s.handleHealthCheck).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/sensor", s.handleSensor).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/readings", s.handleReadings).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/readings/latest", s.handleLatestReading).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/logs", s.handleLogs).Methods(http.MethodGet, http.MethodOptions)

	router.HandleFunc("/ws", s.handleWebSocket)
	router.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(buildinfo.DisplayName + " Server Running"))
	})
	return router
}

// Start serves HTTP until ctx is cancelled or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Port))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", s.config.Port, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	if s.config.MDNS {
		if err := s.startMDNS(); err != nil {
			s.logger.Warn("failed to start mDNS service, auto-discovery unavailable", "error", err)
		}
	}

	s.handlerRegistry.StartLifecycleHandlers(ctx)

	select {
	case <-ctx.Done():
		s.logger.Info("server context cancelled, initiating shutdown")
		s.Stop()
		<-errCh
		return nil
	case err := <-errCh:
		s.Stop()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	}
}

// Stop stops the HTTP server gracefully
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mdnsServer != nil {
		s.mdnsServer.Shutdown()
		s.mdnsServer = nil
		s.logger.Info("mDNS service stopped")
	}

	s.clientsMux.Lock()
	for client := range s.clients {
		client.Close()
		delete(s.clients, client)
	}
	s.clientsMux.Unlock()

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("server shutdown error", "error", err)
		}
		s.httpServer = nil
	}
}

// startMDNS registers the agent as an mDNS service for auto-discovery
func (s *Server) startMDNS() error {
	txtRecords := append(buildinfo.TXTRecords(),
		"protocol=websocket",
		"path=/ws",
		"api="+apiV1,
	)

	server, err := zeroconf.Register(MDNSServiceName, MDNSServiceType, MDNSDomain, s.config.Port, txtRecords, nil)
	if err != nil {
		return fmt.Errorf("failed to register mDNS service: %w", err)
	}

	s.mdnsServer = server
	s.logger.Info("mDNS service registered", "name", MDNSServiceName, "type", MDNSServiceType, "port", s.config.Port)
	return nil
}

// handleWebSocket upgrades HTTP connections to WebSocket connections and manages
// the client connection lifecycle
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.config.APISecret != "" && r.URL.Query().Get("secret") != s.config.APISecret {
		s.logger.Warn("websocket connection rejected: invalid API secret", "remote", r.RemoteAddr)
		http.Error(w, "Unauthorized: Invalid API secret", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade error", "error", err)
		return
	}

	client := newClient(conn, r.RemoteAddr)
	logger := s.logger.With("client", client.ID())
	logger.Info("websocket connected", "remote", r.RemoteAddr)

	defer func() {
		s.removeClient(client)
		logger.Info("websocket disconnected")
	}()

	// Send the current state before joining the broadcast set.
	if sc := s.config.Session; sc != nil {
		if info, ok := sc.SensorInfo(); ok {
			client.WriteJSON(protocol.WebSocketMessage{
				Type:    protocol.WSTypeSensorInfo,
				Payload: protocol.NewSensorInfo(info),
			})
		}
		client.WriteJSON(protocol.WebSocketMessage{
			Type:    protocol.WSTypeSessionStatus,
			Payload: protocol.NewSessionStatus(sc.Status()),
		})
	}

	s.clientsMux.Lock()
	s.clients[client] = true
	s.clientsMux.Unlock()

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var req protocol.WebSocketRequest
		if err := json.Unmarshal(message, &req); err != nil {
			logger.Warn("failed to parse websocket message", "error", err)
			client.RespondError(protocol.WebSocketRequest{Type: protocol.WSTypeError}, protocol.ErrCodeInvalidRequest, "Invalid message format")
			continue
		}

		handler, ok := s.handlerRegistry.Get(req.Type)
		if !ok {
			logger.Warn("unknown message type", "type", req.Type)
			client.RespondError(req, protocol.ErrCodeUnknownType, fmt.Sprintf("Unknown message type: %s", req.Type))
			continue
		}

		if err := handler(r.Context(), client, req); err != nil {
			// Error already sent by handler, just log it
			logger.Debug("handler error", "type", req.Type, "error", err)
		}
	}
}
