package server

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dotside-studios/cgm-agent/protocol"
	"github.com/dotside-studios/cgm-agent/session"
)

// SessionHandler exposes session operations as WebSocket requests.
type SessionHandler struct {
	session SessionController
	logger  *slog.Logger
}

func NewSessionHandler(sc SessionController, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{session: sc, logger: logger}
}

// Register installs the scan, connect, poll, disconnect and status handlers.
func (h *SessionHandler) Register(s HandlerServer) error {
	for typ, fn := range map[string]HandlerFunc{
		protocol.WSTypeScan:       h.handleScan,
		protocol.WSTypeConnect:    h.handleConnect,
		protocol.WSTypePoll:       h.handlePoll,
		protocol.WSTypeDisconnect: h.handleDisconnect,
		protocol.WSTypeStatus:     h.handleStatus,
	} {
		if err := s.Handle(typ, fn); err != nil {
			return err
		}
	}
	return nil
}

func (h *SessionHandler) handleScan(ctx context.Context, c *Client, req protocol.WebSocketRequest) error {
	info, err := h.session.Scan(ctx)
	if err != nil {
		c.RespondError(req, errorCode(err, protocol.ErrCodeScanFailed), err.Error())
		return err
	}
	return c.Respond(req, protocol.NewSensorInfo(info))
}

func (h *SessionHandler) handleConnect(ctx context.Context, c *Client, req protocol.WebSocketRequest) error {
	if err := h.session.Connect(ctx); err != nil {
		c.RespondError(req, errorCode(err, protocol.ErrCodeConnectFailed), err.Error())
		return err
	}
	return c.Respond(req, protocol.NewSessionStatus(h.session.Status()))
}

func (h *SessionHandler) handlePoll(ctx context.Context, c *Client, req protocol.WebSocketRequest) error {
	readings, err := h.session.Poll(ctx)
	if err != nil {
		c.RespondError(req, errorCode(err, protocol.ErrCodePollFailed), err.Error())
		return err
	}
	return c.Respond(req, protocol.ReadingsPayload{
		SerialNumber: h.session.Status().Serial,
		Readings:     protocol.NewReadings(readings),
	})
}

func (h *SessionHandler) handleDisconnect(ctx context.Context, c *Client, req protocol.WebSocketRequest) error {
	if err := h.session.Disconnect(); err != nil && !errors.Is(err, session.ErrSessionClosed) {
		h.logger.Warn("disconnect reported an error", "error", err)
	}
	return c.Respond(req, protocol.NewSessionStatus(h.session.Status()))
}

func (h *SessionHandler) handleStatus(ctx context.Context, c *Client, req protocol.WebSocketRequest) error {
	return c.Respond(req, protocol.NewSessionStatus(h.session.Status()))
}
