package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dotside-studios/cgm-agent/ble"
	"github.com/dotside-studios/cgm-agent/config"
	"github.com/dotside-studios/cgm-agent/logging"
	"github.com/dotside-studios/cgm-agent/nfc"
	"github.com/dotside-studios/cgm-agent/publish"
	"github.com/dotside-studios/cgm-agent/server"
	"github.com/dotside-studios/cgm-agent/session"
)

// UpdateSink receives every session update. Returned errors are logged by
// the agent.
type UpdateSink interface {
	HandleUpdate(u session.Update) error
}

type Agent struct {
	Config  config.Config
	Logger  *slog.Logger // shared by every component
	History *logging.History
	Manager nfc.Manager            // NFC device manager
	Radio   session.RadioTransport // BLE central; built from Config when nil
	Clock   session.Clock

	Reader  *nfc.TagReader
	Session *session.Session
	Server  *server.Server
	MQTT    *publish.Client

	log     *slog.Logger
	mu      sync.Mutex
	sinks   []UpdateSink
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	polling bool
}

func NewAgent(cfg config.Config, logger *slog.Logger, history *logging.History, manager nfc.Manager) *Agent {
	return &Agent{
		Config:  cfg,
		Logger:  logger,
		log:     logger.With("component", "agent"),
		History: history,
		Manager: manager,
	}
}

// AddSink registers an extra update consumer. It must be called before Start.
func (a *Agent) AddSink(s UpdateSink) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sinks = append(a.sinks, s)
}

// Running reports whether Start has been called without a matching Stop.
func (a *Agent) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cancel != nil
}

func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		return errors.New("agent is already running")
	}

	cfg := a.Config
	reader, err := nfc.NewTagReader(a.Manager, cfg.NFC.Device, cfg.NFC.Timeout, a.Logger)
	if err != nil {
		return fmt.Errorf("initializing NFC reader: %w", err)
	}

	radio := a.Radio
	if radio == nil {
		radio = ble.NewCentral(ble.Options{
			Adapter: cfg.BLE.Adapter,
			Filter: ble.Filter{
				LocalName: cfg.BLE.PeerName,
				Address:   cfg.BLE.PeerAddress,
			},
			ScanTimeout: cfg.BLE.ScanTimeout,
		}, a.Logger)
	}

	sess := session.New(reader, radio, session.Options{
		ServiceID:               cfg.BLE.ServiceUUID,
		CharacteristicID:        cfg.BLE.CharacteristicUUID,
		PollInterval:            cfg.Session.PollInterval,
		BlockCount:              cfg.NFC.BlockCount,
		ClearWindowOnDisconnect: cfg.Session.ClearWindowOnDisconnect,
		Clock:                   a.Clock,
		Logger:                  a.Logger,
	})

	srv, err := server.New(server.Config{
		Session:   sess,
		Port:      cfg.Server.Port,
		APISecret: cfg.Server.APISecret,
		MDNS:      cfg.Server.MDNS,
		History:   a.History,
		Logger:    a.Logger,
	})
	if err != nil {
		reader.Close()
		return fmt.Errorf("creating server: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	a.Reader, a.Session, a.Server, a.cancel = reader, sess, srv, cancel
	sinks := append([]UpdateSink{srv}, a.sinks...)

	if cfg.MQTT.Enabled {
		a.MQTT = publish.NewClient(cfg.MQTT, a.Logger)
		sinks = append(sinks, a.MQTT)
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := a.MQTT.Connect(ctx); err != nil && ctx.Err() == nil {
				a.log.Error("mqtt connect failed", "error", err)
			}
		}()
	}

	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		if err := srv.Start(ctx); err != nil {
			a.log.Error("server stopped", "error", err)
		}
	}()
	go func() {
		defer a.wg.Done()
		a.pump(ctx, sess, sinks)
	}()

	a.log.Info("agent started", "device", reader.Status().Device, "port", cfg.Server.Port, "mqtt", cfg.MQTT.Enabled)
	return nil
}

// pump fans session updates out to the sinks and starts the poll loop once
// the radio link is up.
func (a *Agent) pump(ctx context.Context, sess *session.Session, sinks []UpdateSink) {
	for u := range sess.Updates() {
		for _, s := range sinks {
			if err := s.HandleUpdate(u); err != nil && !errors.Is(err, publish.ErrNotConnected) {
				a.log.Warn("update sink failed", "sink", fmt.Sprintf("%T", s), "kind", u.Kind, "error", err)
			}
		}
		if u.Status.State == session.StateConnected {
			a.startPolling(ctx, sess)
		}
	}
}

func (a *Agent) startPolling(ctx context.Context, sess *session.Session) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.polling || ctx.Err() != nil {
		return
	}
	a.polling = true

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer func() {
			a.mu.Lock()
			a.polling = false
			a.mu.Unlock()
		}()

		// First reading right away, then on every tick.
		sess.Poll(ctx)
		if err := sess.Run(ctx); err != nil && !errors.Is(err, session.ErrSessionClosed) && ctx.Err() == nil {
			a.log.Warn("poll loop ended", "error", err)
		}
	}()
}

// Pair scans the sensor over NFC and opens the radio link.
func (a *Agent) Pair(ctx context.Context) error {
	a.mu.Lock()
	sess := a.Session
	a.mu.Unlock()
	if sess == nil {
		return errors.New("agent is not running")
	}

	ctx, cancel := context.WithTimeout(ctx, a.Config.BLE.ScanTimeout+time.Minute)
	defer cancel()

	info, err := sess.Scan(ctx)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	a.log.Info("sensor paired", "serial", info.SerialNumber, "state", info.State)
	if err := sess.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

// PollNow reads the sensor outside the poll schedule.
func (a *Agent) PollNow(ctx context.Context) error {
	a.mu.Lock()
	sess := a.Session
	a.mu.Unlock()
	if sess == nil {
		return errors.New("agent is not running")
	}
	_, err := sess.Poll(ctx)
	return err
}

// Unpair drops the radio link and wipes the session keys.
func (a *Agent) Unpair() error {
	a.mu.Lock()
	sess := a.Session
	a.mu.Unlock()
	if sess == nil {
		return nil
	}
	if err := sess.Disconnect(); err != nil && !errors.Is(err, session.ErrSessionClosed) {
		return err
	}
	return nil
}

func (a *Agent) Stop() {
	a.mu.Lock()
	if a.cancel == nil {
		a.mu.Unlock()
		a.log.Info("agent is not running")
		return
	}
	a.log.Info("stopping agent")
	a.cancel()
	a.cancel = nil
	sess, reader, mqttClient := a.Session, a.Reader, a.MQTT
	a.mu.Unlock()

	// Close ends the update stream, which stops the pump.
	sess.Close()
	if mqttClient != nil {
		mqttClient.Disconnect()
	}
	a.wg.Wait()
	reader.Close()

	a.mu.Lock()
	a.Reader, a.Session, a.Server, a.MQTT = nil, nil, nil, nil
	a.mu.Unlock()
	a.log.Info("agent stopped successfully")
}
