// Package publish forwards session updates to an MQTT broker.
//
// Readings go to <prefix>/<serial>/glucose at QoS 1, one message per
// reading. Sensor info and session status are retained under
// <prefix>/<serial>/sensor and <prefix>/<serial>/status so late subscribers
// see the current state.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/dotside-studios/cgm-agent/config"
	"github.com/dotside-studios/cgm-agent/protocol"
	"github.com/dotside-studios/cgm-agent/sensor"
	"github.com/dotside-studios/cgm-agent/session"
)

const (
	publishTimeout = 5 * time.Second
	connectPoll    = 200 * time.Millisecond
	disconnectMS   = 250

	// unknownSerial is used in topics before the first scan.
	unknownSerial = "unknown"
)

var (
	ErrNotConnected = errors.New("mqtt client not connected")
	ErrStopped      = errors.New("mqtt client stopped")
)

type Client struct {
	client    mqtt.Client
	cfg       config.MQTTConfig
	logger    *slog.Logger
	mu        sync.RWMutex
	connected bool

	// last published reading time per serial
	sent map[string]time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewClient(cfg config.MQTTConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		cfg:    cfg,
		logger: logger.With("component", "mqtt"),
		sent:   make(map[string]time.Time),
		stopCh: make(chan struct{}),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Broker, cfg.Port))
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		c.setConnected(true)
		c.logger.Info("mqtt connected", "broker", cfg.Broker, "port", cfg.Port)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.setConnected(false)
		c.logger.Warn("mqtt connection lost", "error", err)
	})

	c.client = mqtt.NewClient(opts)
	return c
}

// newWithClient wraps an existing paho client.
func newWithClient(client mqtt.Client, cfg config.MQTTConfig, logger *slog.Logger) *Client {
	return &Client{
		client: client,
		cfg:    cfg,
		logger: logger,
		sent:   make(map[string]time.Time),
		stopCh: make(chan struct{}),
	}
}

// Connect waits for the initial broker connection. It respects ctx and
// Disconnect.
func (c *Client) Connect(ctx context.Context) error {
	select {
	case <-c.stopCh:
		return ErrStopped
	default:
	}

	if c.IsConnected() {
		return nil
	}

	token := c.client.Connect()
	for {
		if token.WaitTimeout(connectPoll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			c.setConnected(true)
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stopCh:
			return ErrStopped
		default:
		}
	}
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected && c.client.IsConnected()
}

func (c *Client) Disconnect() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		c.client.Disconnect(disconnectMS)
		c.setConnected(false)
		c.logger.Info("mqtt disconnected")
	})
}

func (c *Client) topic(serial, leaf string) string {
	if serial == "" {
		serial = unknownSerial
	}
	return fmt.Sprintf("%s/%s/%s", c.cfg.TopicPrefix, serial, leaf)
}

func (c *Client) publish(topic string, retained bool, v any) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", topic, err)
	}

	token := c.client.Publish(topic, 1, retained, data)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
	if err := token.Error(); err != nil {
		c.logger.Error("failed to publish", "topic", topic, "error", err)
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	c.logger.Debug("published", "topic", topic, "retained", retained)
	return nil
}

// PublishReadings publishes readings newer than the last one sent for
// serial, oldest first. It returns how many were sent.
func (c *Client) PublishReadings(serial string, readings []sensor.GlucoseReading) (int, error) {
	c.mu.RLock()
	last := c.sent[serial]
	c.mu.RUnlock()

	pending := make([]sensor.GlucoseReading, 0, len(readings))
	for _, r := range readings {
		if r.Timestamp.After(last) {
			pending = append(pending, r)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].Timestamp.Before(pending[j].Timestamp)
	})

	for i, r := range pending {
		if err := c.publish(c.topic(serial, "glucose"), false, protocol.NewReading(r)); err != nil {
			return i, err
		}
		c.mu.Lock()
		c.sent[serial] = r.Timestamp
		c.mu.Unlock()
	}
	return len(pending), nil
}

// PublishSensorInfo publishes a retained scan snapshot.
func (c *Client) PublishSensorInfo(info sensor.SensorInfo) error {
	return c.publish(c.topic(info.SerialNumber, "sensor"), true, protocol.NewSensorInfo(info))
}

// PublishStatus publishes a retained session status.
func (c *Client) PublishStatus(st session.Status) error {
	return c.publish(c.topic(st.Serial, "status"), true, protocol.NewSessionStatus(st))
}

// HandleUpdate forwards one session update.
func (c *Client) HandleUpdate(u session.Update) error {
	var err error
	switch u.Kind {
	case session.UpdateSensorInfo:
		if u.Info != nil {
			err = c.PublishSensorInfo(*u.Info)
		}
	case session.UpdateReadings:
		_, err = c.PublishReadings(u.Status.Serial, u.Readings)
	}
	if err == nil {
		err = c.PublishStatus(u.Status)
	}
	return err
}
