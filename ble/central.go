// Package ble is the radio-link transport: it finds the sensor over
// Bluetooth LE, opens a GATT connection and reads the glucose
// characteristic.
package ble

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/dotside-studios/cgm-agent/session"
)

// DefaultScanTimeout bounds the search for the sensor's advertisement.
const DefaultScanTimeout = 30 * time.Second

// maxAttributeLen is the largest value a GATT read can return.
const maxAttributeLen = 512

// Filter selects the peer to connect to. Empty fields match anything.
type Filter struct {
	LocalName string
	Address   string
}

// Match reports whether an advertisement from name/address passes the
// filter. Names match by prefix, addresses case-insensitively.
func (f Filter) Match(name, address string) bool {
	if f.Address != "" && !strings.EqualFold(f.Address, address) {
		return false
	}
	if f.LocalName != "" && !strings.HasPrefix(name, f.LocalName) {
		return false
	}
	return true
}

type Options struct {
	Adapter     string // "hci0" by default
	Filter      Filter
	ScanTimeout time.Duration
}

// Central connects to the sensor as a GATT client.
type Central struct {
	adapter *bluetooth.Adapter
	opts    Options
	logger  *slog.Logger

	enableOnce sync.Once
	enableErr  error
}

// NewCentral creates a Central on the named adapter.
func NewCentral(opts Options, logger *slog.Logger) *Central {
	if opts.Adapter == "" {
		opts.Adapter = "hci0"
	}
	if opts.ScanTimeout <= 0 {
		opts.ScanTimeout = DefaultScanTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Central{
		adapter: bluetooth.NewAdapter(opts.Adapter),
		opts:    opts,
		logger:  logger.With("component", "ble", "adapter", opts.Adapter),
	}
}

// Connection is an open GATT link to the sensor.
type Connection struct {
	device  bluetooth.Device
	char    bluetooth.DeviceCharacteristic
	address string
	name    string

	mu sync.Mutex
}

func (c *Connection) Address() string {
	return c.address
}

// Name returns the advertised local name of the peer.
func (c *Connection) Name() string {
	return c.name
}

func (c *Central) enable() error {
	c.enableOnce.Do(func() {
		c.logger.Info("enabling adapter")
		if err := c.adapter.Enable(); err != nil {
			c.enableErr = fmt.Errorf("ble enable (%s): %w", c.opts.Adapter, err)
		}
	})
	return c.enableErr
}

// Connect scans for the sensor, connects and resolves the characteristic.
func (c *Central) Connect(ctx context.Context, serviceID, characteristicID string) (session.RadioHandle, error) {
	svcUUID, err := bluetooth.ParseUUID(serviceID)
	if err != nil {
		return nil, fmt.Errorf("parse service UUID %q: %w", serviceID, err)
	}
	charUUID, err := bluetooth.ParseUUID(characteristicID)
	if err != nil {
		return nil, fmt.Errorf("parse characteristic UUID %q: %w", characteristicID, err)
	}
	if err := c.enable(); err != nil {
		return nil, err
	}

	result, err := c.find(ctx)
	if err != nil {
		return nil, err
	}

	addr := result.Address.String()
	c.logger.Info("connecting", "peer", addr, "name", result.LocalName(), "rssi", result.RSSI)
	device, err := c.adapter.Connect(result.Address, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, fmt.Errorf("ble connect %s: %w", addr, err)
	}

	srvs, err := device.DiscoverServices([]bluetooth.UUID{svcUUID})
	if err != nil || len(srvs) == 0 {
		device.Disconnect()
		return nil, fmt.Errorf("service %s not found on %s: %v", serviceID, addr, err)
	}
	chars, err := srvs[0].DiscoverCharacteristics([]bluetooth.UUID{charUUID})
	if err != nil || len(chars) == 0 {
		device.Disconnect()
		return nil, fmt.Errorf("characteristic %s not found on %s: %v", characteristicID, addr, err)
	}

	return &Connection{
		device:  device,
		char:    chars[0],
		address: addr,
		name:    result.LocalName(),
	}, nil
}

// find scans until an advertisement passes the filter, the scan timeout
// elapses or ctx ends.
func (c *Central) find(ctx context.Context) (bluetooth.ScanResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.ScanTimeout)
	defer cancel()

	go func() {
		<-ctx.Done()
		_ = c.adapter.StopScan()
	}()

	c.logger.Info("scanning started",
		"filter_name", c.opts.Filter.LocalName,
		"filter_address", c.opts.Filter.Address,
	)

	var (
		found  bluetooth.ScanResult
		wasHit bool
	)
	// adapter.Scan blocks until StopScan() or error.
	err := c.adapter.Scan(func(a *bluetooth.Adapter, r bluetooth.ScanResult) {
		if wasHit || !c.opts.Filter.Match(r.LocalName(), r.Address.String()) {
			return
		}
		found, wasHit = r, true
		_ = a.StopScan()
	})

	if wasHit {
		return found, nil
	}
	if ctx.Err() != nil {
		return found, fmt.Errorf("ble scan: no matching peer: %w", ctx.Err())
	}
	if err != nil {
		return found, fmt.Errorf("ble scan: %w", err)
	}
	return found, fmt.Errorf("ble scan: stopped without a match")
}

// ReadCharacteristic reads the current characteristic value.
func (c *Central) ReadCharacteristic(ctx context.Context, h session.RadioHandle) ([]byte, error) {
	conn, ok := h.(*Connection)
	if !ok {
		return nil, fmt.Errorf("ble: foreign handle %T", h)
	}

	type result struct {
		data []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		conn.mu.Lock()
		defer conn.mu.Unlock()
		buf := make([]byte, maxAttributeLen)
		n, err := conn.char.Read(buf)
		done <- result{data: buf[:n], err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, fmt.Errorf("ble read %s: %w", conn.address, res.err)
		}
		c.logger.Debug("characteristic read", "peer", conn.address, "len", len(res.data))
		return res.data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Disconnect closes the GATT link.
func (c *Central) Disconnect(h session.RadioHandle) error {
	conn, ok := h.(*Connection)
	if !ok {
		return fmt.Errorf("ble: foreign handle %T", h)
	}
	c.logger.Info("disconnecting", "peer", conn.address)
	if err := conn.device.Disconnect(); err != nil {
		return fmt.Errorf("ble disconnect %s: %w", conn.address, err)
	}
	return nil
}
