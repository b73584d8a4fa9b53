package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// envReader applies CGM_* variables and collects parse errors.
type envReader struct {
	getenv func(string) string
	errs   []error
}

func (r *envReader) lookup(key string) (string, bool) {
	v := strings.TrimSpace(r.getenv(key))
	return v, v != ""
}

func (r *envReader) str(key string, dst *string) {
	if v, ok := r.lookup(key); ok {
		*dst = v
	}
}

func (r *envReader) int(key string, dst *int) {
	v, ok := r.lookup(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("invalid %s %q: %w", key, v, err))
		return
	}
	*dst = n
}

func (r *envReader) duration(key string, dst *time.Duration) {
	v, ok := r.lookup(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("invalid %s %q: %w", key, v, err))
		return
	}
	*dst = d
}

func (r *envReader) bool(key string, dst *bool) {
	v, ok := r.lookup(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("invalid %s %q: %w", key, v, err))
		return
	}
	*dst = b
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	r := &envReader{getenv: getenv}

	r.str("CGM_APP_ENV", &cfg.AppEnv)
	r.str("CGM_LOG_LEVEL", &cfg.LogLevel)
	r.int("CGM_LOG_HISTORY", &cfg.LogHistory)

	r.str("CGM_NFC_DEVICE", &cfg.NFC.Device)
	r.duration("CGM_NFC_TIMEOUT", &cfg.NFC.Timeout)
	r.int("CGM_NFC_BLOCK_COUNT", &cfg.NFC.BlockCount)

	r.str("CGM_BLE_ADAPTER", &cfg.BLE.Adapter)
	r.str("CGM_BLE_PEER_NAME", &cfg.BLE.PeerName)
	r.str("CGM_BLE_PEER_ADDRESS", &cfg.BLE.PeerAddress)
	r.str("CGM_BLE_SERVICE_UUID", &cfg.BLE.ServiceUUID)
	r.str("CGM_BLE_CHARACTERISTIC_UUID", &cfg.BLE.CharacteristicUUID)
	r.duration("CGM_BLE_SCAN_TIMEOUT", &cfg.BLE.ScanTimeout)

	r.duration("CGM_POLL_INTERVAL", &cfg.Session.PollInterval)
	r.bool("CGM_CLEAR_WINDOW_ON_DISCONNECT", &cfg.Session.ClearWindowOnDisconnect)

	r.int("CGM_PORT", &cfg.Server.Port)
	r.bool("CGM_MDNS", &cfg.Server.MDNS)
	r.str("CGM_API_SECRET", &cfg.Server.APISecret)

	r.bool("CGM_MQTT_ENABLED", &cfg.MQTT.Enabled)
	r.str("CGM_MQTT_BROKER", &cfg.MQTT.Broker)
	r.int("CGM_MQTT_PORT", &cfg.MQTT.Port)
	r.str("CGM_MQTT_CLIENT_ID", &cfg.MQTT.ClientID)
	r.str("CGM_MQTT_TOPIC_PREFIX", &cfg.MQTT.TopicPrefix)

	return errors.Join(r.errs...)
}
