// Package config loads agent settings from an optional YAML file, CGM_*
// environment variables and command-line flags, in that order of
// precedence (flags win).
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/asaskevich/govalidator"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPort               = 18080
	DefaultMQTTPort           = 1883
	DefaultLogHistory         = 500
	DefaultServiceUUID        = "0000fde3-0000-1000-8000-00805f9b34fb"
	DefaultCharacteristicUUID = "0000f001-0000-1000-8000-00805f9b34fb"
)

type Config struct {
	AppEnv     string        `yaml:"appEnv" valid:"in(dev|prod)"`
	LogLevel   string        `yaml:"logLevel"`
	LogHistory int           `yaml:"logHistory"`
	NFC        NFCConfig     `yaml:"nfc"`
	BLE        BLEConfig     `yaml:"ble"`
	Session    SessionConfig `yaml:"session"`
	Server     ServerConfig  `yaml:"server"`
	MQTT       MQTTConfig    `yaml:"mqtt"`
}

type NFCConfig struct {
	Device     string        `yaml:"device"`
	Timeout    time.Duration `yaml:"timeout"`
	BlockCount int           `yaml:"blockCount"`
}

type BLEConfig struct {
	Adapter            string        `yaml:"adapter"`
	PeerName           string        `yaml:"peerName"`
	PeerAddress        string        `yaml:"peerAddress" valid:"mac"`
	ServiceUUID        string        `yaml:"serviceUUID" valid:"uuid"`
	CharacteristicUUID string        `yaml:"characteristicUUID" valid:"uuid"`
	ScanTimeout        time.Duration `yaml:"scanTimeout"`
}

type SessionConfig struct {
	PollInterval            time.Duration `yaml:"pollInterval"`
	ClearWindowOnDisconnect bool          `yaml:"clearWindowOnDisconnect"`
}

type ServerConfig struct {
	Port      int    `yaml:"port"`
	MDNS      bool   `yaml:"mdns"`
	APISecret string `yaml:"apiSecret"`
}

type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker" valid:"host"`
	Port        int    `yaml:"port"`
	ClientID    string `yaml:"clientID"`
	TopicPrefix string `yaml:"topicPrefix"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		AppEnv:     "dev",
		LogLevel:   "info",
		LogHistory: DefaultLogHistory,
		NFC: NFCConfig{
			Timeout:    2 * time.Second,
			BlockCount: 43,
		},
		BLE: BLEConfig{
			Adapter:            "hci0",
			PeerName:           "ABBOTT",
			ServiceUUID:        DefaultServiceUUID,
			CharacteristicUUID: DefaultCharacteristicUUID,
			ScanTimeout:        30 * time.Second,
		},
		Session: SessionConfig{
			PollInterval: 60 * time.Second,
		},
		Server: ServerConfig{
			Port: DefaultPort,
			MDNS: true,
		},
		MQTT: MQTTConfig{
			Broker:      "localhost",
			Port:        DefaultMQTTPort,
			ClientID:    "cgm-agent",
			TopicPrefix: "cgm",
		},
	}
}

// Load reads path (if not empty) over the defaults, applies CGM_*
// environment overrides and validates the result.
func Load(path string) (Config, error) {
	return load(path, os.Getenv)
}

func load(path string, getenv func(string) string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("unmarshal yaml: %w", err)
		}
	}
	if err := applyEnv(&cfg, getenv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Validate checks field formats and ranges.
func (c Config) Validate() error {
	var errs []error
	if _, err := govalidator.ValidateStruct(c); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.LogHistory < 0 {
		errs = append(errs, fmt.Errorf("logHistory must not be negative, got %d", c.LogHistory))
	}
	if c.NFC.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("nfc.timeout must be positive, got %v", c.NFC.Timeout))
	}
	if c.NFC.BlockCount < 1 || c.NFC.BlockCount > 256 {
		errs = append(errs, fmt.Errorf("nfc.blockCount must be in [1,256], got %d", c.NFC.BlockCount))
	}
	if c.Session.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("session.pollInterval must be positive, got %v", c.Session.PollInterval))
	}
	if !validPort(c.Server.Port) {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			errs = append(errs, errors.New("mqtt.broker is required when mqtt is enabled"))
		}
		if !validPort(c.MQTT.Port) {
			errs = append(errs, fmt.Errorf("mqtt.port %d out of range", c.MQTT.Port))
		}
	}
	return errors.Join(errs...)
}

func validPort(p int) bool {
	return govalidator.IsPort(strconv.Itoa(p))
}

// Level returns the parsed log level.
func (c Config) Level() slog.Level {
	level, _ := ParseLogLevel(c.LogLevel)
	return level
}

// ParseLogLevel maps a level name to a slog.Level.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q (allowed: debug, info, warn, error)", s)
	}
}
