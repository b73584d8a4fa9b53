// Package main runs the CGM agent: it pairs with a glucose sensor over NFC,
// polls it over Bluetooth LE and fans the readings out to WebSocket, REST
// and MQTT clients.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"fyne.io/systray"

	"github.com/dotside-studios/cgm-agent/buildinfo"
	"github.com/dotside-studios/cgm-agent/config"
	"github.com/dotside-studios/cgm-agent/logging"
	"github.com/dotside-studios/cgm-agent/nfc"
)

var (
	// CLI flags
	configPathFlag string
	devicePathFlag string
	portFlag       int
	apiSecretFlag  string
	cliFlag        bool
	pairFlag       bool
	versionFlag    bool
)

// defaultConfigPath returns the per-user config file if it exists.
func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	path := filepath.Join(dir, buildinfo.DirName, "config.yaml")
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return ""
	}
	return path
}

func loadConfig() (config.Config, error) {
	path := configPathFlag
	if path == "" {
		path = defaultConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}

	// Flags win over file and environment.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "device":
			cfg.NFC.Device = devicePathFlag
		case "port":
			cfg.Server.Port = portFlag
		case "api-secret":
			cfg.Server.APISecret = apiSecretFlag
		}
	})
	return cfg, cfg.Validate()
}

func main() {
	flag.StringVar(&configPathFlag, "config", "", "Path to YAML config file (optional)")
	flag.StringVar(&devicePathFlag, "device", "", "Path to NFC device (optional)")
	flag.IntVar(&portFlag, "port", config.DefaultPort, "Port to listen on for the web interface")
	flag.StringVar(&apiSecretFlag, "api-secret", "", "API secret for WebSocket connections (optional)")
	flag.BoolVar(&cliFlag, "cli", false, "Run in CLI mode (default: system tray mode)")
	flag.BoolVar(&pairFlag, "pair", false, "Scan and connect to the sensor on startup (CLI mode)")
	flag.BoolVar(&versionFlag, "version", false, "Print version information and exit")
	flag.Parse()

	if versionFlag {
		fmt.Println(buildinfo.BuildInfo())
		return
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, history := logging.New(cfg, buildinfo.Version, buildinfo.Name)
	agent := NewAgent(cfg, logger, history, nfc.NewManager())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if !cliFlag {
		tray := NewSystrayApp(agent)
		agent.AddSink(tray)

		go func() {
			<-sigChan
			systray.Quit()
		}()
		tray.Run()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := agent.Start(ctx); err != nil {
		logger.Error("failed to start agent", "error", err)
		os.Exit(1)
	}
	defer agent.Stop()

	if pairFlag {
		go func() {
			if err := agent.Pair(ctx); err != nil {
				logger.Error("pairing failed", "error", err)
			}
		}()
	}

	<-sigChan
	logger.Info("shutdown signal received, stopping agent")
}
