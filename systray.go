package main

import (
	"context"
	_ "embed"
	"fmt"
	"net"
	"os/exec"
	"runtime"
	"sync"

	"fyne.io/systray"

	"github.com/dotside-studios/cgm-agent/buildinfo"
	"github.com/dotside-studios/cgm-agent/sensor"
	"github.com/dotside-studios/cgm-agent/session"
)

//go:embed icon.png
var iconData []byte

// getLocalIPs returns a list of local IP addresses (excluding loopback)
func getLocalIPs() []string {
	var ips []string
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ips
	}

	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() && ipnet.IP.To4() != nil {
			ips = append(ips, ipnet.IP.String())
		}
	}
	return ips
}

// glucoseTitle renders the latest reading for the tray.
func glucoseTitle(r *sensor.GlucoseReading, trend sensor.Trend) string {
	if r == nil {
		return "Glucose: --"
	}
	return fmt.Sprintf("Glucose: %.0f %s %s (%s)", r.Value, r.Unit, trend.Arrow(), r.Timestamp.Local().Format("15:04"))
}

// SystrayApp shows the latest glucose value and drives pairing from the
// system tray. It receives session updates as an UpdateSink.
type SystrayApp struct {
	agent         *Agent
	currentDevice string

	mu    sync.Mutex
	trend sensor.Trend

	// Menu items
	mStatus     *systray.MenuItem
	mGlucose    *systray.MenuItem
	mSensor     *systray.MenuItem
	mSession    *systray.MenuItem
	mURL        *systray.MenuItem
	mCopyURL    *systray.MenuItem
	mPair       *systray.MenuItem
	mPollNow    *systray.MenuItem
	mUnpair     *systray.MenuItem
	mStart      *systray.MenuItem
	mStop       *systray.MenuItem
	mDeviceMenu *systray.MenuItem

	deviceMenuItems map[string]*systray.MenuItem
}

// NewSystrayApp creates a new systray application
func NewSystrayApp(agent *Agent) *SystrayApp {
	return &SystrayApp{
		agent:           agent,
		currentDevice:   agent.Config.NFC.Device,
		deviceMenuItems: make(map[string]*systray.MenuItem),
	}
}

// Run starts the systray application
func (s *SystrayApp) Run() {
	systray.Run(s.onReady, s.onExit)
}

func (s *SystrayApp) onReady() {
	s.setupUI()
	s.autoStartAgent()
}

func (s *SystrayApp) onExit() {
	s.agent.Stop()
}

// setupUI initializes all menu items
func (s *SystrayApp) setupUI() {
	systray.SetIcon(iconData)
	systray.SetTooltip(buildinfo.DisplayName)

	s.mStatus = systray.AddMenuItem("Starting...", "Agent Status")
	s.mStatus.Disable()

	systray.AddSeparator()

	s.mGlucose = systray.AddMenuItem(glucoseTitle(nil, sensor.TrendUnknown), "Latest glucose reading")
	s.mGlucose.Disable()
	s.mSensor = systray.AddMenuItem("Sensor: None", "Paired sensor")
	s.mSensor.Disable()
	s.mSession = systray.AddMenuItem("Session: "+session.StateUninitialized.String(), "Session state")
	s.mSession.Disable()

	systray.AddSeparator()

	s.mPair = systray.AddMenuItem("Pair Sensor", "Scan the sensor over NFC and connect over Bluetooth")
	s.mPollNow = systray.AddMenuItem("Poll Now", "Read the sensor now")
	s.mUnpair = systray.AddMenuItem("Unpair", "Disconnect and forget the session keys")
	s.mPollNow.Disable()
	s.mUnpair.Disable()

	systray.AddSeparator()

	s.mURL = systray.AddMenuItem("Dashboard: Not running", "WebSocket server URL")
	s.mURL.Disable()
	s.mCopyURL = systray.AddMenuItem("  Copy URL", "Copy server URL to clipboard")

	s.mDeviceMenu = systray.AddMenuItem("NFC Device", "Select NFC Device")
	mRefreshDevices := s.mDeviceMenu.AddSubMenuItem("Refresh Devices", "Refresh device list")

	systray.AddSeparator()

	s.mStart = systray.AddMenuItem("Start Agent", "Start the agent")
	s.mStop = systray.AddMenuItem("Stop Agent", "Stop the agent")
	s.mStart.Disable() // Disable start since we're auto-starting
	s.mStop.Disable()  // Will be enabled once agent starts

	systray.AddSeparator()
	mQuit := systray.AddMenuItem("Quit", "Quit the application")

	go s.handleMenuEvents(mRefreshDevices, mQuit)
}

// autoStartAgent starts the agent automatically
func (s *SystrayApp) autoStartAgent() {
	go func() {
		s.handleStartAgent()
		s.updateDeviceList()
	}()
}

// HandleUpdate refreshes the tray from a session update.
func (s *SystrayApp) HandleUpdate(u session.Update) error {
	s.mu.Lock()
	if u.Info != nil {
		s.trend = u.Info.Trend
	}
	trend := s.trend
	s.mu.Unlock()

	st := u.Status
	s.mGlucose.SetTitle(glucoseTitle(st.Latest, trend))
	if st.Serial != "" {
		s.mSensor.SetTitle("Sensor: " + st.Serial)
	}
	s.mSession.SetTitle("Session: " + st.State.String())

	if st.HasKeys {
		s.mUnpair.Enable()
	} else {
		s.mUnpair.Disable()
	}
	if st.State == session.StateConnected || st.State == session.StatePolling {
		s.mPollNow.Enable()
	} else {
		s.mPollNow.Disable()
	}
	if u.Kind == session.UpdateError && u.Err != nil {
		s.mStatus.SetTitle("Error: " + u.Err.Error())
	} else {
		s.mStatus.SetTitle("Running")
	}
	return nil
}

// handleMenuEvents processes all menu click events
func (s *SystrayApp) handleMenuEvents(mRefreshDevices, mQuit *systray.MenuItem) {
	for {
		select {
		case <-s.mStart.ClickedCh:
			s.handleStartAgent()
		case <-s.mStop.ClickedCh:
			s.handleStopAgent()
		case <-s.mPair.ClickedCh:
			go s.handlePair()
		case <-s.mPollNow.ClickedCh:
			go func() {
				if err := s.agent.PollNow(context.Background()); err != nil {
					s.agent.log.Warn("poll failed", "error", err)
				}
			}()
		case <-s.mUnpair.ClickedCh:
			if err := s.agent.Unpair(); err != nil {
				s.agent.log.Warn("unpair failed", "error", err)
			}
		case <-mRefreshDevices.ClickedCh:
			s.updateDeviceList()
		case <-s.mCopyURL.ClickedCh:
			if url := s.serverURL(); url != "" {
				if err := copyToClipboard(url); err != nil {
					s.agent.log.Warn("failed to copy to clipboard", "error", err)
				}
			}
		case <-mQuit.ClickedCh:
			systray.Quit()
			return
		}

		s.handleDeviceSelection()
	}
}

func (s *SystrayApp) handlePair() {
	s.mPair.Disable()
	defer s.mPair.Enable()

	s.mStatus.SetTitle("Hold the reader over the sensor...")
	if err := s.agent.Pair(context.Background()); err != nil {
		s.agent.log.Warn("pairing failed", "error", err)
		s.mStatus.SetTitle("Pairing failed")
	}
}

func (s *SystrayApp) handleStartAgent() {
	s.agent.Config.NFC.Device = s.currentDevice
	if err := s.agent.Start(context.Background()); err != nil {
		s.agent.log.Error("failed to start agent", "error", err)
		s.mStatus.SetTitle("Failed to Start")
		s.mStart.Enable()
		return
	}
	s.mStatus.SetTitle("Running")
	s.mURL.SetTitle("Dashboard: " + s.serverURL())
	s.mStart.Disable()
	s.mStop.Enable()
	s.mPair.Enable()
}

func (s *SystrayApp) handleStopAgent() {
	s.agent.Stop()
	s.mStatus.SetTitle("Stopped")
	s.mURL.SetTitle("Dashboard: Not running")
	s.mSession.SetTitle("Session: " + session.StateDisconnected.String())
	s.mPair.Disable()
	s.mPollNow.Disable()
	s.mUnpair.Disable()
	s.mStop.Disable()
	s.mStart.Enable()
}

// handleDeviceSelection restarts the agent on a newly clicked device.
func (s *SystrayApp) handleDeviceSelection() {
	for deviceName, menuItem := range s.deviceMenuItems {
		select {
		case <-menuItem.ClickedCh:
			if deviceName == s.currentDevice {
				continue
			}
			for _, item := range s.deviceMenuItems {
				item.Uncheck()
			}
			menuItem.Check()
			s.currentDevice = deviceName

			if s.agent.Running() {
				s.handleStopAgent()
				s.handleStartAgent()
			}
		default:
			// No click event for this menu item
		}
	}
}

// updateDeviceList refreshes the NFC device submenu.
func (s *SystrayApp) updateDeviceList() {
	for _, item := range s.deviceMenuItems {
		item.Hide()
	}
	s.deviceMenuItems = make(map[string]*systray.MenuItem)

	devices, err := s.agent.Manager.ListDevices()
	if err != nil {
		s.agent.log.Warn("error listing devices", "error", err)
		return
	}

	for _, device := range devices {
		isChecked := s.currentDevice == device || (s.currentDevice == "" && len(s.deviceMenuItems) == 0)
		s.deviceMenuItems[device] = s.mDeviceMenu.AddSubMenuItemCheckbox(device, "Select this device", isChecked)
	}
}

// serverURL returns the WebSocket URL on the first LAN address.
func (s *SystrayApp) serverURL() string {
	if !s.agent.Running() {
		return ""
	}
	host := "localhost"
	if ips := getLocalIPs(); len(ips) > 0 {
		host = ips[0]
	}
	return fmt.Sprintf("ws://%s:%d/ws", host, s.agent.Config.Server.Port)
}

// copyToClipboard copies text to the system clipboard
func copyToClipboard(text string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("pbcopy")
	case "linux":
		cmd = exec.Command("xclip", "-selection", "clipboard")
	case "windows":
		cmd = exec.Command("clip")
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	in, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	if _, err := in.Write([]byte(text)); err != nil {
		return err
	}
	if err := in.Close(); err != nil {
		return err
	}
	return cmd.Wait()
}
