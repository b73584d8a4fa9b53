package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dotside-studios/cgm-agent/sensor"
)

// State is the lifecycle state of a device session.
type State int

const (
	StateUninitialized State = iota
	StateTagScanned
	StateConnected
	StatePolling
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateTagScanned:
		return "tagScanned"
	case StateConnected:
		return "connected"
	case StatePolling:
		return "polling"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Defaults for Options.
const (
	DefaultPollInterval     = 60 * time.Second
	DefaultUpdateBufferSize = 16
)

var (
	ErrNotConnected    = errors.New("radio link not connected")
	ErrConnectInFlight = errors.New("connect already in flight")
	ErrPollInFlight    = errors.New("poll already in flight")
	ErrScanInFlight    = errors.New("scan already in flight")
	ErrSessionClosed   = errors.New("session closed")
)

// Options configures a Session. Zero values fall back to defaults.
type Options struct {
	ServiceID        string
	CharacteristicID string

	PollInterval time.Duration
	BlockCount   int

	// ClearWindowOnDisconnect drops the reading window when the session is
	// torn down. Keys are always released.
	ClearWindowOnDisconnect bool

	Clock   Clock
	Deriver *sensor.KeyDeriver
	Logger  *slog.Logger
}

func (o *Options) applyDefaults() {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.BlockCount <= 0 {
		o.BlockCount = sensor.ScanBlockCount
	}
	if o.Clock == nil {
		o.Clock = NewRealClock()
	}
	if o.Deriver == nil {
		o.Deriver = sensor.DefaultKeyDeriver
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Context is the per-device state threaded through every session step.
// Steps take a Context and return a new one; the Session applies the result
// only when the whole step succeeded.
type Context struct {
	Identifier sensor.DeviceIdentifier
	Keys       *sensor.KeyPair
	Handle     RadioHandle
	Info       *sensor.SensorInfo
	Window     sensor.ReadingWindow
	LastScan   time.Time
	LastPoll   time.Time
}

// HasKeys reports whether a scan has produced a key pair.
func (c Context) HasKeys() bool {
	return c.Keys != nil
}

// UpdateKind names the event carried by an Update.
type UpdateKind string

const (
	UpdateSensorInfo UpdateKind = "sensorInfo"
	UpdateReadings   UpdateKind = "readings"
	UpdateStatus     UpdateKind = "sessionStatus"
	UpdateError      UpdateKind = "error"
)

// Update is emitted on the Updates channel after each step.
type Update struct {
	Kind     UpdateKind
	Status   Status
	Info     *sensor.SensorInfo
	Readings []sensor.GlucoseReading
	Err      error
}

// Status is a point-in-time snapshot of a session.
type Status struct {
	ID       string                 `json:"id"`
	State    State                  `json:"state"`
	Serial   string                 `json:"serialNumber,omitempty"`
	HasKeys  bool                   `json:"hasKeys"`
	Peer     string                 `json:"peer,omitempty"`
	Readings int                    `json:"readings"`
	Latest   *sensor.GlucoseReading `json:"latest,omitempty"`
	LastScan time.Time              `json:"lastScan"`
	LastPoll time.Time              `json:"lastPoll"`
}

// Session orchestrates the scan and poll sequences for one sensor.
type Session struct {
	id      string
	tag     TagTransport
	radio   RadioTransport
	opts    Options
	decoder *sensor.Decoder
	logger  *slog.Logger

	mu         sync.RWMutex
	state      State
	sc         Context
	life       context.Context
	lifeCancel context.CancelFunc
	closed     bool

	scanMu    sync.Mutex
	connectMu sync.Mutex
	pollMu    sync.Mutex
	updates   chan Update
}

// New creates a session over the given transports. Either transport may be
// nil if the matching sequence is never used.
func New(tag TagTransport, radio RadioTransport, opts Options) *Session {
	opts.applyDefaults()
	id := uuid.NewString()
	logger := opts.Logger.With("component", "session", "session", id)
	life, cancel := context.WithCancel(context.Background())
	return &Session{
		id:         id,
		tag:        tag,
		radio:      radio,
		opts:       opts,
		decoder:    sensor.NewDecoder(logger),
		logger:     logger,
		state:      StateUninitialized,
		life:       life,
		lifeCancel: cancel,
		updates:    make(chan Update, DefaultUpdateBufferSize),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Updates returns the channel on which step results are published. It is
// closed by Close.
func (s *Session) Updates() <-chan Update {
	return s.updates
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Context returns a copy of the current session context. The key pair is
// not included.
func (s *Session) Context() Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := s.sc
	c.Keys = nil
	c.Window = append(sensor.ReadingWindow(nil), s.sc.Window...)
	return c
}

// SensorInfo returns the snapshot from the last successful scan.
func (s *Session) SensorInfo() (sensor.SensorInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.sc.Info == nil {
		return sensor.SensorInfo{}, false
	}
	return *s.sc.Info, true
}

// Window returns a copy of the reading window.
func (s *Session) Window() sensor.ReadingWindow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append(sensor.ReadingWindow(nil), s.sc.Window...)
}

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.statusLocked()
}

func (s *Session) statusLocked() Status {
	st := Status{
		ID:       s.id,
		State:    s.state,
		HasKeys:  s.sc.HasKeys(),
		Readings: len(s.sc.Window),
		LastScan: s.sc.LastScan,
		LastPoll: s.sc.LastPoll,
	}
	if s.sc.Info != nil {
		st.Serial = s.sc.Info.SerialNumber
	}
	if s.sc.Handle != nil {
		st.Peer = s.sc.Handle.Address()
	}
	if latest, ok := s.sc.Window.Latest(); ok {
		st.Latest = &latest
	}
	return st
}

// bind derives a context that also ends when the session is torn down.
func (s *Session) bind(ctx context.Context) (context.Context, context.Context, context.CancelFunc) {
	s.mu.RLock()
	life := s.life
	s.mu.RUnlock()

	ctx, cancel := context.WithCancelCause(ctx)
	stop := context.AfterFunc(life, func() { cancel(ErrSessionClosed) })
	return ctx, life, func() {
		stop()
		cancel(nil)
	}
}

// cancelled returns the reason ctx ended, preferring the session teardown
// cause over a bare context.Canceled.
func cancelled(ctx context.Context) error {
	if cause := context.Cause(ctx); cause != nil {
		return cause
	}
	return ctx.Err()
}

// commit applies next if the session has not been torn down since life was
// captured.
func (s *Session) commit(life context.Context, apply func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || life != s.life {
		return ErrSessionClosed
	}
	apply()
	return nil
}

// emit publishes u without blocking; updates are dropped if nobody reads.
func (s *Session) emit(u Update) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	u.Status = s.statusLocked()
	select {
	case s.updates <- u:
	default:
		s.logger.Warn("update channel full, dropping update", "kind", u.Kind)
	}
}

func (s *Session) fail(op string, err error) error {
	s.logger.Error(op+" failed", "error", err)
	s.emit(Update{Kind: UpdateError, Err: err})
	return err
}

// Disconnect tears the session down: the poll loop and any in-flight step
// are cancelled, the key pair is wiped, and the radio handle is released.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.lifeCancel()
	s.life, s.lifeCancel = context.WithCancel(context.Background())

	handle := s.sc.Handle
	if s.sc.Keys != nil {
		s.sc.Keys.Zero()
		s.sc.Keys = nil
	}
	s.sc.Handle = nil
	if s.opts.ClearWindowOnDisconnect {
		s.sc.Window = nil
	}
	s.state = StateDisconnected
	s.mu.Unlock()

	var err error
	if handle != nil && s.radio != nil {
		err = s.release(handle)
	}
	s.logger.Info("session disconnected")
	s.emit(Update{Kind: UpdateStatus})
	return err
}

// Close disconnects and closes the Updates channel.
func (s *Session) Close() error {
	err := s.Disconnect()
	if errors.Is(err, ErrSessionClosed) {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.lifeCancel()
	close(s.updates)
	return err
}
