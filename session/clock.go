package session

import (
	"sync"
	"time"
)

// Clock abstracts the time source of the poll loop so tests can drive it
// without real delays.
type Clock interface {
	// Now returns the current time
	Now() time.Time

	// NewTicker creates a ticker that fires every d
	NewTicker(d time.Duration) Ticker
}

// Ticker is an interface for time.Ticker to enable testing
type Ticker interface {
	// C returns the channel on which ticks are delivered
	C() <-chan time.Time

	// Stop turns off the ticker
	Stop()
}

// RealClock implements Clock using actual time operations
type RealClock struct{}

// NewRealClock creates a new RealClock
func NewRealClock() Clock {
	return RealClock{}
}

func (RealClock) Now() time.Time {
	return time.Now()
}

func (RealClock) NewTicker(d time.Duration) Ticker {
	return &realTicker{ticker: time.NewTicker(d)}
}

type realTicker struct {
	ticker *time.Ticker
}

func (rt *realTicker) C() <-chan time.Time {
	return rt.ticker.C
}

func (rt *realTicker) Stop() {
	rt.ticker.Stop()
}

// FakeClock implements Clock for testing with controllable time.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
}

// NewFakeClock creates a new FakeClock starting at the given time
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (fc *FakeClock) Now() time.Time {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.now
}

func (fc *FakeClock) NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		panic("non-positive interval for FakeClock.NewTicker")
	}
	fc.mu.Lock()
	defer fc.mu.Unlock()
	ft := &fakeTicker{
		clock:    fc,
		interval: d,
		next:     fc.now.Add(d),
		c:        make(chan time.Time, 1),
	}
	fc.tickers = append(fc.tickers, ft)
	return ft
}

// Tickers returns the number of live tickers. Tests use it to wait until a
// loop has started.
func (fc *FakeClock) Tickers() int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	n := 0
	for _, t := range fc.tickers {
		if !t.stopped {
			n++
		}
	}
	return n
}

// Advance moves the clock forward and fires every ticker whose next
// deadline has passed. Like time.Ticker, a tick that finds the channel full
// is dropped.
func (fc *FakeClock) Advance(d time.Duration) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.now = fc.now.Add(d)

	for _, ticker := range fc.tickers {
		if ticker.stopped || fc.now.Before(ticker.next) {
			continue
		}
		select {
		case ticker.c <- fc.now:
		default:
		}
		for !fc.now.Before(ticker.next) {
			ticker.next = ticker.next.Add(ticker.interval)
		}
	}
}

type fakeTicker struct {
	clock    *FakeClock
	interval time.Duration
	next     time.Time
	c        chan time.Time
	stopped  bool
}

func (ft *fakeTicker) C() <-chan time.Time {
	return ft.c
}

func (ft *fakeTicker) Stop() {
	ft.clock.mu.Lock()
	defer ft.clock.mu.Unlock()
	ft.stopped = true
}
