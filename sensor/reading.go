package sensor

import (
	"fmt"
	"time"
)

// UnitMgDL is the only unit the sensor reports in.
const UnitMgDL = "mg/dL"

// mgdlPerMmol converts mg/dL to mmol/L for glucose.
const mgdlPerMmol = 18.0182

// GlucoseReading is a single timestamped glucose value.
type GlucoseReading struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit"`
}

// newReading converts the raw on-device encoding into a reading.
func newReading(epochSeconds uint32, raw uint16) GlucoseReading {
	return GlucoseReading{
		Timestamp: time.Unix(int64(epochSeconds), 0).UTC(),
		Value:     float64(raw) / 10,
		Unit:      UnitMgDL,
	}
}

// MmolL returns the value in mmol/L.
func (r GlucoseReading) MmolL() float64 {
	return r.Value / mgdlPerMmol
}

// Trend is the direction of the current glucose value.
type Trend uint8

const (
	TrendUnknown Trend = iota
	TrendRisingQuickly
	TrendRising
	TrendStable
	TrendFalling
	TrendFallingQuickly
)

// trendFromByte clamps b to the known range.
func trendFromByte(b byte) Trend {
	if b > byte(TrendFallingQuickly) {
		return TrendFallingQuickly
	}
	return Trend(b)
}

func (t Trend) String() string {
	switch t {
	case TrendRisingQuickly:
		return "RisingQuickly"
	case TrendRising:
		return "Rising"
	case TrendStable:
		return "Stable"
	case TrendFalling:
		return "Falling"
	case TrendFallingQuickly:
		return "FallingQuickly"
	default:
		return "Unknown"
	}
}

// Arrow returns a display glyph for the trend.
func (t Trend) Arrow() string {
	switch t {
	case TrendRisingQuickly:
		return "⇈"
	case TrendRising:
		return "↑"
	case TrendStable:
		return "→"
	case TrendFalling:
		return "↓"
	case TrendFallingQuickly:
		return "⇊"
	default:
		return "-"
	}
}

func (t Trend) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// State is the lifecycle state reported by the sensor.
type State uint8

const (
	StateUnknown State = iota
	StateNotActivated
	StateActivating
	StateActive
	StateExpired
	StateShutdown
	StateFailure
)

func stateFromByte(b byte) State {
	if b >= byte(StateNotActivated) && b <= byte(StateFailure) {
		return State(b)
	}
	return StateUnknown
}

func (s State) String() string {
	switch s {
	case StateNotActivated:
		return "NotActivated"
	case StateActivating:
		return "Activating"
	case StateActive:
		return "Active"
	case StateExpired:
		return "Expired"
	case StateShutdown:
		return "Shutdown"
	case StateFailure:
		return "Failure"
	default:
		return "Unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// SensorAge is the time since activation, in whole minutes.
type SensorAge struct {
	Minutes uint16 `json:"minutes"`
}

// Duration returns the age as a time.Duration.
func (a SensorAge) Duration() time.Duration {
	return time.Duration(a.Minutes) * time.Minute
}

// Split decomposes the age into days, hours and minutes.
func (a SensorAge) Split() (days, hours, minutes int) {
	m := int(a.Minutes)
	return m / (24 * 60), (m / 60) % 24, m % 60
}

func (a SensorAge) String() string {
	d, h, m := a.Split()
	return fmt.Sprintf("%dd %dh %dm", d, h, m)
}

// SensorInfo is the snapshot decoded from one tag scan.
type SensorInfo struct {
	SerialNumber       string           `json:"serialNumber"`
	StartTime          time.Time        `json:"sensorStartTime"`
	CurrentGlucose     float64          `json:"currentGlucose"`
	Trend              Trend            `json:"trend"`
	State              State            `json:"sensorState"`
	Age                SensorAge        `json:"sensorAge"`
	HistoricalReadings []GlucoseReading `json:"historicalReadings"`
}
