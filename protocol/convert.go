package protocol

import (
	"time"

	"github.com/dotside-studios/cgm-agent/sensor"
	"github.com/dotside-studios/cgm-agent/session"
)

// formatTime renders t as RFC3339, or "" for the zero time.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// NewReading converts a decoded reading.
func NewReading(r sensor.GlucoseReading) Reading {
	return Reading{
		Timestamp: formatTime(r.Timestamp),
		Value:     r.Value,
		Unit:      r.Unit,
		MmolL:     r.MmolL(),
	}
}

// NewReadings converts a slice of readings; the result is never nil.
func NewReadings(rs []sensor.GlucoseReading) []Reading {
	out := make([]Reading, 0, len(rs))
	for _, r := range rs {
		out = append(out, NewReading(r))
	}
	return out
}

// NewSensorInfo converts a scan snapshot.
func NewSensorInfo(info sensor.SensorInfo) SensorInfoPayload {
	return SensorInfoPayload{
		SerialNumber:   info.SerialNumber,
		StartTime:      formatTime(info.StartTime),
		CurrentGlucose: info.CurrentGlucose,
		Trend:          info.Trend.String(),
		TrendArrow:     info.Trend.Arrow(),
		State:          info.State.String(),
		AgeMinutes:     info.Age.Minutes,
		Age:            info.Age.String(),
		History:        NewReadings(info.HistoricalReadings),
	}
}

// NewSessionStatus converts a session snapshot.
func NewSessionStatus(st session.Status) SessionStatusPayload {
	p := SessionStatusPayload{
		SessionID:    st.ID,
		State:        st.State.String(),
		SerialNumber: st.Serial,
		HasKeys:      st.HasKeys,
		Peer:         st.Peer,
		Readings:     st.Readings,
		LastScan:     formatTime(st.LastScan),
		LastPoll:     formatTime(st.LastPoll),
	}
	if st.Latest != nil {
		r := NewReading(*st.Latest)
		p.Latest = &r
	}
	return p
}
