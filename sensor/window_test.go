package sensor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var windowNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func reading(ago time.Duration, value float64) GlucoseReading {
	return GlucoseReading{Timestamp: windowNow.Add(-ago), Value: value, Unit: UnitMgDL}
}

func TestMerge_DedupKeepsLastSeen(t *testing.T) {
	existing := []GlucoseReading{reading(10*time.Minute, 100), reading(5*time.Minute, 110)}
	incoming := []GlucoseReading{reading(5*time.Minute, 115), reading(time.Minute, 120)}

	w := Merge(existing, incoming, windowNow)
	require.Len(t, w, 3)
	assert.Equal(t, 100.0, w[0].Value)
	assert.Equal(t, 115.0, w[1].Value)
	assert.Equal(t, 120.0, w[2].Value)
}

func TestMerge_Sorted(t *testing.T) {
	incoming := []GlucoseReading{
		reading(time.Minute, 3),
		reading(3*time.Hour, 1),
		reading(time.Hour, 2),
	}
	w := Merge(nil, incoming, windowNow)
	require.Len(t, w, 3)
	for i := 1; i < len(w); i++ {
		assert.True(t, w[i-1].Timestamp.Before(w[i].Timestamp))
	}
	assert.Equal(t, []float64{1, 2, 3}, []float64{w[0].Value, w[1].Value, w[2].Value})
}

func TestMerge_Window(t *testing.T) {
	incoming := []GlucoseReading{
		reading(25*time.Hour, 1),
		reading(24*time.Hour, 2), // exactly at the boundary: dropped
		reading(24*time.Hour-time.Second, 3),
		reading(0, 4),
	}
	w := Merge(nil, incoming, windowNow)
	require.Len(t, w, 2)
	cutoff := windowNow.Add(-WindowSpan)
	for _, r := range w {
		assert.True(t, r.Timestamp.After(cutoff))
	}
}

func TestMerge_Idempotent(t *testing.T) {
	incoming := []GlucoseReading{reading(time.Hour, 90), reading(time.Minute, 95)}
	once := Merge(nil, incoming, windowNow)
	twice := Merge(once, incoming, windowNow)
	assert.Equal(t, once, twice)
}

func TestMerge_DoesNotModifyInputs(t *testing.T) {
	existing := []GlucoseReading{reading(time.Minute, 1), reading(time.Hour, 2)}
	snapshot := append([]GlucoseReading(nil), existing...)
	Merge(existing, []GlucoseReading{reading(time.Minute, 9)}, windowNow)
	assert.Equal(t, snapshot, existing)
}

func TestMerge_Empty(t *testing.T) {
	w := Merge(nil, nil, windowNow)
	assert.NotNil(t, w)
	assert.Empty(t, w)
	_, ok := w.Latest()
	assert.False(t, ok)
}

func TestReadingWindow_LatestAndSince(t *testing.T) {
	w := Merge(nil, []GlucoseReading{
		reading(2*time.Hour, 1),
		reading(time.Hour, 2),
		reading(time.Minute, 3),
	}, windowNow)

	latest, ok := w.Latest()
	require.True(t, ok)
	assert.Equal(t, 3.0, latest.Value)

	since := w.Since(windowNow.Add(-time.Hour))
	require.Len(t, since, 1)
	assert.Equal(t, 3.0, since[0].Value)
	assert.Len(t, w.Since(time.Time{}), 3)
}
