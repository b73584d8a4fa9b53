package sensor

import (
	"sort"
	"time"
)

// WindowSpan is how far back the reading window reaches.
const WindowSpan = 24 * time.Hour

// ReadingWindow is a chronological, timestamp-unique run of readings.
type ReadingWindow []GlucoseReading

// Merge combines existing and incoming readings: duplicates by exact
// timestamp keep the last value seen, the result is sorted ascending, and
// only readings newer than now-WindowSpan are kept. Neither input is
// modified.
func Merge(existing, incoming []GlucoseReading, now time.Time) ReadingWindow {
	byTime := make(map[int64]GlucoseReading, len(existing)+len(incoming))
	for _, src := range [][]GlucoseReading{existing, incoming} {
		for _, r := range src {
			byTime[r.Timestamp.UnixNano()] = r
		}
	}

	cutoff := now.Add(-WindowSpan)
	out := make(ReadingWindow, 0, len(byTime))
	for _, r := range byTime {
		if r.Timestamp.After(cutoff) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// Latest returns the newest reading, if any.
func (w ReadingWindow) Latest() (GlucoseReading, bool) {
	if len(w) == 0 {
		return GlucoseReading{}, false
	}
	return w[len(w)-1], true
}

// Since returns the readings strictly after t.
func (w ReadingWindow) Since(t time.Time) ReadingWindow {
	i := sort.Search(len(w), func(i int) bool {
		return w[i].Timestamp.After(t)
	})
	return w[i:]
}
