package collector

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"time"

	"github.com/fyrsmithlabs/browserlog/internal/entry"
)

const (
	// secondsThreshold is 2100-01-01T00:00:00Z in epoch seconds. Smaller raw
	// values are seconds, larger ones milliseconds.
	secondsThreshold = 4102444800
	maxMillis        = secondsThreshold * 1000
)

// rawTime is a protocol timestamp that never fails to decode. Anything that
// is not a finite number (null, "NaN", garbage) decodes as missing.
type rawTime struct {
	v *float64
}

func (t *rawTime) UnmarshalJSON(data []byte) error {
	t.v = nil
	data = bytes.Trim(bytes.TrimSpace(data), `"`)
	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return nil
	}
	t.v = &f
	return nil
}

func (t rawTime) valid() bool {
	_, ok := toMillis(t.v)
	return ok
}

// NormalizeTimestamp converts a raw protocol timestamp in epoch seconds or
// milliseconds to ISO8601. Missing, non-finite, non-positive and out of range
// values are replaced by captured.
func NormalizeTimestamp(raw *float64, captured time.Time) string {
	ms, ok := toMillis(raw)
	if !ok {
		return formatTime(captured)
	}
	return formatTime(time.UnixMilli(ms))
}

func toMillis(raw *float64) (int64, bool) {
	if raw == nil {
		return 0, false
	}
	v := *raw
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0, false
	}
	if v < secondsThreshold {
		v *= 1000
	}
	if v > maxMillis {
		return 0, false
	}
	return int64(v), true
}

func formatTime(t time.Time) string {
	return t.UTC().Format(entry.TimestampLayout)
}

// firstValid returns the first usable timestamp, preferring earlier
// arguments.
func firstValid(candidates ...rawTime) *float64 {
	for _, c := range candidates {
		if c.valid() {
			return c.v
		}
	}
	return nil
}

var _ json.Unmarshaler = (*rawTime)(nil)
