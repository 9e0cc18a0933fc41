package collector

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/fyrsmithlabs/browserlog/internal/entry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(f float64) *float64 { return &f }

func TestNormalizeTimestamp(t *testing.T) {
	captured := time.Date(2025, 6, 1, 8, 30, 0, 0, time.UTC)
	capturedISO := "2025-06-01T08:30:00.000Z"

	tests := []struct {
		name string
		raw  *float64
		want string
	}{
		{"missing", nil, capturedISO},
		{"nan", ptr(math.NaN()), capturedISO},
		{"positive infinity", ptr(math.Inf(1)), capturedISO},
		{"negative", ptr(-5), capturedISO},
		{"zero", ptr(0), capturedISO},
		{"epoch seconds", ptr(1700000000), "2023-11-14T22:13:20.000Z"},
		{"fractional seconds", ptr(1700000000.25), "2023-11-14T22:13:20.250Z"},
		{"epoch milliseconds", ptr(1700000000123), "2023-11-14T22:13:20.123Z"},
		{"just below threshold is seconds", ptr(secondsThreshold - 1), "2099-12-31T23:59:59.000Z"},
		{"far future milliseconds", ptr(maxMillis + 1), capturedISO},
		{"absurd", ptr(1e300), capturedISO},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeTimestamp(tt.raw, captured)
			assert.Equal(t, tt.want, got)
			_, err := time.Parse(entry.TimestampLayout, got)
			require.NoError(t, err)
			_, err = time.Parse(time.RFC3339Nano, got)
			require.NoError(t, err)
		})
	}
}

func TestRawTime_Unmarshal(t *testing.T) {
	tests := []struct {
		in    string
		valid bool
	}{
		{`1700000000.5`, true},
		{`"1700000000"`, true},
		{`null`, false},
		{`"NaN"`, false},
		{`"soon"`, false},
		{`{"a":1}`, false},
		{`-3`, false},
	}
	for _, tt := range tests {
		var rt rawTime
		require.NoError(t, json.Unmarshal([]byte(tt.in), &rt), tt.in)
		assert.Equal(t, tt.valid, rt.valid(), tt.in)
	}
}

func TestFirstValid(t *testing.T) {
	assert.Nil(t, firstValid(rawTime{}, rawTime{v: ptr(math.NaN())}))
	got := firstValid(rawTime{v: ptr(-1)}, rawTime{v: ptr(1700000000)})
	require.NotNil(t, got)
	assert.Equal(t, 1700000000.0, *got)
}
