package collector

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/fyrsmithlabs/browserlog/internal/cdp"
	"github.com/fyrsmithlabs/browserlog/internal/entry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var captured = time.Date(2025, 6, 1, 8, 30, 0, 0, time.UTC)

func event(method, params string) cdp.Event {
	return cdp.Event{Method: method, Params: json.RawMessage(params)}
}

func TestDecodeEvent_Request(t *testing.T) {
	e, ok, err := decodeEvent(event(cdp.EventRequestWillBeSent, `{
		"requestId": "42.1",
		"request": {"url": "https://api.example.com/users", "method": "GET", "headers": {"Accept": "application/json", "X-Retry": 2}},
		"timestamp": 8123.44,
		"wallTime": 1700000000.5
	}`), captured)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, entry.KindNetwork, e.Kind)
	assert.Equal(t, "2023-11-14T22:13:20.500Z", e.Timestamp)
	req := e.Payload.(entry.NetworkRequest)
	assert.Equal(t, "42.1", req.RequestID)
	assert.Equal(t, "GET", req.Method)
	assert.Equal(t, "2", req.Headers["X-Retry"])
	assert.Equal(t, e.Timestamp, req.Timestamp)
}

func TestDecodeEvent_Response(t *testing.T) {
	e, ok, err := decodeEvent(event(cdp.EventResponseReceived, `{
		"requestId": "42.1",
		"timestamp": 8124.01,
		"response": {"url": "https://api.example.com/users", "status": 404, "statusText": "Not Found", "mimeType": "application/json", "responseTime": 1700000000999}
	}`), captured)
	require.NoError(t, err)
	require.True(t, ok)

	resp := e.Payload.(entry.NetworkResponse)
	assert.Equal(t, 404, resp.Status)
	assert.Equal(t, "https://api.example.com/users", resp.URL)
	assert.Equal(t, "2023-11-14T22:13:20.999Z", e.Timestamp)
}

func TestDecodeEvent_ConsoleUsesCaptureTime(t *testing.T) {
	e, ok, err := decodeEvent(event(cdp.EventMessageAdded, `{
		"message": {"source": "console-api", "level": "error", "text": "Uncaught TypeError", "url": "http://localhost:3000/app.js", "line": 12, "column": 4}
	}`), captured)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, entry.KindConsole, e.Kind)
	assert.Equal(t, "2025-06-01T08:30:00.000Z", e.Timestamp)
	assert.Equal(t, "error", e.Level())
	require.Len(t, e.StackTrace(), 1)
	assert.Equal(t, 12, e.StackTrace()[0].LineNumber)
}

func TestDecodeEvent_LogWithStackTrace(t *testing.T) {
	e, ok, err := decodeEvent(event(cdp.EventEntryAdded, `{
		"entry": {"source": "javascript", "level": "warning", "text": "deprecated API", "timestamp": "NaN",
			"stackTrace": {"callFrames": [{"functionName": "init", "url": "app.js", "lineNumber": 1, "columnNumber": 2}]}}
	}`), captured)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, entry.KindLog, e.Kind)
	assert.Equal(t, "2025-06-01T08:30:00.000Z", e.Timestamp)
	require.Len(t, e.StackTrace(), 1)
	assert.Equal(t, "init", e.StackTrace()[0].FunctionName)
}

func TestDecodeEvent_Unhandled(t *testing.T) {
	_, ok, err := decodeEvent(event("Page.loadEventFired", `{"timestamp": 1}`), captured)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDecodeEvent_Malformed(t *testing.T) {
	_, ok, err := decodeEvent(event(cdp.EventEntryAdded, `{"entry": "nope"}`), captured)
	require.Error(t, err)
	assert.False(t, ok)
}
