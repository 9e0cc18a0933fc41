// Package entry defines the immutable records buffered during collection.
package entry

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Kind identifies the event stream an entry came from.
type Kind string

const (
	KindNetwork Kind = "network"
	KindConsole Kind = "console"
	KindLog     Kind = "log"
)

// TimestampLayout is the ISO8601 layout of every entry timestamp.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Payload is one of NetworkRequest, NetworkResponse, ConsoleMessage or
// LogEntry.
type Payload interface {
	kind() Kind
}

// CallFrame is one frame of a captured stack trace.
type CallFrame struct {
	FunctionName string `json:"functionName,omitempty"`
	URL          string `json:"url,omitempty"`
	LineNumber   int    `json:"lineNumber"`
	ColumnNumber int    `json:"columnNumber"`
}

func (f CallFrame) String() string {
	name := f.FunctionName
	if name == "" {
		name = "(anonymous)"
	}
	return fmt.Sprintf("at %s (%s:%d:%d)", name, f.URL, f.LineNumber, f.ColumnNumber)
}

type NetworkRequest struct {
	RequestID string            `json:"requestId"`
	URL       string            `json:"url"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers,omitempty"`
	Timestamp string            `json:"timestamp"`
}

type NetworkResponse struct {
	RequestID  string            `json:"requestId"`
	URL        string            `json:"url,omitempty"`
	Status     int               `json:"status"`
	StatusText string            `json:"statusText,omitempty"`
	MimeType   string            `json:"mimeType,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	Timestamp  string            `json:"timestamp"`
}

type ConsoleMessage struct {
	Source     string      `json:"source"`
	Level      string      `json:"level"`
	Text       string      `json:"text"`
	URL        string      `json:"url,omitempty"`
	StackTrace []CallFrame `json:"stackTrace,omitempty"`
	Timestamp  string      `json:"timestamp"`
}

type LogEntry struct {
	Source     string      `json:"source"`
	Level      string      `json:"level"`
	Text       string      `json:"text"`
	URL        string      `json:"url,omitempty"`
	StackTrace []CallFrame `json:"stackTrace,omitempty"`
	Timestamp  string      `json:"timestamp"`
}

func (NetworkRequest) kind() Kind  { return KindNetwork }
func (NetworkResponse) kind() Kind { return KindNetwork }
func (ConsoleMessage) kind() Kind  { return KindConsole }
func (LogEntry) kind() Kind        { return KindLog }

// Entry is a single collected event. Entries are values; the maps and
// slices they hold are private copies and must not be modified.
type Entry struct {
	Kind      Kind    `json:"kind"`
	Timestamp string  `json:"timestamp"`
	Payload   Payload `json:"payload"`
}

// New builds an entry for p stamped with timestamp.
func New(timestamp string, p Payload) Entry {
	return Entry{Kind: p.kind(), Timestamp: timestamp, Payload: clonePayload(p)}
}

// Serialize returns the JSON form filters match against.
func (e Entry) Serialize() (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("serialize %s entry: %w", e.Kind, err)
	}
	return string(data), nil
}

// Level returns the severity of console and log entries, or "".
func (e Entry) Level() string {
	switch p := e.Payload.(type) {
	case ConsoleMessage:
		return p.Level
	case LogEntry:
		return p.Level
	}
	return ""
}

// URL returns the URL an entry refers to, or "".
func (e Entry) URL() string {
	switch p := e.Payload.(type) {
	case NetworkRequest:
		return p.URL
	case NetworkResponse:
		return p.URL
	case ConsoleMessage:
		return p.URL
	case LogEntry:
		return p.URL
	}
	return ""
}

// StackTrace returns captured frames of console and log entries.
func (e Entry) StackTrace() []CallFrame {
	switch p := e.Payload.(type) {
	case ConsoleMessage:
		return p.StackTrace
	case LogEntry:
		return p.StackTrace
	}
	return nil
}

// Text returns a one-line human description of the entry.
func (e Entry) Text() string {
	switch p := e.Payload.(type) {
	case NetworkRequest:
		return strings.TrimSpace(p.Method + " " + p.URL)
	case NetworkResponse:
		text := fmt.Sprintf("%d", p.Status)
		if p.StatusText != "" {
			text += " " + p.StatusText
		}
		if p.URL != "" {
			text += " " + p.URL
		}
		return text
	case ConsoleMessage:
		return p.Text
	case LogEntry:
		return p.Text
	}
	return ""
}

// Time parses the entry timestamp. The zero time is returned for
// malformed values.
func (e Entry) Time() time.Time {
	t, err := time.Parse(TimestampLayout, e.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

func clonePayload(p Payload) Payload {
	switch v := p.(type) {
	case NetworkRequest:
		v.Headers = cloneHeaders(v.Headers)
		return v
	case NetworkResponse:
		v.Headers = cloneHeaders(v.Headers)
		return v
	case ConsoleMessage:
		v.StackTrace = append([]CallFrame(nil), v.StackTrace...)
		return v
	case LogEntry:
		v.StackTrace = append([]CallFrame(nil), v.StackTrace...)
		return v
	}
	return p
}

func cloneHeaders(h map[string]string) map[string]string {
	if h == nil {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}
