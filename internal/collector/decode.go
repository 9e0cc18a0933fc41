package collector

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/browserlog/internal/cdp"
	"github.com/fyrsmithlabs/browserlog/internal/entry"
)

type requestWillBeSent struct {
	RequestID string `json:"requestId"`
	Request   struct {
		URL     string         `json:"url"`
		Method  string         `json:"method"`
		Headers map[string]any `json:"headers"`
	} `json:"request"`
	Timestamp rawTime `json:"timestamp"`
	WallTime  rawTime `json:"wallTime"`
}

type responseReceived struct {
	RequestID string  `json:"requestId"`
	Timestamp rawTime `json:"timestamp"`
	Response  struct {
		URL          string         `json:"url"`
		Status       float64        `json:"status"`
		StatusText   string         `json:"statusText"`
		MimeType     string         `json:"mimeType"`
		Headers      map[string]any `json:"headers"`
		ResponseTime rawTime        `json:"responseTime"`
	} `json:"response"`
}

type messageAdded struct {
	Message struct {
		Source string `json:"source"`
		Level  string `json:"level"`
		Text   string `json:"text"`
		URL    string `json:"url"`
		Line   int    `json:"line"`
		Column int    `json:"column"`
	} `json:"message"`
}

type callFrame struct {
	FunctionName string `json:"functionName"`
	URL          string `json:"url"`
	LineNumber   int    `json:"lineNumber"`
	ColumnNumber int    `json:"columnNumber"`
}

type entryAdded struct {
	Entry struct {
		Source     string  `json:"source"`
		Level      string  `json:"level"`
		Text       string  `json:"text"`
		URL        string  `json:"url"`
		LineNumber int     `json:"lineNumber"`
		Timestamp  rawTime `json:"timestamp"`
		StackTrace *struct {
			CallFrames []callFrame `json:"callFrames"`
		} `json:"stackTrace"`
	} `json:"entry"`
}

// decodeEvent turns a protocol event into an entry. ok is false for events
// that do not produce entries.
func decodeEvent(ev cdp.Event, captured time.Time) (e entry.Entry, ok bool, err error) {
	switch ev.Method {
	case cdp.EventRequestWillBeSent:
		var p requestWillBeSent
		if err := json.Unmarshal(ev.Params, &p); err != nil {
			return entry.Entry{}, false, fmt.Errorf("decode %s: %w", ev.Method, err)
		}
		ts := NormalizeTimestamp(firstValid(p.WallTime, p.Timestamp), captured)
		return entry.New(ts, entry.NetworkRequest{
			RequestID: p.RequestID,
			URL:       p.Request.URL,
			Method:    p.Request.Method,
			Headers:   flattenHeaders(p.Request.Headers),
			Timestamp: ts,
		}), true, nil

	case cdp.EventResponseReceived:
		var p responseReceived
		if err := json.Unmarshal(ev.Params, &p); err != nil {
			return entry.Entry{}, false, fmt.Errorf("decode %s: %w", ev.Method, err)
		}
		ts := NormalizeTimestamp(firstValid(p.Response.ResponseTime, p.Timestamp), captured)
		return entry.New(ts, entry.NetworkResponse{
			RequestID:  p.RequestID,
			URL:        p.Response.URL,
			Status:     int(p.Response.Status),
			StatusText: p.Response.StatusText,
			MimeType:   p.Response.MimeType,
			Headers:    flattenHeaders(p.Response.Headers),
			Timestamp:  ts,
		}), true, nil

	case cdp.EventMessageAdded:
		var p messageAdded
		if err := json.Unmarshal(ev.Params, &p); err != nil {
			return entry.Entry{}, false, fmt.Errorf("decode %s: %w", ev.Method, err)
		}
		ts := NormalizeTimestamp(nil, captured)
		msg := entry.ConsoleMessage{
			Source:    p.Message.Source,
			Level:     p.Message.Level,
			Text:      p.Message.Text,
			URL:       p.Message.URL,
			Timestamp: ts,
		}
		if p.Message.URL != "" && p.Message.Line > 0 {
			msg.StackTrace = []entry.CallFrame{{URL: p.Message.URL, LineNumber: p.Message.Line, ColumnNumber: p.Message.Column}}
		}
		return entry.New(ts, msg), true, nil

	case cdp.EventEntryAdded:
		var p entryAdded
		if err := json.Unmarshal(ev.Params, &p); err != nil {
			return entry.Entry{}, false, fmt.Errorf("decode %s: %w", ev.Method, err)
		}
		ts := NormalizeTimestamp(p.Entry.Timestamp.v, captured)
		log := entry.LogEntry{
			Source:    p.Entry.Source,
			Level:     p.Entry.Level,
			Text:      p.Entry.Text,
			URL:       p.Entry.URL,
			Timestamp: ts,
		}
		if p.Entry.StackTrace != nil {
			for _, f := range p.Entry.StackTrace.CallFrames {
				log.StackTrace = append(log.StackTrace, entry.CallFrame(f))
			}
		} else if p.Entry.URL != "" && p.Entry.LineNumber > 0 {
			log.StackTrace = []entry.CallFrame{{URL: p.Entry.URL, LineNumber: p.Entry.LineNumber}}
		}
		return entry.New(ts, log), true, nil
	}
	return entry.Entry{}, false, nil
}

// flattenHeaders stringifies header values. Repeated headers arrive joined
// by newlines and are kept that way.
func flattenHeaders(h map[string]any) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, raw := range h {
		switch v := raw.(type) {
		case string:
			out[k] = v
		case nil:
			out[k] = ""
		default:
			out[k] = strings.TrimSpace(fmt.Sprint(v))
		}
	}
	return out
}

// suppressionText is the text checked against the noise taxonomy.
func suppressionText(e entry.Entry) (string, bool) {
	switch e.Kind {
	case entry.KindConsole, entry.KindLog:
		return e.Text(), true
	}
	return "", false
}
