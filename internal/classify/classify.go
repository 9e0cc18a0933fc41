// Package classify recognizes known browser and debugging-protocol failures.
//
// The taxonomy is a flat, ordered table. The first pattern that matches a
// message decides its classification; adding a known error is adding a row.
package classify

import (
	"regexp"
)

// Severity is the impact level of a classified condition.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Codes for the known taxonomy.
const (
	CodeDebuggerNotRunning = "DEBUGGER_NOT_RUNNING"
	CodeNoDebuggableTarget = "NO_DEBUGGABLE_TARGET"
	CodeDeprecatedEndpoint = "DEPRECATED_ENDPOINT"
	CodeConnectionFailed   = "CONNECTION_FAILED"
	CodeInputMethodNoise   = "INPUT_METHOD_NOISE"
	CodeTaskPolicyNoise    = "TASK_POLICY_NOISE"
	CodeMediaAccessNoise   = "MEDIA_ACCESS_NOISE"
	CodeCSPViolationNoise  = "CSP_VIOLATION_NOISE"
	CodeMLDelegateNoise    = "ML_DELEGATE_NOISE"
	CodeAllocatorNoise     = "ALLOCATOR_REINIT_NOISE"
)

// Classification describes a recognized condition.
type Classification struct {
	Code           string   `json:"code"`
	Severity       Severity `json:"severity"`
	Recoverable    bool     `json:"recoverable"`
	Recommendation string   `json:"recommendation"`
}

type rule struct {
	pattern *regexp.Regexp
	Classification
}

// knownErrors is evaluated top to bottom. Fatal connection conditions come
// first so that their wrapped causes (for example "connection refused") do
// not classify them as transient.
var knownErrors = []rule{
	{
		pattern: regexp.MustCompile(`(?i)debugging endpoint not running|remote debugging (is )?not enabled`),
		Classification: Classification{
			Code:           CodeDebuggerNotRunning,
			Severity:       SeverityError,
			Recoverable:    false,
			Recommendation: "Start the browser with --remote-debugging-port and check host/port.",
		},
	},
	{
		pattern: regexp.MustCompile(`(?i)no debuggable (page )?target`),
		Classification: Classification{
			Code:           CodeNoDebuggableTarget,
			Severity:       SeverityError,
			Recoverable:    false,
			Recommendation: "Open a regular tab in the browser before extracting.",
		},
	},
	{
		pattern: regexp.MustCompile(`(?i)DEPRECATED_ENDPOINT|deprecated (registration )?endpoint`),
		Classification: Classification{
			Code:           CodeDeprecatedEndpoint,
			Severity:       SeverityWarning,
			Recoverable:    true,
			Recommendation: "The browser answered on a deprecated registration endpoint; retrying usually succeeds.",
		},
	},
	{
		pattern: regexp.MustCompile(`(?i)connection (failed|refused|reset|closed)|ECONNREFUSED|ECONNRESET|bad handshake|unexpected EOF|broken pipe`),
		Classification: Classification{
			Code:           CodeConnectionFailed,
			Severity:       SeverityError,
			Recoverable:    true,
			Recommendation: "The debugging socket dropped; the session will be retried.",
		},
	},
	{
		pattern: regexp.MustCompile(`IMKClient|IMKInputSession|TSMAdjustCapsLock|TextInputClient`),
		Classification: Classification{
			Code:           CodeInputMethodNoise,
			Severity:       SeverityWarning,
			Recoverable:    true,
			Recommendation: "Platform input-method chatter; safe to ignore.",
		},
	},
	{
		pattern: regexp.MustCompile(`(?i)task_policy_set|task policy|SetApplicationIsDaemon`),
		Classification: Classification{
			Code:           CodeTaskPolicyNoise,
			Severity:       SeverityWarning,
			Recoverable:    true,
			Recommendation: "Process scheduling policy notice; safe to ignore.",
		},
	},
	{
		pattern: regexp.MustCompile(`(?i)AVCaptureDevice|media access (denied|permission)|NotAllowedError: Permission denied`),
		Classification: Classification{
			Code:           CodeMediaAccessNoise,
			Severity:       SeverityWarning,
			Recoverable:    true,
			Recommendation: "Camera or microphone permission prompt; safe to ignore unless media is under test.",
		},
	},
	{
		pattern: regexp.MustCompile(`(?i)Content Security Policy|Refused to (load|execute|connect|frame)`),
		Classification: Classification{
			Code:           CodeCSPViolationNoise,
			Severity:       SeverityWarning,
			Recoverable:    true,
			Recommendation: "Content-Security-Policy report from a third-party resource.",
		},
	},
	{
		pattern: regexp.MustCompile(`(?i)TensorFlow Lite|XNNPACK delegate|TfLite`),
		Classification: Classification{
			Code:           CodeMLDelegateNoise,
			Severity:       SeverityWarning,
			Recoverable:    true,
			Recommendation: "On-device ML delegate initialization; safe to ignore.",
		},
	},
	{
		pattern: regexp.MustCompile(`(?i)SharedImageManager|re-?initializ\w* (the )?allocator|allocator re-?init`),
		Classification: Classification{
			Code:           CodeAllocatorNoise,
			Severity:       SeverityWarning,
			Recoverable:    true,
			Recommendation: "GPU allocator reinitialization; safe to ignore.",
		},
	},
}

// Classify returns the classification of the first known pattern matching
// message.
func Classify(message string) (Classification, bool) {
	if message == "" {
		return Classification{}, false
	}
	for _, r := range knownErrors {
		if r.pattern.MatchString(message) {
			return r.Classification, true
		}
	}
	return Classification{}, false
}

// ClassifyError classifies err by its message. A nil error is unclassified.
func ClassifyError(err error) (Classification, bool) {
	if err == nil {
		return Classification{}, false
	}
	return Classify(err.Error())
}

// ShouldSuppress reports whether entries carrying c are dropped at ingestion.
func ShouldSuppress(c Classification) bool {
	return c.Severity == SeverityWarning && c.Recoverable
}

// Known returns a copy of the taxonomy in evaluation order.
func Known() []Classification {
	out := make([]Classification, len(knownErrors))
	for i, r := range knownErrors {
		out[i] = r.Classification
	}
	return out
}
