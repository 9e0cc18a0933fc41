package classify

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		message     string
		wantCode    string
		recoverable bool
		suppress    bool
	}{
		{"deprecated endpoint token", "WARNING: DEPRECATED_ENDPOINT used for registration", CodeDeprecatedEndpoint, true, true},
		{"deprecated endpoint prose", "Registration via deprecated endpoint, please update", CodeDeprecatedEndpoint, true, true},
		{"connection refused", "dial tcp 127.0.0.1:9222: connect: connection refused", CodeConnectionFailed, true, false},
		{"bad handshake", "websocket: bad handshake", CodeConnectionFailed, true, false},
		{"ime noise", "IMKClient Stall detected, *please Report*", CodeInputMethodNoise, true, true},
		{"task policy", "task_policy_set TASK_CATEGORY_POLICY: (os/kern) invalid argument", CodeTaskPolicyNoise, true, true},
		{"media access", "AVCaptureDevice was used without permission", CodeMediaAccessNoise, true, true},
		{"csp", "Refused to load the script because it violates the following Content Security Policy directive", CodeCSPViolationNoise, true, true},
		{"ml delegate", "Created TensorFlow Lite XNNPACK delegate for CPU.", CodeMLDelegateNoise, true, true},
		{"allocator", "SharedImageManager::ProduceSkia: Trying to Produce a Skia representation from a non-existent mailbox", CodeAllocatorNoise, true, true},
		{"not running", "browser debugging endpoint not running at localhost:9222: connection refused", CodeDebuggerNotRunning, false, false},
		{"no target", "no debuggable page target found", CodeNoDebuggableTarget, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, ok := Classify(tt.message)
			require.True(t, ok)
			assert.Equal(t, tt.wantCode, c.Code)
			assert.Equal(t, tt.recoverable, c.Recoverable)
			assert.Equal(t, tt.suppress, ShouldSuppress(c))
			assert.NotEmpty(t, c.Recommendation)
		})
	}
}

func TestClassify_Unknown(t *testing.T) {
	for _, msg := range []string{"", "TypeError: undefined is not a function", "GET /api/users 200"} {
		_, ok := Classify(msg)
		assert.False(t, ok, msg)
	}
}

func TestClassify_FirstMatchWins(t *testing.T) {
	// Both the fatal and the transient pattern match; table order decides.
	c, ok := Classify("debugging endpoint not running: connection refused")
	require.True(t, ok)
	assert.Equal(t, CodeDebuggerNotRunning, c.Code)
}

func TestClassifyError(t *testing.T) {
	_, ok := ClassifyError(nil)
	assert.False(t, ok)

	wrapped := fmt.Errorf("open session: %w", errors.New("connection reset by peer"))
	c, ok := ClassifyError(wrapped)
	require.True(t, ok)
	assert.Equal(t, CodeConnectionFailed, c.Code)
}

func TestShouldSuppress(t *testing.T) {
	assert.True(t, ShouldSuppress(Classification{Severity: SeverityWarning, Recoverable: true}))
	assert.False(t, ShouldSuppress(Classification{Severity: SeverityWarning, Recoverable: false}))
	assert.False(t, ShouldSuppress(Classification{Severity: SeverityError, Recoverable: true}))
	assert.False(t, ShouldSuppress(Classification{Severity: SeverityInfo, Recoverable: true}))
}

func TestKnown(t *testing.T) {
	known := Known()
	require.Len(t, known, len(knownErrors))
	known[0].Code = "mutated"
	assert.Equal(t, CodeDebuggerNotRunning, knownErrors[0].Code)
}
