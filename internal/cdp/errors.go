package cdp

import "errors"

var (
	// ErrDebuggerNotRunning means the DevTools HTTP endpoint did not answer
	// the liveness probe successfully.
	ErrDebuggerNotRunning = errors.New("browser debugging endpoint not running")

	// ErrNoDebuggableTarget means the target list had no page to attach to.
	ErrNoDebuggableTarget = errors.New("no debuggable page target found")

	// ErrSessionClosed is returned by operations on a closed session.
	ErrSessionClosed = errors.New("session closed")

	// ErrDomainEnable wraps a failure to enable a capability domain.
	ErrDomainEnable = errors.New("failed to enable domain")
)
