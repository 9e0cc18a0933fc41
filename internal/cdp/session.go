package cdp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Session is a live protocol connection to one target plus the set of
// domains currently enabled on it. A closed session is never reused.
type Session struct {
	ID     string
	Target TargetInfo

	conn        Conn
	logger      *zap.Logger
	callTimeout time.Duration

	mu      sync.Mutex
	enabled []Domain
	closed  bool
}

func newSession(target TargetInfo, conn Conn, callTimeout time.Duration, logger *zap.Logger) *Session {
	return &Session{
		ID:          uuid.NewString(),
		Target:      target,
		conn:        conn,
		logger:      logger.With(zap.String("target.id", target.ID)),
		callTimeout: callTimeout,
	}
}

// Events returns the session's event stream. It is closed on disconnect.
func (s *Session) Events() <-chan Event {
	return s.conn.Events()
}

// EnabledDomains returns the enabled domains in enable order.
func (s *Session) EnabledDomains() []Domain {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Domain(nil), s.enabled...)
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Enable enables each domain in order, stopping at the first failure.
func (s *Session) Enable(ctx context.Context, domains ...Domain) error {
	for _, d := range domains {
		if s.Closed() {
			return ErrSessionClosed
		}
		if s.isEnabled(d) {
			continue
		}
		method, ok := enableMethods[d]
		if !ok {
			return fmt.Errorf("%w %s: unknown domain", ErrDomainEnable, d)
		}
		if err := s.call(ctx, method); err != nil {
			return fmt.Errorf("%w %s: %w", ErrDomainEnable, d, err)
		}

		s.mu.Lock()
		s.enabled = append(s.enabled, d)
		s.mu.Unlock()
		s.logger.Debug("domain enabled", zap.String("domain", string(d)))
	}
	return nil
}

// Close stops event delivery, disables enabled domains best effort and
// closes the connection. It is safe to call more than once.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	enabled := s.enabled
	s.enabled = nil
	s.mu.Unlock()

	if st, ok := s.conn.(eventStopper); ok {
		st.StopEvents()
	}

	var errs []error
	for i := len(enabled) - 1; i >= 0; i-- {
		if err := s.call(ctx, disableMethods[enabled[i]]); err != nil {
			s.logger.Debug("domain disable failed",
				zap.String("domain", string(enabled[i])),
				zap.Error(err),
			)
		}
	}
	if err := s.conn.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close connection: %w", err))
	}
	s.logger.Debug("session closed", zap.String("session.id", s.ID))
	return errors.Join(errs...)
}

func (s *Session) isEnabled(d Domain) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.enabled {
		if e == d {
			return true
		}
	}
	return false
}

// call bounds a single round trip by the per-call timeout.
func (s *Session) call(ctx context.Context, method string) error {
	if s.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.callTimeout)
		defer cancel()
	}
	return s.conn.Call(ctx, method, nil)
}
