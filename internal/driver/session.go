package driver

import (
	"sync"
	"sync/atomic"

	"codeberg.org/mutker/asusfanctl/internal/errors"
	"codeberg.org/mutker/asusfanctl/internal/logger"
	"github.com/google/uuid"
)

// held guards the one-live-handle-per-process rule.
var held atomic.Bool

// Session is the exclusive owner of a Driver. All device access is serialized
// behind its mutex.
type Session struct {
	id     string
	drv    Driver
	logger logger.Logger

	mu    sync.Mutex
	state State
}

// Open initializes drv and returns an Active session. The caller must Close it.
func Open(drv Driver, log logger.Logger) (*Session, error) {
	errFactory := errors.New()

	if !held.CompareAndSwap(false, true) {
		return nil, errFactory.WithMessage(errors.ErrDriverInit, "driver handle already held by this process")
	}

	if err := drv.Init(); err != nil {
		held.Store(false)
		return nil, errFactory.Wrap(errors.ErrDriverInit, err)
	}

	id := uuid.NewString()
	s := &Session{
		id:     id,
		drv:    drv,
		logger: log.With("session", id),
		state:  StateActive,
	}
	s.logger.Debug().Msg("Driver session opened")

	return s, nil
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Do runs fn with exclusive device access while the handle is live
// (Active or ShuttingDown).
func (s *Session) Do(fn func(Driver) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive && s.state != StateShuttingDown {
		return errors.New().WithData(errors.ErrSessionNotActive, s.state.String())
	}

	return fn(s.drv)
}

// DoActive is Do restricted to the Active state. Commands that change fan
// behaviour use it so nothing new is written once shutdown has begun.
func (s *Session) DoActive(fn func(Driver) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive {
		return errors.New().WithData(errors.ErrSessionNotActive, s.state.String())
	}

	return fn(s.drv)
}

// BeginShutdown moves an Active session to ShuttingDown. It reports whether
// the transition happened.
func (s *Session) BeginShutdown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive {
		return false
	}
	s.state = StateShuttingDown
	s.logger.Debug().Msg("Driver session shutting down")

	return true
}

// Close releases the driver handle. It is idempotent; the handle is released
// even when the driver reports a shutdown failure.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateClosed, StateUninitialized:
		return nil
	case StateActive:
		s.state = StateShuttingDown
	}

	err := s.drv.Shutdown()
	s.state = StateClosed
	held.Store(false)

	if err != nil {
		s.logger.Error().Err(err).Msg("Driver shutdown reported an error")
		return errors.New().Wrap(errors.ErrDriverShutdown, err)
	}
	s.logger.Debug().Msg("Driver session closed")

	return nil
}
