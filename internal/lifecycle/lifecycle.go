// Package lifecycle owns the stop sequence of a driver session: stop the
// background loops, return every fan to automatic mode, release the handle.
package lifecycle

import (
	"sync"

	"codeberg.org/mutker/asusfanctl/internal/errors"
	"codeberg.org/mutker/asusfanctl/internal/logger"
)

// Stopper is a background loop. Stop must block until the loop has exited.
type Stopper interface {
	Stop()
}

type FanResetter interface {
	ResetAllFans() error
}

type Session interface {
	BeginShutdown() bool
	Close() error
}

type Manager struct {
	session Session
	fans    FanResetter
	logger  logger.Logger

	mu      sync.Mutex
	loops   []Stopper
	closing bool

	once sync.Once
	err  error
	done chan struct{}
}

func New(session Session, fans FanResetter, log logger.Logger) *Manager {
	return &Manager{
		session: session,
		fans:    fans,
		logger:  log,
		done:    make(chan struct{}),
	}
}

// Track registers a loop to stop before the fans are reset. Loops tracked
// after shutdown has started are stopped immediately.
func (m *Manager) Track(loop Stopper) {
	m.mu.Lock()
	if m.closing {
		m.mu.Unlock()
		m.stop(loop)
		return
	}
	m.loops = append(m.loops, loop)
	m.mu.Unlock()
}

// Shutdown runs the stop sequence once. Later calls wait for the first one
// and return its result. Every step runs even when an earlier one failed.
func (m *Manager) Shutdown() error {
	m.once.Do(func() {
		m.err = m.shutdown()
	})
	<-m.done
	return m.err
}

// Done is closed once the stop sequence has finished.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

func (m *Manager) shutdown() error {
	defer close(m.done)

	m.logger.Info().Msg("Shutting down")
	m.session.BeginShutdown()

	m.mu.Lock()
	m.closing = true
	loops := m.loops
	m.loops = nil
	m.mu.Unlock()

	for i := len(loops) - 1; i >= 0; i-- {
		m.stop(loops[i])
	}
	m.logger.Debug().Int("loops", len(loops)).Msg("Background loops stopped")

	var errs []error
	if err := m.reset(); err != nil {
		m.logger.Error().Err(err).Msg("Failed to return fans to automatic mode")
		errs = append(errs, err)
	}

	if err := m.session.Close(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	m.logger.Info().Msg("Fans returned to automatic mode, driver released")

	return nil
}

func (m *Manager) stop(loop Stopper) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error().Interface("panic", r).Msg("Loop panicked while stopping")
		}
	}()
	loop.Stop()
}

func (m *Manager) reset() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New().WithData(errors.ErrResetFans, r)
		}
	}()
	return m.fans.ResetAllFans()
}
