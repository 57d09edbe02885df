// Package errlog records caught errors with their stack traces.
package errlog

import (
	"time"

	"codeberg.org/mutker/asusfanctl/internal/errors"
	"codeberg.org/mutker/asusfanctl/internal/logger"
)

// Sink is an append-only error log.
type Sink interface {
	Log(err error, stack []byte)
	Close() error
}

// Record is one logged error.
type Record struct {
	Timestamp time.Time
	Session   string
	Code      errors.ErrorCode
	Message   string
	Stack     string
}

func newRecord(session string, err error, stack []byte) Record {
	return Record{
		Timestamp: time.Now().UTC(),
		Session:   session,
		Code:      errors.CodeOf(err),
		Message:   err.Error(),
		Stack:     string(stack),
	}
}

// New opens the sink selected by cfg.
func New(cfg Config, log logger.Logger) (Sink, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(errors.ErrInitErrorLog, err)
	}

	switch cfg.Backend {
	case BackendNone:
		log.Debug().Msg("Error log disabled, using no-op sink")
		return noopSink{}, nil
	case BackendSQLite:
		repo, err := NewRepository(cfg, log)
		if err != nil {
			return nil, errFactory.Wrap(errors.ErrInitErrorLog, err)
		}
		return repo, nil
	default:
		return NewFile(cfg.Path, cfg.Session, log), nil
	}
}

type noopSink struct{}

func (noopSink) Log(error, []byte) {}

func (noopSink) Close() error {
	return nil
}
