package errlog

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codeberg.org/mutker/asusfanctl/internal/errors"
	"codeberg.org/mutker/asusfanctl/internal/logger"
	_ "github.com/mattn/go-sqlite3"
)

// Repository stores error records in an sqlite database.
type Repository struct {
	db      *sql.DB
	session string
	logger  logger.Logger
	mu      sync.Mutex
	closed  bool
}

func NewRepository(cfg Config, log logger.Logger) (*Repository, error) {
	errFactory := errors.New()

	if cfg.Path == "" {
		return nil, errFactory.New(ErrInvalidPath)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), defaultDirPerm); err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_directory",
			Path:  cfg.Path,
			Error: err.Error(),
		})
	}

	db, err := sql.Open("sqlite3", cfg.Path+"?_journal=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	if err := ValidateAndUpdateSchema(db, cfg.backupDir(), log); err != nil {
		db.Close()
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	log.Debug().
		Str("path", cfg.Path).
		Int("schema_version", SchemaVersion).
		Msg("Error log repository initialized")

	return &Repository{
		db:      db,
		session: cfg.Session,
		logger:  log,
	}, nil
}

// Log implements Sink. Storage failures go to the process log.
func (r *Repository) Log(err error, stack []byte) {
	if err == nil {
		return
	}
	if storeErr := r.Store(context.Background(), newRecord(r.session, err, stack)); storeErr != nil {
		r.logger.Warn().Err(storeErr).Msg("Failed to store error record")
	}
}

func (r *Repository) Store(ctx context.Context, rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return errors.New().WithMessage(ErrStorageAccess, "error log is closed")
	}

	_, err := r.db.ExecContext(ctx, insertErrorSQL,
		rec.Timestamp.Unix(),
		rec.Session,
		string(rec.Code),
		rec.Message,
		rec.Stack,
	)
	if err != nil {
		return errors.New().Wrap(ErrStorageAccess, err)
	}

	return nil
}

// Recent returns up to limit records, newest first.
func (r *Repository) Recent(ctx context.Context, limit int) ([]Record, error) {
	errFactory := errors.New()
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.QueryContext(ctx, recentErrorsSQL, limit)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec  Record
			ts   int64
			code string
		)
		if err := rows.Scan(&ts, &rec.Session, &code, &rec.Message, &rec.Stack); err != nil {
			return nil, errFactory.Wrap(ErrStorageAccess, err)
		}
		rec.Timestamp = time.Unix(ts, 0).UTC()
		rec.Code = errors.ErrorCode(code)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}

	return records, nil
}

func (r *Repository) Close() error {
	errFactory := errors.New()
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		r.logger.Debug().Err(err).Msg("Failed to checkpoint error log WAL")
	}

	if err := r.db.Close(); err != nil {
		return errFactory.Wrap(ErrStorageClose, err)
	}

	return nil
}
