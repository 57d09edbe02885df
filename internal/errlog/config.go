package errlog

import (
	"path/filepath"

	"codeberg.org/mutker/asusfanctl/internal/errors"
)

const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendNone   = "none"

	defaultDirPerm  = 0o755
	defaultFilePerm = 0o644
	defaultPath     = "error_log.txt"
)

type Config struct {
	Backend string
	Path    string
	// BackupDir receives a copy of an sqlite log before its schema is replaced.
	BackupDir string
	// Session tags every record.
	Session string
}

func DefaultConfig() Config {
	return Config{
		Backend: BackendFile,
		Path:    defaultPath,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	switch c.Backend {
	case BackendFile, BackendSQLite:
		if c.Path == "" {
			return errFactory.WithData(ErrInvalidPath, c.Backend)
		}
	case BackendNone:
	default:
		return errFactory.WithData(errors.ErrInvalidConfig, "unknown error log backend: "+c.Backend)
	}

	return nil
}

func (c Config) backupDir() string {
	if c.BackupDir != "" {
		return c.BackupDir
	}
	return filepath.Join(filepath.Dir(c.Path), "backups")
}
