package errlog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"codeberg.org/mutker/asusfanctl/internal/logger"
)

const separator = "--------------------------------------------------"

// File appends human readable error entries to a text file.
type File struct {
	path    string
	session string
	logger  logger.Logger
	mu      sync.Mutex
}

func NewFile(path, session string, log logger.Logger) *File {
	return &File{path: path, session: session, logger: log}
}

// Log appends err and its stack. Write failures are reported to the process
// log and otherwise ignored.
func (f *File) Log(err error, stack []byte) {
	if err == nil {
		return
	}
	rec := newRecord(f.session, err, stack)

	var b strings.Builder
	b.WriteString("Error occurred:\n")
	fmt.Fprintf(&b, "%s [%s] session=%s\n", rec.Timestamp.Format("2006-01-02T15:04:05Z07:00"), rec.Code, rec.Session)
	b.WriteString(rec.Message + "\n")
	b.WriteString(rec.Stack)
	if !strings.HasSuffix(rec.Stack, "\n") {
		b.WriteString("\n")
	}
	b.WriteString(separator + "\n")

	f.mu.Lock()
	defer f.mu.Unlock()

	if dir := filepath.Dir(f.path); dir != "." {
		if mkErr := os.MkdirAll(dir, defaultDirPerm); mkErr != nil {
			f.logger.Warn().Err(mkErr).Str("path", f.path).Msg("Failed to create error log directory")
			return
		}
	}

	//nolint:gosec // G302/G304: path comes from configuration
	file, openErr := os.OpenFile(f.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, defaultFilePerm)
	if openErr != nil {
		f.logger.Warn().Err(openErr).Str("path", f.path).Msg("Failed to open error log")
		return
	}
	defer file.Close()

	if _, writeErr := file.WriteString(b.String()); writeErr != nil {
		f.logger.Warn().Err(writeErr).Str("path", f.path).Msg("Failed to write error log")
	}
}

func (*File) Close() error {
	return nil
}
