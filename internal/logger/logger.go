// internal/logger/logger.go
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// FileName is the base name of the daily log files.
const FileName = "mealie_backup.log"

// Init sends logs to stdout and, when logDir is set, to a daily log file
// inside logDir. The returned closer releases the log file.
func Init(level, logDir string) (io.Closer, error) {
	console := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}

	var out io.Writer = console
	var closer io.Closer = nopCloser{}
	if logDir != "" {
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return nil, fmt.Errorf("could not create log directory: %w", err)
		}
		df := &dailyFile{dir: logDir, now: time.Now}
		out = zerolog.MultiLevelWriter(console, df)
		closer = df
	}

	log.Logger = zerolog.New(out).With().Timestamp().Caller().Logger()
	zerolog.SetGlobalLevel(ParseLevel(level))
	return closer, nil
}

// ParseLevel converts a configured level name into a zerolog level,
// defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// dailyFile appends to FileName.YYYY-MM-DD and switches files when the date changes.
type dailyFile struct {
	dir string
	now func() time.Time

	mu   sync.Mutex
	day  string
	file *os.File
}

func (d *dailyFile) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	day := d.now().Format("2006-01-02")
	if d.file == nil || day != d.day {
		if d.file != nil {
			d.file.Close()
		}
		f, err := os.OpenFile(d.path(day), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			d.file = nil
			return 0, err
		}
		d.file, d.day = f, day
	}
	return d.file.Write(p)
}

func (d *dailyFile) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	return err
}

func (d *dailyFile) path(day string) string {
	return filepath.Join(d.dir, FileName+"."+day)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
