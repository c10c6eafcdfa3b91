package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TimeFormat is the timestamp layout of every log line.
const TimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Options configures a root Logger.
type Options struct {
	// Path of the rolling log file. Empty disables file output.
	Path string

	// Level is one of debug, info, warn, error. Defaults to info.
	Level string

	// Console receives a coloured copy of every line. Nil disables it.
	Console io.Writer

	// NoColor disables ANSI colours on the console writer.
	NoColor bool
}

// Logger writes `{timestamp} [{LEVEL}] [{component}] {message}` lines to the
// log file and, optionally, the console.
//
// A Logger is created once per process run and handed to every component at
// construction; Named derives a child for each component.
type Logger struct {
	zl        zerolog.Logger
	runID     string
	component string
	file      *os.File
	logPath   string
	closeOnce *sync.Once
}

var timeFormatOnce sync.Once

// New creates the root logger for a run.
//
// If the log file cannot be opened the logger falls back to stderr and the
// error is returned alongside it, so callers can warn and continue.
func New(opts Options) (*Logger, error) {
	timeFormatOnce.Do(func() {
		zerolog.TimeFieldFormat = time.RFC3339Nano
	})

	runID := uuid.New().String()
	level := ParseLevel(opts.Level)

	var (
		writers []io.Writer
		file    *os.File
		openErr error
	)

	if opts.Path != "" {
		if dir := filepath.Dir(opts.Path); dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				openErr = fmt.Errorf("failed to create log directory: %w", err)
			}
		}
		if openErr == nil {
			f, err := os.OpenFile(opts.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
			if err != nil {
				openErr = fmt.Errorf("failed to open log file: %w", err)
			} else {
				file = f
				writers = append(writers, lineWriter(f, true))
			}
		}
	}

	if opts.Console != nil {
		writers = append(writers, lineWriter(opts.Console, opts.NoColor))
	}

	if file == nil && opts.Path != "" && opts.Console == nil {
		// Fallback to stderr if we can't open the log file
		writers = append(writers, lineWriter(os.Stderr, true))
	}

	var out io.Writer = io.Discard
	switch len(writers) {
	case 0:
	case 1:
		out = writers[0]
	default:
		out = zerolog.MultiLevelWriter(writers...)
	}

	zl := zerolog.New(out).Level(level).With().Timestamp().Str("run_id", runID).Logger()

	l := &Logger{
		zl:        zl,
		runID:     runID,
		file:      file,
		logPath:   opts.Path,
		closeOnce: &sync.Once{},
	}
	if openErr != nil {
		l.Warnf("file logging unavailable, falling back to stderr: %v", openErr)
		return l, openErr
	}
	return l, nil
}

// NewWriter creates a logger that writes plain lines to w. Intended for
// tests and for callers that manage their own sink.
func NewWriter(w io.Writer, level string) *Logger {
	timeFormatOnce.Do(func() {
		zerolog.TimeFieldFormat = time.RFC3339Nano
	})
	zl := zerolog.New(lineWriter(w, true)).Level(ParseLevel(level)).With().Timestamp().Logger()
	return &Logger{zl: zl, closeOnce: &sync.Once{}}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop(), closeOnce: &sync.Once{}}
}

// lineWriter renders events as `{timestamp} [{LEVEL}] [{component}] {message}`
// followed by any remaining fields.
func lineWriter(w io.Writer, noColor bool) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:           w,
		NoColor:       noColor,
		TimeFormat:    TimeFormat,
		PartsOrder:    []string{zerolog.TimestampFieldName, zerolog.LevelFieldName, zerolog.MessageFieldName},
		FieldsExclude: []string{"run_id"},
		FormatLevel: func(i interface{}) string {
			s, _ := i.(string)
			if s == "" {
				s = "info"
			}
			return "[" + strings.ToUpper(s) + "]"
		},
		FormatPrepare: func(evt map[string]interface{}) error {
			comp, ok := evt["component"].(string)
			if !ok || comp == "" {
				return nil
			}
			msg, _ := evt[zerolog.MessageFieldName].(string)
			evt[zerolog.MessageFieldName] = "[" + comp + "] " + msg
			delete(evt, "component")
			return nil
		},
	}
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// Named returns a child logger tagged with the component name.
func (l *Logger) Named(component string) *Logger {
	if component == "" {
		return l
	}
	return &Logger{
		zl:        l.zl.With().Str("component", component).Logger(),
		runID:     l.runID,
		component: component,
		file:      l.file,
		logPath:   l.logPath,
		closeOnce: l.closeOnce,
	}
}

// Debugf logs a debug-level message
func (l *Logger) Debugf(format string, v ...interface{}) {
	l.zl.Debug().Msgf(format, v...)
}

// Infof logs an info-level message
func (l *Logger) Infof(format string, v ...interface{}) {
	l.zl.Info().Msgf(format, v...)
}

// Warnf logs a warning-level message
func (l *Logger) Warnf(format string, v ...interface{}) {
	l.zl.Warn().Msgf(format, v...)
}

// Errorf logs an error-level message
func (l *Logger) Errorf(format string, v ...interface{}) {
	l.zl.Error().Msgf(format, v...)
}

// Zerolog exposes the underlying logger for callers that want structured
// fields.
func (l *Logger) Zerolog() *zerolog.Logger {
	return &l.zl
}

// RunID returns the id shared by every line of this run.
func (l *Logger) RunID() string {
	return l.runID
}

// Component returns the component name, empty for the root logger.
func (l *Logger) Component() string {
	return l.component
}

// LogPath returns the path to the log file
func (l *Logger) LogPath() string {
	return l.logPath
}

// Close closes the log file. Safe to call multiple times and from any child.
func (l *Logger) Close() error {
	var err error
	l.closeOnce.Do(func() {
		if l.file != nil {
			err = l.file.Close()
		}
	})
	return err
}

// Since formats the elapsed time since t for log messages.
func Since(t time.Time) string {
	return time.Since(t).Round(time.Millisecond).String()
}
