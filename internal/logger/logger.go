package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
)

var (
	Logger  *log.Logger
	logFile *os.File
)

func init() {
	Logger = log.NewWithOptions(os.Stderr, log.Options{
		Prefix: "xhier",
	})

	// Set log level from environment variable
	SetLevel(os.Getenv("LOG_LEVEL"))
}

// ParseLevel maps a level name to a log level. Unknown names fall back to info.
func ParseLevel(name string) log.Level {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return log.DebugLevel
	case "WARN", "WARNING":
		return log.WarnLevel
	case "ERROR":
		return log.ErrorLevel
	case "FATAL":
		return log.FatalLevel
	default:
		return log.InfoLevel
	}
}

// SetLevel changes the level of the global logger
func SetLevel(name string) {
	Logger.SetLevel(ParseLevel(name))
}

// SetOutput redirects the global logger
func SetOutput(w io.Writer) {
	Logger.SetOutput(w)
}

// EnableFileLogging tees log output to path in addition to stderr.
// The daemon uses it because it usually runs detached from a terminal.
func EnableFileLogging(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	if logFile != nil {
		logFile.Close()
	}
	logFile = f
	Logger.SetOutput(io.MultiWriter(os.Stderr, f))
	return nil
}

// DefaultLogPath returns $XDG_STATE_HOME/xhier/xhier.log
func DefaultLogPath() string {
	state := os.Getenv("XDG_STATE_HOME")
	if state == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(os.TempDir(), "xhier.log")
		}
		state = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(state, "xhier", "xhier.log")
}

// Close releases the log file, if any
func Close() {
	if logFile != nil {
		Logger.SetOutput(os.Stderr)
		logFile.Close()
		logFile = nil
	}
}

// Convenience functions for common operations
func Info(msg interface{}, keyvals ...interface{}) {
	Logger.Info(msg, keyvals...)
}

func Debug(msg interface{}, keyvals ...interface{}) {
	Logger.Debug(msg, keyvals...)
}

func Warn(msg interface{}, keyvals ...interface{}) {
	Logger.Warn(msg, keyvals...)
}

func Error(msg interface{}, keyvals ...interface{}) {
	Logger.Error(msg, keyvals...)
}

func Infof(format string, args ...interface{}) {
	Logger.Infof(format, args...)
}

func Debugf(format string, args ...interface{}) {
	Logger.Debugf(format, args...)
}

func Warnf(format string, args ...interface{}) {
	Logger.Warnf(format, args...)
}

func Errorf(format string, args ...interface{}) {
	Logger.Errorf(format, args...)
}
