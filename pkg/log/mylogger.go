package log

import (
	"io"
	"log"
	"os"
	"strings"
)

// Log level constants
const (
	LevelTrace = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
)

// currentLevel holds the configured log level
var currentLevel = LevelInfo

type MyLoggerOptions struct {
	// if we output to  stdout
	Stdout bool
	// Path of the file , if present log to it
	Path string
	// What level to log
	Level string
}

// ConfigureMyLogger redirects the standard logger to the requested sinks. When
// neither a path nor stdout is requested, application logs are discarded so
// they don't corrupt the TUI or piped CLI output.
func ConfigureMyLogger(options *MyLoggerOptions) error {
	var writer io.Writer

	if options.Path != "" {
		logfile, err := os.OpenFile(options.Path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0600)
		if err != nil {
			return err
		}
		if options.Stdout {
			writer = io.MultiWriter(logfile, os.Stdout)
		} else {
			writer = logfile
		}
	} else if options.Stdout {
		writer = os.Stdout
	} else {
		writer = io.Discard
	}

	log.SetOutput(writer)
	currentLevel = ParseLevel(options.Level)
	return nil
}

// ParseLevel maps a level name to its constant, defaulting to INFO.
func ParseLevel(level string) int {
	switch strings.ToUpper(level) {
	case "TRACE":
		return LevelTrace
	case "DEBUG":
		return LevelDebug
	case "INFO":
		return LevelInfo
	case "WARN":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

// Enabled reports whether messages at level would be written.
func Enabled(level int) bool {
	return currentLevel <= level
}

// Trace logs a message at TRACE level
func Trace(format string, v ...interface{}) {
	if currentLevel <= LevelTrace {
		log.Printf("[TRACE] "+format, v...)
	}
}

// Debug logs a message at DEBUG level
func Debug(format string, v ...interface{}) {
	if currentLevel <= LevelDebug {
		log.Printf("[DEBUG] "+format, v...)
	}
}

// Info logs a message at INFO level
func Info(format string, v ...interface{}) {
	if currentLevel <= LevelInfo {
		log.Printf("[INFO] "+format, v...)
	}
}

// Warn logs a message at WARN level
func Warn(format string, v ...interface{}) {
	if currentLevel <= LevelWarn {
		log.Printf("[WARN] "+format, v...)
	}
}

// Error logs a message at ERROR level
func Error(format string, v ...interface{}) {
	if currentLevel <= LevelError {
		log.Printf("[ERROR] "+format, v...)
	}
}
