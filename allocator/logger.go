package allocator

import (
	"fmt"
	"log"
	"os"
	"strings"
)

// LogLevel represents the logging level.
type LogLevel int

const (
	// LogLevelNone disables all logging.
	LogLevelNone LogLevel = iota
	// LogLevelFatal enables fatal logging.
	LogLevelFatal
	// LogLevelError enables error logging.
	LogLevelError
	// LogLevelInfo enables info and error logging.
	LogLevelInfo
	// LogLevelDebug enables all logging.
	LogLevelDebug
)

var currentLogLevel = logLevelFromEnv()

var (
	debugLogger *log.Logger
	infoLogger  *log.Logger
	errorLogger *log.Logger
	fatalLogger *log.Logger
)

func init() {
	debugLogger = log.New(os.Stdout, "[DEBUG] ", log.Ldate|log.Ltime|log.Lshortfile)
	infoLogger = log.New(os.Stdout, "[Info] ", log.Ldate|log.Ltime|log.Lshortfile)
	errorLogger = log.New(os.Stderr, "[ERROR] ", log.Ldate|log.Ltime|log.Lshortfile)
	fatalLogger = log.New(os.Stderr, "[FATAL] ", log.Ldate|log.Ltime|log.Lshortfile)
}

// logLevelFromEnv reads ALLOCATOR_LOG_LEVEL, defaulting to Info.
func logLevelFromEnv() LogLevel {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("ALLOCATOR_LOG_LEVEL"))) {
	case "none":
		return LogLevelNone
	case "fatal":
		return LogLevelFatal
	case "error":
		return LogLevelError
	case "debug":
		return LogLevelDebug
	case "", "info":
		return LogLevelInfo
	default:
		return LogLevelInfo
	}
}

// SetLogLevel overrides the current logging level programmatically.
func SetLogLevel(level LogLevel) {
	currentLogLevel = level
}

// Debug logs debug information.
func Debug(format string, v ...interface{}) {
	if currentLogLevel >= LogLevelDebug {
		debugLogger.Output(2, fmt.Sprintf(format, v...))
	}
}

// Info logs informational messages.
func Info(format string, v ...interface{}) {
	if currentLogLevel >= LogLevelInfo {
		infoLogger.Output(2, fmt.Sprintf(format, v...))
	}
}

// Error logs error information.
func Error(format string, v ...interface{}) {
	if currentLogLevel >= LogLevelError {
		errorLogger.Output(2, fmt.Sprintf(format, v...))
	}
}

// Fatal logs fatal information. Unlike log.Fatal it does not exit the
// process: a memory allocator has no business terminating its host.
func Fatal(format string, v ...interface{}) {
	if currentLogLevel >= LogLevelFatal {
		fatalLogger.Output(2, fmt.Sprintf(format, v...))
	}
}
