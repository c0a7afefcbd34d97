package logger

import (
	"sync"
)

// Log levels used across the application.
const (
	DebugLevel = "debug"
	InfoLevel  = "info"
	WarnLevel  = "warn"
	ErrorLevel = "error"
)

// Output formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

var (
	// globalLogger holds the singleton logger instance.
	globalLogger *Logger
	once         sync.Once
)

// Init configures the singleton logger. Only the first call (to Init or Get)
// takes effect; later calls return the existing instance.
func Init(level, format string) *Logger {
	once.Do(func() {
		globalLogger = New(level, format)
	})
	return globalLogger
}

// Get returns the singleton logger, initializing it as a console logger
// with the provided level if needed.
func Get(level string) *Logger {
	return Init(level, FormatConsole)
}
