package logger

// Level is a log level.
type Level int

// Log levels.
const (
	Debug Level = iota + 1
	Info
	Warn
	Error
)

// Writer is something that can write log entries.
type Writer interface {
	Log(level Level, format string, args ...interface{})
}
