// Package ulogger defines the logging interface used by every component of the
// plugin index, together with zerolog and gocore backed implementations.
package ulogger

// Logger is the printf style logger passed to every component. Components tag
// their lines with a bracketed prefix such as [PluginIndex] rather than
// creating child loggers per call.
type Logger interface {
	LogLevel() int
	SetLogLevel(level string)
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
	// New returns a logger for another service sharing this logger's level.
	New(service string, options ...Option) Logger
	Duplicate(options ...Option) Logger
}

// New creates the logger selected by WithLoggerType, zerolog unless "gocore"
// is asked for.
func New(service string, options ...Option) Logger {
	if resolveOptions(options).loggerType == "gocore" {
		return NewGoCoreLogger(service, options...)
	}

	return NewZeroLogger(service, options...)
}

func resolveOptions(options []Option) *Options {
	opts := DefaultOptions()
	for _, o := range options {
		o(opts)
	}

	return opts
}
