package ulogger

import (
	"github.com/ordishs/gocore"
)

// GoCoreLogger logs through gocore, which also serves the gocore stats page
// used by the SQL store instrumentation.
type GoCoreLogger struct {
	*gocore.Logger
	skipFrame int
}

func NewGoCoreLogger(service string, options ...Option) *GoCoreLogger {
	if service == "" {
		service = "plugindex"
	}

	opts := resolveOptions(options)

	return &GoCoreLogger{
		Logger:    gocore.Log(service, gocore.NewLogLevelFromString(opts.logLevel)),
		skipFrame: opts.skip,
	}
}

func (g *GoCoreLogger) New(service string, options ...Option) Logger {
	return &GoCoreLogger{
		Logger:    gocore.Log(service, g.GetLogLevel()),
		skipFrame: resolveOptions(options).skip,
	}
}

// Duplicate shares the underlying gocore logger; only a non-default skip frame
// is taken from options.
func (g *GoCoreLogger) Duplicate(options ...Option) Logger {
	skipFrame := g.skipFrame

	if opts := resolveOptions(options); opts.skip != DefaultOptions().skip {
		skipFrame = opts.skip
	}

	return &GoCoreLogger{Logger: g.Logger, skipFrame: skipFrame}
}

// SetLogLevel is a no-op, the gocore level is fixed when the logger is created.
func (g *GoCoreLogger) SetLogLevel(_ string) {}
