package logx

import (
	"io"
	"os"

	"github.com/bert-suite/server/internal/core"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var DefaultLoggerOpts = &LoggerOpts{
	Environment: core.Development,
}

type LoggerOpts struct {
	Environment core.Environment
	// Output overrides the sink; nil means stderr (console writer outside production).
	Output io.Writer
	// Service is attached to every entry when set.
	Service string
}

func safe(otps ...LoggerOpts) *LoggerOpts {
	if len(otps) == 0 {
		return DefaultLoggerOpts
	}
	return &otps[0]
}

func Init(otps ...LoggerOpts) {
	o := safe(otps...)

	out := o.Output
	if o.Environment.IsProduction() {
		if out == nil {
			out = os.Stderr
		}
		ctx := zerolog.New(out).With().Timestamp()
		if o.Service != "" {
			ctx = ctx.Str("service", o.Service)
		}
		log.Logger = ctx.Logger().Level(zerolog.InfoLevel)
		return
	}

	if out == nil {
		out = zerolog.NewConsoleWriter()
	}
	ctx := zerolog.New(out).With().Timestamp().Caller()
	if o.Service != "" {
		ctx = ctx.Str("service", o.Service)
	}
	log.Logger = ctx.Logger().Level(zerolog.DebugLevel)
}

func Debug() *zerolog.Event {
	return log.Debug()
}

func Info() *zerolog.Event {
	return log.Info()
}

func Warn() *zerolog.Event {
	return log.Warn()
}

func Error() *zerolog.Event {
	return log.Error()
}

func Panic() *zerolog.Event {
	return log.Panic()
}

func Fatal() *zerolog.Event {
	return log.Fatal()
}
