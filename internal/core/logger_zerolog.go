package core

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// ZerologLogger adapts a zerolog.Logger to Logger.
type ZerologLogger struct {
	log zerolog.Logger
}

// NewZerologLogger writes human-readable lines in development and JSON
// elsewhere. A nil w writes to stdout.
func NewZerologLogger(env, service string, w io.Writer) *ZerologLogger {
	if w == nil {
		w = os.Stdout
	}
	var l zerolog.Logger
	if env == "development" {
		l = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}).
			With().Timestamp().Str("service", service).Logger()
	} else {
		l = zerolog.New(w).With().Timestamp().Str("service", service).Logger()
	}
	return &ZerologLogger{log: l}
}

// Zerolog exposes the underlying logger for components that log directly.
func (z *ZerologLogger) Zerolog() *zerolog.Logger { return &z.log }

func (z *ZerologLogger) Debug(msg string, args ...any) { z.log.Debug().Fields(args).Msg(msg) }
func (z *ZerologLogger) Info(msg string, args ...any)  { z.log.Info().Fields(args).Msg(msg) }
func (z *ZerologLogger) Warn(msg string, args ...any)  { z.log.Warn().Fields(args).Msg(msg) }
func (z *ZerologLogger) Error(msg string, args ...any) { z.log.Error().Fields(args).Msg(msg) }
