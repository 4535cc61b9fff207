// Package logger provides a configured zerolog logger.
package logger

import (
	"io"
	"os"
	"sync"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	zpkgerrors "github.com/rs/zerolog/pkgerrors"
)

type stackTracer interface{ StackTrace() pkgerrors.StackTrace }

var configureOnce sync.Once

// configure makes zerolog render github.com/pkg/errors stacks and attaches a
// stack to plain errors so .Stack() always has something to print.
func configure() {
	configureOnce.Do(func() {
		zerolog.ErrorStackMarshaler = func(err error) interface{} {
			if _, ok := err.(stackTracer); !ok {
				err = pkgerrors.WithStack(err)
			}
			return zpkgerrors.MarshalStack(err)
		}
		zerolog.ErrorMarshalFunc = func(err error) interface{} {
			if _, ok := err.(stackTracer); ok {
				return err
			}
			return pkgerrors.WithStack(err)
		}
	})
}

// New returns a new zerolog.Logger writing JSON to stdout.
// Call sites should use .Stack() on error events to include stacks.
func New(serviceName string) zerolog.Logger {
	return NewWithWriter(os.Stdout, serviceName)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, serviceName string) zerolog.Logger {
	configure()
	return zerolog.New(w).With().
		Str("service", serviceName).
		Timestamp().
		Logger()
}

// NewConsole returns a human-readable logger for the CLI.
func NewConsole(serviceName string, verbose bool) zerolog.Logger {
	configure()
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().
		Str("service", serviceName).
		Timestamp().
		Logger()
}
