// Package log builds the slog loggers used by the server and admin commands.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New returns a text logger on stdout. level is one of debug, info, warn or
// error; anything else logs at info.
func New(level string) *slog.Logger {
	return NewTo(os.Stdout, level)
}

// NewTo is New with an explicit destination. Admin commands log to stderr so
// their stdout stays machine readable.
func NewTo(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)}))
}

func ParseLevel(level string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
