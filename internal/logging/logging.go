// Package logging provides a minimal bracketed-tag logger used across the
// Controller, Agent, and supporting components. It wraps the standard
// library logger rather than a third-party structured logger, matching the
// teacher's own convention of plain fmt/log calls with a component tag.
package logging

import (
	"log"
	"os"
)

// Logger writes lines prefixed with a component tag, e.g. "[controller] ...".
type Logger struct {
	tag string
	std *log.Logger
}

// New returns a Logger tagged with component, writing to stderr.
func New(component string) *Logger {
	return &Logger{
		tag: "[" + component + "] ",
		std: log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds),
	}
}

func (l *Logger) Printf(format string, args ...any) {
	l.std.Printf(l.tag+format, args...)
}

func (l *Logger) Println(args ...any) {
	all := append([]any{l.tag}, args...)
	l.std.Println(all...)
}

// With returns a new Logger scoped under an additional sub-tag, e.g.
// base.With("lock") turns "[controller] " into "[controller:lock] ".
func (l *Logger) With(subTag string) *Logger {
	return &Logger{
		tag: l.tag[:len(l.tag)-2] + ":" + subTag + "] ",
		std: l.std,
	}
}
