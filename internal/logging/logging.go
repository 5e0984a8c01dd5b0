// Package logging builds the process log writer and component loggers.
package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures log output.
type Options struct {
	// File, when set, receives a copy of all output with size-based rotation.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int

	// Quiet suppresses stderr output. Ignored when File is empty.
	Quiet bool
}

// Output is the shared log destination for all components.
type Output struct {
	w      io.Writer
	rotate *lumberjack.Logger
}

// New creates the log output described by opts.
func New(opts Options) (*Output, error) {
	if opts.File == "" {
		return &Output{w: os.Stderr}, nil
	}

	if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
		return nil, err
	}

	rotate := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   true,
	}

	var w io.Writer = rotate
	if !opts.Quiet {
		w = io.MultiWriter(os.Stderr, rotate)
	}
	return &Output{w: w, rotate: rotate}, nil
}

// Writer returns the underlying writer.
func (o *Output) Writer() io.Writer {
	return o.w
}

// Logger returns a logger for the named component, e.g. "[engine] ".
func (o *Output) Logger(component string) *log.Logger {
	return log.New(o.w, "["+component+"] ", log.LstdFlags)
}

// Close flushes and closes the rotating file, if any.
func (o *Output) Close() error {
	if o.rotate == nil {
		return nil
	}
	return o.rotate.Close()
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	return log.New(io.Discard, "", 0)
}
