// Package logger configures the process-wide zerolog logger. Stdout carries
// the CSV report, so every sink here writes somewhere else.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Options defines logger initialization parameters.
type Options struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool

	// Console destination; stderr when nil.
	Out io.Writer

	SendToAxiom  bool
	AxiomAPIKey  string
	AxiomOrgID   string
	AxiomDataset string
	AxiomFlush   time.Duration
}

// axiom is the running remote sink, if any. Close drains it.
var axiom *axiomSink

// Init installs log.Logger. Diagnostics go to the console, and optionally to
// a rotating file and Axiom. An unknown level means warn.
func Init(opts Options) error {
	sinks := []io.Writer{console(opts)}

	if opts.File != "" {
		f, err := rotatingFile(opts)
		if err != nil {
			return err
		}
		sinks = append(sinks, f)
	}

	if opts.SendToAxiom && opts.AxiomAPIKey != "" {
		s, err := newAxiomSink(opts.AxiomAPIKey, opts.AxiomOrgID, opts.AxiomDataset, opts.AxiomFlush)
		if err != nil {
			// the run still goes ahead without remote logs
			fmt.Fprintf(os.Stderr, "Axiom disabled: %v\n", err)
		} else {
			axiom = s
			sinks = append(sinks, s)
		}
	}

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = zerolog.New(zerolog.MultiLevelWriter(sinks...)).
		Level(parseLevel(opts.Level)).
		With().Timestamp().Logger()
	return nil
}

func console(opts Options) io.Writer {
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	if opts.Pretty {
		return zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return out
}

func rotatingFile(opts Options) (io.Writer, error) {
	if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
		return nil, fmt.Errorf("create logs dir: %w", err)
	}
	return &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   opts.Compress,
	}, nil
}

func parseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(s)
	if err != nil || s == "" {
		return zerolog.WarnLevel
	}
	return lvl
}

// Close flushes the Axiom sink.
func Close() {
	if axiom != nil {
		axiom.Close()
		axiom = nil
	}
}

// WithComponent returns a logger tagged with a component field.
func WithComponent(component string) zerolog.Logger {
	return log.Logger.With().Str("component", component).Logger()
}

// WithRun returns a logger tagged with the run identifier.
func WithRun(runID string) zerolog.Logger {
	return log.Logger.With().Str("run_id", runID).Logger()
}
