// Package cli wires configuration, logging and the scan pipeline behind the
// dmscan command.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/local/dmscan/internal/cache"
	"github.com/local/dmscan/internal/config"
	"github.com/local/dmscan/internal/converter"
	"github.com/local/dmscan/internal/csvout"
	"github.com/local/dmscan/internal/datamatrix"
	"github.com/local/dmscan/internal/enhance"
	"github.com/local/dmscan/internal/filetype"
	"github.com/local/dmscan/internal/logger"
	"github.com/local/dmscan/internal/metrics"
	"github.com/local/dmscan/internal/pipeline"
	"github.com/local/dmscan/internal/raster"
	"github.com/local/dmscan/internal/source"
)

var version = "1.0.0"

// errReported marks a failure whose diagnostics are already on stderr.
var errReported = errors.New("reported")

// BuildFunc assembles pipeline collaborators for cfg. The returned func
// releases whatever was opened.
type BuildFunc func(ctx context.Context, cfg config.Config) (pipeline.Dependencies, func(), error)

// App is one invocation of the command.
type App struct {
	Config config.Config
	Stdout io.Writer
	Stderr io.Writer
	Build  BuildFunc
}

// New returns an App that writes CSV to stdout and diagnostics to stderr.
func New(cfg config.Config, stdout, stderr io.Writer) *App {
	return &App{Config: cfg, Stdout: stdout, Stderr: stderr, Build: DefaultBuild}
}

// Execute runs the command with args and returns the process exit code.
func (a *App) Execute(ctx context.Context, args []string) int {
	cmd := a.command()
	cmd.SetArgs(args)
	cmd.SetOut(a.Stderr)
	cmd.SetErr(a.Stderr)

	if err := cmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(a.Stderr, "Error: %v\n", err)
			fmt.Fprint(a.Stderr, cmd.UsageString())
		}
		return 1
	}
	return 0
}

func (a *App) command() *cobra.Command {
	cfg := a.Config
	var sequential bool

	cmd := &cobra.Command{
		Use:   "dmscan <pdf_path>",
		Short: "Extract Data Matrix codes from a PDF as CSV",
		Long: `Render every page of a PDF, binarize it with an adaptive Gaussian threshold
and decode all Data Matrix symbols found on it. Codes are written to stdout as
CSV, one row per code, in page order. Nothing is written to stdout unless every
page succeeds.

The input may be a local path, a file:// or http(s):// URL, or s3://bucket/key.
Raster images and office documents (via LibreOffice) are accepted as well.`,
		Example: `  # Page,Content CSV using all CPUs
  dmscan scan.pdf > codes.csv

  # one page at a time
  dmscan --sequential scan.pdf

  # bare content column, no header
  dmscan --content-only scan.pdf`,
		Version:       version,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if sequential {
				cfg.Scan.Workers = 1
			}
			return a.run(cmd.Context(), cfg, args[0])
		},
	}

	f := cmd.Flags()
	f.IntVarP(&cfg.Scan.Workers, "workers", "w", cfg.Scan.Workers, "pages processed concurrently (1 = sequential)")
	f.BoolVar(&sequential, "sequential", false, "process pages one at a time, in order (same as --workers 1)")
	f.Float64Var(&cfg.Scan.DPI, "dpi", cfg.Scan.DPI, "rendering resolution")
	f.IntVar(&cfg.Scan.BlockSize, "block-size", cfg.Scan.BlockSize, "adaptive threshold neighbourhood (odd, >= 3)")
	f.Float64Var(&cfg.Scan.Offset, "offset", cfg.Scan.Offset, "constant subtracted from the Gaussian mean")
	f.IntVar(&cfg.Scan.MaxSymbols, "max-symbols", cfg.Scan.MaxSymbols, "maximum symbols read per page")
	f.BoolVar(&cfg.Scan.ContentOnly, "content-only", cfg.Scan.ContentOnly, "write only the content column, without header")
	f.StringVar(&cfg.Metrics.File, "metrics-file", cfg.Metrics.File, "write Prometheus metrics to this file after the run")
	f.StringVar(&cfg.Cache.RedisURL, "cache-url", cfg.Cache.RedisURL, "Redis URL for the result cache")
	f.StringVar(&cfg.Logging.Level, "log-level", cfg.Logging.Level, "log level (debug, info, warn, error)")

	return cmd
}

func (a *App) run(ctx context.Context, cfg config.Config, ref string) error {
	if err := logger.Init(loggerOptions(cfg, a.Stderr)); err != nil {
		fmt.Fprintf(a.Stderr, "An error occurred: %v\n", err)
		return errReported
	}
	metrics.Init()

	runID := uuid.NewString()
	l := logger.WithRun(runID)
	l.Info().Str("input", ref).Int("workers", cfg.Scan.Workers).Str("backend", enhance.Backend).Msg("scan started")

	err := a.scan(ctx, cfg, ref, runID)
	if cfg.Metrics.File != "" {
		if merr := metrics.WriteTextfile(cfg.Metrics.File); merr != nil {
			l.Warn().Err(merr).Str("file", cfg.Metrics.File).Msg("failed to write metrics")
		}
	}
	if err != nil {
		for _, msg := range pipeline.Messages(err) {
			fmt.Fprintln(a.Stderr, msg)
		}
		return errReported
	}
	return nil
}

func (a *App) scan(ctx context.Context, cfg config.Config, ref, runID string) error {
	if cfg.Scan.DPI <= 0 {
		return fmt.Errorf("dpi must be positive, got %g", cfg.Scan.DPI)
	}
	if err := (enhance.Options{BlockSize: cfg.Scan.BlockSize, C: cfg.Scan.Offset}).Validate(); err != nil {
		return err
	}

	deps, release, err := a.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer release()

	drv := pipeline.New(deps, pipeline.Options{
		Workers: cfg.Scan.Workers,
		DPI:     cfg.Scan.DPI,
		RunID:   runID,
		CacheParams: cache.Params{
			DPI:        cfg.Scan.DPI,
			BlockSize:  cfg.Scan.BlockSize,
			Offset:     cfg.Scan.Offset,
			MaxSymbols: cfg.Scan.MaxSymbols,
			Backend:    enhance.Backend,
		},
	})

	res, err := drv.Run(ctx, ref)
	if err != nil {
		return err
	}

	schema := csvout.SchemaPageContent
	if cfg.Scan.ContentOnly {
		schema = csvout.SchemaContentOnly
	}
	out, err := csvout.Encode(res.Rows(), schema)
	if err != nil {
		return err
	}
	_, err = a.Stdout.Write(out)
	return err
}

func loggerOptions(cfg config.Config, out io.Writer) logger.Options {
	return logger.Options{
		Level:        cfg.Logging.Level,
		Pretty:       cfg.Logging.Pretty,
		File:         cfg.Logging.File,
		MaxSizeMB:    cfg.Logging.MaxSizeMB,
		MaxBackups:   cfg.Logging.MaxBackups,
		MaxAgeDays:   cfg.Logging.MaxAgeDays,
		Compress:     cfg.Logging.Compress,
		Out:          out,
		SendToAxiom:  cfg.Axiom.Send && cfg.Axiom.APIKey != "",
		AxiomAPIKey:  cfg.Axiom.APIKey,
		AxiomOrgID:   cfg.Axiom.OrgID,
		AxiomDataset: cfg.Axiom.Dataset,
		AxiomFlush:   cfg.Axiom.FlushInterval,
	}
}

// DefaultBuild wires the production backends: go-fitz, the compiled-in
// enhancer, gozxing, LibreOffice and, when configured, Redis.
func DefaultBuild(ctx context.Context, cfg config.Config) (pipeline.Dependencies, func(), error) {
	enh, err := enhance.New(enhance.Options{BlockSize: cfg.Scan.BlockSize, C: cfg.Scan.Offset})
	if err != nil {
		return pipeline.Dependencies{}, nil, err
	}

	deps := pipeline.Dependencies{
		Resolver: source.New(source.Options{
			HTTPTimeout:     cfg.Source.HTTPTimeout,
			DecryptPassword: cfg.Source.DecryptPassword,
		}),
		Detector:  filetype.New(),
		PDF:       raster.NewFitzOpener(),
		Images:    raster.ImageOpener{},
		Converter: converter.NewLibreOffice(cfg.Converter.LibreOfficeBin, cfg.Converter.Timeout),
		Enhancer:  enh,
		Decoder:   datamatrix.NewZXing(cfg.Scan.MaxSymbols),
		PageCount: raster.PageCount,
	}

	release := func() {}
	if cfg.Cache.RedisURL != "" {
		rc, err := cache.NewRedis(ctx, cfg.Cache.RedisURL, cfg.Cache.TTL)
		if err != nil {
			log.Warn().Err(err).Msg("result cache unavailable; continuing without it")
		} else {
			deps.Cache = rc
			release = func() {
				if err := rc.Close(); err != nil {
					log.Warn().Err(err).Msg("cache close failed")
				}
			}
		}
	}
	return deps, release, nil
}
