// Package pipeline drives one scan: resolve the input, rasterize it, enhance
// and decode every page, and collect the decoded codes in page order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/local/dmscan/internal/cache"
	"github.com/local/dmscan/internal/csvout"
	"github.com/local/dmscan/internal/datamatrix"
	"github.com/local/dmscan/internal/enhance"
	"github.com/local/dmscan/internal/filetype"
	"github.com/local/dmscan/internal/logger"
	"github.com/local/dmscan/internal/metrics"
	"github.com/local/dmscan/internal/raster"
	"github.com/local/dmscan/internal/source"
)

type Resolver interface {
	Resolve(ctx context.Context, ref string) (*source.Resolved, error)
}

type Detector interface {
	Detect(path string) (*filetype.Info, error)
}

type Converter interface {
	Available() bool
	ConvertToPDF(ctx context.Context, input, outDir string) (string, error)
}

// Dependencies are the collaborators of a Driver. Converter, Cache and
// PageCount are optional.
type Dependencies struct {
	Resolver  Resolver
	Detector  Detector
	PDF       raster.Opener
	Images    raster.Opener
	Converter Converter
	Enhancer  enhance.Enhancer
	Decoder   datamatrix.Decoder
	Cache     cache.Cache
	PageCount func(path string) (int, error)
}

// Options tune a run.
type Options struct {
	// Workers caps concurrently processed pages; 1 runs pages in order and
	// stops at the first failure.
	Workers int
	DPI     float64
	// CacheParams are folded into the cache key.
	CacheParams cache.Params
	RunID       string
}

// PageResult is the outcome of one page.
type PageResult struct {
	Page  int
	Codes []string
	Err   error
}

// Result holds every page of a successful run.
type Result struct {
	Pages  []PageResult
	Cached bool
}

// Rows flattens the pages into CSV rows in page order.
func (r *Result) Rows() []csvout.Row {
	var rows []csvout.Row
	for _, p := range r.Pages {
		for _, c := range p.Codes {
			rows = append(rows, csvout.Row{Page: p.Page, Content: c})
		}
	}
	return rows
}

// CodeCount is the number of decoded codes across all pages.
func (r *Result) CodeCount() int {
	n := 0
	for _, p := range r.Pages {
		n += len(p.Codes)
	}
	return n
}

type Driver struct {
	deps Dependencies
	opts Options
	log  zerolog.Logger
}

func New(deps Dependencies, opts Options) *Driver {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	l := logger.WithComponent("pipeline")
	if opts.RunID != "" {
		l = l.With().Str("run_id", opts.RunID).Logger()
	}
	return &Driver{deps: deps, opts: opts, log: l}
}

// Run scans ref. On any failure the returned Result is nil; page failures are
// returned as PageErrors.
func (d *Driver) Run(ctx context.Context, ref string) (*Result, error) {
	start := time.Now()
	res, err := d.run(ctx, ref)
	if err != nil {
		metrics.IncRun("failure")
		d.log.Info().Err(err).Str("class", string(Classify(err))).Msg("run failed")
		return nil, err
	}
	metrics.IncRun("success")
	d.log.Info().
		Int("pages", len(res.Pages)).
		Int("codes", res.CodeCount()).
		Bool("cached", res.Cached).
		Dur("duration", time.Since(start)).
		Msg("run complete")
	return res, nil
}

func (d *Driver) run(ctx context.Context, ref string) (*Result, error) {
	in, err := d.deps.Resolver.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	defer in.Release()

	key := d.cacheKey(in.Path)
	if pages, ok := d.cacheGet(ctx, key); ok {
		return &Result{Pages: pages, Cached: true}, nil
	}

	doc, cleanup, err := d.open(ctx, in.Path)
	if err != nil {
		return nil, &RasterizeError{Err: err}
	}
	defer cleanup()
	defer doc.Close()

	total := doc.NumPage()
	d.log.Info().Str("input", ref).Int("pages", total).Int("workers", d.opts.Workers).Msg("processing document")

	var pages []PageResult
	if d.opts.Workers == 1 {
		pages, err = d.sequential(ctx, doc, total)
	} else {
		pages, err = d.parallel(ctx, doc, total)
	}
	if err != nil {
		return nil, err
	}

	d.cachePut(ctx, key, pages)
	return &Result{Pages: pages}, nil
}

// open sniffs the file and returns a renderable document. Office inputs are
// converted first; cleanup removes the converted PDF.
func (d *Driver) open(ctx context.Context, path string) (raster.Document, func(), error) {
	noop := func() {}

	info, err := d.deps.Detector.Detect(path)
	if err != nil {
		return nil, noop, err
	}

	switch info.Kind {
	case filetype.KindImage:
		doc, err := d.deps.Images.Open(path, d.opts.DPI)
		return doc, noop, err

	case filetype.KindPDF:
		d.logPageCount(path)
		doc, err := d.deps.PDF.Open(path, d.opts.DPI)
		return doc, noop, err

	case filetype.KindOffice:
		if d.deps.Converter == nil || !d.deps.Converter.Available() {
			return nil, noop, fmt.Errorf("cannot convert %s: LibreOffice not available", info.Description)
		}
		outDir, err := os.MkdirTemp("", "dmscan-convert-*")
		if err != nil {
			return nil, noop, err
		}
		cleanup := func() { _ = os.RemoveAll(outDir) }
		pdf, err := d.deps.Converter.ConvertToPDF(ctx, path, outDir)
		if err != nil {
			cleanup()
			return nil, noop, err
		}
		doc, err := d.deps.PDF.Open(pdf, d.opts.DPI)
		if err != nil {
			cleanup()
			return nil, noop, err
		}
		return doc, cleanup, nil
	}

	return nil, noop, fmt.Errorf("unsupported input (%s)", info.MIMEType)
}

func (d *Driver) logPageCount(path string) {
	if d.deps.PageCount == nil {
		return
	}
	n, err := d.deps.PageCount(path)
	if err != nil {
		d.log.Info().Err(err).Msg("pdfcpu could not read page count; relying on renderer")
		return
	}
	d.log.Debug().Int("pages", n).Msg("pdfcpu page count")
}

func (d *Driver) sequential(ctx context.Context, doc raster.Document, total int) ([]PageResult, error) {
	pages := make([]PageResult, 0, total)
	for p := 1; p <= total; p++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r := d.page(doc, p)
		if r.Err != nil {
			return nil, PageErrors{r.Err.(*PageError)}
		}
		pages = append(pages, r)
	}
	return pages, nil
}

func (d *Driver) parallel(ctx context.Context, doc raster.Document, total int) ([]PageResult, error) {
	pages := make([]PageResult, total)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.Workers)
	for p := 1; p <= total; p++ {
		g.Go(func() error {
			// Only cancellation aborts the group; page failures are collected.
			if err := gctx.Err(); err != nil {
				return err
			}
			pages[p-1] = d.page(doc, p)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var failed PageErrors
	for _, r := range pages {
		if r.Err != nil {
			failed = append(failed, r.Err.(*PageError))
		}
	}
	if len(failed) > 0 {
		return nil, failed
	}
	return pages, nil
}

// page renders, enhances and decodes a single page. r.Err is always a *PageError.
func (d *Driver) page(doc raster.Document, p int) PageResult {
	l := d.log.With().Int("page", p).Logger()

	t := time.Now()
	img, err := doc.Render(p)
	metrics.ObserveStage(string(StageRender), time.Since(t))
	if err != nil {
		metrics.IncProcessed("render_error")
		return PageResult{Page: p, Err: &PageError{Page: p, Stage: StageRender, Err: err}}
	}

	t = time.Now()
	bw, err := d.deps.Enhancer.Enhance(img)
	metrics.ObserveStage(string(StageEnhance), time.Since(t))
	if err != nil {
		metrics.IncProcessed("enhance_error")
		return PageResult{Page: p, Err: &PageError{Page: p, Stage: StageEnhance, Err: err}}
	}

	t = time.Now()
	codes, err := d.decode(bw)
	metrics.ObserveStage(string(StageDecode), time.Since(t))
	if err != nil {
		metrics.IncProcessed("decode_error")
		return PageResult{Page: p, Err: &PageError{Page: p, Stage: StageDecode, Err: err}}
	}

	metrics.IncProcessed("success")
	metrics.AddCodes(len(codes))
	l.Debug().Int("codes", len(codes)).Msg("page decoded")
	return PageResult{Page: p, Codes: codes}
}

func (d *Driver) decode(img image.Image) ([]string, error) {
	codes, err := d.deps.Decoder.Decode(img)
	if err != nil {
		var de *datamatrix.DecodeError
		if errors.As(err, &de) {
			return nil, de.Err
		}
		return nil, err
	}
	return codes, nil
}

func (d *Driver) cacheKey(path string) string {
	if d.deps.Cache == nil {
		return ""
	}
	key, err := cache.Key(path, d.opts.CacheParams)
	if err != nil {
		d.log.Warn().Err(err).Msg("cache key failed; cache disabled for this run")
		return ""
	}
	return key
}

func (d *Driver) cacheGet(ctx context.Context, key string) ([]PageResult, bool) {
	if key == "" {
		return nil, false
	}
	cached, ok, err := d.deps.Cache.Get(ctx, key)
	switch {
	case err != nil:
		metrics.IncCache("error")
		d.log.Warn().Err(err).Msg("cache lookup failed")
		return nil, false
	case !ok:
		metrics.IncCache("miss")
		return nil, false
	}
	metrics.IncCache("hit")

	pages := make([]PageResult, len(cached))
	for i, c := range cached {
		pages[i] = PageResult{Page: c.Number, Codes: c.Codes}
	}
	d.log.Info().Int("pages", len(pages)).Msg("serving cached result")
	return pages, true
}

func (d *Driver) cachePut(ctx context.Context, key string, pages []PageResult) {
	if key == "" {
		return
	}
	out := make([]cache.Page, len(pages))
	for i, p := range pages {
		out[i] = cache.Page{Number: p.Page, Codes: p.Codes}
	}
	if err := d.deps.Cache.Put(ctx, key, out); err != nil {
		d.log.Warn().Err(err).Msg("cache store failed")
	}
}
