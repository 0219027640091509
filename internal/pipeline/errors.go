package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/local/dmscan/internal/source"
)

// Stage names the pipeline step an error came from.
type Stage string

const (
	StageRender  Stage = "render"
	StageEnhance Stage = "enhance"
	StageDecode  Stage = "decode"
)

// Class groups errors by the diagnostic the CLI prints for them.
type Class string

const (
	ClassInput        Class = "input"
	ClassRasterize    Class = "rasterize"
	ClassDecode       Class = "decode"
	ClassUnclassified Class = "unclassified"
)

// RasterizeError is a failure to turn the input into page images.
type RasterizeError struct {
	Err error
}

func (e *RasterizeError) Error() string { return e.Err.Error() }

func (e *RasterizeError) Unwrap() error { return e.Err }

// PageError is a failure while processing one page.
type PageError struct {
	Page  int
	Stage Stage
	Err   error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("page %d: %s: %v", e.Page, e.Stage, e.Err)
}

func (e *PageError) Unwrap() error { return e.Err }

// PageErrors collects every failed page of a run in page order.
type PageErrors []*PageError

func (e PageErrors) Error() string {
	parts := make([]string, len(e))
	for i, pe := range e {
		parts[i] = pe.Error()
	}
	return strings.Join(parts, "; ")
}

func (e PageErrors) Unwrap() []error {
	out := make([]error, len(e))
	for i, pe := range e {
		out[i] = pe
	}
	return out
}

// Classify maps an error to its class.
func Classify(err error) Class {
	if err == nil {
		return ""
	}
	if errors.Is(err, source.ErrNotFound) {
		return ClassInput
	}
	var pe *PageError
	if errors.As(err, &pe) {
		switch pe.Stage {
		case StageDecode:
			return ClassDecode
		case StageRender:
			return ClassRasterize
		}
		return ClassUnclassified
	}
	var re *RasterizeError
	if errors.As(err, &re) {
		return ClassRasterize
	}
	return ClassUnclassified
}

// Messages renders the stderr diagnostics for err, one line per failure.
func Messages(err error) []string {
	if err == nil {
		return nil
	}
	var pes PageErrors
	if errors.As(err, &pes) {
		out := make([]string, 0, len(pes))
		for _, pe := range pes {
			out = append(out, message(pe))
		}
		return out
	}
	return []string{message(err)}
}

func message(err error) string {
	var nf *source.NotFoundError
	if errors.As(err, &nf) {
		return nf.Error()
	}
	var pe *PageError
	if errors.As(err, &pe) {
		if pe.Stage == StageDecode {
			return fmt.Sprintf("Error decoding Data Matrix on page %d: %v", pe.Page, pe.Err)
		}
		return fmt.Sprintf("An error occurred: page %d: %v", pe.Page, pe.Err)
	}
	return "An error occurred: " + err.Error()
}
