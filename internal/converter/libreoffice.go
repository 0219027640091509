// Package converter turns office documents into PDFs with a headless
// LibreOffice so they can be scanned like any other PDF input.
package converter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrUnavailable is returned when the LibreOffice binary cannot be found.
var ErrUnavailable = errors.New("LibreOffice not available")

// LibreOffice converts documents with `soffice --convert-to pdf`.
type LibreOffice struct {
	bin     string
	timeout time.Duration
}

// NewLibreOffice creates a converter. An empty bin means "libreoffice" on PATH.
func NewLibreOffice(bin string, timeout time.Duration) *LibreOffice {
	if bin == "" {
		bin = "libreoffice"
	}
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	return &LibreOffice{bin: bin, timeout: timeout}
}

// Available reports whether the binary resolves.
func (l *LibreOffice) Available() bool {
	_, err := exec.LookPath(l.bin)
	return err == nil
}

// ConvertToPDF converts input into outDir and returns the PDF path.
func (l *LibreOffice) ConvertToPDF(ctx context.Context, input, outDir string) (string, error) {
	start := time.Now()

	if !l.Available() {
		return "", fmt.Errorf("%w: %s not found in PATH", ErrUnavailable, l.bin)
	}
	if err := validateInput(input); err != nil {
		return "", fmt.Errorf("input validation failed: %w", err)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	// A private profile keeps parallel conversions from fighting over the user lock.
	profileDir := filepath.Join(os.TempDir(), "libreoffice_profile_"+uuid.New().String())
	if err := os.MkdirAll(profileDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create profile directory: %w", err)
	}
	defer os.RemoveAll(profileDir)

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, l.bin,
		"-env:UserInstallation=file://"+profileDir,
		"--headless",
		"--convert-to", "pdf",
		"--outdir", outDir,
		input,
	)
	log.Debug().Str("cmd", strings.Join(cmd.Args, " ")).Msg("LibreOffice command")

	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("conversion timeout after %v", l.timeout)
		}
		if isProtected(out) {
			return "", fmt.Errorf("document is password protected")
		}
		return "", fmt.Errorf("conversion failed: %w: %s", err, strings.TrimSpace(string(out)))
	}

	output := expectedOutputPath(input, outDir)
	if _, err := os.Stat(output); err != nil {
		return "", fmt.Errorf("output file not created: %w", err)
	}

	log.Info().Str("input", input).Str("output", output).Dur("duration", time.Since(start)).Msg("conversion successful")
	return output, nil
}

func validateInput(p string) error {
	info, err := os.Stat(p)
	if err != nil {
		return fmt.Errorf("file not found: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("path is a directory, not a file")
	}
	if info.Size() == 0 {
		return fmt.Errorf("file is empty")
	}
	return nil
}

func isProtected(output []byte) bool {
	s := strings.ToLower(string(output))
	return strings.Contains(s, "password") || strings.Contains(s, "encrypted") || strings.Contains(s, "protected")
}

// expectedOutputPath is where LibreOffice writes the PDF: input base name, .pdf extension.
func expectedOutputPath(input, outDir string) string {
	base := filepath.Base(input)
	return filepath.Join(outDir, strings.TrimSuffix(base, filepath.Ext(base))+".pdf")
}
