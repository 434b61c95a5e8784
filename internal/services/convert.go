package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/Anosmish/pdf2word/internal/domain"
)

// Converter is the boundary around the external conversion engine. Convert
// blocks until the engine finishes and must leave the output at derivedPath
// on success. Implementations never delete files; callers clean up strays.
type Converter interface {
	Convert(ctx context.Context, sourcePath, derivedPath string) error
}

// SofficeConverter converts PDF to DOCX by shelling out to LibreOffice in
// headless mode. The engine writes {source-base}.docx into the output
// directory; when that differs from the requested derivedPath the result is
// renamed into place.
type SofficeConverter struct {
	fs      afero.Fs
	binary  string
	timeout time.Duration
}

func NewSofficeConverter(fs afero.Fs, binary string, timeout time.Duration) *SofficeConverter {
	if binary == "" {
		binary = "soffice"
	}
	return &SofficeConverter{fs: fs, binary: binary, timeout: timeout}
}

func (c *SofficeConverter) Convert(ctx context.Context, sourcePath, derivedPath string) error {
	exists, err := afero.Exists(c.fs, sourcePath)
	if err != nil || !exists {
		return fmt.Errorf("%w: %s", domain.ErrSourceMissing, sourcePath)
	}

	if _, err := exec.LookPath(c.binary); err != nil {
		return fmt.Errorf("%w: %s not found in PATH", domain.ErrConversionFailed, c.binary)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	outDir := filepath.Dir(derivedPath)
	args := []string{
		"--headless",
		"--norestore",
		"--convert-to", "docx",
		"--outdir", outDir,
		sourcePath,
	}

	cmd := exec.CommandContext(ctx, c.binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: timed out after %s", domain.ErrConversionFailed, c.timeout)
		}
		return fmt.Errorf("%w: %v: %s", domain.ErrConversionFailed, err, strings.TrimSpace(stderr.String()))
	}

	// soffice names the output after the source basename.
	base := strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))
	produced := filepath.Join(outDir, base+".docx")

	if produced != derivedPath {
		if exists, err := afero.Exists(c.fs, produced); err == nil && exists {
			if err := c.fs.Rename(produced, derivedPath); err != nil {
				return fmt.Errorf("move converted file: %w", err)
			}
		}
	}

	exists, err = afero.Exists(c.fs, derivedPath)
	if err != nil || !exists {
		return fmt.Errorf("%w: expected %s", domain.ErrConversionIncomplete, derivedPath)
	}

	return nil
}
