package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/homework-checker/internal/faults"
)

const opExtract = "extract"

// Extractor unpacks archives, choosing the codec from the file extension.
type Extractor struct {
	logger *zap.Logger
}

// NewExtractor creates an Extractor. A nil logger disables logging.
func NewExtractor(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{logger: logger}
}

// NormalizePath strips surrounding whitespace and enclosing quote characters, as
// left behind when a path is pasted from a shell or file manager.
func NormalizePath(path string) string {
	return strings.Trim(strings.TrimSpace(path), `"'`)
}

// DefaultDestination returns the archive path without its extension.
func DefaultDestination(archivePath string) string {
	return strings.TrimSuffix(archivePath, filepath.Ext(archivePath))
}

// Extract unpacks every entry of archivePath into destination and returns the
// destination used. An empty destination defaults to DefaultDestination.
//
// Failures are *faults.Error of kind ArchiveNotFound, UnsupportedFormat,
// ExtractionFailed or Timeout. Codec errors are reported by message only.
func (e *Extractor) Extract(ctx context.Context, archivePath, destination string) (string, error) {
	archivePath = NormalizePath(archivePath)

	info, err := os.Stat(archivePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", faults.New(faults.ArchiveNotFound, opExtract, archivePath, "")
		}
		return "", faults.New(faults.ExtractionFailed, opExtract, archivePath, err.Error())
	}
	if info.IsDir() {
		return "", faults.New(faults.ExtractionFailed, opExtract, archivePath, "path is a directory")
	}

	rawExt := filepath.Ext(archivePath)
	format, ok := FormatForExtension(rawExt)
	if !ok {
		return "", faults.New(faults.UnsupportedFormat, opExtract, archivePath,
			fmt.Sprintf("extension %q (supported: %s)", rawExt, strings.Join(SupportedExtensions(), ", ")))
	}

	if destination == "" {
		destination = DefaultDestination(archivePath)
	}
	if err := os.MkdirAll(destination, 0o755); err != nil {
		return "", faults.New(faults.ExtractionFailed, opExtract, destination, err.Error())
	}

	start := time.Now()
	var count int
	switch format {
	case Zip:
		count, err = extractZip(ctx, archivePath, destination)
	case Tar:
		count, err = extractTar(ctx, archivePath, destination)
	case Rar:
		count, err = extractRar(ctx, archivePath, destination)
	case SevenZip:
		count, err = extractSevenZip(ctx, archivePath, destination)
	}
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		e.logger.Debug("Extraction failed",
			zap.String("archive", archivePath),
			zap.Stringer("format", format),
			zap.Error(err))
		return "", classify(archivePath, err)
	}

	e.logger.Debug("Archive extracted",
		zap.String("archive", archivePath),
		zap.Stringer("format", format),
		zap.String("destination", destination),
		zap.Int("entries", count),
		zap.Duration("elapsed", time.Since(start)))

	return destination, nil
}

// classify converts a codec or context error into a faults.Error. The codec
// error is kept only as text.
func classify(archivePath string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return faults.Wrap(faults.Timeout, opExtract, archivePath, context.DeadlineExceeded)
	}
	if errors.Is(err, context.Canceled) {
		return faults.Wrap(faults.ExtractionFailed, opExtract, archivePath, context.Canceled)
	}
	return faults.New(faults.ExtractionFailed, opExtract, archivePath, err.Error())
}

// entryPath resolves an archive entry name inside destDir, rejecting names that
// escape it.
func entryPath(destDir, name string) (string, error) {
	cleanName := filepath.Clean(filepath.FromSlash(name))
	if cleanName == "." || cleanName == "" {
		return "", nil
	}
	target := filepath.Join(destDir, cleanName)
	if !isWithinBaseDir(destDir, target) {
		return "", fmt.Errorf("archive contains invalid path: %s", name)
	}
	return target, nil
}

func isWithinBaseDir(baseDir string, targetPath string) bool {
	baseClean := filepath.Clean(baseDir)
	targetClean := filepath.Clean(targetPath)
	relative, err := filepath.Rel(baseClean, targetClean)
	if err != nil {
		return false
	}
	if relative == "" || relative == ".." {
		return false
	}
	return !strings.HasPrefix(relative, ".."+string(filepath.Separator))
}

// contextReader fails reads once ctx is done, so a single large entry cannot
// outlive the extraction deadline.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// writeEntry creates the file at target with the contents of src.
func writeEntry(ctx context.Context, target string, src io.Reader, mode fs.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	if mode.Perm() == 0 {
		mode = 0o644
	}

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode.Perm())
	if err != nil {
		return err
	}

	_, copyErr := io.Copy(dst, contextReader{ctx: ctx, r: src})
	closeErr := dst.Close()
	if copyErr != nil {
		return copyErr
	}
	return closeErr
}
