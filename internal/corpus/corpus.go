// Package corpus turns a directory of submitted source files into one annotated
// text corpus and removes working directories afterwards.
package corpus

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/jonathan/homework-checker/internal/faults"
)

const (
	opCollect = "collect"
	opPurge   = "purge"
)

// Reader collects source files from extracted submissions.
type Reader struct {
	logger *zap.Logger
}

// NewReader creates a Reader. A nil logger disables logging.
func NewReader(logger *zap.Logger) *Reader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{logger: logger}
}

// FileMarker is the header written before each file's contents.
func FileMarker(name string) string {
	return "File " + name + "\n"
}

// NormalizeExtension lower-cases ext and ensures a leading dot.
func NormalizeExtension(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// Collect walks dir in lexical order and concatenates every file whose
// extension matches ext (case-insensitive) as "File <name>\n<contents>\n".
func (r *Reader) Collect(dir, ext string) (string, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", faults.New(faults.DirectoryNotFound, opCollect, dir, "")
	}

	ext = NormalizeExtension(ext)
	var sb strings.Builder
	matched := 0

	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || strings.ToLower(filepath.Ext(d.Name())) != ext {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		text, charset, err := decodeText(data)
		if err != nil {
			return faults.New(faults.EncodingUndetected, opCollect, path, err.Error())
		}
		if charset != "UTF-8" {
			r.logger.Debug("Decoded non-UTF-8 source file",
				zap.String("path", path),
				zap.String("charset", charset))
		}

		sb.WriteString(FileMarker(d.Name()))
		sb.WriteString(text)
		sb.WriteString("\n")
		matched++
		return nil
	})
	if err != nil {
		var fe *faults.Error
		if errors.As(err, &fe) {
			return "", fe
		}
		return "", fmt.Errorf("failed to walk %s: %w", dir, err)
	}

	if matched == 0 {
		return "", faults.New(faults.EmptyCorpus, opCollect, dir,
			fmt.Sprintf("no files with extension %s", ext))
	}

	r.logger.Debug("Corpus collected",
		zap.String("dir", dir),
		zap.String("extension", ext),
		zap.Int("files", matched),
		zap.Int("bytes", sb.Len()))

	return sb.String(), nil
}

// Purge removes dir and everything under it. A directory that is already gone
// counts as purged.
func (r *Reader) Purge(dir string) error {
	if _, err := os.Lstat(dir); errors.Is(err, fs.ErrNotExist) {
		r.logger.Debug("Working directory already absent", zap.String("dir", dir))
		return nil
	}

	if err := os.RemoveAll(dir); err != nil {
		r.logger.Warn("Failed to purge working directory", zap.String("dir", dir), zap.Error(err))
		return faults.Wrap(faults.DirectoryPurgeFailed, opPurge, dir, err)
	}

	r.logger.Debug("Working directory purged", zap.String("dir", dir))
	return nil
}
