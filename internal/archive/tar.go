package archive

import (
	"archive/tar"
	"context"
	"errors"
	"io"
	"os"
)

// extractTar unpacks directories and regular files. Links and device entries
// are skipped.
func extractTar(ctx context.Context, archivePath, destDir string) (int, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	tr := tar.NewReader(f)
	count := 0
	for {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return count, nil
		}
		if err != nil {
			return count, err
		}

		target, err := entryPath(destDir, hdr.Name)
		if err != nil {
			return count, err
		}
		if target == "" {
			continue
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return count, err
			}
		case tar.TypeReg:
			if err := writeEntry(ctx, target, tr, hdr.FileInfo().Mode()); err != nil {
				return count, err
			}
			count++
		}
	}
}
