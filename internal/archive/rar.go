package archive

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/nwaples/rardecode/v2"
)

func extractRar(ctx context.Context, archivePath, destDir string) (int, error) {
	rc, err := rardecode.OpenReader(archivePath)
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	count := 0
	for {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		hdr, err := rc.Next()
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

		if hdr.IsDir {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return count, err
			}
			continue
		}
		if err := writeEntry(ctx, target, rc, 0o644); err != nil {
			return count, err
		}
		count++
	}
}
