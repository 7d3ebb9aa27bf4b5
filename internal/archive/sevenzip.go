package archive

import (
	"context"
	"os"

	"github.com/bodgit/sevenzip"
)

func extractSevenZip(ctx context.Context, archivePath, destDir string) (int, error) {
	rc, err := sevenzip.OpenReader(archivePath)
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	count := 0
	for _, file := range rc.File {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		target, err := entryPath(destDir, file.Name)
		if err != nil {
			return count, err
		}
		if target == "" {
			continue
		}

		info := file.FileInfo()
		if info.IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return count, err
			}
			continue
		}

		src, err := file.Open()
		if err != nil {
			return count, err
		}
		writeErr := writeEntry(ctx, target, src, info.Mode())
		closeErr := src.Close()
		if writeErr != nil {
			return count, writeErr
		}
		if closeErr != nil {
			return count, closeErr
		}
		count++
	}
	return count, nil
}
