package archive

import (
	"archive/zip"
	"context"
	"os"
)

func extractZip(ctx context.Context, archivePath, destDir string) (int, error) {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return 0, err
	}
	defer reader.Close()

	count := 0
	for _, file := range reader.File {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		if file == nil {
			continue
		}
		target, err := entryPath(destDir, file.Name)
		if err != nil {
			return count, err
		}
		if target == "" {
			continue
		}

		if file.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return count, err
			}
			continue
		}

		src, err := file.Open()
		if err != nil {
			return count, err
		}
		writeErr := writeEntry(ctx, target, src, file.Mode())
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
