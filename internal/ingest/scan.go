package ingest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Scan walks root and returns every PDF that has no result file yet, in
// lexical order. Hidden files and directories are skipped.
func Scan(root string) ([]string, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("inbox root is required")
	}
	var pending []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if path != root && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !wanted(path) {
			return nil
		}
		if done, err := hasResult(path); err != nil || done {
			return err
		}
		pending = append(pending, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}
	return pending, nil
}

func hasResult(path string) (bool, error) {
	_, err := os.Stat(ResultPath(path))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}
