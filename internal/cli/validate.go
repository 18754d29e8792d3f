package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/fpang/autocrop/internal/batch"
	"github.com/fpang/autocrop/internal/filehandler"
)

// ResolveInputs expands paths into batch sources. Directories are scanned
// for supported images with opts; files must have a supported extension.
// Sources keep the order of paths, and each directory's files are sorted.
func ResolveInputs(paths []string, opts filehandler.ScanOptions) ([]batch.Source, error) {
	var sources []batch.Source
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("path not found: %s", p)
			}
			return nil, fmt.Errorf("failed to access %s: %w", p, err)
		}

		if !info.IsDir() {
			f, err := filehandler.LoadImageFile(p)
			if err != nil {
				return nil, err
			}
			sources = append(sources, batch.Source{Name: filepath.Base(f.Path), Path: f.Path})
			continue
		}

		files, err := filehandler.ScanDirectory(p, opts)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			sources = append(sources, batch.Source{Name: filepath.Base(f.Path), Path: f.Path})
		}
		if opts.Limit > 0 && len(sources) >= opts.Limit {
			sources = sources[:opts.Limit]
			break
		}
	}

	log.Debug().Int("sources", len(sources)).Int("inputs", len(paths)).Msg("Inputs resolved")
	return sources, nil
}

// ValidateOutputDirectory creates dirPath if needed and returns its absolute
// path.
func ValidateOutputDirectory(dirPath string) (string, error) {
	if err := os.MkdirAll(dirPath, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	info, err := os.Stat(dirPath)
	if err != nil {
		return "", fmt.Errorf("failed to access output directory: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("output path is not a directory: %s", dirPath)
	}
	if abs, err := filepath.Abs(dirPath); err == nil {
		dirPath = abs
	}
	return dirPath, nil
}
