package filehandler

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// ScanOptions configures directory scanning behavior.
type ScanOptions struct {
	// MaxDepth limits recursion depth. 0 = unlimited, 1 = top-level only.
	MaxDepth int

	// Limit caps the number of images returned. 0 = unlimited.
	Limit int
}

// ScanDirectory scans a directory for supported image files.
// Recursive scanning is enabled by default (MaxDepth=0 means unlimited).
// Symlinks to files are followed; symlinks to directories are skipped to prevent infinite loops.
// Files are sorted alphabetically by path for consistent ordering.
func ScanDirectory(dirPath string, opts ScanOptions) ([]*ImageFile, error) {
	log.Info().
		Str("path", dirPath).
		Int("max_depth", opts.MaxDepth).
		Int("limit", opts.Limit).
		Msg("Scanning directory for images")

	info, err := os.Stat(dirPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("directory not found: %s", dirPath)
		}
		return nil, fmt.Errorf("failed to stat directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", dirPath)
	}

	// Absolute path for consistent depth calculation
	absPath, err := filepath.Abs(dirPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	baseDepth := strings.Count(absPath, string(os.PathSeparator))

	var files []*ImageFile
	limitReached := false

	err = filepath.WalkDir(absPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Error accessing path, skipping")
			return nil
		}

		if d.IsDir() {
			if opts.MaxDepth > 0 && path != absPath {
				depth := strings.Count(path, string(os.PathSeparator)) - baseDepth
				if depth >= opts.MaxDepth {
					return fs.SkipDir
				}
			}
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 {
			target, err := filepath.EvalSymlinks(path)
			if err != nil {
				log.Warn().Err(err).Str("path", path).Msg("Failed to resolve symlink, skipping")
				return nil
			}
			targetInfo, err := os.Stat(target)
			if err != nil || targetInfo.IsDir() {
				log.Debug().Str("path", path).Msg("Skipping symlink")
				return nil
			}
		}

		if !IsImage(filepath.Ext(d.Name())) {
			return nil
		}

		if opts.Limit > 0 && len(files) >= opts.Limit {
			limitReached = true
			return fs.SkipAll
		}

		f, err := LoadImageFile(path)
		if err != nil {
			log.Warn().Err(err).Str("file", d.Name()).Msg("Failed to load image file, skipping")
			return nil
		}
		files = append(files, f)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Path < files[j].Path
	})

	logEvent := log.Info().
		Int("total_images", len(files)).
		Str("directory", dirPath)
	if limitReached {
		logEvent.Bool("limit_reached", true)
	}
	logEvent.Msg("Directory scan complete")

	return files, nil
}
