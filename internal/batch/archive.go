package batch

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"
)

// Compression selects the zip entry method used for archives.
type Compression string

const (
	// CompressionDeflate is the standard zip method, readable everywhere.
	CompressionDeflate Compression = "deflate"
	// CompressionZstd uses zip method 93. Smaller, but needs a modern extractor.
	CompressionZstd Compression = "zstd"
)

// ParseCompression maps a config value to a Compression. Empty selects deflate.
func ParseCompression(s string) (Compression, error) {
	switch Compression(s) {
	case "", CompressionDeflate:
		return CompressionDeflate, nil
	case CompressionZstd:
		return CompressionZstd, nil
	}
	return "", fmt.Errorf("unknown archive compression %q (want deflate or zstd)", s)
}

func (c Compression) method() uint16 {
	if c == CompressionZstd {
		return zstd.ZipMethodWinZip
	}
	return zip.Deflate
}

// WriteArchive bundles every regular file directly inside dir into a zip at
// dst. It returns only after the archive is flushed, synced and closed, so
// callers may serve dst as soon as it returns. Returns the archive size.
func WriteArchive(dir, dst string, c Compression) (int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read batch dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	out, err := os.Create(dst)
	if err != nil {
		return 0, fmt.Errorf("create archive: %w", err)
	}

	zw := zip.NewWriter(out)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.BestCompression)
	})
	zw.RegisterCompressor(zstd.ZipMethodWinZip, zstd.ZipCompressor(zstd.WithEncoderLevel(zstd.SpeedBestCompression)))

	count := 0
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if err := addFile(zw, filepath.Join(dir, e.Name()), e.Name(), c.method()); err != nil {
			out.Close()
			os.Remove(dst)
			return 0, err
		}
		count++
	}

	if err := zw.Close(); err != nil {
		out.Close()
		os.Remove(dst)
		return 0, fmt.Errorf("close zip writer: %w", err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(dst)
		return 0, fmt.Errorf("sync archive: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return 0, fmt.Errorf("close archive: %w", err)
	}

	info, err := os.Stat(dst)
	if err != nil {
		return 0, fmt.Errorf("stat archive: %w", err)
	}

	log.Debug().
		Str("archive", dst).
		Int("entries", count).
		Str("compression", string(c)).
		Int64("size_bytes", info.Size()).
		Msg("Archive written")
	return info.Size(), nil
}

func addFile(zw *zip.Writer, path, name string, method uint16) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	header := &zip.FileHeader{Name: name, Method: method}
	header.SetModTime(time.Now())

	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("create zip entry for %s: %w", name, err)
	}
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("write zip entry for %s: %w", name, err)
	}
	return nil
}
