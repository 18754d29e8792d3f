// Package batch fans a set of image sources out to the crop engine, records
// one result per item in input order and bundles successful outputs into a
// single archive.
package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/fpang/autocrop/internal/apperr"
	"github.com/fpang/autocrop/internal/cropper"
	"github.com/fpang/autocrop/internal/fetch"
	"github.com/fpang/autocrop/internal/filehandler"
)

const (
	outputPrefix  = "cropped-"
	archivePrefix = "cropped-images-"
	archiveSuffix = ".zip"
)

// Stage is a coarse progress milestone for one item, as a percentage.
type Stage int

const (
	StageFetching   Stage = 25
	StageDownloaded Stage = 50
	StageCropping   Stage = 75
	StageDone       Stage = 100
)

// ProgressFunc is called as item index passes each Stage. It may be called
// from several goroutines when Workers > 1.
type ProgressFunc func(index int, stage Stage)

// Config configures a Coordinator.
type Config struct {
	// WorkDir holds batch directories and archives.
	WorkDir string
	// Workers bounds how many items are processed at once. 0 or 1 is sequential.
	Workers     int
	Compression Compression
}

// Options are per-run settings.
type Options struct {
	Policy   cropper.OutputPolicy
	Progress ProgressFunc
	// NoArchive leaves the cropped files in the batch directory unzipped.
	NoArchive bool
}

// Coordinator runs batches.
type Coordinator struct {
	engine  *cropper.Engine
	fetcher fetch.Fetcher
	cfg     Config
}

// NewCoordinator returns a Coordinator. fetcher may be nil when only local
// sources are processed.
func NewCoordinator(engine *cropper.Engine, fetcher fetch.Fetcher, cfg Config) *Coordinator {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Compression == "" {
		cfg.Compression = CompressionDeflate
	}
	return &Coordinator{engine: engine, fetcher: fetcher, cfg: cfg}
}

// WorkDir returns the directory batches are written under.
func (c *Coordinator) WorkDir() string {
	return c.cfg.WorkDir
}

var (
	batchSeq       atomic.Uint64
	batchIDPattern = regexp.MustCompile(`^[0-9A-Za-z_-]+$`)
)

// NewBatchID returns an identifier unique within the process lifetime.
func NewBatchID() string {
	return fmt.Sprintf("%d-%d", time.Now().UnixMilli(), batchSeq.Add(1))
}

// ArchiveName returns the archive file name for batchID.
func ArchiveName(batchID string) string {
	return archivePrefix + batchID + archiveSuffix
}

// BatchIDFromArchive reverses ArchiveName. It rejects names that could escape
// the work directory.
func BatchIDFromArchive(name string) (string, bool) {
	if name != filepath.Base(name) || !strings.HasPrefix(name, archivePrefix) || !strings.HasSuffix(name, archiveSuffix) {
		return "", false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(name, archivePrefix), archiveSuffix)
	if !batchIDPattern.MatchString(id) {
		return "", false
	}
	return id, true
}

// Run processes sources and returns one ItemResult per source in input
// order. Per-item failures are recorded, never returned; the only error is a
// failure to create the batch directory before any item starts.
func (c *Coordinator) Run(ctx context.Context, sources []Source, opts Options) (*Result, error) {
	batchID := NewBatchID()
	dir := filepath.Join(c.cfg.WorkDir, batchID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		for _, s := range sources {
			c.removeTemp(s)
		}
		return nil, apperr.New(apperr.KindStorage, "create batch dir", err)
	}

	start := time.Now()
	log.Info().
		Str("batch_id", batchID).
		Int("items", len(sources)).
		Int("workers", c.cfg.Workers).
		Msg("Batch started")

	names := outputStems(sources)
	items := make([]ItemResult, len(sources))

	var g errgroup.Group
	g.SetLimit(c.cfg.Workers)
	for i := range sources {
		g.Go(func() error {
			items[i] = c.processItem(ctx, dir, i, sources[i], names[i], opts)
			return nil
		})
	}
	g.Wait()

	res := &Result{BatchID: batchID, Dir: dir, Items: items}
	for _, it := range items {
		if it.Success {
			res.SuccessCount++
		} else {
			res.ErrorCount++
		}
	}

	if res.SuccessCount > 0 && !opts.NoArchive {
		name := ArchiveName(batchID)
		dst := filepath.Join(c.cfg.WorkDir, name)
		size, err := WriteArchive(dir, dst, c.cfg.Compression)
		if err != nil {
			log.Error().Err(err).Str("batch_id", batchID).Msg("Failed to write batch archive")
		} else {
			res.ArchiveName = name
			res.ArchivePath = dst
			res.ArchiveSize = size
		}
	}

	log.Info().
		Str("batch_id", batchID).
		Int("successful", res.SuccessCount).
		Int("failed", res.ErrorCount).
		Str("archive", res.ArchiveName).
		Dur("duration", time.Since(start)).
		Msg("Batch complete")

	return res, nil
}

func (c *Coordinator) processItem(ctx context.Context, dir string, i int, src Source, stem string, opts Options) ItemResult {
	defer c.removeTemp(src)

	res := ItemResult{Identifier: src.Identifier(), Outcome: string(cropper.KindFailed)}
	report := func(s Stage) {
		if opts.Progress != nil {
			opts.Progress(i, s)
		}
	}
	fail := func(err error) ItemResult {
		res.Message = "Processing error: " + err.Error()
		res.ErrorKind = string(apperr.KindOf(err))
		log.Warn().Err(err).Str("item", res.Identifier).Msg("Item failed")
		return res
	}

	if src.Err != nil {
		return fail(src.Err)
	}

	report(StageFetching)
	data, err := c.load(ctx, src)
	if err != nil {
		return fail(err)
	}
	report(StageDownloaded)

	report(StageCropping)
	out := c.engine.Process(data, opts.Policy)
	if !out.OK() {
		return fail(out.Err)
	}

	name := outputPrefix + stem + outputExtension(src.Name, out.Format)
	dst := filepath.Join(dir, name)
	if err := os.WriteFile(dst, out.Data, 0o644); err != nil {
		return fail(apperr.New(apperr.KindStorage, "write output", err))
	}

	res.Success = true
	res.Message = outcomeMessage(out)
	res.ProducedName = name
	res.ArtifactPath = dst
	res.Outcome = string(out.Kind)
	res.Method = out.Method
	res.Width = out.Width
	res.Height = out.Height
	res.OriginalWidth = out.OriginalWidth
	res.OriginalHeight = out.OriginalHeight
	report(StageDone)
	return res
}

func (c *Coordinator) load(ctx context.Context, src Source) ([]byte, error) {
	switch {
	case src.Path != "":
		data, err := os.ReadFile(src.Path)
		if err != nil {
			return nil, apperr.New(apperr.KindStorage, "read source", err)
		}
		return data, nil
	case src.URL != "":
		if c.fetcher == nil {
			return nil, apperr.Validation("fetch", "remote sources are not enabled")
		}
		return c.fetcher.Fetch(ctx, src.URL)
	default:
		return nil, apperr.Validation("load", "source has neither a path nor a url")
	}
}

// removeTemp deletes an uploaded temp file. Failures are logged only.
func (c *Coordinator) removeTemp(src Source) {
	if !src.Temporary || src.Path == "" {
		return
	}
	if err := os.Remove(src.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Str("path", src.Path).Msg("Failed to remove temporary upload")
	}
}

// Discard removes a batch's directory and archive. Already missing files are
// not an error.
func Discard(workDir, batchID string) error {
	var errs []error
	if err := os.RemoveAll(filepath.Join(workDir, batchID)); err != nil {
		errs = append(errs, err)
	}
	if err := os.Remove(filepath.Join(workDir, ArchiveName(batchID))); err != nil && !errors.Is(err, os.ErrNotExist) {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return apperr.New(apperr.KindStorage, "discard batch "+batchID, err)
	}
	return nil
}

// outputStems assigns each source a unique output stem, in input order, so
// that concurrent workers never write the same file.
func outputStems(sources []Source) []string {
	stems := make([]string, len(sources))
	used := make(map[string]bool, len(sources))
	for i, s := range sources {
		name := s.Name
		if name == "" {
			name = filepath.Base(s.Path)
		}
		name = filehandler.SanitizeFilename(name)
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		if stem == "" {
			stem = "image"
		}
		candidate := stem
		for n := 2; used[strings.ToLower(candidate)]; n++ {
			candidate = fmt.Sprintf("%s-%d", stem, n)
		}
		used[strings.ToLower(candidate)] = true
		stems[i] = candidate
	}
	return stems
}

// outputExtension keeps the source's extension when the output format
// matches it, otherwise uses the format's canonical extension.
func outputExtension(sourceName, format string) string {
	ext := filepath.Ext(sourceName)
	if mime, err := filehandler.GetMIMEType(ext); err == nil && mime == "image/"+format {
		return ext
	}
	return cropper.FormatExtension(format)
}

func outcomeMessage(o cropper.Outcome) string {
	switch o.Kind {
	case cropper.KindCropped:
		return fmt.Sprintf("Cropped from %dx%d to %dx%d", o.OriginalWidth, o.OriginalHeight, o.Width, o.Height)
	case cropper.KindUnchanged:
		return "No whitespace to remove"
	case cropper.KindPassthrough:
		return "No content detected, original kept"
	default:
		return "Processed successfully"
	}
}
