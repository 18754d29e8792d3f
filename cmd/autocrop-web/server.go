package main

import (
	"embed"
	"io/fs"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/autocrop/internal/batch"
	"github.com/fpang/autocrop/internal/config"
	"github.com/fpang/autocrop/internal/cropper"
	"github.com/fpang/autocrop/internal/fetch"
	"github.com/fpang/autocrop/internal/jobs"
	"github.com/fpang/autocrop/internal/metrics"
)

//go:embed static
var staticFS embed.FS

const jobsPrefix = "/api/jobs/"

// server holds the dependencies shared by all handlers.
type server struct {
	cfg     *config.Config
	engine  *cropper.Engine
	fetcher fetch.Fetcher
	coord   *batch.Coordinator
	store   jobs.Store
	sched   *jobs.Scheduler
	runner  *jobs.Runner
	metrics *metrics.Emitter
}

// deps are the optional collaborators main wires from config.
type deps struct {
	fetcher   fetch.Fetcher
	publisher jobs.Publisher
	metrics   *metrics.Emitter
}

func newServer(cfg *config.Config, d deps) (*server, error) {
	cc, err := cfg.CropperConfig()
	if err != nil {
		return nil, err
	}
	if d.fetcher == nil {
		d.fetcher = fetch.New(cfg.Fetch.Timeout, cfg.Fetch.MaxBytes, nil)
	}

	s := &server{
		cfg:     cfg,
		engine:  cropper.NewEngine(cc, nil),
		fetcher: d.fetcher,
		store:   jobs.NewMemoryStore(),
		sched:   jobs.NewScheduler(),
		metrics: d.metrics,
	}
	s.coord = batch.NewCoordinator(s.engine, s.fetcher, cfg.BatchConfig())

	rc := jobs.RunnerConfig{
		TTL:         cfg.Jobs.TTL,
		DownloadURL: func(id string) string { return jobsPrefix + id + "/download" },
		OnFinish: func(j jobs.Job) {
			if j.Result != nil {
				s.metrics.Batch("async", len(j.Result.Items), j.Result.SuccessCount, j.Result.ErrorCount, j.CompletedAt.Sub(j.CreatedAt))
			}
		},
		Publisher: d.publisher,
	}
	s.runner = jobs.NewRunner(s.store, s.coord, s.sched, rc)
	return s, nil
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/process", s.handleProcess)
	mux.HandleFunc("/download/", s.handleDownload)
	mux.HandleFunc("/health", s.handleHealth)

	mux.HandleFunc("/api/crop/sync", s.handleCropSync)
	mux.HandleFunc("/api/crop/async", s.handleCropAsync)
	mux.HandleFunc("/api/n8n/async", s.handleCropAsync)
	mux.HandleFunc("/api/n8n/crop", s.handleBatchJSON)
	mux.HandleFunc(jobsPrefix, s.handleJobRoutes)

	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to access embedded static files")
	}
	fileServer := http.FileServer(http.FS(sub))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			httpError(w, http.StatusNotFound, "not found")
			return
		}
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		fileServer.ServeHTTP(w, r)
	})

	return withLogging(withMetrics(s.metrics, withCORS(mux)))
}

// scheduleDiscard removes a synchronous batch's directory and archive after
// delay, replacing any discard already pending for it.
func (s *server) scheduleDiscard(batchID string, delay time.Duration) {
	workDir := s.coord.WorkDir()
	s.sched.Schedule(discardKey(batchID), delay, func() {
		if err := batch.Discard(workDir, batchID); err != nil {
			log.Warn().Err(err).Str("batch_id", batchID).Msg("Failed to remove batch files")
			return
		}
		log.Debug().Str("batch_id", batchID).Msg("Batch files removed")
	})
}

// discardKey names the cleanup task of a synchronous batch. Batches owned by
// async jobs have none; their files expire with the job record.
func discardKey(batchID string) string {
	return "batch:" + batchID
}

// shutdown waits for running jobs and then settles pending cleanups.
func (s *server) shutdown(flush bool) {
	s.runner.Wait()
	pending := s.sched.Pending()
	s.sched.Shutdown(flush)
	log.Info().Int("pending_cleanups", pending).Bool("flushed", flush).Msg("Cleanup scheduler stopped")
}
