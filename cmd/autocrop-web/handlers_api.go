package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/autocrop/internal/apperr"
	"github.com/fpang/autocrop/internal/batch"
	"github.com/fpang/autocrop/internal/cropper"
	"github.com/fpang/autocrop/internal/jobs"
)

// maxJSONBody bounds JSON request bodies. They only carry references.
const maxJSONBody = 1 << 20

// readSources decodes a request body into crop sources.
func readSources(w http.ResponseWriter, r *http.Request) ([]batch.Source, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err != nil {
		return nil, apperr.New(apperr.KindValidation, "read body", err)
	}
	return batch.NormalizeSources(body)
}

// POST /api/crop/sync
// Body: {"url": "https://..."}; responds with the cropped PNG.
func (s *server) handleCropSync(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	sources, err := readSources(w, r)
	if err != nil {
		respondErr(w, "crop sync", err)
		return
	}
	if len(sources) != 1 {
		httpError(w, http.StatusBadRequest, "sync crop takes exactly one image; use /api/n8n/crop for batches")
		return
	}
	src := sources[0]
	if src.Err != nil {
		respondErr(w, "crop sync", src.Err)
		return
	}

	start := time.Now()
	data, err := s.fetcher.Fetch(r.Context(), src.URL)
	if err != nil {
		respondErr(w, "crop sync", err)
		return
	}
	out := s.engine.Process(data, cropper.Lossless)
	if !out.OK() {
		respondErr(w, "crop sync", out.Err)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "image/"+out.Format)
	h.Set("Content-Length", strconv.Itoa(len(out.Data)))
	h.Set("X-Crop-Outcome", string(out.Kind))
	if out.Method != "" {
		h.Set("X-Crop-Method", out.Method)
	}
	if out.Kind == cropper.KindCropped {
		h.Set("X-Crop-Bounds", out.Bounds.String())
	}
	h.Set("X-Original-Size", fmt.Sprintf("%dx%d", out.OriginalWidth, out.OriginalHeight))
	h.Set("X-Cropped-Size", fmt.Sprintf("%dx%d", out.Width, out.Height))
	w.WriteHeader(http.StatusOK)
	w.Write(out.Data)

	log.Info().
		Str("source", src.Identifier()).
		Str("outcome", string(out.Kind)).
		Dur("duration", time.Since(start)).
		Msg("Sync crop served")
}

type asyncResponse struct {
	JobID     string      `json:"jobId"`
	Status    jobs.Status `json:"status"`
	StatusURL string      `json:"statusUrl"`
}

// POST /api/crop/async, POST /api/n8n/async
// Accepts any shape NormalizeSources understands and answers 202 at once.
func (s *server) handleCropAsync(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	sources, err := readSources(w, r)
	if err != nil {
		respondErr(w, "crop async", err)
		return
	}

	job, err := s.runner.Start(sources, sourceRef(sources))
	if err != nil {
		respondErr(w, "crop async", err)
		return
	}
	respondJSON(w, http.StatusAccepted, asyncResponse{
		JobID:     job.ID,
		Status:    job.Status,
		StatusURL: jobsPrefix + job.ID,
	})
}

// sourceRef summarises a job's input for the polling view.
func sourceRef(sources []batch.Source) string {
	if len(sources) == 1 {
		return sources[0].Identifier()
	}
	return fmt.Sprintf("%d images", len(sources))
}

type batchResponse struct {
	Success     bool               `json:"success"`
	BatchID     string             `json:"batchId"`
	Summary     batch.Summary      `json:"summary"`
	Items       []batch.ItemResult `json:"items"`
	ZipFile     string             `json:"zipFile,omitempty"`
	DownloadURL string             `json:"downloadUrl,omitempty"`
}

// POST /api/n8n/crop
// Runs the batch in the request and answers with the per-item summary.
// Item failures are reported in the body, never as an HTTP error. A started
// batch runs to completion even if the client goes away.
func (s *server) handleBatchJSON(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	sources, err := readSources(w, r)
	if err != nil {
		respondErr(w, "batch crop", err)
		return
	}

	start := time.Now()
	res, err := s.coord.Run(context.WithoutCancel(r.Context()), sources, batch.Options{Policy: cropper.Lossless})
	if err != nil {
		respondErr(w, "batch crop", err)
		return
	}
	s.metrics.Batch("n8n", len(res.Items), res.SuccessCount, res.ErrorCount, time.Since(start))
	s.scheduleDiscard(res.BatchID, s.cfg.Jobs.TTL)

	resp := batchResponse{
		Success: res.SuccessCount > 0,
		BatchID: res.BatchID,
		Summary: res.Summary(),
		Items:   res.Items,
		ZipFile: res.ArchiveName,
	}
	if res.ArchiveName != "" {
		resp.DownloadURL = "/download/" + res.ArchiveName
	}
	respondJSON(w, http.StatusOK, resp)
}

// GET /api/jobs/{id}, GET /api/jobs/{id}/download
func (s *server) handleJobRoutes(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	id, action, ok := jobs.ParseRoute(r.URL.Path, jobsPrefix, jobs.IDPrefix)
	if !ok {
		httpError(w, http.StatusNotFound, "not found")
		return
	}

	switch action {
	case "":
		job, err := s.store.Get(id)
		if err != nil {
			respondErr(w, "job status", err)
			return
		}
		respondJSON(w, http.StatusOK, job.View())
	case "download":
		job, path, err := jobs.Artifact(s.store, id)
		if errors.Is(err, jobs.ErrNotReady) {
			httpError(w, http.StatusConflict, fmt.Sprintf("job %s is %s", id, job.Status))
			return
		}
		if err != nil {
			respondErr(w, "job download", err)
			return
		}
		s.serveArchive(w, r, path, job.Result.ArchiveName)
	default:
		httpError(w, http.StatusNotFound, "not found")
	}
}

// GET /health
func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "OK",
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
		"pendingCleanups": s.sched.Pending(),
	})
}

