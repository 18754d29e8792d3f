package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/autocrop/internal/apperr"
	"github.com/fpang/autocrop/internal/batch"
	"github.com/fpang/autocrop/internal/cropper"
	"github.com/fpang/autocrop/internal/filehandler"
)

// multipartMemory is how much of a multipart form is buffered in memory
// before parts spill to temp files.
const multipartMemory = 32 << 20

type processedFile struct {
	OriginalName  string `json:"originalName"`
	ProcessedName string `json:"processedName,omitempty"`
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	Outcome       string `json:"outcome"`
	Method        string `json:"method,omitempty"`
	Width         int    `json:"width,omitempty"`
	Height        int    `json:"height,omitempty"`
}

type processResponse struct {
	Success int             `json:"success"`
	Error   int             `json:"error"`
	Files   []processedFile `json:"files"`
	ZipFile *string         `json:"zipFile"`
	Summary batch.Summary   `json:"summary"`
}

func newProcessResponse(res *batch.Result) processResponse {
	out := processResponse{
		Success: res.SuccessCount,
		Error:   res.ErrorCount,
		Files:   make([]processedFile, len(res.Items)),
		Summary: res.Summary(),
	}
	for i, it := range res.Items {
		out.Files[i] = processedFile{
			OriginalName:  it.Identifier,
			ProcessedName: it.ProducedName,
			Success:       it.Success,
			Message:       it.Message,
			Outcome:       it.Outcome,
			Method:        it.Method,
			Width:         it.Width,
			Height:        it.Height,
		}
	}
	if res.ArchiveName != "" {
		name := res.ArchiveName
		out.ZipFile = &name
	}
	return out
}

// POST /process
// Multipart form with up to MaxUploadFiles parts named "images".
func (s *server) handleProcess(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	sc := s.cfg.Server
	r.Body = http.MaxBytesReader(w, r.Body, int64(sc.MaxUploadFiles)*sc.MaxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			httpError(w, http.StatusRequestEntityTooLarge, "upload exceeds size limit")
			return
		}
		httpError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["images"]
	if len(headers) == 0 {
		httpError(w, http.StatusBadRequest, "No files uploaded")
		return
	}
	if len(headers) > sc.MaxUploadFiles {
		httpError(w, http.StatusBadRequest, fmt.Sprintf("too many files: %d (max %d)", len(headers), sc.MaxUploadFiles))
		return
	}

	if err := os.MkdirAll(sc.UploadDir, 0o755); err != nil {
		respondErr(w, "process", apperr.New(apperr.KindStorage, "create upload dir", err))
		return
	}

	sources := make([]batch.Source, len(headers))
	for i, fh := range headers {
		sources[i] = s.saveUpload(i, fh)
	}

	start := time.Now()
	res, err := s.coord.Run(context.WithoutCancel(r.Context()), sources, batch.Options{Policy: cropper.PreserveFormat})
	if err != nil {
		respondErr(w, "process", err)
		return
	}
	s.metrics.Batch("upload", len(res.Items), res.SuccessCount, res.ErrorCount, time.Since(start))
	s.scheduleDiscard(res.BatchID, s.cfg.Jobs.TTL)

	respondJSON(w, http.StatusOK, newProcessResponse(res))
}

// saveUpload copies one multipart part into the upload directory. Parts that
// are rejected become sources with Err set so they are reported in place.
func (s *server) saveUpload(i int, fh *multipart.FileHeader) batch.Source {
	name := strings.TrimSpace(filepath.Base(strings.ReplaceAll(fh.Filename, "\\", "/")))
	if name == "" || name == "." || name == "/" {
		name = fmt.Sprintf("upload-%d", i+1)
	}
	src := batch.Source{Name: name}

	if fh.Size > s.cfg.Server.MaxUploadBytes {
		src.Err = apperr.Validation("upload", fmt.Sprintf("file exceeds %d bytes", s.cfg.Server.MaxUploadBytes))
		return src
	}
	ct := fh.Header.Get("Content-Type")
	if !filehandler.IsAllowedMIMEType(ct) && !(isGenericContentType(ct) && filehandler.IsImage(filepath.Ext(name))) {
		src.Err = apperr.Validation("upload", "Invalid file type. Only images are allowed.")
		return src
	}

	f, err := fh.Open()
	if err != nil {
		src.Err = apperr.New(apperr.KindStorage, "open upload", err)
		return src
	}
	defer f.Close()

	dst, err := os.CreateTemp(s.cfg.Server.UploadDir, "upload-*-"+filehandler.SanitizeFilename(name))
	if err != nil {
		src.Err = apperr.New(apperr.KindStorage, "save upload", err)
		return src
	}
	if _, err := io.Copy(dst, f); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		src.Err = apperr.New(apperr.KindStorage, "save upload", err)
		return src
	}
	if err := dst.Close(); err != nil {
		os.Remove(dst.Name())
		src.Err = apperr.New(apperr.KindStorage, "save upload", err)
		return src
	}

	src.Path = dst.Name()
	src.Temporary = true
	return src
}

func isGenericContentType(ct string) bool {
	ct = strings.ToLower(strings.TrimSpace(ct))
	return ct == "" || strings.HasPrefix(ct, "application/octet-stream")
}

// GET /download/{archive}
// Serves a batch archive. A synchronous batch's pending cleanup is brought
// forward once the archive is fully sent; job archives live until the job
// expires.
func (s *server) handleDownload(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/download/")
	batchID, ok := batch.BatchIDFromArchive(name)
	if !ok {
		httpError(w, http.StatusNotFound, "File not found")
		return
	}

	path := filepath.Join(s.coord.WorkDir(), name)
	if s.serveArchive(w, r, path, name) && s.sched.Reschedule(discardKey(batchID), s.cfg.Jobs.DownloadCleanupDelay) {
		log.Info().Str("batch_id", batchID).Msg("Archive downloaded, cleanup scheduled")
	}
}

// serveArchive streams the zip at path as an attachment. It reports whether
// the whole file was sent.
func (s *server) serveArchive(w http.ResponseWriter, r *http.Request, path, name string) bool {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			httpError(w, http.StatusNotFound, "File not found")
			return false
		}
		respondErr(w, "download", apperr.New(apperr.KindStorage, "open archive", err))
		return false
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		httpError(w, http.StatusNotFound, "File not found")
		return false
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
	http.ServeContent(sr, r, name, info.ModTime(), f)
	return sr.statusCode == http.StatusOK && sr.written == info.Size()
}
