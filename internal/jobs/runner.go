package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/autocrop/internal/batch"
	"github.com/fpang/autocrop/internal/cropper"
)

// DefaultTTL is how long a finished job and its artifact stay available.
const DefaultTTL = time.Hour

// Publisher copies a finished archive somewhere clients can fetch it from
// and returns that URL.
type Publisher interface {
	Publish(ctx context.Context, jobID, archivePath string) (string, error)
}

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	// TTL is the delay between a job finishing and its record and artifact
	// being deleted.
	TTL time.Duration
	// DownloadURL builds the local download link for a job.
	DownloadURL func(jobID string) string
	// Publisher is optional. When set, archives are published and the
	// returned URL replaces the local download link.
	Publisher Publisher
	// OnFinish, when set, receives the job's final state.
	OnFinish func(Job)
}

// Runner executes asynchronous crop jobs in background goroutines.
type Runner struct {
	store Store
	coord *batch.Coordinator
	sched *Scheduler
	cfg   RunnerConfig
	wg    sync.WaitGroup
}

// NewRunner returns a Runner.
func NewRunner(store Store, coord *batch.Coordinator, sched *Scheduler, cfg RunnerConfig) *Runner {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	return &Runner{store: store, coord: coord, sched: sched, cfg: cfg}
}

// Start records a new job for sources and processes it in the background.
// The returned job is the initial processing snapshot.
func (r *Runner) Start(sources []batch.Source, sourceRef string) (Job, error) {
	id := GenerateID(IDPrefix)
	job, err := r.store.Create(id, sourceRef)
	if err != nil {
		return Job{}, err
	}

	log.Info().
		Str("job_id", id).
		Int("items", len(sources)).
		Msg("Async crop job accepted")

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(context.Background(), id, sources)
	}()
	return job, nil
}

// Wait blocks until every started job has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) run(ctx context.Context, id string, sources []batch.Source) {
	start := time.Now()
	n := len(sources)

	progress := func(i int, stage batch.Stage) {
		p := overallProgress(i, stage, n)
		if _, err := r.store.Update(id, func(j *Job) { j.Progress = p }); err != nil {
			log.Debug().Err(err).Str("job_id", id).Msg("Progress update skipped")
		}
	}

	res, err := r.coord.Run(ctx, sources, batch.Options{Policy: cropper.Lossless, Progress: progress})

	switch {
	case err != nil:
		r.finish(id, func(j *Job) {
			j.Status = StatusError
			j.Error = err.Error()
		})
	case res.SuccessCount == 0:
		msg := fmt.Sprintf("all %d items failed", res.ErrorCount)
		if len(res.Items) > 0 {
			msg += ": " + res.Items[0].Message
		}
		r.finish(id, func(j *Job) {
			j.Status = StatusError
			j.Error = msg
			j.Result = res
		})
	default:
		url := r.downloadURL(ctx, id, res)
		r.finish(id, func(j *Job) {
			j.Status = StatusCompleted
			j.Result = res
			j.DownloadURL = url
		})
	}

	log.Info().
		Str("job_id", id).
		Dur("duration", time.Since(start)).
		Msg("Async crop job finished")

	if r.cfg.OnFinish != nil {
		if job, err := r.store.Get(id); err == nil {
			r.cfg.OnFinish(job)
		}
	}

	r.sched.Schedule("job:"+id, r.cfg.TTL, func() { r.expire(id) })
}

func (r *Runner) finish(id string, fn func(*Job)) {
	if _, err := r.store.Update(id, fn); err != nil {
		log.Error().Err(err).Str("job_id", id).Msg("Failed to record job outcome")
	}
}

func (r *Runner) downloadURL(ctx context.Context, id string, res *batch.Result) string {
	if res.ArchivePath == "" {
		return ""
	}
	if r.cfg.Publisher != nil {
		url, err := r.cfg.Publisher.Publish(ctx, id, res.ArchivePath)
		if err == nil {
			return url
		}
		log.Warn().Err(err).Str("job_id", id).Msg("Failed to publish archive, serving locally")
	}
	if r.cfg.DownloadURL != nil {
		return r.cfg.DownloadURL(id)
	}
	return ""
}

// expire deletes the job record and its on-disk batch. Missing files are
// not an error.
func (r *Runner) expire(id string) {
	job, err := r.store.Delete(id)
	if err != nil {
		log.Debug().Err(err).Str("job_id", id).Msg("Job already removed")
		return
	}
	if job.Result != nil {
		if err := batch.Discard(r.coord.WorkDir(), job.Result.BatchID); err != nil {
			log.Warn().Err(err).Str("job_id", id).Msg("Failed to remove job artifacts")
		}
	}
	log.Debug().Str("job_id", id).Msg("Job expired")
}

// overallProgress maps an item's stage to whole-job progress. It stays below
// 100 until the job is marked completed.
func overallProgress(i int, stage batch.Stage, n int) int {
	if n <= 0 {
		return 0
	}
	return min((i*100+int(stage))/n, 99)
}

// ErrNotReady is returned when a job's artifact is requested before it
// completed.
var ErrNotReady = errors.New("job has not completed")

// Artifact returns the archive path of a completed job.
func Artifact(store Store, id string) (Job, string, error) {
	job, err := store.Get(id)
	if err != nil {
		return Job{}, "", err
	}
	if job.Status != StatusCompleted || job.Result == nil || job.Result.ArchivePath == "" {
		return job, "", ErrNotReady
	}
	return job, job.Result.ArchivePath, nil
}
