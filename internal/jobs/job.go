// Package jobs tracks asynchronous crop jobs: their records, state machine,
// delayed expiry and the background runner that drives them.
package jobs

import (
	"time"

	"github.com/fpang/autocrop/internal/batch"
)

// Status is a job's position in its state machine. processing moves to
// completed or error; both are terminal.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Job is one asynchronous crop request.
type Job struct {
	ID          string
	Status      Status
	Progress    int
	Source      string
	CreatedAt   time.Time
	CompletedAt time.Time

	// Result is set once the batch has run. It is not modified afterwards.
	Result *batch.Result
	Error  string

	// DownloadURL is where the archive can be fetched once completed.
	DownloadURL string
}

// View is the polling response. Fields only appear when meaningful for the
// job's status.
type View struct {
	JobID       string      `json:"jobId"`
	Status      Status      `json:"status"`
	Progress    *int        `json:"progress,omitempty"`
	Source      string      `json:"source,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
	CompletedAt *time.Time  `json:"completedAt,omitempty"`
	Result      *ResultView `json:"result,omitempty"`
	Error       string      `json:"error,omitempty"`
}

// ResultView is the completed-job payload.
type ResultView struct {
	BatchID     string             `json:"batchId"`
	Summary     batch.Summary      `json:"summary"`
	Items       []batch.ItemResult `json:"items"`
	ArchiveName string             `json:"archiveName,omitempty"`
	DownloadURL string             `json:"downloadUrl,omitempty"`
}

// View renders j for pollers.
func (j Job) View() View {
	v := View{
		JobID:     j.ID,
		Status:    j.Status,
		Source:    j.Source,
		CreatedAt: j.CreatedAt,
	}
	if j.Status != StatusError {
		p := j.Progress
		v.Progress = &p
	}
	if !j.CompletedAt.IsZero() {
		t := j.CompletedAt
		v.CompletedAt = &t
	}
	switch j.Status {
	case StatusCompleted:
		if j.Result != nil {
			v.Result = &ResultView{
				BatchID:     j.Result.BatchID,
				Summary:     j.Result.Summary(),
				Items:       j.Result.Items,
				ArchiveName: j.Result.ArchiveName,
				DownloadURL: j.DownloadURL,
			}
		}
	case StatusError:
		v.Error = j.Error
	}
	return v
}
