package metrics

import (
	"strconv"
	"time"
)

// Request records one HTTP request.
func (e *Emitter) Request(route, method string, status int, d time.Duration) {
	e.New().
		Dimension("Route", route).
		Count("Requests").
		Duration("LatencyMs", d).
		Property("method", method).
		Property("status", strconv.Itoa(status)).
		Flush()
}

// Batch records the outcome of one batch run.
func (e *Emitter) Batch(mode string, total, successful, failed int, d time.Duration) {
	e.New().
		Dimension("Mode", mode).
		Metric("Images", float64(total), UnitCount).
		Metric("ImagesSucceeded", float64(successful), UnitCount).
		Metric("ImagesFailed", float64(failed), UnitCount).
		Duration("BatchMs", d).
		Flush()
}
