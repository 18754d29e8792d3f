package jobs

import (
	"strings"
)

// ParseRoute extracts the job ID and optional action from a URL path like
// /api/jobs/{id} or /api/jobs/{id}/{action}. apiPrefix should be like
// "/api/jobs/". IDs missing idPrefix have it added.
func ParseRoute(path, apiPrefix, idPrefix string) (jobID, action string, ok bool) {
	rest := strings.Trim(strings.TrimPrefix(path, apiPrefix), "/")
	if rest == "" || rest == strings.Trim(path, "/") {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) > 2 || parts[0] == "" {
		return "", "", false
	}

	jobID = parts[0]
	if !strings.HasPrefix(jobID, idPrefix) {
		jobID = idPrefix + jobID
	}
	if len(parts) == 2 {
		action = parts[1]
	}
	return jobID, action, true
}
