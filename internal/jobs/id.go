package jobs

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// IDPrefix is prepended to every async crop job ID.
const IDPrefix = "job-"

// GenerateID creates a new random job ID with the given prefix.
// The prefix should include a trailing dash, e.g. "job-".
func GenerateID(prefix string) string {
	id, err := uuid.NewRandom()
	if err != nil {
		log.Fatal().Err(err).Msgf("Failed to generate random %s job ID", prefix)
	}
	return prefix + id.String()
}
