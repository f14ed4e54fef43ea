package pipeline

import (
	"github.com/dgallion1/apindex/internal/index"
)

// MaxAttempts bounds how often one volume is run when its sink fails transiently.
// Records are upserted by id, so a rerun replaces what the failed attempt wrote.
const MaxAttempts = 3

// shouldRetry checks if a volume failure is worth another run.
func shouldRetry(err error) bool {
	return index.IsRetryable(err)
}
