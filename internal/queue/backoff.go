package queue

import (
	"time"

	"github.com/clodputer/clodputer/internal/taskconfig"
)

// Backoff computes the delay before retry attempt number attempt (1-based:
// the delay applied after the first failure):
//
//	exponential: initial_delay * 2^(attempt-1), capped at max_delay
//	fixed:       initial_delay
//
// Exponential backoff uses a capped multiplier lookup rather than risking
// overflow from repeated doubling.
func Backoff(policy RetryPolicy, attempt int) time.Duration {
	initial := time.Duration(policy.InitialDelaySeconds) * time.Second
	if policy.Backoff == taskconfig.BackoffFixed {
		return initial
	}

	if attempt < 1 {
		attempt = 1
	}
	multipliers := []int64{1, 2, 4, 8, 16, 32, 64, 128, 256, 512}
	idx := attempt - 1
	var multiplier int64 = 1024 // cap for attempt beyond the table
	if idx < len(multipliers) {
		multiplier = multipliers[idx]
	}

	delay := initial * time.Duration(multiplier)
	if policy.MaxDelaySeconds > 0 {
		max := time.Duration(policy.MaxDelaySeconds) * time.Second
		if delay > max {
			delay = max
		}
	}
	return delay
}
