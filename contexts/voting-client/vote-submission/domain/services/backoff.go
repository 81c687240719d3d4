package services

import "time"

const (
	DefaultRetryBase = 100 * time.Millisecond
	DefaultRetryCap  = 2 * time.Second
)

// RetryBackoff returns the wait before retry number attempt (1-based):
// base, 2*base, 4*base, ... capped at limit.
func RetryBackoff(attempt int, base time.Duration, limit time.Duration) time.Duration {
	if base <= 0 {
		base = DefaultRetryBase
	}
	if limit <= 0 {
		limit = DefaultRetryCap
	}
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= limit {
			return limit
		}
	}
	if delay > limit {
		return limit
	}
	return delay
}

// InterBatchDelay spaces batches out: early batches wait longest and the delay
// shrinks as the call approaches completion. Long runs with many batches left
// are stretched further so requests do not cluster.
func InterBatchDelay(base time.Duration, confirmed int, total int, remainingBatches int) time.Duration {
	if base <= 0 || remainingBatches <= 0 || total <= 0 {
		return 0
	}
	progress := float64(confirmed) / float64(total)
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	scale := 1.0 - 0.5*progress
	if remainingBatches > 10 {
		scale *= 1.5
	}
	return time.Duration(float64(base) * scale)
}
