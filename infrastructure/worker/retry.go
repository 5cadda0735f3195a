package worker

import "time"

// RetryPolicy bounds the attempt loop of one job. Backoff grows linearly
// with the attempt number: seed, 2*seed, 3*seed, ...
type RetryPolicy struct {
	MaxAttempts int
	BackoffSeed time.Duration
}

// Backoff returns the wait after the given 1-based attempt failed.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return p.BackoffSeed * time.Duration(attempt)
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BackoffSeed: 60 * time.Second,
	}
}
