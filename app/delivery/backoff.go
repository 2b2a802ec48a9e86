// Package delivery runs the push dispatch pipeline for queued campaigns
package delivery

import "time"

// Backoff computes capped exponential retry delays for transient failures
type Backoff struct {
	Base time.Duration
	Cap  time.Duration
}

// Delay returns the wait before the given attempt number (1-based: the delay
// scheduled after the first failed attempt is Delay(1)). The delay doubles
// per attempt until it hits the cap.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := b.Base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= b.Cap {
			return b.Cap
		}
	}
	if delay > b.Cap {
		return b.Cap
	}
	return delay
}
