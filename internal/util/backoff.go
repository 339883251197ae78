// Package util holds small helpers shared across packages.
package util

import (
	"math"
	"math/rand/v2"
	"time"
)

// CalculateBackoff returns exponential backoff with jitter, capped at maxDelay.
// The base delay doubles each attempt and jitter is up to 25% either way.
func CalculateBackoff(baseDelay, maxDelay time.Duration, attempt int) time.Duration {
	if attempt <= 0 || baseDelay <= 0 {
		return 0
	}
	backoff := baseDelay
	for i := 1; i < attempt; i++ {
		if backoff > math.MaxInt64/4 {
			break
		}
		backoff *= 2
		if maxDelay > 0 && backoff >= maxDelay {
			break
		}
	}
	// Leave headroom so positive jitter cannot wrap.
	if backoff > math.MaxInt64/2 {
		backoff = math.MaxInt64 / 2
	}
	if maxDelay > 0 && backoff > maxDelay {
		backoff = maxDelay
	}
	if backoff < 4 {
		return backoff
	}
	jitter := time.Duration(rand.Int64N(int64(backoff)/2)) - backoff/4
	backoff += jitter
	if maxDelay > 0 && backoff > maxDelay {
		backoff = maxDelay
	}
	return backoff
}
