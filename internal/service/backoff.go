package service

import (
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	defaultBackoffBase = 1 * time.Second
	defaultBackoffCap  = 60 * time.Second
	defaultMaxAttempts = 5
)

// backoffPolicy decides how long a nacked mutation waits before its next
// submission attempt and when to stop retrying altogether.
type backoffPolicy struct {
	base        time.Duration
	cap         time.Duration
	maxAttempts int
}

func defaultBackoffPolicy() backoffPolicy {
	return backoffPolicy{
		base:        defaultBackoffBase,
		cap:         defaultBackoffCap,
		maxAttempts: defaultMaxAttempts,
	}
}

// delay returns the wait before attempt number attempt (zero-based): the
// first retry waits base, every following one doubles, capped.
func (p backoffPolicy) delay(attempt int) time.Duration {
	b := retry.WithCappedDuration(p.cap, retry.NewExponential(p.base))
	var d time.Duration
	for i := 0; i <= attempt; i++ {
		next, stop := b.Next()
		if stop {
			break
		}
		d = next
	}
	return d
}

// exhausted reports whether a mutation that failed attempts times already
// should stop retrying.
func (p backoffPolicy) exhausted(attempts int) bool {
	return attempts >= p.maxAttempts
}
