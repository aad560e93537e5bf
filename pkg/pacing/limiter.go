// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package pacing

import (
	"time"

	"golang.org/x/time/rate"
)

// bucketLimiter meters outgoing bits through a token bucket. Rates at or
// below zero collapse to a trickle rather than panicking rate.NewLimiter.
type bucketLimiter struct {
	bucket *rate.Limiter
}

func newBucketLimiter(bitsPerSecond, burst int) *bucketLimiter {
	bitsPerSecond, burst = sanitize(bitsPerSecond, burst)

	return &bucketLimiter{
		bucket: rate.NewLimiter(rate.Limit(bitsPerSecond), burst),
	}
}

func sanitize(bitsPerSecond, burst int) (int, int) {
	return max(bitsPerSecond, 1), max(burst, 1)
}

func (l *bucketLimiter) SetRate(bitsPerSecond, burst int) {
	bitsPerSecond, burst = sanitize(bitsPerSecond, burst)
	l.bucket.SetLimit(rate.Limit(bitsPerSecond))
	l.bucket.SetBurst(burst)
}

func (l *bucketLimiter) Budget(t time.Time) float64 {
	return l.bucket.TokensAt(t)
}

func (l *bucketLimiter) AllowN(t time.Time, n int) bool {
	return l.bucket.AllowN(t, n)
}
