package internal

import "context"

// RateLimiter controls bandwidth usage
type RateLimiter interface {
	Wait(ctx context.Context, n int) error
	Rate() int64
}

// ProgressReporter receives byte counts while a video streams to disk
type ProgressReporter interface {
	Add(n int64)
	Finish()
}
