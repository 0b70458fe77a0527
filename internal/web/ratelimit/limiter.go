// Package ratelimit limits API requests per caller. The Redis limiter shares
// counts across instances; the token bucket serves single-instance and test
// deployments.
package ratelimit

import (
	"context"
	"strconv"
	"time"
)

// Limiter decides whether a request identified by key may proceed
type Limiter interface {
	Allow(ctx context.Context, key string) (*Decision, error)
}

// Decision is the outcome of one Allow call
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter returns the whole seconds until the window resets, at least 1
// when the request was refused
func (d *Decision) RetryAfter(now time.Time) int {
	secs := int(d.ResetAt.Sub(now).Round(time.Second) / time.Second)
	if secs < 1 && !d.Allowed {
		return 1
	}
	if secs < 0 {
		return 0
	}
	return secs
}

// UserKey is the limiter key of an authenticated caller
func UserKey(userID int64) string {
	return "user:" + strconv.FormatInt(userID, 10)
}

// IPKey is the limiter key of an anonymous caller
func IPKey(ip string) string {
	return "ip:" + ip
}
