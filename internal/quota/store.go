// Package quota implements the shared monthly usage counters that back
// anonymous rate limiting. Counters are keyed by identity and calendar
// month; the backing store is Redis in multi-instance deployments, with an
// in-process fallback for local development.
package quota

import (
	"context"
	"fmt"
	"time"
)

// keyPrefix namespaces all counter keys in the shared store.
const keyPrefix = "rate_limit:"

// graceTTL is added on top of the period boundary when setting key expiry.
// The counter only has to survive until the period rolls over; the grace
// window covers clock skew between instances.
const graceTTL = 48 * time.Hour

// Decision is the outcome of one authorization attempt against a counter.
type Decision struct {
	// Allowed reports whether the request may proceed.
	Allowed bool
	// Remaining is the number of requests left in the period after this
	// decision. Zero when the request was denied.
	Remaining int
	// ResetAt is the instant the counter rolls over to a fresh period.
	ResetAt time.Time
}

// Store is a monthly usage counter. IncrementIfAllowed must be atomic:
// under concurrent calls for the same identity, at most limit calls may
// ever be allowed within one period.
type Store interface {
	// IncrementIfAllowed consumes one unit for the identity if the period
	// counter is below limit, and reports the outcome. The check and the
	// increment are a single atomic step.
	IncrementIfAllowed(ctx context.Context, identity string, limit int) (Decision, error)
	// Refund returns one previously consumed unit, clamped at zero.
	Refund(ctx context.Context, identity string) error
}

// periodKey returns the store key for an identity in the month containing
// now. The month is not zero-padded ("2026-8"), matching the established
// key format so counters survive a deploy mid-month.
func periodKey(identity string, now time.Time) string {
	now = now.UTC()
	return fmt.Sprintf("%s%s:%d-%d", keyPrefix, identity, now.Year(), int(now.Month()))
}

// periodEnd returns the first instant of the month after now, in UTC.
// Counters logically reset at this boundary.
func periodEnd(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
}
