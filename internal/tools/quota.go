package tools

import (
	"context"
	"log/slog"
	"time"
)

// UsageCounter is the slice of the persistence layer the quota gate needs:
// an atomic per-(day, capability) counter increment.
type UsageCounter interface {
	IncrementCapabilityUsage(ctx context.Context, day string, capability string) (int, error)
}

// Quota gates daily usage of rate-limited capabilities. Capabilities without
// a configured limit are always allowed.
type Quota struct {
	counter UsageCounter
	limits  map[Capability]int
	logger  *slog.Logger
}

// NewQuota builds a quota gate from configured per-capability daily limits.
func NewQuota(counter UsageCounter, limits map[Capability]int, logger *slog.Logger) *Quota {
	if logger == nil {
		logger = slog.Default()
	}
	return &Quota{
		counter: counter,
		limits:  limits,
		logger:  logger.With("component", "quota"),
	}
}

// Allow consumes one unit of today's quota for the capability and reports
// whether it is still within its daily limit. Counter failures are logged
// and treated as allowed: quota accounting is best-effort and must never
// block the response path.
func (q *Quota) Allow(ctx context.Context, c Capability) bool {
	limit, limited := q.limits[c]
	if !limited {
		return true
	}

	day := time.Now().UTC().Format("2006-01-02")
	count, err := q.counter.IncrementCapabilityUsage(ctx, day, string(c))
	if err != nil {
		q.logger.WarnContext(ctx, "Failed to update capability usage, allowing", "capability", c, "error", err)
		return true
	}

	if count > limit {
		q.logger.InfoContext(ctx, "Daily quota exhausted, dropping capability", "capability", c, "count", count, "limit", limit)
		return false
	}
	return true
}

// Filter removes capabilities whose daily quota is exhausted, preserving
// order. Callers are not told which capabilities were dropped.
func (q *Quota) Filter(ctx context.Context, caps []Capability) []Capability {
	allowed := caps[:0:0]
	for _, c := range caps {
		if q.Allow(ctx, c) {
			allowed = append(allowed, c)
		}
	}
	return allowed
}
