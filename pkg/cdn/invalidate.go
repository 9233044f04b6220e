package cdn

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// PathAll is the full-purge wildcard. It subsumes every scoped path.
const PathAll = "/*"

const (
	// DefaultPollTimeout bounds how long a deploy waits for a purge to
	// propagate before proceeding with a warning.
	DefaultPollTimeout = 5 * time.Minute

	// DefaultPollInterval is the delay between status checks.
	DefaultPollInterval = 10 * time.Second
)

// Invalidate submits one cache purge covering the given paths. An empty
// path list means a full purge. Paths are normalized (leading slash,
// deduplicated, sorted) so the same change set always produces the same
// request.
func Invalidate(ctx context.Context, backend CDNBackend, paths []string) (*InvalidationJob, error) {
	if backend == nil {
		return nil, fmt.Errorf("cdn backend is required")
	}

	normalized := normalizePaths(paths)

	id, err := backend.CreateInvalidation(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("creating invalidation: %w", err)
	}

	return &InvalidationJob{
		ID:          id,
		Status:      JobPending,
		Paths:       normalized,
		RequestedAt: time.Now().UTC(),
	}, nil
}

// PollUntilComplete blocks until the job completes, fails, or the
// timeout elapses, checking status every interval. It returns within
// timeout plus one interval. A status read error counts as JobUnknown
// and polling continues; the purge may land regardless. On context
// cancellation the returned status is PollTimedOut and the error is the
// context's.
func PollUntilComplete(ctx context.Context, backend CDNBackend, job *InvalidationJob, timeout, interval time.Duration) (PollStatus, error) {
	if backend == nil {
		return PollFailed, fmt.Errorf("cdn backend is required")
	}
	if job == nil || job.ID == "" {
		return PollFailed, fmt.Errorf("invalidation job is required")
	}
	if timeout <= 0 {
		timeout = DefaultPollTimeout
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	deadline := time.Now().Add(timeout)

	for {
		status, err := backend.InvalidationStatus(ctx, job.ID)
		if err != nil {
			if ctx.Err() != nil {
				return PollTimedOut, ctx.Err()
			}
			status = JobUnknown
		}
		job.Status = status

		switch status {
		case JobCompleted:
			return PollCompleted, nil
		case JobFailed:
			return PollFailed, fmt.Errorf("invalidation %s reported failed by backend", job.ID)
		}

		if !time.Now().Before(deadline) {
			return PollTimedOut, nil
		}

		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return PollTimedOut, ctx.Err()
		}
	}
}

// normalizePaths canonicalizes a purge path list. Empty input and any
// list containing the wildcard both collapse to a full purge.
func normalizePaths(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	out := make([]string, 0, len(paths))

	for _, p := range paths {
		if p == "" {
			continue
		}
		if !strings.HasPrefix(p, "/") {
			p = "/" + p
		}
		if p == PathAll {
			return []string{PathAll}
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}

	if len(out) == 0 {
		return []string{PathAll}
	}

	sort.Strings(out)
	return out
}
