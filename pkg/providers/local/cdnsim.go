package local

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opensundae/opensundae/pkg/cdn"
	"github.com/opensundae/opensundae/pkg/telemetry"
)

// simJob is one recorded invalidation with its poll count.
type simJob struct {
	job   cdn.InvalidationJob
	polls int
}

// CDN simulates an asynchronous invalidation API. A submitted purge
// stays pending until it has been polled settleAfterPolls times, which
// makes the poll loop in development runs behave like a real
// distribution: accepted, pending for a while, then done.
type CDN struct {
	mu               sync.Mutex
	settleAfterPolls int
	jobs             map[string]*simJob
	order            []string
	logger           *telemetry.Logger
}

// NewCDN creates a simulated CDN whose jobs complete on the Nth status
// poll. settleAfterPolls <= 0 completes jobs on the first poll.
func NewCDN(settleAfterPolls int, logger *telemetry.Logger) *CDN {
	if logger == nil {
		logger = telemetry.NewNopLogger()
	}
	return &CDN{
		settleAfterPolls: settleAfterPolls,
		jobs:             make(map[string]*simJob),
		logger:           logger.NewComponentLogger("local-cdn"),
	}
}

// CreateInvalidation records a purge and returns its job ID.
func (c *CDN) CreateInvalidation(ctx context.Context, paths []string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(paths) == 0 {
		return "", fmt.Errorf("at least one purge path is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	id := "inv-" + uuid.New().String()
	c.jobs[id] = &simJob{
		job: cdn.InvalidationJob{
			ID:          id,
			Status:      cdn.JobPending,
			Paths:       append([]string(nil), paths...),
			RequestedAt: time.Now().UTC(),
		},
	}
	c.order = append(c.order, id)

	c.logger.Info().
		Str("job_id", id).
		Int("paths", len(paths)).
		Msg("Simulated invalidation submitted")
	return id, nil
}

// InvalidationStatus reports a job's status, settling it once it has
// been polled enough times.
func (c *CDN) InvalidationStatus(ctx context.Context, jobID string) (cdn.JobStatus, error) {
	if err := ctx.Err(); err != nil {
		return cdn.JobUnknown, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	sj, ok := c.jobs[jobID]
	if !ok {
		return cdn.JobUnknown, fmt.Errorf("unknown invalidation job %s", jobID)
	}

	sj.polls++
	if sj.polls >= c.settleAfterPolls {
		sj.job.Status = cdn.JobCompleted
	}
	return sj.job.Status, nil
}

// Jobs returns every recorded invalidation in submission order.
func (c *CDN) Jobs() []cdn.InvalidationJob {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]cdn.InvalidationJob, 0, len(c.order))
	for _, id := range c.order {
		job := c.jobs[id].job
		job.Paths = append([]string(nil), job.Paths...)
		out = append(out, job)
	}
	return out
}
