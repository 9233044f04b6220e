package cdn

import (
	"context"
	"time"
)

// JobStatus is the backend's view of an invalidation job.
type JobStatus string

const (
	// JobPending means the purge has been accepted but not finished.
	JobPending JobStatus = "pending"

	// JobCompleted means the purge has propagated.
	JobCompleted JobStatus = "completed"

	// JobFailed means the backend rejected or abandoned the purge.
	JobFailed JobStatus = "failed"

	// JobUnknown means the backend could not report a status. Polling
	// continues until the deadline; an unknown job may still complete.
	JobUnknown JobStatus = "unknown"
)

// PollStatus is the outcome of waiting for an invalidation job.
type PollStatus string

const (
	// PollCompleted means the job finished within the deadline.
	PollCompleted PollStatus = "completed"

	// PollFailed means the backend reported the job as failed.
	PollFailed PollStatus = "failed"

	// PollTimedOut means the deadline elapsed first. Stale cache resolves
	// on its own once the purge lands, so callers treat this as a warning.
	PollTimedOut PollStatus = "timed_out"
)

// InvalidationJob tracks one cache purge request.
type InvalidationJob struct {
	// ID is the backend's job identifier.
	ID string `json:"id"`

	// Status is the last observed job status.
	Status JobStatus `json:"status"`

	// Paths are the normalized purge paths the job was created with.
	Paths []string `json:"paths"`

	// RequestedAt is when the purge was submitted.
	RequestedAt time.Time `json:"requested_at"`
}

// CDNBackend is the cache layer collaborator. Implementations map these
// onto the provider's invalidation API.
type CDNBackend interface {
	// CreateInvalidation submits a purge for the given paths and returns
	// the backend's job ID.
	CreateInvalidation(ctx context.Context, paths []string) (string, error)

	// InvalidationStatus reports the current status of a submitted job.
	InvalidationStatus(ctx context.Context, jobID string) (JobStatus, error)
}

// Probe records one reachability attempt against the site URL.
type Probe struct {
	// Attempt is the 1-based attempt number.
	Attempt int `json:"attempt"`

	// StatusCode is the HTTP status received, or 0 when the request
	// never got a response.
	StatusCode int `json:"status_code,omitempty"`

	// Err is the transport failure, empty when a response arrived.
	Err string `json:"err,omitempty"`

	// Duration is how long the attempt took.
	Duration time.Duration `json:"duration"`
}

// OK reports whether the probe got a 2xx response.
func (p Probe) OK() bool {
	return p.Err == "" && p.StatusCode >= 200 && p.StatusCode < 300
}

// Outcome classifies the probe for metrics: "ok", "bad_status", or
// "unreachable".
func (p Probe) Outcome() string {
	switch {
	case p.OK():
		return "ok"
	case p.StatusCode > 0:
		return "bad_status"
	default:
		return "unreachable"
	}
}

// VerifyResult is the outcome of a reachability check. Exhausting every
// attempt is a warning for the caller to surface, never a failure:
// DNS and CDN propagation delay is expected after a fresh deploy.
type VerifyResult struct {
	// URL is the probed address.
	URL string `json:"url"`

	// Reachable is true once any probe got a 2xx.
	Reachable bool `json:"reachable"`

	// Attempts is the number of probes issued.
	Attempts int `json:"attempts"`

	// Probes holds every attempt in order.
	Probes []Probe `json:"probes"`

	// Duration is the total time spent probing, including backoff.
	Duration time.Duration `json:"duration"`
}

// LastProbe returns the final attempt, or a zero Probe when none ran.
func (r *VerifyResult) LastProbe() Probe {
	if len(r.Probes) == 0 {
		return Probe{}
	}
	return r.Probes[len(r.Probes)-1]
}
