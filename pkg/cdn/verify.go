package cdn

import (
	"context"
	"io"
	"net/http"
	"time"
)

const (
	// DefaultVerifyAttempts is the probe budget for a fresh deploy.
	DefaultVerifyAttempts = 5

	// DefaultVerifyBackoff is the initial delay between probes. The
	// delay doubles per attempt.
	DefaultVerifyBackoff = 3 * time.Second

	// probeTimeout bounds a single request.
	probeTimeout = 10 * time.Second
)

// VerifyReachability probes url until a probe gets a 2xx or the attempt
// budget runs out, backing off twice as long after each failure. It
// never returns an error: an unreachable site after the final attempt is
// a warning in the result, because propagation delay routinely outlives
// the probe budget. Cancelling the context stops probing early.
func VerifyReachability(ctx context.Context, url string, maxAttempts int, baseBackoff time.Duration) *VerifyResult {
	if maxAttempts <= 0 {
		maxAttempts = DefaultVerifyAttempts
	}
	if baseBackoff <= 0 {
		baseBackoff = DefaultVerifyBackoff
	}

	result := &VerifyResult{URL: url}
	client := &http.Client{Timeout: probeTimeout}
	start := time.Now()
	defer func() {
		result.Duration = time.Since(start)
	}()

	backoff := baseBackoff
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		probe := probeOnce(ctx, client, url, attempt)
		result.Probes = append(result.Probes, probe)
		result.Attempts = attempt

		if probe.OK() {
			result.Reachable = true
			return result
		}
		if ctx.Err() != nil || attempt == maxAttempts {
			return result
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return result
		}
		backoff *= 2
	}

	return result
}

func probeOnce(ctx context.Context, client *http.Client, url string, attempt int) (probe Probe) {
	probe.Attempt = attempt
	started := time.Now()
	defer func() {
		probe.Duration = time.Since(started)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		probe.Err = err.Error()
		return probe
	}

	resp, err := client.Do(req)
	if err != nil {
		probe.Err = err.Error()
		return probe
	}
	defer resp.Body.Close()

	// Drain a bounded amount so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	probe.StatusCode = resp.StatusCode
	return probe
}
