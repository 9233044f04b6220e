package cdn

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func TestVerifyReachability_ImmediateSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	result := VerifyReachability(context.Background(), server.URL, 3, time.Millisecond)

	if !result.Reachable {
		t.Fatal("Expected site to be reachable")
	}
	if result.Attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", result.Attempts)
	}
	if got := result.LastProbe(); got.StatusCode != http.StatusOK || !got.OK() {
		t.Errorf("Expected 200 probe, got %+v", got)
	}
	if result.Duration <= 0 {
		t.Error("Expected duration to be recorded")
	}
}

func TestVerifyReachability_EventualSuccess(t *testing.T) {
	var mu sync.Mutex
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		hits++
		n := hits
		mu.Unlock()
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	result := VerifyReachability(context.Background(), server.URL, 5, time.Millisecond)

	if !result.Reachable {
		t.Fatal("Expected site to become reachable")
	}
	if result.Attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", result.Attempts)
	}

	outcomes := make([]string, 0, len(result.Probes))
	for _, p := range result.Probes {
		outcomes = append(outcomes, p.Outcome())
	}
	want := []string{"bad_status", "bad_status", "ok"}
	for i := range want {
		if outcomes[i] != want[i] {
			t.Errorf("Probe %d: expected outcome %s, got %s", i+1, want[i], outcomes[i])
		}
	}
}

func TestVerifyReachability_ExhaustedIsWarningNotError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	result := VerifyReachability(context.Background(), server.URL, 3, time.Millisecond)

	if result.Reachable {
		t.Fatal("Expected site to stay unreachable")
	}
	if result.Attempts != 3 {
		t.Errorf("Expected full attempt budget of 3, got %d", result.Attempts)
	}
	if got := result.LastProbe(); got.StatusCode != http.StatusInternalServerError {
		t.Errorf("Expected final probe status 500, got %d", got.StatusCode)
	}
	if got := result.LastProbe().Outcome(); got != "bad_status" {
		t.Errorf("Expected outcome bad_status, got %s", got)
	}
}

func TestVerifyReachability_ConnectionFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	url := server.URL
	server.Close()

	result := VerifyReachability(context.Background(), url, 2, time.Millisecond)

	if result.Reachable {
		t.Fatal("Expected closed server to be unreachable")
	}
	if result.Attempts != 2 {
		t.Errorf("Expected 2 attempts, got %d", result.Attempts)
	}
	for _, p := range result.Probes {
		if p.Err == "" {
			t.Errorf("Probe %d: expected a transport error", p.Attempt)
		}
		if p.StatusCode != 0 {
			t.Errorf("Probe %d: expected no status code, got %d", p.Attempt, p.StatusCode)
		}
		if p.Outcome() != "unreachable" {
			t.Errorf("Probe %d: expected outcome unreachable, got %s", p.Attempt, p.Outcome())
		}
	}
}

func TestVerifyReachability_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := VerifyReachability(ctx, server.URL, 5, time.Second)

	if result.Reachable {
		t.Fatal("Expected cancelled verification to report unreachable")
	}
	if result.Attempts != 1 {
		t.Errorf("Expected probing to stop after 1 attempt, got %d", result.Attempts)
	}
}

func TestVerifyResult_LastProbeEmpty(t *testing.T) {
	result := &VerifyResult{}
	if got := result.LastProbe(); got.Attempt != 0 || got.StatusCode != 0 {
		t.Errorf("Expected zero probe, got %+v", got)
	}
}

func TestProbe_Outcome(t *testing.T) {
	tests := []struct {
		name  string
		probe Probe
		want  string
	}{
		{"success", Probe{StatusCode: 200}, "ok"},
		{"redirect family is not ok", Probe{StatusCode: 301}, "bad_status"},
		{"server error", Probe{StatusCode: 503}, "bad_status"},
		{"no response", Probe{Err: "connection refused"}, "unreachable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.probe.Outcome(); got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}
