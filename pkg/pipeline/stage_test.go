package pipeline

import "testing"

func TestTraitsOf(t *testing.T) {
	tests := []struct {
		stage Stage
		want  Traits
	}{
		{StageValidate, Traits{Retry: RetryNone, Disposition: DispositionFatal}},
		{StageInit, Traits{Retry: RetryTransient, Disposition: DispositionFatal}},
		{StagePlan, Traits{Retry: RetryTransient, Disposition: DispositionFatal}},
		{StageApply, Traits{Retry: RetryNone, Disposition: DispositionFatal}},
		{StageSync, Traits{Retry: RetryNone, Disposition: DispositionRollback}},
		{StageInvalidate, Traits{Retry: RetryPoll, Disposition: DispositionWarn}},
		{StageVerify, Traits{Retry: RetryProbe, Disposition: DispositionWarn}},
		{Stage("bogus"), Traits{Retry: RetryNone, Disposition: DispositionFatal}},
	}
	for _, tt := range tests {
		if got := TraitsOf(tt.stage); got != tt.want {
			t.Errorf("TraitsOf(%s) = %+v, want %+v", tt.stage, got, tt.want)
		}
	}
}

func TestOrder(t *testing.T) {
	order := Order()
	if len(order) != 7 {
		t.Fatalf("Expected 7 stages, got %d", len(order))
	}
	if order[0] != StageValidate {
		t.Errorf("Expected the sequence to start with %s, got %s", StageValidate, order[0])
	}
	if order[len(order)-1] != StageVerify {
		t.Errorf("Expected the sequence to end with %s, got %s", StageVerify, order[len(order)-1])
	}

	seen := make(map[Stage]bool, len(order))
	for _, s := range order {
		if seen[s] {
			t.Errorf("Stage %s appears twice", s)
		}
		seen[s] = true
		if _, ok := stageTraits[s]; !ok {
			t.Errorf("Stage %s has no traits entry", s)
		}
	}
}
