package pipeline

// Stage identifies one phase of a deployment run. Stages execute in
// declaration order; a run's current stage is persisted so an operator
// can see where a failed run stopped.
type Stage string

const (
	StageValidate   Stage = "validate"
	StageInit       Stage = "init"
	StagePlan       Stage = "plan"
	StageApply      Stage = "apply"
	StageSync       Stage = "sync"
	StageInvalidate Stage = "invalidate"
	StageVerify     Stage = "verify"
)

// Retry says how a stage's work is re-attempted when it fails.
type Retry string

const (
	// RetryNone runs the stage exactly once. Validation failures are
	// deterministic and apply steps carry their own per-step retry.
	RetryNone Retry = "none"

	// RetryTransient re-runs the whole stage with backoff as long as
	// the error is classified transient or throttled.
	RetryTransient Retry = "transient"

	// RetryPoll waits on an asynchronous job with a deadline instead of
	// re-running the stage body.
	RetryPoll Retry = "poll"

	// RetryProbe re-probes with backoff until a budget of attempts is
	// spent.
	RetryProbe Retry = "probe"
)

// Disposition says what a stage failure does to the run.
type Disposition string

const (
	// DispositionFatal stops the run and marks it failed.
	DispositionFatal Disposition = "fatal"

	// DispositionRollback stops the run and restores content from the
	// pre-sync snapshot before marking it rolled back.
	DispositionRollback Disposition = "rollback"

	// DispositionWarn records a warning and lets the run complete.
	DispositionWarn Disposition = "warn"
)

// Traits describes how a stage behaves under failure.
type Traits struct {
	Retry       Retry
	Disposition Disposition
}

var stageTraits = map[Stage]Traits{
	StageValidate:   {Retry: RetryNone, Disposition: DispositionFatal},
	StageInit:       {Retry: RetryTransient, Disposition: DispositionFatal},
	StagePlan:       {Retry: RetryTransient, Disposition: DispositionFatal},
	StageApply:      {Retry: RetryNone, Disposition: DispositionFatal},
	StageSync:       {Retry: RetryNone, Disposition: DispositionRollback},
	StageInvalidate: {Retry: RetryPoll, Disposition: DispositionWarn},
	StageVerify:     {Retry: RetryProbe, Disposition: DispositionWarn},
}

// TraitsOf returns the failure behavior for a stage. Unknown stages
// fail fatally without retry.
func TraitsOf(stage Stage) Traits {
	if t, ok := stageTraits[stage]; ok {
		return t
	}
	return Traits{Retry: RetryNone, Disposition: DispositionFatal}
}

// Order returns the deploy stage sequence. Destroy and rollback runs
// use subsets of it.
func Order() []Stage {
	return []Stage{
		StageValidate,
		StageInit,
		StagePlan,
		StageApply,
		StageSync,
		StageInvalidate,
		StageVerify,
	}
}
