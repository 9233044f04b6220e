package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensundae/opensundae/pkg/cdn"
	"github.com/opensundae/opensundae/pkg/content"
	"github.com/opensundae/opensundae/pkg/environ"
	"github.com/opensundae/opensundae/pkg/policy"
	"github.com/opensundae/opensundae/pkg/recon"
	"github.com/opensundae/opensundae/pkg/site"
	"github.com/opensundae/opensundae/pkg/stores"
	"github.com/opensundae/opensundae/pkg/telemetry"
)

// ConfirmFunc asks the operator to approve a plan. Returning false
// cancels the run.
type ConfirmFunc func(ctx context.Context, plan *recon.Plan) (bool, error)

// RunContext carries per-invocation operator choices.
type RunContext struct {
	// NonInteractive marks runs with no operator attached, such as CI.
	// The confirmation gate is skipped.
	NonInteractive bool

	// AutoApprove skips the confirmation gate on interactive runs.
	AutoApprove bool

	// User is the operator identity recorded with the run and handed
	// to policy evaluation, when known.
	User string
}

// GateBypassed reports whether the confirmation gate is skipped for
// this invocation.
func (rc RunContext) GateBypassed() bool {
	return rc.NonInteractive || rc.AutoApprove
}

// Deps are the collaborators a pipeline needs. Store, Infra, Storage
// and CDN are required; the rest default to quiet no-op instances.
type Deps struct {
	Store    stores.Store
	Infra    recon.ProvisioningBackend
	Storage  content.StorageBackend
	CDN      cdn.CDNBackend
	Archive  *content.BlobArchive
	Policies *policy.Engine
	Schemas  *site.SchemaRegistry
	Logger   *telemetry.Logger
	Metrics  *telemetry.Metrics
	Tracer   *telemetry.Tracer
}

// Options tune a pipeline. Zero values take the documented defaults.
type Options struct {
	// ContentRoot is the local directory whose tree gets published.
	ContentRoot string

	// RegistryPath is the environments file. It is watched for edits
	// while a plan awaits confirmation.
	RegistryPath string

	// SiteURL overrides the URL probed during verification. Defaults
	// to the environment's canonical site URL.
	SiteURL string

	// LockTTL and Heartbeat control the environment lease. The TTL
	// defaults to DefaultLockTTL, the heartbeat to a third of it.
	LockTTL   time.Duration
	Heartbeat time.Duration

	// Apply tunes per-step retry during the apply stage.
	Apply recon.ApplyOptions

	// PollTimeout and PollInterval bound invalidation polling.
	PollTimeout  time.Duration
	PollInterval time.Duration

	// VerifyAttempts and VerifyBackoff bound reachability probing.
	VerifyAttempts int
	VerifyBackoff  time.Duration

	// Confirm is consulted at the plan gate on interactive runs.
	Confirm ConfirmFunc

	// StageAttempts and StageBackoff control whole-stage retry for
	// stages that re-run on transient failures.
	StageAttempts int
	StageBackoff  time.Duration
}

// Pipeline wires the reconciler, content syncer, CDN and state store
// into the deploy, destroy and rollback sequences.
type Pipeline struct {
	store    stores.Store
	infra    recon.ProvisioningBackend
	storage  content.StorageBackend
	cdn      cdn.CDNBackend
	archive  *content.BlobArchive
	policies *policy.Engine
	schemas  *site.SchemaRegistry

	bindings  recon.BindingStore
	snapshots content.SnapshotStore
	resolver  *recon.Resolver
	planner   *recon.Planner
	applier   *recon.Applier
	syncer    *content.Syncer

	logger  *telemetry.Logger
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer
	opts    Options
}

// New builds a pipeline from its dependencies.
func New(deps Deps, opts Options) (*Pipeline, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("pipeline requires a state store")
	}
	if deps.Infra == nil {
		return nil, fmt.Errorf("pipeline requires a provisioning backend")
	}
	if deps.Storage == nil {
		return nil, fmt.Errorf("pipeline requires a storage backend")
	}
	if deps.CDN == nil {
		return nil, fmt.Errorf("pipeline requires a cdn backend")
	}

	logger := deps.Logger
	if logger == nil {
		logger = telemetry.NewNopLogger()
	}
	logger = logger.NewComponentLogger("pipeline")

	metrics := deps.Metrics
	if metrics == nil {
		var err error
		metrics, err = telemetry.NewMetrics(telemetry.MetricsConfig{})
		if err != nil {
			return nil, fmt.Errorf("building metrics: %w", err)
		}
	}

	tracer := deps.Tracer
	if tracer == nil {
		var err error
		tracer, err = telemetry.NewTracer(telemetry.TracingConfig{}, "sundae", "", "")
		if err != nil {
			return nil, fmt.Errorf("building tracer: %w", err)
		}
	}

	policies := deps.Policies
	if policies == nil {
		var err error
		policies, err = policy.NewEngine(logger)
		if err != nil {
			return nil, fmt.Errorf("loading builtin policies: %w", err)
		}
	}

	schemas := deps.Schemas
	if schemas == nil {
		schemas = site.NewSchemaRegistry()
	}

	if opts.LockTTL <= 0 {
		opts.LockTTL = DefaultLockTTL
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = opts.LockTTL / 3
	}
	if opts.StageAttempts <= 0 {
		opts.StageAttempts = 3
	}
	if opts.StageBackoff <= 0 {
		opts.StageBackoff = time.Second
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = cdn.DefaultPollTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = cdn.DefaultPollInterval
	}

	bindings := NewBindingStore(deps.Store)
	return &Pipeline{
		store:     deps.Store,
		infra:     deps.Infra,
		storage:   deps.Storage,
		cdn:       deps.CDN,
		archive:   deps.Archive,
		policies:  policies,
		schemas:   schemas,
		bindings:  bindings,
		snapshots: NewSnapshotStore(deps.Store),
		resolver:  recon.NewResolver(deps.Infra, bindings, logger),
		planner:   recon.NewPlanner(logger),
		applier:   recon.NewApplier(deps.Infra, bindings, logger, opts.Apply),
		syncer:    content.NewSyncer(deps.Storage, deps.Archive, logger, metrics),
		logger:    logger,
		metrics:   metrics,
		tracer:    tracer,
		opts:      opts,
	}, nil
}

// Result is the outcome of a run, shaped for JSON output. Fields are
// populated as far as the run got.
type Result struct {
	RunID        string               `json:"run_id"`
	Environment  string               `json:"environment"`
	Status       stores.RunStatus     `json:"status"`
	Plan         *recon.Plan          `json:"plan,omitempty"`
	Resolution   *recon.Resolution    `json:"resolution,omitempty"`
	Apply        *recon.ApplyResult   `json:"apply,omitempty"`
	Sync         *content.SyncResult  `json:"sync,omitempty"`
	Snapshot     *content.Snapshot    `json:"snapshot,omitempty"`
	Invalidation *cdn.InvalidationJob `json:"invalidation,omitempty"`
	PollStatus   cdn.PollStatus       `json:"poll_status,omitempty"`
	Verify       *cdn.VerifyResult    `json:"verify,omitempty"`
	Warnings     []string             `json:"warnings,omitempty"`
	Duration     time.Duration        `json:"duration"`
}

// runState accumulates what a run produces as its stages execute.
type runState struct {
	run     *stores.Run
	cfg     environ.EnvironmentConfig
	rc      RunContext
	op      string
	preview bool

	logger *telemetry.Logger

	declared     []recon.DeclaredResource
	recorded     []recon.ResourceBinding
	resolution   *recon.Resolution
	plan         *recon.Plan
	policy       *policy.Result
	apply        *recon.ApplyResult
	snapshot     *content.Snapshot
	syncPlan     *content.SyncPlan
	sync         *content.SyncResult
	touched      []string
	invalidation *cdn.InvalidationJob
	pollStatus   cdn.PollStatus
	verify       *cdn.VerifyResult

	rolledBack     bool
	rollbackTarget string
	warnings       []string

	// attempt counts executions of the stage currently running,
	// including retries. Reset at each stage boundary.
	attempt int
}

func (st *runState) result(status stores.RunStatus) *Result {
	res := &Result{
		Environment:  st.cfg.Name,
		Status:       status,
		Plan:         st.plan,
		Resolution:   st.resolution,
		Apply:        st.apply,
		Sync:         st.sync,
		Snapshot:     st.snapshot,
		Invalidation: st.invalidation,
		PollStatus:   st.pollStatus,
		Verify:       st.verify,
		Warnings:     st.warnings,
	}
	if st.run != nil {
		res.RunID = st.run.ID
		res.Duration = time.Since(st.run.StartedAt)
	}
	return res
}

// runMetadata is the JSON blob stored on the run row.
type runMetadata struct {
	Operation      string `json:"operation"`
	ContentRoot    string `json:"content_root,omitempty"`
	SnapshotID     string `json:"snapshot_id,omitempty"`
	User           string `json:"user,omitempty"`
	NonInteractive bool   `json:"non_interactive"`
	AutoApprove    bool   `json:"auto_approve"`
}

// beginRun inserts the run row and flips it to running.
func (p *Pipeline) beginRun(ctx context.Context, st *runState) error {
	meta, err := json.Marshal(runMetadata{
		Operation:      st.op,
		ContentRoot:    p.opts.ContentRoot,
		SnapshotID:     st.rollbackTarget,
		User:           st.rc.User,
		NonInteractive: st.rc.NonInteractive,
		AutoApprove:    st.rc.AutoApprove,
	})
	if err != nil {
		return fmt.Errorf("encoding run metadata: %w", err)
	}

	now := time.Now().UTC()
	run := &stores.Run{
		ID:          uuid.New().String(),
		Environment: st.cfg.Name,
		Status:      stores.RunStatusPending,
		StartedAt:   now,
		Metadata:    string(meta),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := p.store.CreateRun(ctx, run); err != nil {
		return fmt.Errorf("recording run: %w", err)
	}
	if err := p.store.UpdateRunStatus(ctx, run.ID, stores.RunStatusRunning, nil); err != nil {
		return fmt.Errorf("starting run: %w", err)
	}
	run.Status = stores.RunStatusRunning

	st.run = run
	st.logger = p.logger.WithRunID(run.ID).WithEnvironment(st.cfg.Name)
	return nil
}

// writeCtx returns a context for bookkeeping writes. When the run's
// context was cancelled the terminal status still has to land in the
// store, so a short-deadline background context substitutes.
func writeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx.Err() == nil {
		return ctx, func() {}
	}
	return context.WithTimeout(context.Background(), 5*time.Second)
}

// event appends to the run's event log. Event writes are best-effort;
// a logging failure never fails a deployment.
func (p *Pipeline) event(ctx context.Context, st *runState, level stores.EventLevel, message string) {
	wctx, cancel := writeCtx(ctx)
	defer cancel()

	ev := &stores.Event{
		Environment: &st.cfg.Name,
		Level:       level,
		Message:     message,
	}
	if st.run != nil {
		ev.RunID = &st.run.ID
	}
	if err := p.store.AppendEvent(wctx, ev); err != nil {
		st.logger.Warn().Err(err).Msg("Event append failed")
	}
}

// recordStage upserts the run's stage row.
func (p *Pipeline) recordStage(ctx context.Context, st *runState, stage Stage, status stores.StageStatus, started *time.Time, stageErr error) {
	wctx, cancel := writeCtx(ctx)
	defer cancel()

	rec := &stores.StageRecord{
		RunID:     st.run.ID,
		Stage:     string(stage),
		Status:    status,
		Attempts:  st.attempt,
		StartedAt: started,
	}
	switch status {
	case stores.StageStatusSucceeded, stores.StageStatusWarned, stores.StageStatusFailed, stores.StageStatusSkipped:
		now := time.Now().UTC()
		rec.CompletedAt = &now
	}
	if stageErr != nil {
		msg := stageErr.Error()
		rec.Error = &msg
	}
	if err := p.store.UpsertRunStage(wctx, rec); err != nil {
		st.logger.Warn().Str("stage", string(stage)).Err(err).Msg("Stage record write failed")
	}
}

// skipStage records a stage that had no work to do.
func (p *Pipeline) skipStage(ctx context.Context, st *runState, stage Stage, reason string) {
	st.attempt = 1
	st.logger.Info().Str("stage", string(stage)).Str("reason", reason).Msg("Stage skipped")
	p.recordStage(ctx, st, stage, stores.StageStatusSkipped, nil, nil)
	p.event(ctx, st, stores.EventLevelInfo, fmt.Sprintf("Stage %s skipped: %s", stage, reason))
}

// stageFunc is one stage body. A non-empty warning marks the stage
// warned without failing the run.
type stageFunc func(ctx context.Context, st *runState) (warning string, err error)

// runStage executes one stage under its failure traits: stage record
// persistence, transient retry, warning demotion, metrics and spans.
// Cancellation is observed here, at the stage boundary, never inside
// a half-finished stage body.
func (p *Pipeline) runStage(ctx context.Context, st *runState, stage Stage, fn stageFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	traits := TraitsOf(stage)
	started := time.Now().UTC()
	logger := st.logger.WithStage(string(stage))
	st.attempt = 1

	if err := p.store.UpdateRunStage(ctx, st.run.ID, string(stage)); err != nil {
		logger.Warn().Err(err).Msg("Run stage update failed")
	}
	p.recordStage(ctx, st, stage, stores.StageStatusRunning, &started, nil)
	logger.Info().Msg("Stage started")

	spanCtx, span := p.tracer.StartStageSpan(ctx, st.run.ID, string(stage))
	defer span.End()

	body := fn
	if traits.Retry == RetryTransient {
		body = p.retryTransient(fn, logger)
	}
	warning, err := body(spanCtx, st)

	// Failures after the site already converged degrade to warnings,
	// unless the operator is the one who stopped the run.
	if err != nil && traits.Disposition == DispositionWarn && !isCancellation(err) {
		warning = err.Error()
		err = nil
	}

	elapsed := time.Since(started)
	switch {
	case err != nil:
		p.metrics.RecordStage(string(stage), elapsed, true)
		p.metrics.RecordError(errorClass(err), errorCode(err))
		telemetry.RecordError(span, err)
		p.recordStage(ctx, st, stage, stores.StageStatusFailed, &started, err)
		p.event(ctx, st, stores.EventLevelError, fmt.Sprintf("Stage %s failed: %v", stage, err))
		logger.Error().Err(err).Dur("duration", elapsed).Msg("Stage failed")
		return err
	case warning != "":
		st.warnings = append(st.warnings, fmt.Sprintf("%s: %s", stage, warning))
		p.metrics.RecordStage(string(stage), elapsed, false)
		telemetry.AddEvent(span, "warning", attribute.String("message", warning))
		telemetry.RecordSuccess(span)
		p.recordStage(ctx, st, stage, stores.StageStatusWarned, &started, nil)
		p.event(ctx, st, stores.EventLevelWarning, fmt.Sprintf("Stage %s completed with warning: %s", stage, warning))
		logger.Warn().Str("warning", warning).Dur("duration", elapsed).Msg("Stage completed with warning")
		return nil
	default:
		p.metrics.RecordStage(string(stage), elapsed, false)
		telemetry.RecordSuccess(span)
		p.recordStage(ctx, st, stage, stores.StageStatusSucceeded, &started, nil)
		logger.Info().Dur("duration", elapsed).Msg("Stage completed")
		return nil
	}
}

// retryTransient wraps a stage body with whole-stage retry. Only
// transient and throttled failures re-run; throttled waits twice as
// long before the next attempt.
func (p *Pipeline) retryTransient(fn stageFunc, logger *telemetry.Logger) stageFunc {
	return func(ctx context.Context, st *runState) (string, error) {
		backoff := p.opts.StageBackoff
		var warning string
		var err error
		for attempt := 1; attempt <= p.opts.StageAttempts; attempt++ {
			st.attempt = attempt
			warning, err = fn(ctx, st)
			if err == nil || !recon.IsRetryable(err) {
				return warning, err
			}
			if attempt == p.opts.StageAttempts {
				break
			}
			wait := backoff
			if recon.IsThrottled(err) {
				wait *= 2
			}
			logger.Warn().Err(err).Int("attempt", attempt).Dur("backoff", wait).Msg("Stage attempt failed; retrying")
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(wait):
			}
			backoff *= 2
		}
		return warning, err
	}
}

// evaluatePolicies gates a plan on policy. Warnings surface in the
// event log; violations deny the plan.
func (p *Pipeline) evaluatePolicies(ctx context.Context, st *runState) error {
	res, err := p.policies.EvaluatePlan(ctx, &policy.Input{
		Plan:        st.plan,
		Environment: &st.cfg,
		Context: &policy.Context{
			Environment:    st.cfg.Name,
			Operation:      st.op,
			User:           st.rc.User,
			NonInteractive: st.rc.NonInteractive,
			Timestamp:      time.Now().UTC(),
		},
	})
	if err != nil {
		return fmt.Errorf("evaluating policies: %w", err)
	}
	st.policy = res

	for _, w := range res.Warnings {
		st.logger.Warn().Str("policy", w.Policy).Str("address", w.Address).Msg(w.Message)
		p.event(ctx, st, stores.EventLevelWarning, fmt.Sprintf("Policy %s: %s", w.Policy, w.Message))
	}
	if !res.Allowed {
		return &PolicyDeniedError{Violations: res.Violations}
	}
	return nil
}

// resolveBindings verifies recorded bindings against live objects and
// re-reads the store afterward, since resolution may have adopted or
// repaired bindings.
func (p *Pipeline) resolveBindings(ctx context.Context, st *runState) error {
	resolution, ambiguities, err := p.resolver.Resolve(ctx, st.cfg.Name, st.declared)
	if err != nil {
		return err
	}
	if len(ambiguities) > 0 {
		errs := make([]error, 0, len(ambiguities))
		for i := range ambiguities {
			errs = append(errs, &ambiguities[i])
		}
		return errors.Join(errs...)
	}
	st.resolution = resolution

	recorded, err := p.bindings.ListBindings(ctx, st.cfg.Name)
	if err != nil {
		return err
	}
	st.recorded = recorded
	return nil
}

// finish records the run's terminal status and closing telemetry, and
// returns the status it settled on.
func (p *Pipeline) finish(ctx context.Context, st *runState, span trace.Span, runErr error) stores.RunStatus {
	var status stores.RunStatus
	var errMsg *string
	switch {
	case runErr == nil:
		status = stores.RunStatusSucceeded
	case st.rolledBack:
		status = stores.RunStatusRolledBack
		msg := runErr.Error()
		errMsg = &msg
	case isCancellation(runErr):
		status = stores.RunStatusCancelled
		msg := runErr.Error()
		errMsg = &msg
	default:
		status = stores.RunStatusFailed
		msg := runErr.Error()
		errMsg = &msg
	}

	wctx, cancel := writeCtx(ctx)
	defer cancel()
	if err := p.store.UpdateRunStatus(wctx, st.run.ID, status, errMsg); err != nil {
		st.logger.Error().Err(err).Msg("Terminal run status write failed")
	}

	elapsed := time.Since(st.run.StartedAt)
	p.metrics.RecordDeployCompleted(st.cfg.Name, string(status), elapsed)

	if runErr != nil {
		telemetry.RecordError(span, runErr)
		p.event(ctx, st, stores.EventLevelError, fmt.Sprintf("Run %s: %v", status, runErr))
		st.logger.Error().Err(runErr).Str("status", string(status)).Dur("duration", elapsed).Msg("Run finished")
		return status
	}

	telemetry.RecordSuccess(span)
	msg := fmt.Sprintf("Run %s", status)
	if n := len(st.warnings); n > 0 {
		msg = fmt.Sprintf("Run %s with %d warning(s)", status, n)
	}
	p.event(ctx, st, stores.EventLevelInfo, msg)
	st.logger.Info().Str("status", string(status)).Int("warnings", len(st.warnings)).Dur("duration", elapsed).Msg("Run finished")
	return status
}
