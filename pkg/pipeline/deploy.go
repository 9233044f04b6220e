package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/opensundae/opensundae/pkg/cdn"
	"github.com/opensundae/opensundae/pkg/content"
	"github.com/opensundae/opensundae/pkg/environ"
	"github.com/opensundae/opensundae/pkg/policy"
	"github.com/opensundae/opensundae/pkg/recon"
	"github.com/opensundae/opensundae/pkg/site"
	"github.com/opensundae/opensundae/pkg/stores"
)

// Deploy runs the full deployment sequence for an environment:
// validate, init, plan, apply, sync, invalidate, verify. The returned
// result is populated as far as the run got, alongside any error.
func (p *Pipeline) Deploy(ctx context.Context, cfg *environ.EnvironmentConfig, rc RunContext) (*Result, error) {
	lease, err := acquireLease(ctx, p.store, cfg.Name, p.opts.LockTTL, p.opts.Heartbeat, p.logger)
	if err != nil {
		return nil, err
	}
	defer lease.release()

	st := &runState{
		cfg:    *cfg,
		rc:     rc,
		op:     policy.OperationDeploy,
		logger: p.logger.WithEnvironment(cfg.Name),
	}
	if err := p.beginRun(ctx, st); err != nil {
		return nil, err
	}

	spanCtx, span := p.tracer.StartDeploySpan(ctx, st.run.ID, cfg.Name)
	defer span.End()

	p.metrics.RecordDeployStarted(cfg.Name)
	st.logger.Info().Str("content_root", p.opts.ContentRoot).Msg("Deployment started")
	p.event(spanCtx, st, stores.EventLevelInfo, "Deployment started")

	runErr := p.deploySequence(spanCtx, st)
	status := p.finish(spanCtx, st, span, runErr)
	return st.result(status), runErr
}

func (p *Pipeline) deploySequence(ctx context.Context, st *runState) error {
	if err := p.runStage(ctx, st, StageValidate, p.stageValidate); err != nil {
		return err
	}
	if err := p.runStage(ctx, st, StageInit, p.stageInit); err != nil {
		return err
	}
	if err := p.runStage(ctx, st, StagePlan, p.stagePlan); err != nil {
		return err
	}
	if err := p.confirmGate(ctx, st); err != nil {
		return err
	}
	if err := p.runStage(ctx, st, StageApply, p.stageApply); err != nil {
		return err
	}
	if err := p.runStage(ctx, st, StageSync, p.stageSync); err != nil {
		if isCancellation(err) {
			return err
		}
		if rbErr := p.rollbackContent(ctx, st); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}
	if len(st.touched) == 0 {
		p.skipStage(ctx, st, StageInvalidate, "no content changes")
	} else if err := p.runStage(ctx, st, StageInvalidate, p.stageInvalidate); err != nil {
		return err
	}
	return p.runStage(ctx, st, StageVerify, p.stageVerify)
}

// confirmGate holds the plan for operator approval. While the
// operator deliberates, deployment inputs are watched; an edit makes
// the plan stale and the gate rejects it.
func (p *Pipeline) confirmGate(ctx context.Context, st *runState) error {
	if st.rc.GateBypassed() {
		st.logger.Debug().Msg("Confirmation gate bypassed")
		return nil
	}
	if st.plan.IsNoop() {
		return nil
	}
	if p.opts.Confirm == nil {
		return recon.NewPermanentError("interactive confirmation is not available; pass --auto-approve or --non-interactive", nil).
			WithCode(recon.ErrCodeValidation)
	}

	watcher, err := newStalenessWatcher([]string{p.opts.ContentRoot, p.opts.RegistryPath}, st.logger)
	if err != nil {
		st.logger.Warn().Err(err).Msg("Staleness watcher unavailable; confirmation proceeds unguarded")
		watcher = nil
	}
	if watcher != nil {
		defer watcher.Close()
	}

	p.event(ctx, st, stores.EventLevelInfo, "Awaiting operator confirmation")
	ok, err := p.opts.Confirm(ctx, st.plan)
	if err != nil {
		return fmt.Errorf("confirming plan: %w", err)
	}
	if !ok {
		return ErrConfirmationDeclined
	}
	if watcher != nil && watcher.Stale() {
		return ErrPlanStale
	}
	p.event(ctx, st, stores.EventLevelInfo, "Plan confirmed")
	return nil
}

// stageValidate checks the declared catalog and the deployment inputs
// before anything touches a backend.
func (p *Pipeline) stageValidate(ctx context.Context, st *runState) (string, error) {
	declared, err := site.Declared(st.cfg)
	if err != nil {
		return "", err
	}
	if err := site.ValidateDeclared(ctx, p.schemas, declared); err != nil {
		return "", err
	}
	st.declared = declared

	if st.op == policy.OperationDeploy && !st.preview {
		if p.opts.ContentRoot == "" {
			return "", recon.NewPermanentError("content root is required for deploy", nil).
				WithCode(recon.ErrCodeValidation)
		}
		if _, err := os.Stat(p.opts.ContentRoot); err != nil {
			return "", recon.NewPermanentError(fmt.Sprintf("content root %s is not readable", p.opts.ContentRoot), err).
				WithCode(recon.ErrCodeValidation)
		}
	}

	st.logger.Info().Int("resources", len(declared)).Msg("Catalog validated")
	return "", nil
}

// stageInit verifies the state store and loads recorded bindings.
func (p *Pipeline) stageInit(ctx context.Context, st *runState) (string, error) {
	if err := p.store.HealthCheck(ctx); err != nil {
		return "", recon.NewTransientError("state store health check failed", err)
	}
	recorded, err := p.bindings.ListBindings(ctx, st.cfg.Name)
	if err != nil {
		return "", err
	}
	st.recorded = recorded
	st.logger.Info().Int("bindings", len(recorded)).Msg("State initialized")
	return "", nil
}

// stagePlan resolves bindings against live infrastructure, computes
// the change set and gates it on policy.
func (p *Pipeline) stagePlan(ctx context.Context, st *runState) (string, error) {
	if err := p.resolveBindings(ctx, st); err != nil {
		return "", err
	}

	plan, err := p.planner.BuildPlan(recon.PlanRequest{
		Environment:    st.cfg.Name,
		Declared:       st.declared,
		Resolution:     st.resolution,
		Recorded:       st.recorded,
		ProtectedIndex: site.ProtectedIndex(),
	})
	if err != nil {
		return "", err
	}
	st.plan = plan
	p.event(ctx, st, stores.EventLevelInfo, fmt.Sprintf("Plan computed: %s", plan.Summary().String()))

	return "", p.evaluatePolicies(ctx, st)
}

// stageApply converges infrastructure to the plan. A partial apply
// leaves truthful bindings behind and is never rolled back; the
// operator re-plans to continue from where it stopped.
func (p *Pipeline) stageApply(ctx context.Context, st *runState) (string, error) {
	result, err := p.applier.Apply(ctx, st.plan, st.declared)
	if result != nil {
		st.apply = result
		for _, sr := range result.Applied {
			p.metrics.RecordPlanStep(string(sr.Op), recon.KindOf(sr.Address), "applied", sr.Duration)
		}
	}
	if err != nil {
		return "", err
	}
	p.event(ctx, st, stores.EventLevelInfo,
		fmt.Sprintf("Applied %d change(s), %d unchanged", len(result.Applied), result.Skipped))
	return "", nil
}

// stageSync publishes the content tree. The deployed listing is
// snapshotted first so a mid-sync failure can roll back.
func (p *Pipeline) stageSync(ctx context.Context, st *runState) (string, error) {
	desired, err := content.ScanDir(p.opts.ContentRoot)
	if err != nil {
		return "", err
	}
	deployed, err := p.storage.List(ctx)
	if err != nil {
		return "", err
	}

	plan := content.Diff(desired, deployed)
	st.syncPlan = plan
	st.touched = plan.TouchedPaths()

	if plan.IsEmpty() {
		st.logger.Info().Msg("Content already converged")
		p.event(ctx, st, stores.EventLevelInfo, "Content already converged; nothing to sync")
		return "", nil
	}

	snap, err := content.TakeSnapshot(ctx, p.snapshots, st.cfg.Name, fmt.Sprintf("pre-sync for run %s", st.run.ID), deployed)
	if err != nil {
		return "", fmt.Errorf("taking pre-sync snapshot: %w", err)
	}
	st.snapshot = snap

	started := time.Now()
	result, err := p.syncer.Sync(ctx, plan, content.NewDirSource(p.opts.ContentRoot))
	if result != nil {
		st.sync = result
	}
	if err != nil {
		p.metrics.RecordSync("failed", time.Since(started))
		return "", err
	}
	p.metrics.RecordSync("succeeded", time.Since(started))
	p.event(ctx, st, stores.EventLevelInfo,
		fmt.Sprintf("Synced content: %d created, %d updated, %d deleted", result.Created, result.Updated, result.Deleted))
	return "", nil
}

// rollbackContent restores the pre-sync snapshot after a sync
// failure. Without a snapshot there is nothing to restore and the run
// simply fails.
func (p *Pipeline) rollbackContent(ctx context.Context, st *runState) error {
	if st.snapshot == nil {
		p.event(ctx, st, stores.EventLevelWarning, "No pre-sync snapshot recorded; content left as-is")
		return nil
	}

	st.logger.Warn().Str("snapshot_id", st.snapshot.ID).Msg("Sync failed; rolling back content")
	p.event(ctx, st, stores.EventLevelWarning, fmt.Sprintf("Sync failed; rolling back to snapshot %s", st.snapshot.ID))

	started := time.Now()
	result, err := p.syncer.Rollback(ctx, st.snapshot)
	if err != nil {
		p.metrics.RecordSync("rollback_failed", time.Since(started))
		p.event(ctx, st, stores.EventLevelError, fmt.Sprintf("Rollback to snapshot %s failed: %v", st.snapshot.ID, err))
		return fmt.Errorf("rolling back to snapshot %s: %w", st.snapshot.ID, err)
	}
	st.rolledBack = true
	if result != nil {
		st.sync = result
	}
	p.metrics.RecordSync("rolled_back", time.Since(started))
	p.event(ctx, st, stores.EventLevelInfo, fmt.Sprintf("Content rolled back to snapshot %s", st.snapshot.ID))
	return nil
}

// stageInvalidate purges changed paths from the CDN and waits for the
// purge to land. An unfinished purge degrades to a warning: the
// content converged, caches just lag.
func (p *Pipeline) stageInvalidate(ctx context.Context, st *runState) (string, error) {
	job, err := cdn.Invalidate(ctx, p.cdn, st.touched)
	if err != nil {
		return "", err
	}
	st.invalidation = job
	p.event(ctx, st, stores.EventLevelInfo,
		fmt.Sprintf("Invalidation %s submitted for %d path(s)", job.ID, len(job.Paths)))

	started := time.Now()
	status, err := cdn.PollUntilComplete(ctx, p.cdn, job, p.opts.PollTimeout, p.opts.PollInterval)
	st.pollStatus = status
	p.metrics.RecordInvalidation(string(status), time.Since(started))

	switch status {
	case cdn.PollCompleted:
		p.event(ctx, st, stores.EventLevelInfo, fmt.Sprintf("Invalidation %s completed", job.ID))
		return "", nil
	case cdn.PollTimedOut:
		if err != nil {
			// Context cancellation, not an elapsed deadline.
			return "", err
		}
		return fmt.Sprintf("invalidation %s still pending after %s; cached content may be stale until TTLs expire",
			job.ID, p.opts.PollTimeout), nil
	default:
		if err == nil {
			err = fmt.Errorf("invalidation %s failed", job.ID)
		}
		return "", err
	}
}

// stageVerify probes the site origin until it answers 200. Exhausted
// probes degrade to a warning: propagation delay is routine right
// after a deploy.
func (p *Pipeline) stageVerify(ctx context.Context, st *runState) (string, error) {
	url := p.opts.SiteURL
	if url == "" {
		url = site.SiteURL(st.cfg)
	}

	result := cdn.VerifyReachability(ctx, url, p.opts.VerifyAttempts, p.opts.VerifyBackoff)
	st.verify = result
	for _, probe := range result.Probes {
		p.metrics.RecordVerificationProbe(probe.Outcome())
	}

	if !result.Reachable {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		return fmt.Sprintf("site %s not reachable after %d probe(s)", url, result.Attempts), nil
	}
	st.logger.Info().Str("url", url).Msg("Site verified reachable")
	p.event(ctx, st, stores.EventLevelInfo, fmt.Sprintf("Site %s verified reachable", url))
	return "", nil
}
