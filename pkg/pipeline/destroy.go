package pipeline

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/opensundae/opensundae/pkg/environ"
	"github.com/opensundae/opensundae/pkg/policy"
	"github.com/opensundae/opensundae/pkg/recon"
	"github.com/opensundae/opensundae/pkg/site"
	"github.com/opensundae/opensundae/pkg/stores"
)

// Destroy tears down an environment's unprotected resources in
// reverse dependency order. Protected resources and their bindings
// are kept; the plan shows them so the operator sees what survives.
func (p *Pipeline) Destroy(ctx context.Context, cfg *environ.EnvironmentConfig, rc RunContext) (*Result, error) {
	lease, err := acquireLease(ctx, p.store, cfg.Name, p.opts.LockTTL, p.opts.Heartbeat, p.logger)
	if err != nil {
		return nil, err
	}
	defer lease.release()

	st := &runState{
		cfg:    *cfg,
		rc:     rc,
		op:     policy.OperationDestroy,
		logger: p.logger.WithEnvironment(cfg.Name),
	}
	if err := p.beginRun(ctx, st); err != nil {
		return nil, err
	}

	spanCtx, span := p.tracer.StartSpan(ctx, "destroy.run",
		attribute.String("run.id", st.run.ID),
		attribute.String("environment", cfg.Name))
	defer span.End()

	p.metrics.RecordDeployStarted(cfg.Name)
	st.logger.Info().Msg("Destroy started")
	p.event(spanCtx, st, stores.EventLevelInfo, "Destroy started")

	runErr := p.destroySequence(spanCtx, st)
	status := p.finish(spanCtx, st, span, runErr)
	return st.result(status), runErr
}

func (p *Pipeline) destroySequence(ctx context.Context, st *runState) error {
	if err := p.runStage(ctx, st, StageValidate, p.stageValidate); err != nil {
		return err
	}
	if err := p.runStage(ctx, st, StageInit, p.stageInit); err != nil {
		return err
	}
	if err := p.runStage(ctx, st, StagePlan, p.stagePlanDestroy); err != nil {
		return err
	}
	if err := p.confirmGate(ctx, st); err != nil {
		return err
	}
	return p.runStage(ctx, st, StageApply, p.stageApply)
}

// stagePlanDestroy computes the teardown plan and gates it on policy.
func (p *Pipeline) stagePlanDestroy(ctx context.Context, st *runState) (string, error) {
	if err := p.resolveBindings(ctx, st); err != nil {
		return "", err
	}

	plan, err := p.planner.BuildDestroyPlan(recon.PlanRequest{
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
	p.event(ctx, st, stores.EventLevelInfo, fmt.Sprintf("Destroy plan computed: %s", plan.Summary().String()))

	return "", p.evaluatePolicies(ctx, st)
}
