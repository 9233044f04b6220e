package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/opensundae/opensundae/pkg/content"
	"github.com/opensundae/opensundae/pkg/environ"
	"github.com/opensundae/opensundae/pkg/policy"
	"github.com/opensundae/opensundae/pkg/recon"
	"github.com/opensundae/opensundae/pkg/stores"
)

// Rollback restores an environment's content from a snapshot, then
// invalidates and verifies like a deploy. An empty snapshot ID
// selects the latest snapshot. Infrastructure is never touched;
// rollback is a content operation.
func (p *Pipeline) Rollback(ctx context.Context, cfg *environ.EnvironmentConfig, rc RunContext, snapshotID string) (*Result, error) {
	if p.archive == nil {
		return nil, recon.NewPermanentError("rollback requires a blob archive; configure archiving before deploying", nil).
			WithCode(recon.ErrCodeValidation)
	}

	lease, err := acquireLease(ctx, p.store, cfg.Name, p.opts.LockTTL, p.opts.Heartbeat, p.logger)
	if err != nil {
		return nil, err
	}
	defer lease.release()

	st := &runState{
		cfg:            *cfg,
		rc:             rc,
		op:             policy.OperationRollback,
		rollbackTarget: snapshotID,
		logger:         p.logger.WithEnvironment(cfg.Name),
	}
	if err := p.beginRun(ctx, st); err != nil {
		return nil, err
	}

	spanCtx, span := p.tracer.StartSpan(ctx, "rollback.run",
		attribute.String("run.id", st.run.ID),
		attribute.String("environment", cfg.Name),
		attribute.String("snapshot.id", snapshotID))
	defer span.End()

	p.metrics.RecordDeployStarted(cfg.Name)
	st.logger.Info().Str("snapshot_id", snapshotID).Msg("Rollback started")
	p.event(spanCtx, st, stores.EventLevelInfo, "Rollback started")

	runErr := p.rollbackSequence(spanCtx, st)
	status := p.finish(spanCtx, st, span, runErr)
	return st.result(status), runErr
}

func (p *Pipeline) rollbackSequence(ctx context.Context, st *runState) error {
	if err := p.runStage(ctx, st, StageSync, p.stageRestore); err != nil {
		return err
	}
	if len(st.touched) == 0 {
		p.skipStage(ctx, st, StageInvalidate, "content already matched the snapshot")
	} else if err := p.runStage(ctx, st, StageInvalidate, p.stageInvalidate); err != nil {
		return err
	}
	return p.runStage(ctx, st, StageVerify, p.stageVerify)
}

// stageRestore replays a snapshot's content from the blob archive.
func (p *Pipeline) stageRestore(ctx context.Context, st *runState) (string, error) {
	snap, err := content.SnapshotForRollback(ctx, p.snapshots, st.cfg.Name, st.rollbackTarget)
	if err != nil {
		return "", err
	}
	st.snapshot = snap

	st.logger.Info().Str("snapshot_id", snap.ID).Time("taken", snap.CreatedAt).Msg("Restoring snapshot")
	p.event(ctx, st, stores.EventLevelInfo,
		fmt.Sprintf("Restoring snapshot %s from %s", snap.ID, snap.CreatedAt.UTC().Format(time.RFC3339)))

	started := time.Now()
	result, err := p.syncer.Rollback(ctx, snap)
	if err != nil {
		p.metrics.RecordSync("rollback_failed", time.Since(started))
		return "", err
	}
	st.sync = result
	st.touched = result.Paths
	p.metrics.RecordSync("rolled_back", time.Since(started))
	p.event(ctx, st, stores.EventLevelInfo,
		fmt.Sprintf("Snapshot %s restored: %d created, %d updated, %d deleted", snap.ID, result.Created, result.Updated, result.Deleted))
	return "", nil
}
