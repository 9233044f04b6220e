package pipeline

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"github.com/opensundae/opensundae/pkg/content"
	"github.com/opensundae/opensundae/pkg/environ"
	"github.com/opensundae/opensundae/pkg/policy"
	"github.com/opensundae/opensundae/pkg/recon"
)

// Preview is the result of a plan-only invocation. Nothing is applied
// or synced; the only writes are binding adoptions and repairs
// discovered during resolution.
type Preview struct {
	Environment string            `json:"environment"`
	Plan        *recon.Plan       `json:"plan"`
	Resolution  *recon.Resolution `json:"resolution,omitempty"`
	Policy      *policy.Result    `json:"policy,omitempty"`
	SyncPlan    *content.SyncPlan `json:"sync_plan,omitempty"`
}

// Plan computes what a deploy would change without applying anything.
// The environment lease is held while planning, since resolution may
// write adopted or repaired bindings. When policy denies the plan,
// the preview is still returned alongside the error so the operator
// can see what was rejected and why.
func (p *Pipeline) Plan(ctx context.Context, cfg *environ.EnvironmentConfig, rc RunContext) (*Preview, error) {
	lease, err := acquireLease(ctx, p.store, cfg.Name, p.opts.LockTTL, p.opts.Heartbeat, p.logger)
	if err != nil {
		return nil, err
	}
	defer lease.release()

	st := &runState{
		cfg:     *cfg,
		rc:      rc,
		op:      policy.OperationDeploy,
		preview: true,
		logger:  p.logger.WithEnvironment(cfg.Name),
	}

	if _, err := p.stageValidate(ctx, st); err != nil {
		return nil, err
	}
	if _, err := p.stageInit(ctx, st); err != nil {
		return nil, err
	}
	if _, err := p.stagePlan(ctx, st); err != nil {
		var denied *PolicyDeniedError
		if errors.As(err, &denied) && st.plan != nil {
			return p.previewFromState(st), err
		}
		return nil, err
	}

	if p.opts.ContentRoot != "" {
		switch _, statErr := os.Stat(p.opts.ContentRoot); {
		case errors.Is(statErr, fs.ErrNotExist):
			// Deploy's validate stage requires the root; a preview does not.
			st.logger.Debug().Str("content_root", p.opts.ContentRoot).Msg("Content root absent; skipping content diff")
		case statErr != nil:
			return nil, statErr
		default:
			desired, err := content.ScanDir(p.opts.ContentRoot)
			if err != nil {
				return nil, err
			}
			deployed, err := p.storage.List(ctx)
			if err != nil {
				return nil, err
			}
			st.syncPlan = content.Diff(desired, deployed)
		}
	}

	return p.previewFromState(st), nil
}

func (p *Pipeline) previewFromState(st *runState) *Preview {
	return &Preview{
		Environment: st.cfg.Name,
		Plan:        st.plan,
		Resolution:  st.resolution,
		Policy:      st.policy,
		SyncPlan:    st.syncPlan,
	}
}
