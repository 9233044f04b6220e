package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opensundae/opensundae/pkg/stores"
	"github.com/opensundae/opensundae/pkg/telemetry"
)

// DefaultLockTTL is how long an environment lease lives without a
// heartbeat renewal. A crashed run frees its environment within one
// TTL.
const DefaultLockTTL = 60 * time.Second

// lease is an exclusive claim on one environment, renewed by a
// background heartbeat until released.
type lease struct {
	store       stores.Store
	environment string
	holder      string
	ttl         time.Duration
	logger      *telemetry.Logger

	stop context.CancelFunc
	done chan struct{}
	once sync.Once
}

// acquireLease claims the environment or reports the holder that got
// there first. On success a heartbeat goroutine renews the claim at
// the given interval until release is called.
func acquireLease(ctx context.Context, store stores.Store, environment string, ttl, heartbeat time.Duration, logger *telemetry.Logger) (*lease, error) {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	if heartbeat <= 0 {
		heartbeat = ttl / 3
	}

	holder := uuid.New().String()
	lock, err := store.AcquireLock(ctx, environment, holder, ttl)
	if err != nil {
		return nil, fmt.Errorf("acquiring environment lock: %w", err)
	}
	if lock == nil {
		runErr := &RunInProgressError{Environment: environment}
		if current, lookErr := store.GetLock(ctx, environment); lookErr == nil && current != nil {
			runErr.Holder = current.Holder
			runErr.ExpiresAt = current.ExpiresAt
		}
		return nil, runErr
	}

	hbCtx, stop := context.WithCancel(context.Background())
	l := &lease{
		store:       store,
		environment: environment,
		holder:      holder,
		ttl:         ttl,
		logger:      logger,
		stop:        stop,
		done:        make(chan struct{}),
	}
	go l.heartbeat(hbCtx, heartbeat)

	logger.Debug().
		Str("environment", environment).
		Str("holder", holder).
		Dur("ttl", ttl).
		Msg("Environment lease acquired")
	return l, nil
}

// heartbeat renews the lease until the lease is released. Renewal
// failures are logged and retried on the next tick; if the process
// dies the lease expiring on its own is the recovery path.
func (l *lease) heartbeat(ctx context.Context, every time.Duration) {
	defer close(l.done)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := l.store.RenewLock(ctx, l.environment, l.holder, l.ttl); err != nil && ctx.Err() == nil {
				l.logger.Warn().
					Str("environment", l.environment).
					Err(err).
					Msg("Lease renewal failed")
			}
		}
	}
}

// release stops the heartbeat and drops the lock. Safe to call more
// than once, and safe after the run's context is cancelled: the
// delete runs on its own short-deadline context so a cancelled run
// still unlocks its environment.
func (l *lease) release() {
	l.once.Do(func() {
		l.stop()
		<-l.done

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.store.ReleaseLock(ctx, l.environment, l.holder); err != nil {
			l.logger.Warn().
				Str("environment", l.environment).
				Err(err).
				Msg("Lease release failed; the lock will expire on its own")
			return
		}
		l.logger.Debug().
			Str("environment", l.environment).
			Msg("Environment lease released")
	})
}
