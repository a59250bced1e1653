// Package pipeline sequences the reconciliation stages behind a single
// exclusive lock: geocode verification, promotion, then the downstream push.
// Only one pipeline instance may run against a database at a time.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/gofrs/flock"

	"icemaker/internal/config"
	"icemaker/internal/geocode"
	"icemaker/internal/logging"
	"icemaker/internal/promoter"
	"icemaker/internal/push"
	"icemaker/internal/store"
)

// ErrAlreadyRunning reports that another pipeline instance holds the lock.
// Callers fail fast rather than queue behind a running instance.
var ErrAlreadyRunning = errors.New("another icemaker pipeline instance is already running")

// Stats aggregates per-stage results from one pipeline pass.
type Stats struct {
	Verify  geocode.Stats
	Promote promoter.Stats
	Push    push.Stats
	Pushed  bool
}

// Options select which stages a pass performs.
type Options struct {
	// SkipPush stops after promotion. Verification and promotion always run.
	SkipPush bool
	// PushDryRun plans the downstream writes and reports them without
	// applying anything.
	PushDryRun bool
}

// Runner owns the stage objects and the instance lock.
type Runner struct {
	cfg      *config.Config
	store    *store.Store
	verifier *geocode.Verifier
	promoter *promoter.Promoter
	pusher   *push.Pusher
	logger   *slog.Logger

	lockPath string
	lock     *flock.Flock
}

// NewRunner wires the pipeline stages. pusher may be nil when no downstream
// consumer is configured; the push stage is then skipped.
func NewRunner(cfg *config.Config, st *store.Store, verifier *geocode.Verifier, p *promoter.Promoter, pusher *push.Pusher, logger *slog.Logger) (*Runner, error) {
	if cfg == nil || st == nil || verifier == nil || p == nil {
		return nil, errors.New("runner requires config, store, verifier, and promoter")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := filepath.Join(cfg.Paths.LockDir, "icemaker.lock")
	return &Runner{
		cfg:      cfg,
		store:    st,
		verifier: verifier,
		promoter: p,
		pusher:   pusher,
		logger:   logging.NewComponentLogger(logger, "pipeline"),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// LockPath returns the lock file guarding this runner.
func (r *Runner) LockPath() string {
	return r.lockPath
}

// Run executes one full pipeline pass under the instance lock.
func (r *Runner) Run(ctx context.Context, opts Options) (Stats, error) {
	var stats Stats
	release, err := r.acquire()
	if err != nil {
		return stats, err
	}
	defer release()

	r.logger.Info("pipeline pass starting",
		logging.String(logging.FieldEventType, "pipeline_start"),
		logging.String("lock", r.lockPath))

	stats.Verify, err = r.verifier.Run(logging.WithStage(ctx, "verify"))
	if err != nil {
		return stats, fmt.Errorf("verify stage: %w", err)
	}
	stats.Promote, err = r.promoter.Run(logging.WithStage(ctx, "promote"))
	if err != nil {
		return stats, fmt.Errorf("promote stage: %w", err)
	}

	if opts.SkipPush || r.pusher == nil {
		r.logger.Info("pipeline pass complete",
			logging.String(logging.FieldEventType, "pipeline_complete"),
			slog.Bool("pushed", false))
		return stats, nil
	}

	pushCtx := logging.WithStage(ctx, "push")
	plan, err := r.pusher.BuildPlan(pushCtx)
	if err != nil {
		return stats, fmt.Errorf("push stage: %w", err)
	}
	if opts.PushDryRun {
		stats.Push = PlanStats(plan)
		r.logger.Info("pipeline pass complete (push dry run)",
			logging.String(logging.FieldEventType, "pipeline_complete"),
			slog.Int("planned_writes", len(plan.Ops)))
		return stats, nil
	}
	stats.Push, err = r.pusher.Apply(pushCtx, plan)
	if err != nil {
		return stats, fmt.Errorf("push stage: %w", err)
	}
	stats.Pushed = true
	r.logger.Info("pipeline pass complete",
		logging.String(logging.FieldEventType, "pipeline_complete"),
		slog.Bool("pushed", true))
	return stats, nil
}

// Verify runs only the geocode verification stage under the lock.
func (r *Runner) Verify(ctx context.Context) (geocode.Stats, error) {
	release, err := r.acquire()
	if err != nil {
		return geocode.Stats{}, err
	}
	defer release()
	return r.verifier.Run(logging.WithStage(ctx, "verify"))
}

// Promote runs only the promotion stage under the lock.
func (r *Runner) Promote(ctx context.Context) (promoter.Stats, error) {
	release, err := r.acquire()
	if err != nil {
		return promoter.Stats{}, err
	}
	defer release()
	return r.promoter.Run(logging.WithStage(ctx, "promote"))
}

// PushDownstream runs only the push stage under the lock. With dryRun the
// plan is summarized without being applied.
func (r *Runner) PushDownstream(ctx context.Context, dryRun bool) (push.Stats, error) {
	if r.pusher == nil {
		return push.Stats{}, errors.New("no downstream consumer configured")
	}
	release, err := r.acquire()
	if err != nil {
		return push.Stats{}, err
	}
	defer release()

	ctx = logging.WithStage(ctx, "push")
	plan, err := r.pusher.BuildPlan(ctx)
	if err != nil {
		return push.Stats{}, err
	}
	if dryRun {
		return PlanStats(plan), nil
	}
	return r.pusher.Apply(ctx, plan)
}

// Repair resets failed candidates to pending so the next verification pass
// retries them. With no ids, every failed candidate is reset.
func (r *Runner) Repair(ctx context.Context, ids ...int64) (int64, error) {
	release, err := r.acquire()
	if err != nil {
		return 0, err
	}
	defer release()

	count, err := r.store.ResetFailedCandidates(ctx, ids...)
	if err != nil {
		return 0, err
	}
	r.logger.Info("failed candidates reset", slog.Int64("count", count))
	return count, nil
}

func (r *Runner) acquire() (func(), error) {
	ok, err := r.lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", r.lockPath, err)
	}
	if !ok {
		return nil, ErrAlreadyRunning
	}
	return func() { _ = r.lock.Unlock() }, nil
}

// PlanStats summarizes a push plan the way Apply would have, without writes.
func PlanStats(plan *push.Plan) push.Stats {
	stats := push.Stats{SkippedNoZip: plan.SkippedNoZip}
	for _, op := range plan.Ops {
		if op.Insert {
			stats.Inserted++
			continue
		}
		stats.Updated++
		if op.NameKept {
			stats.Aliased++
		}
	}
	return stats
}
