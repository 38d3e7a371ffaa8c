package river

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/riverqueue/river"

	"github.com/claravin/vinflow/internal/domain"
)

// TransitionWorker processes applied-transition jobs from the River queue.
// For now it logs the transition; future versions will dispatch to
// webhooks, notification fan-out, or downstream marketplace systems.
type TransitionWorker struct {
	river.WorkerDefaults[TransitionJobArgs]
}

// Work processes a single transition job.
func (w *TransitionWorker) Work(ctx context.Context, job *river.Job[TransitionJobArgs]) error {
	slog.InfoContext(ctx, "processing transition",
		"event_id", job.Args.EventID,
		"tenant_id", job.Args.TenantID,
		"entity_id", job.Args.EntityID,
		"transition", job.Args.FromStatus+" -> "+job.Args.ToStatus,
		"job_id", job.ID,
		"attempt", job.Attempt,
	)
	return nil
}

// OrphanSweepArgs triggers one full ledger consistency sweep.
type OrphanSweepArgs struct{}

// Kind returns the unique job type identifier used by River's job routing.
func (OrphanSweepArgs) Kind() string { return "ledger.orphan_sweep" }

// OrphanSweepWorker walks every tenant's ledger looking for events whose
// entity is missing or belongs to a different tenant, and for entity
// histories that no longer replay into a valid chain. Such rows cannot be
// produced by the write path, so every finding is a storage-level anomaly
// worth an operator's attention.
type OrphanSweepWorker struct {
	river.WorkerDefaults[OrphanSweepArgs]

	checker domain.IntegrityChecker
}

// NewOrphanSweepWorker creates a sweep worker over the given checker.
func NewOrphanSweepWorker(checker domain.IntegrityChecker) *OrphanSweepWorker {
	return &OrphanSweepWorker{checker: checker}
}

// Work runs one sweep across all tenants.
func (w *OrphanSweepWorker) Work(ctx context.Context, job *river.Job[OrphanSweepArgs]) error {
	tenants, err := w.checker.TenantIDs(ctx)
	if err != nil {
		return fmt.Errorf("listing tenants: %w", err)
	}

	total := 0
	for _, tenantID := range tenants {
		orphans, err := w.checker.DetectOrphans(ctx, tenantID)
		if err != nil {
			return fmt.Errorf("sweeping tenant %s: %w", tenantID, err)
		}
		for _, o := range orphans {
			slog.WarnContext(ctx, "orphaned ledger event",
				"tenant_id", tenantID,
				"event_id", o.Event.ID,
				"entity_id", o.Event.EntityID,
				"reason", o.Reason,
			)
		}
		total += len(orphans)

		broken, err := w.checker.DetectBrokenChains(ctx, tenantID)
		if err != nil {
			return fmt.Errorf("checking chains for tenant %s: %w", tenantID, err)
		}
		for _, v := range broken {
			slog.WarnContext(ctx, "broken ledger chain",
				"tenant_id", tenantID,
				"entity_id", v.EntityID,
				"detail", v.Detail,
			)
		}
		total += len(broken)
	}

	slog.InfoContext(ctx, "ledger sweep complete",
		"tenants", len(tenants),
		"violations", total,
		"job_id", job.ID,
	)
	return nil
}
