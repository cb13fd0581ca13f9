package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	gosync "sync"
	"time"

	"github.com/noodlebreak/apache-bugzilla-fetcher/pkg/bugzilla"
	"github.com/noodlebreak/apache-bugzilla-fetcher/pkg/ingest"
)

// ErrSyncInProgress is returned when a run is requested while another run
// holds the worker.
var ErrSyncInProgress = errors.New("a sync run is already in progress")

// Fetcher is the slice of the Bugzilla client the worker needs.
type Fetcher interface {
	FetchBugs(ctx context.Context, params url.Values) ([]bugzilla.Bug, error)
}

// Worker runs the fetch/save/reconcile cycle on a fixed cadence and records
// every pass as a SyncRun.
type Worker struct {
	fetcher  Fetcher
	ingester *ingest.Ingester
	runs     *RunStore
	cfg      *Config
	logger   *slog.Logger

	mu gosync.Mutex
	// baseCtx is the context Run was started with; manual triggers inherit
	// it so shutdown cancels them too. Guarded by mu.
	baseCtx context.Context
}

// NewWorker creates a Worker.
func NewWorker(fetcher Fetcher, ingester *ingest.Ingester, runs *RunStore, cfg *Config, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		fetcher:  fetcher,
		ingester: ingester,
		runs:     runs,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run starts the scheduled loop. It blocks until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	w.mu.Lock()
	w.baseCtx = ctx
	w.mu.Unlock()

	if !w.cfg.Enabled {
		w.logger.Info("sync worker disabled")
		return
	}

	w.logger.Info("sync worker starting",
		"interval", w.cfg.Interval.String(),
		"runOnStart", w.cfg.RunOnStart)

	if w.cfg.RunOnStart {
		w.scheduledRun(ctx)
	}

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	cleanup := time.NewTicker(1 * time.Hour)
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("sync worker stopped")
			return
		case <-ticker.C:
			w.scheduledRun(ctx)
		case <-cleanup.C:
			if w.cfg.RetentionDays > 0 {
				cutoff := time.Now().AddDate(0, 0, -w.cfg.RetentionDays)
				deleted, err := w.runs.DeleteOlderThan(cutoff)
				if err != nil {
					w.logger.Error("failed to delete old sync runs", "error", err)
				} else if deleted > 0 {
					w.logger.Info("deleted old sync runs", "count", deleted)
				}
			}
		}
	}
}

func (w *Worker) scheduledRun(ctx context.Context) {
	run, err := w.RunOnce(ctx, TriggerScheduled)
	if err != nil {
		if errors.Is(err, ErrSyncInProgress) {
			w.logger.Warn("skipping scheduled sync, previous run still in progress")
			return
		}
		id := ""
		if run != nil {
			id = run.ID
		}
		w.logger.Error("scheduled sync failed", "runId", id, "error", err)
	}
}

// RunOnce performs a single fetch/save/reconcile pass and records it.
// Returns ErrSyncInProgress when another run holds the worker.
func (w *Worker) RunOnce(ctx context.Context, trigger Trigger) (*SyncRun, error) {
	if !w.mu.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer w.mu.Unlock()

	run, err := w.runs.Begin(trigger)
	if err != nil {
		return nil, err
	}

	counts, err := w.execute(ctx)
	if err != nil {
		if failErr := w.runs.Fail(run.ID, err.Error(), counts); failErr != nil {
			w.logger.Error("failed to mark sync run as failed", "runId", run.ID, "error", failErr)
		}
		return w.reload(run), err
	}

	if err := w.runs.Complete(run.ID, counts); err != nil {
		w.logger.Error("failed to mark sync run as complete", "runId", run.ID, "error", err)
	}

	w.logger.Info("sync run completed",
		"runId", run.ID,
		"trigger", trigger,
		"fetched", counts.Fetched,
		"created", counts.Created,
		"updated", counts.Updated,
		"failed", counts.Failed,
		"linksResolved", counts.LinksResolved)

	return w.reload(run), nil
}

// Trigger starts a manual run in the background and returns its record
// immediately. The run finishes (and its row is finalized) asynchronously.
func (w *Worker) Trigger() (*SyncRun, error) {
	if !w.mu.TryLock() {
		return nil, ErrSyncInProgress
	}

	runCtx := w.baseCtx
	if runCtx == nil {
		runCtx = context.Background()
	}

	run, err := w.runs.Begin(TriggerManual)
	if err != nil {
		w.mu.Unlock()
		return nil, err
	}

	go func() {
		defer w.mu.Unlock()

		counts, err := w.execute(runCtx)
		if err != nil {
			w.logger.Error("manual sync failed", "runId", run.ID, "error", err)
			if failErr := w.runs.Fail(run.ID, err.Error(), counts); failErr != nil {
				w.logger.Error("failed to mark sync run as failed", "runId", run.ID, "error", failErr)
			}
			return
		}
		if err := w.runs.Complete(run.ID, counts); err != nil {
			w.logger.Error("failed to mark sync run as complete", "runId", run.ID, "error", err)
		}
		w.logger.Info("manual sync completed",
			"runId", run.ID,
			"fetched", counts.Fetched,
			"created", counts.Created,
			"updated", counts.Updated,
			"failed", counts.Failed)
	}()

	return run, nil
}

func (w *Worker) execute(ctx context.Context) (Counts, error) {
	var counts Counts

	bugs, err := w.fetcher.FetchBugs(ctx, nil)
	if err != nil {
		var apiErr *bugzilla.APIError
		if errors.As(err, &apiErr) {
			w.logger.Error("bugzilla fetch failed",
				"status", apiErr.StatusCode,
				"reason", apiErr.Reason,
				"body", apiErr.Body)
		}
		return counts, fmt.Errorf("fetch bugs: %w", err)
	}
	counts.Fetched = len(bugs)

	result, saveErr := w.ingester.SaveBugs(ctx, bugs)
	counts.Created = result.Created
	counts.Updated = result.Updated
	counts.Failed = result.Failed

	resolved, recErr := w.ingester.ReconcileLinks(ctx)
	counts.LinksResolved = resolved

	if saveErr != nil {
		return counts, fmt.Errorf("save bugs: %w", saveErr)
	}
	if recErr != nil {
		return counts, fmt.Errorf("reconcile links: %w", recErr)
	}
	return counts, nil
}

func (w *Worker) reload(run *SyncRun) *SyncRun {
	if reloaded, err := w.runs.Get(run.ID); err == nil && reloaded != nil {
		return reloaded
	}
	return run
}
