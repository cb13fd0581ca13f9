package sync

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RunStore provides database operations for sync runs.
type RunStore struct {
	db *gorm.DB
}

// NewRunStore creates a new RunStore.
func NewRunStore(db *gorm.DB) *RunStore {
	return &RunStore{db: db}
}

// AutoMigrate creates or updates the sync_runs table.
func (s *RunStore) AutoMigrate() error {
	return s.db.AutoMigrate(&SyncRun{})
}

// Begin records the start of a new run.
func (s *RunStore) Begin(trigger Trigger) (*SyncRun, error) {
	run := &SyncRun{
		ID:        uuid.New().String(),
		Trigger:   trigger,
		State:     RunStateRunning,
		StartedAt: time.Now(),
	}
	if err := s.db.Create(run).Error; err != nil {
		return nil, fmt.Errorf("begin sync run: %w", err)
	}
	return run, nil
}

// Complete marks a run as succeeded with its counts.
func (s *RunStore) Complete(runID string, counts Counts) error {
	now := time.Now()
	result := s.db.Model(&SyncRun{}).Where("id = ?", runID).Updates(map[string]any{
		"state":          RunStateSucceeded,
		"finished_at":    now,
		"bugs_fetched":   counts.Fetched,
		"bugs_created":   counts.Created,
		"bugs_updated":   counts.Updated,
		"bugs_failed":    counts.Failed,
		"links_resolved": counts.LinksResolved,
		"duration_ms":    durationSince(s.db, runID, now),
	})
	if result.Error != nil {
		return fmt.Errorf("complete sync run: %w", result.Error)
	}
	return nil
}

// Fail marks a run as failed, keeping whatever counts were reached before
// the failure.
func (s *RunStore) Fail(runID string, errMsg string, counts Counts) error {
	now := time.Now()
	result := s.db.Model(&SyncRun{}).Where("id = ?", runID).Updates(map[string]any{
		"state":          RunStateFailed,
		"finished_at":    now,
		"last_error":     errMsg,
		"bugs_fetched":   counts.Fetched,
		"bugs_created":   counts.Created,
		"bugs_updated":   counts.Updated,
		"bugs_failed":    counts.Failed,
		"links_resolved": counts.LinksResolved,
		"duration_ms":    durationSince(s.db, runID, now),
	})
	if result.Error != nil {
		return fmt.Errorf("fail sync run: %w", result.Error)
	}
	return nil
}

func durationSince(db *gorm.DB, runID string, now time.Time) int64 {
	var run SyncRun
	if err := db.Select("started_at").First(&run, "id = ?", runID).Error; err != nil {
		return 0
	}
	return now.Sub(run.StartedAt).Milliseconds()
}

// Get retrieves a run by ID. Returns nil, nil if no such run exists.
func (s *RunStore) Get(runID string) (*SyncRun, error) {
	var run SyncRun
	if err := s.db.First(&run, "id = ?", runID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get sync run: %w", err)
	}
	return &run, nil
}

// List returns paginated runs, most recent first. pageToken is the
// started_at of the last record from the previous page.
func (s *RunStore) List(state string, pageSize int, pageToken string) ([]SyncRun, string, error) {
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	query := s.db.Model(&SyncRun{}).Order("started_at DESC").Limit(pageSize + 1)
	if state != "" {
		query = query.Where("state = ?", state)
	}
	if pageToken != "" {
		t, err := time.Parse(time.RFC3339Nano, pageToken)
		if err != nil {
			return nil, "", fmt.Errorf("invalid page token: %w", err)
		}
		query = query.Where("started_at < ?", t)
	}

	var runs []SyncRun
	if err := query.Find(&runs).Error; err != nil {
		return nil, "", fmt.Errorf("list sync runs: %w", err)
	}

	var nextToken string
	if len(runs) > pageSize {
		nextToken = runs[pageSize-1].StartedAt.Format(time.RFC3339Nano)
		runs = runs[:pageSize]
	}
	return runs, nextToken, nil
}

// DeleteOlderThan removes terminal runs older than the given cutoff.
func (s *RunStore) DeleteOlderThan(cutoff time.Time) (int64, error) {
	result := s.db.Where("state IN ? AND finished_at < ?",
		[]RunState{RunStateSucceeded, RunStateFailed}, cutoff).
		Delete(&SyncRun{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete old sync runs: %w", result.Error)
	}
	return result.RowsAffected, nil
}
