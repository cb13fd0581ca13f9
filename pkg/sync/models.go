// Package sync runs the periodic Bugzilla synchronization job and records
// each pass in the database.
package sync

import (
	"time"
)

// RunState represents the lifecycle state of a sync run.
type RunState string

const (
	RunStateRunning   RunState = "running"
	RunStateSucceeded RunState = "succeeded"
	RunStateFailed    RunState = "failed"
)

// Trigger records what started a sync run.
type Trigger string

const (
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
)

// SyncRun is the GORM model for one synchronization pass.
type SyncRun struct {
	ID            string     `gorm:"primaryKey;column:id;type:varchar(36)"`
	Trigger       Trigger    `gorm:"column:trigger;size:16;not null"`
	State         RunState   `gorm:"column:state;index;size:16;not null;default:running"`
	StartedAt     time.Time  `gorm:"column:started_at;index;not null"`
	FinishedAt    *time.Time `gorm:"column:finished_at"`
	BugsFetched   int        `gorm:"column:bugs_fetched"`
	BugsCreated   int        `gorm:"column:bugs_created"`
	BugsUpdated   int        `gorm:"column:bugs_updated"`
	BugsFailed    int        `gorm:"column:bugs_failed"`
	LinksResolved int64      `gorm:"column:links_resolved"`
	LastError     string     `gorm:"column:last_error;type:text"`
	DurationMs    int64      `gorm:"column:duration_ms"`
}

// TableName returns the GORM table name.
func (SyncRun) TableName() string { return "sync_runs" }

// IsTerminal returns true if the run has finished.
func (r *SyncRun) IsTerminal() bool {
	switch r.State {
	case RunStateSucceeded, RunStateFailed:
		return true
	}
	return false
}

// Counts holds the outcome numbers of one pass.
type Counts struct {
	Fetched       int
	Created       int
	Updated       int
	Failed        int
	LinksResolved int64
}
