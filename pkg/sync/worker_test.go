package sync

import (
	"context"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/noodlebreak/apache-bugzilla-fetcher/pkg/bugzilla"
	"github.com/noodlebreak/apache-bugzilla-fetcher/pkg/ingest"
	"github.com/noodlebreak/apache-bugzilla-fetcher/pkg/store"
)

type fakeFetcher struct {
	bugs    []bugzilla.Bug
	err     error
	calls   atomic.Int32
	release chan struct{}
}

func (f *fakeFetcher) FetchBugs(ctx context.Context, _ url.Values) ([]bugzilla.Bug, error) {
	f.calls.Add(1)
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.bugs, nil
}

func newTestWorker(t *testing.T, fetcher Fetcher) (*Worker, *RunStore, *store.Store) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	s := store.New(db)
	require.NoError(t, s.AutoMigrate())
	runs := NewRunStore(db)
	require.NoError(t, runs.AutoMigrate())

	cfg := &Config{Interval: time.Hour, Enabled: true, RetentionDays: 30}
	w := NewWorker(fetcher, ingest.New(s, nil), runs, cfg, nil)
	return w, runs, s
}

func fetchedBug(bzID int64) bugzilla.Bug {
	return bugzilla.Bug{
		ID:              bzID,
		Summary:         "worker test bug",
		Component:       "core",
		Product:         "Apache2",
		Severity:        "normal",
		Status:          "NEW",
		TargetMilestone: "---",
		CreatorDetail:   &bugzilla.UserDetail{Email: "reporter@apache.org", RealName: "Reporter One"},
		CreationTime:    time.Date(2017, 3, 15, 9, 0, 0, 0, time.UTC),
		IsOpen:          true,
	}
}

func TestRunOnce_Success(t *testing.T) {
	fetcher := &fakeFetcher{bugs: []bugzilla.Bug{fetchedBug(101), fetchedBug(102)}}
	w, _, s := newTestWorker(t, fetcher)

	run, err := w.RunOnce(context.Background(), TriggerScheduled)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, RunStateSucceeded, run.State)
	assert.Equal(t, 2, run.BugsFetched)
	assert.Equal(t, 2, run.BugsCreated)
	assert.Equal(t, 0, run.BugsUpdated)

	exists, err := s.BugExists(101)
	require.NoError(t, err)
	assert.True(t, exists)

	// The same pass again updates instead of creating.
	run, err = w.RunOnce(context.Background(), TriggerScheduled)
	require.NoError(t, err)
	assert.Equal(t, 0, run.BugsCreated)
	assert.Equal(t, 2, run.BugsUpdated)
}

func TestRunOnce_FetchFailureRecorded(t *testing.T) {
	fetcher := &fakeFetcher{err: &bugzilla.APIError{
		StatusCode: 503,
		Body:       `{"error":true,"message":"service unavailable"}`,
		Reason:     "missing bugs key",
	}}
	w, runs, _ := newTestWorker(t, fetcher)

	run, err := w.RunOnce(context.Background(), TriggerScheduled)
	require.Error(t, err)
	require.NotNil(t, run)
	assert.Equal(t, RunStateFailed, run.State)
	assert.Contains(t, run.LastError, "fetch bugs")
	assert.Zero(t, run.BugsFetched)

	// Exactly one run row, in terminal state.
	all, _, err := runs.List("", 10, "")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].IsTerminal())
}

func TestRunOnce_PartialSaveFailure(t *testing.T) {
	bad := fetchedBug(202)
	bad.Component = ""
	fetcher := &fakeFetcher{bugs: []bugzilla.Bug{fetchedBug(201), bad}}
	w, _, s := newTestWorker(t, fetcher)

	run, err := w.RunOnce(context.Background(), TriggerScheduled)
	require.Error(t, err)
	require.NotNil(t, run)
	assert.Equal(t, RunStateFailed, run.State)
	assert.Equal(t, 2, run.BugsFetched)
	assert.Equal(t, 1, run.BugsCreated)
	assert.Equal(t, 1, run.BugsFailed)

	// The well-formed record was still saved.
	exists, err := s.BugExists(201)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRunOnce_RejectsOverlap(t *testing.T) {
	fetcher := &fakeFetcher{release: make(chan struct{})}
	w, _, _ := newTestWorker(t, fetcher)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = w.RunOnce(context.Background(), TriggerScheduled)
	}()

	// Wait for the first run to reach the fetcher, then attempt another.
	require.Eventually(t, func() bool { return fetcher.calls.Load() > 0 },
		2*time.Second, 10*time.Millisecond)

	_, err := w.RunOnce(context.Background(), TriggerManual)
	assert.ErrorIs(t, err, ErrSyncInProgress)

	close(fetcher.release)
	<-done

	// Once the first run finishes the worker accepts runs again.
	_, err = w.RunOnce(context.Background(), TriggerManual)
	require.NoError(t, err)
}

func TestTrigger_CancelledOnShutdown(t *testing.T) {
	fetcher := &fakeFetcher{release: make(chan struct{})}
	w, runs, _ := newTestWorker(t, fetcher)
	w.cfg.RunOnStart = false

	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)
	require.Eventually(t, func() bool {
		if !w.mu.TryLock() {
			return false
		}
		defer w.mu.Unlock()
		return w.baseCtx != nil
	}, 2*time.Second, 10*time.Millisecond)

	run, err := w.Trigger()
	require.NoError(t, err)

	// Shutdown stops the in-flight manual run; the fetcher never releases.
	cancel()
	require.Eventually(t, func() bool {
		got, err := runs.Get(run.ID)
		return err == nil && got != nil && got.IsTerminal()
	}, 2*time.Second, 10*time.Millisecond)

	got, err := runs.Get(run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStateFailed, got.State)
	assert.Contains(t, got.LastError, context.Canceled.Error())
}

func TestTrigger_ReturnsRunningRun(t *testing.T) {
	fetcher := &fakeFetcher{release: make(chan struct{})}
	w, runs, _ := newTestWorker(t, fetcher)

	run, err := w.Trigger()
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, TriggerManual, run.Trigger)
	assert.Equal(t, RunStateRunning, run.State)

	// A second trigger while the first is running is rejected.
	_, err = w.Trigger()
	assert.ErrorIs(t, err, ErrSyncInProgress)

	close(fetcher.release)
	require.Eventually(t, func() bool {
		got, err := runs.Get(run.ID)
		return err == nil && got != nil && got.IsTerminal()
	}, 2*time.Second, 10*time.Millisecond)
}
