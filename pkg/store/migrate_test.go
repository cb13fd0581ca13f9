package store

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newLockDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db
}

func TestWithMigrationLock_RunsAndReleases(t *testing.T) {
	db := newLockDB(t)

	ran := false
	err := WithMigrationLock(context.Background(), db, func() error {
		ran = true
		// The lock row exists while fn runs.
		var count int64
		require.NoError(t, db.Model(&schemaLockRow{}).Count(&count).Error)
		assert.Equal(t, int64(1), count)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)

	// Released afterwards, so a second holder acquires immediately.
	var count int64
	require.NoError(t, db.Model(&schemaLockRow{}).Count(&count).Error)
	assert.Zero(t, count)

	err = WithMigrationLock(context.Background(), db, func() error { return nil })
	require.NoError(t, err)
}

func TestWithMigrationLock_ReapsStaleHolder(t *testing.T) {
	db := newLockDB(t)
	require.NoError(t, db.AutoMigrate(&schemaLockRow{}))

	// A holder that died an hour ago must not block new acquisitions.
	stale := schemaLockRow{
		ID:       schemaLockID,
		LockedAt: time.Now().Add(-time.Hour),
		LockedBy: "crashed-replica",
	}
	require.NoError(t, db.Create(&stale).Error)

	ran := false
	err := WithMigrationLock(context.Background(), db, func() error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestWithMigrationLock_PropagatesError(t *testing.T) {
	db := newLockDB(t)

	err := WithMigrationLock(context.Background(), db, func() error {
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	// The lock is released even when fn fails.
	var count int64
	require.NoError(t, db.Model(&schemaLockRow{}).Count(&count).Error)
	assert.Zero(t, count)
}
