package store

import (
	"context"
	"fmt"
	"hash/crc32"
	"os"
	"time"

	"gorm.io/gorm"
)

// schemaLockRow serializes schema migrations across replicas on databases
// without advisory locks. A single well-known row acts as the mutex.
type schemaLockRow struct {
	ID       string    `gorm:"primaryKey;column:id"`
	LockedAt time.Time `gorm:"column:locked_at"`
	LockedBy string    `gorm:"column:locked_by"`
}

func (schemaLockRow) TableName() string { return "schema_lock" }

const schemaLockID = "schema"

// WithMigrationLock runs fn while holding a database-wide migration lock,
// so several replicas starting at once do not run AutoMigrate concurrently.
// Postgres gets an advisory lock; sqlite and mysql fall back to a lock row
// with stale-holder cleanup.
func WithMigrationLock(ctx context.Context, db *gorm.DB, fn func() error) error {
	if db.Dialector.Name() == "postgres" {
		return withAdvisoryLock(ctx, db, fn)
	}
	return withLockRow(ctx, db, fn)
}

func withAdvisoryLock(ctx context.Context, db *gorm.DB, fn func() error) error {
	lockID := int64(crc32.ChecksumIEEE([]byte("bugzilla-mirror-migration")))
	if err := db.WithContext(ctx).Exec("SELECT pg_advisory_lock(?)", lockID).Error; err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		_ = db.Exec("SELECT pg_advisory_unlock(?)", lockID).Error
	}()
	return fn()
}

func withLockRow(ctx context.Context, db *gorm.DB, fn func() error) error {
	if err := db.WithContext(ctx).AutoMigrate(&schemaLockRow{}); err != nil {
		return fmt.Errorf("prepare migration lock table: %w", err)
	}

	holder, _ := os.Hostname()
	if holder == "" {
		holder = "unknown"
	}

	const (
		attempts = 30
		backoff  = time.Second
		staleAge = 5 * time.Minute
	)

	var lastErr error
	for i := 0; i < attempts; i++ {
		// A holder that crashed leaves its row behind; reap it once it ages out.
		db.WithContext(ctx).
			Where("id = ? AND locked_at < ?", schemaLockID, time.Now().Add(-staleAge)).
			Delete(&schemaLockRow{})

		row := schemaLockRow{ID: schemaLockID, LockedAt: time.Now(), LockedBy: holder}
		if err := db.WithContext(ctx).Create(&row).Error; err == nil {
			defer func() {
				db.Where("id = ?", schemaLockID).Delete(&schemaLockRow{})
			}()
			return fn()
		} else {
			lastErr = err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("acquire migration lock after %d attempts: %w", attempts, lastErr)
}
