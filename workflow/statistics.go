package workflow

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/qaudit_backend/config"
	"bitbucket.org/mmdatafocus/qaudit_backend/models"
	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const statsCacheTTL = 10 * time.Minute

func statsLockKey(auditId int) string {
	return fmt.Sprintf("auditStats:%d", auditId)
}

// StatsSnapshotKey is the redis key of the cached stats snapshot for one
// AuditLog. Written after every aggregation pass; readers fall back to the
// persisted columns when it is absent.
func StatsSnapshotKey(auditId int) string {
	return statsLockKey(auditId) + ":snapshot"
}

// AggregateImportStats recomputes importStats for one AuditLog as a pure
// aggregation over its AuditRecords and persists the result. It runs after
// every batch and after every manual action, so the stored stats are always
// a derived view, never hand-maintained counters.
//
// Passes for the same AuditLog are serialized (redislock when redis is
// configured, MySQL advisory lock otherwise); different AuditLogs never
// contend.
func AggregateImportStats(ctx context.Context, logger *logrus.Logger, auditId int) (*models.ImportStats, error) {
	db := config.GetDB()

	var stats *models.ImportStats
	run := func(tx *gorm.DB) error {
		computed, err := computeImportStats(ctx, tx, auditId)
		if err != nil {
			return err
		}
		if err := persistImportStats(ctx, tx, auditId, computed); err != nil {
			return err
		}
		stats = computed
		return nil
	}

	var err error
	if locker := config.GetRedisLock(); locker != nil {
		err = withRedisStatsLock(ctx, locker, auditId, func() error { return run(db) })
	} else {
		err = withAdvisoryStatsLock(ctx, db, auditId, run)
	}
	if err != nil {
		config.LogError(logger, "statistics.go", "AggregateImportStats", "Aggregating import stats", auditId, err)
		return nil, err
	}

	// Cached snapshot for cheap polling; DB remains the source of truth.
	_ = config.SetRedisObject(StatsSnapshotKey(auditId), stats, statsCacheTTL)

	logger.WithFields(logrus.Fields{
		"auditId":      auditId,
		"totalRows":    stats.TotalRows,
		"matchedRows":  stats.MatchedRows,
		"updatedTasks": stats.UpdatedTasks,
	}).Debug("import stats aggregated")
	return stats, nil
}

func withRedisStatsLock(ctx context.Context, locker *redislock.Client, auditId int, fn func() error) error {
	lock, err := locker.Obtain(ctx, statsLockKey(auditId), 30*time.Second, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(250*time.Millisecond), 40),
	})
	if err != nil {
		return err
	}
	defer lock.Release(ctx)
	return fn()
}

// withAdvisoryStatsLock serializes aggregation per AuditLog using MySQL
// advisory locks. GET_LOCK is connection-scoped, so the whole pass must run
// on one pinned connection.
func withAdvisoryStatsLock(ctx context.Context, db *gorm.DB, auditId int, fn func(tx *gorm.DB) error) error {
	return db.WithContext(ctx).Connection(func(tx *gorm.DB) error {
		lockName := statsLockKey(auditId)
		var ok int
		if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
			return err
		}
		if ok != 1 {
			return fmt.Errorf("could not acquire stats lock for audit_id=%d", auditId)
		}
		defer func() {
			var released int
			_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&released).Error
		}()
		return fn(tx)
	})
}

func computeImportStats(ctx context.Context, tx *gorm.DB, auditId int) (*models.ImportStats, error) {
	var stats models.ImportStats

	type counts struct {
		TotalRows    int
		MatchedRows  int
		UpdatedTasks int
	}
	var c counts
	sql := `
SELECT
	COUNT(*) AS total_rows,
	COALESCE(SUM(is_matched), 0) AS matched_rows,
	COUNT(DISTINCT CASE WHEN status <> 'Ignored' THEN linked_task_id END) AS updated_tasks
FROM audit_records
WHERE audit_id = ?
`
	if err := tx.WithContext(ctx).Raw(sql, auditId).Scan(&c).Error; err != nil {
		return nil, err
	}
	stats.TotalRows = c.TotalRows
	stats.MatchedRows = c.MatchedRows
	stats.UpdatedTasks = c.UpdatedTasks
	return &stats, nil
}

func persistImportStats(ctx context.Context, tx *gorm.DB, auditId int, stats *models.ImportStats) error {
	updates := map[string]interface{}{
		"stats_total_rows":    stats.TotalRows,
		"stats_matched_rows":  stats.MatchedRows,
		"stats_updated_tasks": stats.UpdatedTasks,
	}
	if err := tx.WithContext(ctx).Model(&models.AuditLog{}).
		Where("id = ?", auditId).
		Updates(updates).Error; err != nil {
		return err
	}

	// Status is monotonic: Uploaded -> Imported on the first completed
	// aggregation, never back.
	return tx.WithContext(ctx).Model(&models.AuditLog{}).
		Where("id = ? AND status = ?", auditId, models.AuditLogStatusUploaded).
		Update("status", models.AuditLogStatusImported).Error
}
