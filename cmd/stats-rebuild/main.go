// stats-rebuild re-runs the statistics aggregator over every AuditLog.
// Use after manual data fixes or when a deploy changed the aggregation rules.
//
// Usage (from backend directory):
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/stats-rebuild
package main

import (
	"context"
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/qaudit_backend/config"
	"bitbucket.org/mmdatafocus/qaudit_backend/models"
	"bitbucket.org/mmdatafocus/qaudit_backend/workflow"
)

func main() {
	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}

	logger := config.GetLogger()

	var ids []int
	if err := db.WithContext(ctx).Model(&models.AuditLog{}).
		Order("id ASC").Pluck("id", &ids).Error; err != nil {
		fmt.Fprintf(os.Stderr, "failed to list audit logs: %v\n", err)
		os.Exit(1)
	}

	exitCode := 0
	for _, id := range ids {
		stats, err := workflow.AggregateImportStats(ctx, logger, id)
		if err != nil {
			fmt.Fprintf(os.Stderr, "audit log %d: aggregation failed: %v\n", id, err)
			exitCode = 1
			continue
		}
		fmt.Printf("audit log %d: total=%d matched=%d updatedTasks=%d\n",
			id, stats.TotalRows, stats.MatchedRows, stats.UpdatedTasks)
	}
	os.Exit(exitCode)
}
