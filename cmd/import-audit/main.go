// import-audit runs the reconciliation workflow for uploaded audit files
// from the command line, without going through the HTTP queue.
//
// Usage (from backend directory):
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/import-audit [auditLogId]
//
// With no argument every AuditLog still in Uploaded status is processed.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"bitbucket.org/mmdatafocus/qaudit_backend/config"
	"bitbucket.org/mmdatafocus/qaudit_backend/models"
	"bitbucket.org/mmdatafocus/qaudit_backend/utils"
	"bitbucket.org/mmdatafocus/qaudit_backend/workflow"
)

func main() {
	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	models.MigrateTable()

	logger := config.GetLogger()

	var ids []int
	if len(os.Args) > 1 {
		id, err := strconv.Atoi(os.Args[1])
		if err != nil || id <= 0 {
			fmt.Fprintf(os.Stderr, "invalid audit log id %q\n", os.Args[1])
			os.Exit(2)
		}
		ids = append(ids, id)
	} else {
		pending, err := models.GetPendingAuditLogs(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to list pending audit logs: %v\n", err)
			os.Exit(1)
		}
		for _, auditLog := range pending {
			ids = append(ids, auditLog.ID)
		}
		if len(ids) == 0 {
			fmt.Println("no pending audit logs")
			return
		}
	}

	exitCode := 0
	for _, id := range ids {
		summary, err := workflow.ProcessAuditImportWorkflow(ctx, logger, id)
		if err != nil {
			fmt.Fprintf(os.Stderr, "audit log %d: import failed: %v\n", id, err)
			exitCode = 1
			continue
		}
		line, _ := utils.MarshalToJSON(summary)
		fmt.Println(line)
		if len(summary.FailedRows) > 0 {
			exitCode = 1
		}
	}
	os.Exit(exitCode)
}
