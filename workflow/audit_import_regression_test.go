package workflow_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/qaudit_backend/config"
	"bitbucket.org/mmdatafocus/qaudit_backend/models"
	"bitbucket.org/mmdatafocus/qaudit_backend/workflow"
)

func TestAuditImportReimportAndIgnoreKeepStatsConsistent(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	// Wire env for config.Connect* helpers.
	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "qaudit_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	db := config.GetDB()
	if db == nil {
		t.Fatalf("db is nil after ConnectDatabaseWithRetry")
	}
	logger := config.GetLogger()

	// Candidates: SL-A1 -> one task, SL-A2 -> one issue, SL-A3 -> two tasks
	// (ambiguous).
	opened := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	taskA1 := models.Task{Slid: "SL-A1", Subject: "Line check A1", OpenedAt: opened}
	taskA3a := models.Task{Slid: "SL-A3", Subject: "Line check A3 (first)", OpenedAt: opened}
	taskA3b := models.Task{Slid: "SL-A3", Subject: "Line check A3 (second)", OpenedAt: opened}
	for _, task := range []*models.Task{&taskA1, &taskA3a, &taskA3b} {
		if err := db.Create(task).Error; err != nil {
			t.Fatalf("seed task: %v", err)
		}
	}
	issueA2 := models.CustomerIssue{Slid: "SL-A2", Category: "Connectivity", ReportedAt: opened}
	if err := db.Create(&issueA2).Error; err != nil {
		t.Fatalf("seed issue: %v", err)
	}

	// Stored audit file (local path; the reader takes the extension from the
	// original name).
	csvPath := filepath.Join(t.TempDir(), "audit.csv")
	csvContent := strings.Join([]string{
		"SLID,Interview Date,Evaluation Score,Customer Feedback",
		"SL-A1,2026-03-05,90,all good",
		"SL-A2,2026-03-06,40,line down twice",
		"SL-A3,2026-03-07,70,slow evenings",
	}, "\n")
	if err := os.WriteFile(csvPath, []byte(csvContent), 0o644); err != nil {
		t.Fatalf("write audit file: %v", err)
	}

	auditLog, err := models.CreateAuditLog(ctx, &models.NewAuditLog{
		Filename:     "audit.csv",
		OriginalName: "audit.csv",
		Path:         csvPath,
		UploadedBy:   "test@local",
		AuditType:    models.AuditTypeDvoc,
	})
	if err != nil {
		t.Fatalf("CreateAuditLog: %v", err)
	}

	// 1) First import: A1 matches its task, A2 its issue, A3 stays Pending
	// (ambiguous).
	summary, err := workflow.ProcessAuditImportWorkflow(ctx, logger, auditLog.ID)
	if err != nil {
		t.Fatalf("first import: %v", err)
	}
	if summary.TotalRows != 3 || summary.MatchedRows != 2 || summary.AmbiguousRows != 1 {
		t.Fatalf("first import summary: %+v", summary)
	}
	if len(summary.FailedRows) != 0 {
		t.Fatalf("unexpected failed rows: %+v", summary.FailedRows)
	}

	reloaded, err := models.GetAuditLog(ctx, auditLog.ID)
	if err != nil {
		t.Fatalf("reload audit log: %v", err)
	}
	if reloaded.Status != models.AuditLogStatusImported {
		t.Fatalf("status = %s, want Imported", reloaded.Status)
	}
	if reloaded.ImportStats.TotalRows != 3 || reloaded.ImportStats.MatchedRows != 2 || reloaded.ImportStats.UpdatedTasks != 1 {
		t.Fatalf("first import stats: %+v", reloaded.ImportStats)
	}

	// 2) Re-import of the identical file is a recorded no-op: no new records,
	// stats unchanged.
	summary2, err := workflow.ProcessAuditImportWorkflow(ctx, logger, auditLog.ID)
	if err != nil {
		t.Fatalf("re-import: %v", err)
	}
	if !summary2.Reimported {
		t.Fatalf("re-import must be detected, got %+v", summary2)
	}
	records, err := models.GetAuditRecordsByLog(ctx, auditLog.ID)
	if err != nil {
		t.Fatalf("list records: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("record count after re-import = %d, want 3", len(records))
	}
	// The stored snapshot must survive the database round trip verbatim:
	// column order intact and content hash still matching row_hash.
	for _, record := range records {
		if len(record.RawRowData) == 0 || record.RawRowData[0].Key != "SLID" {
			t.Fatalf("record %s snapshot lost column order: %+v", record.Slid, record.RawRowData)
		}
		if record.RawRowData.ContentHash() != record.RowHash {
			t.Fatalf("record %s snapshot no longer matches row_hash", record.Slid)
		}
	}

	// 3) Ignore the auto-matched issue record; matched count drops, total does
	// not, the record survives with its action log.
	var issueRecord *models.AuditRecord
	for _, record := range records {
		if record.Slid == "SLA2" {
			issueRecord = record
		}
	}
	if issueRecord == nil || issueRecord.Status != models.AuditRecordStatusImported {
		t.Fatalf("expected auto-matched SLA2 record, got %+v", issueRecord)
	}
	if _, err := workflow.ApplyManualAction(ctx, logger, issueRecord.ID, &workflow.ManualActionInput{
		Action:      models.AuditActionIgnore,
		PerformedBy: "qa.lead",
		Note:        "duplicate of last week's audit",
	}); err != nil {
		t.Fatalf("ignore: %v", err)
	}

	reloaded, err = models.GetAuditLog(ctx, auditLog.ID)
	if err != nil {
		t.Fatalf("reload audit log: %v", err)
	}
	if reloaded.ImportStats.TotalRows != 3 || reloaded.ImportStats.MatchedRows != 1 {
		t.Fatalf("stats after ignore: %+v", reloaded.ImportStats)
	}

	// 4) Resolve the ambiguous row by hand; it may claim either SL-A3 task but
	// only one record per task per batch.
	var pendingRecord *models.AuditRecord
	for _, record := range records {
		if record.Slid == "SLA3" {
			pendingRecord = record
		}
	}
	if pendingRecord == nil {
		t.Fatalf("missing SLA3 record")
	}
	resolved, err := workflow.ApplyManualAction(ctx, logger, pendingRecord.ID, &workflow.ManualActionInput{
		Action:       models.AuditActionManualLink,
		PerformedBy:  "qa.lead",
		LinkedTaskId: &taskA3a.ID,
	})
	if err != nil {
		t.Fatalf("manual link: %v", err)
	}
	if resolved.Status != models.AuditRecordStatusImported || !resolved.IsMatched {
		t.Fatalf("resolved record: %+v", resolved)
	}

	reloaded, err = models.GetAuditLog(ctx, auditLog.ID)
	if err != nil {
		t.Fatalf("reload audit log: %v", err)
	}
	if reloaded.ImportStats.MatchedRows != 2 || reloaded.ImportStats.UpdatedTasks != 2 {
		t.Fatalf("stats after manual link: %+v", reloaded.ImportStats)
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("qaudit-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("qaudit-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=qaudit_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
