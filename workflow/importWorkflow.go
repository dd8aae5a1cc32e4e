package workflow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/qaudit_backend/config"
	"bitbucket.org/mmdatafocus/qaudit_backend/models"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const auditImportHandler = "AuditImport"

const rowWriteAttempts = 3

// FailedRow is one row that could not be written after retries. These are
// reported for operator follow-up; they never abort the batch.
type FailedRow struct {
	RowNumber int    `json:"row_number"`
	Slid      string `json:"slid"`
	Error     string `json:"error"`
}

// ImportSummary is the batch result returned to the caller and logged.
type ImportSummary struct {
	AuditId       int         `json:"audit_id"`
	TotalRows     int         `json:"total_rows"`
	MatchedRows   int         `json:"matched_rows"`
	AmbiguousRows int         `json:"ambiguous_rows"`
	UnmatchedRows int         `json:"unmatched_rows"`
	InvalidRows   int         `json:"invalid_rows"`
	FailedRows    []FailedRow `json:"failed_rows,omitempty"`
	Reimported    bool        `json:"reimported"`
}

type rowWriteResult int

const (
	rowUnchanged rowWriteResult = iota
	rowCreated
	rowUpdated
)

// tally classifies one processed row from its durable outcome. A unique
// verdict whose task claim was lost lands Pending and counts as unmatched,
// matching what the aggregator will report.
func (s *ImportSummary) tally(invalid error, verdict MatchVerdict, matched bool) {
	switch {
	case invalid != nil:
		s.InvalidRows++
	case matched:
		s.MatchedRows++
	case verdict.Outcome == MatchOutcomeAmbiguous:
		s.AmbiguousRows++
	default:
		s.UnmatchedRows++
	}
}

// writeWithRetry retries transient row-write failures with linear backoff.
// A cancelled batch context stops at the row boundary instead of burning the
// remaining attempts.
func writeWithRetry(ctx context.Context, attempts int, fn func() error) error {
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if attempt < attempts {
			time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
		}
	}
	return err
}

// ProcessAuditImportWorkflow runs one reconciliation pass for an uploaded
// audit file: normalize each row, match it against a frozen SLID index and
// write the verdict durably. Row-level failures are recovered locally; only
// an unreadable file is batch-fatal (the AuditLog then stays Uploaded and no
// records are created).
func ProcessAuditImportWorkflow(ctx context.Context, logger *logrus.Logger, auditLogId int) (*ImportSummary, error) {
	db := config.GetDB()

	auditLog, err := models.GetAuditLog(ctx, auditLogId)
	if err != nil {
		return nil, err
	}

	rows, err := ReadAuditFile(ctx, auditLog)
	if err != nil {
		config.LogError(logger, "importWorkflow.go", "ProcessAuditImportWorkflow", "Reading audit file", auditLog.ID, err)
		return nil, err
	}

	// Batch-level idempotency: identical content already fully imported for
	// this log means there is nothing to write. Stats are still re-derived so
	// the summary reflects the durable state.
	messageId := fmt.Sprintf("%d:%s", auditLog.ID, batchContentHash(rows))
	skip, err := BeginIdempotency(db.WithContext(ctx), auditImportHandler, messageId)
	if err != nil {
		return nil, err
	}
	if skip {
		stats, err := AggregateImportStats(ctx, logger, auditLog.ID)
		if err != nil {
			return nil, err
		}
		summary := &ImportSummary{
			AuditId:     auditLog.ID,
			TotalRows:   stats.TotalRows,
			MatchedRows: stats.MatchedRows,
			Reimported:  true,
		}
		logger.WithFields(logrus.Fields{
			"auditId":   auditLog.ID,
			"messageId": messageId,
		}).Info("identical audit file already imported; skipping row processing")
		return summary, nil
	}

	index, err := BuildSlidIndex(ctx, auditLog)
	if err != nil {
		_ = MarkIdempotencyFailed(db.WithContext(ctx), auditImportHandler, messageId, err)
		return nil, err
	}

	summary := &ImportSummary{AuditId: auditLog.ID}
	for i, raw := range rows {
		if err := ctx.Err(); err != nil {
			_ = MarkIdempotencyFailed(db, auditImportHandler, messageId, err)
			return nil, err
		}
		summary.TotalRows++

		norm, normErr := NormalizeRow(raw, auditLog.AuditType)
		var verdict MatchVerdict
		if normErr == nil {
			verdict = MatchRow(index, norm.Slid)
		}

		var rowMatched bool
		writeErr := writeWithRetry(ctx, rowWriteAttempts, func() error {
			var err error
			_, rowMatched, err = writeAuditRow(ctx, db, auditLog, norm, verdict, normErr)
			return err
		})
		if writeErr != nil {
			config.LogError(logger, "importWorkflow.go", "ProcessAuditImportWorkflow", "Writing audit row", raw, writeErr)
			summary.FailedRows = append(summary.FailedRows, FailedRow{
				RowNumber: i + 1,
				Slid:      norm.Slid,
				Error:     writeErr.Error(),
			})
			continue
		}
		summary.tally(normErr, verdict, rowMatched)
	}

	if len(summary.FailedRows) > 0 {
		// Leave the key FAILED so a re-run retries the failed rows; rows
		// already written stay valid and idempotent.
		_ = MarkIdempotencyFailed(db.WithContext(ctx), auditImportHandler, messageId,
			fmt.Errorf("%d rows failed after %d attempts", len(summary.FailedRows), rowWriteAttempts))
	} else {
		if err := MarkIdempotencySucceeded(db.WithContext(ctx), auditImportHandler, messageId); err != nil {
			return nil, err
		}
	}

	if _, err := AggregateImportStats(ctx, logger, auditLog.ID); err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"auditId":   auditLog.ID,
		"total":     summary.TotalRows,
		"matched":   summary.MatchedRows,
		"ambiguous": summary.AmbiguousRows,
		"unmatched": summary.UnmatchedRows,
		"invalid":   summary.InvalidRows,
		"failed":    len(summary.FailedRows),
	}).Info("audit import completed")
	return summary, nil
}

// writeAuditRow idempotently upserts the AuditRecord for one (row, verdict)
// pair. Logical key: (auditId, slid) with the content hash deciding between
// no-op and "row-updated"; rows without a usable slid key on content hash
// alone. Concurrent writers racing on the same row are resolved by the
// (audit_id, slid, row_hash) unique index rather than an external lock.
// The returned matched flag reflects the durable record, not the verdict: a
// unique match whose task claim was lost comes back false.
func writeAuditRow(ctx context.Context, db *gorm.DB, auditLog *models.AuditLog, norm *NormalizedRow, verdict MatchVerdict, invalid error) (rowWriteResult, bool, error) {
	rowHash := norm.Raw.ContentHash()
	result := rowUnchanged
	matched := false

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.AuditRecord
		var lookupErr error
		if norm.Slid != "" {
			lookupErr = tx.Where("audit_id = ? AND slid = ?", auditLog.ID, norm.Slid).
				Order("id ASC").First(&existing).Error
		} else {
			lookupErr = tx.Where("audit_id = ? AND slid = '' AND row_hash = ?", auditLog.ID, rowHash).
				First(&existing).Error
		}

		if lookupErr == nil {
			matched = existing.IsMatched
			if existing.RowHash == rowHash {
				result = rowUnchanged
				return nil
			}
			// Same logical row with changed content: update, never silently
			// overwrite — the change is recorded in the action log.
			existing.AppendAction(models.AuditActionRowUpdated, "", "row content changed on re-import")
			updates := map[string]interface{}{
				"row_hash":          rowHash,
				"interview_date":    norm.InterviewDate,
				"evaluation_score":  norm.EvaluationScore,
				"customer_feedback": norm.CustomerFeedback,
				"raw_row_data":      norm.Raw,
				"action_log":        existing.ActionLog,
			}
			if err := tx.Model(&models.AuditRecord{}).Where("id = ?", existing.ID).Updates(updates).Error; err != nil {
				return err
			}
			result = rowUpdated
			return nil
		}
		if !errors.Is(lookupErr, gorm.ErrRecordNotFound) {
			return lookupErr
		}

		record := buildAuditRecord(tx, auditLog, norm, rowHash, verdict, invalid)
		if err := tx.Create(record).Error; err != nil {
			if isDuplicateOfIndex(err, "uniq_audit_task") {
				// Lost the task-claim race: keep the row, drop the link.
				record.ID = 0
				record.LinkedTaskId = nil
				record.IsMatched = false
				record.Status = models.AuditRecordStatusPending
				record.AppendAction(models.AuditActionImport, "",
					"task already claimed by another record in this batch")
				if err := tx.Create(record).Error; err != nil {
					return err
				}
				result = rowCreated
				return nil
			}
			if isDuplicateKeyErr(err) {
				// Another writer created the identical row first; report its
				// durable state.
				var winner models.AuditRecord
				if err := tx.Where("audit_id = ? AND slid = ? AND row_hash = ?",
					auditLog.ID, norm.Slid, rowHash).First(&winner).Error; err == nil {
					matched = winner.IsMatched
				}
				result = rowUnchanged
				return nil
			}
			return err
		}
		result = rowCreated
		matched = record.IsMatched
		return nil
	})
	return result, matched, err
}

func buildAuditRecord(tx *gorm.DB, auditLog *models.AuditLog, norm *NormalizedRow, rowHash string, verdict MatchVerdict, invalid error) *models.AuditRecord {
	record := &models.AuditRecord{
		AuditId:          auditLog.ID,
		Slid:             norm.Slid,
		RowHash:          rowHash,
		InterviewDate:    norm.InterviewDate,
		EvaluationScore:  norm.EvaluationScore,
		CustomerFeedback: norm.CustomerFeedback,
		Status:           models.AuditRecordStatusPending,
		ActionLog:        models.ActionLog{},
		MatchedIssues:    models.IssueRefs{},
		RawRowData:       norm.Raw,
	}

	switch {
	case invalid != nil:
		record.AppendAction(models.AuditActionImport, "", "invalid row: "+invalid.Error())

	case verdict.Outcome == MatchOutcomeUnique:
		if len(verdict.TaskIds) == 1 {
			taskId := verdict.TaskIds[0]
			if taskAlreadyClaimed(tx, auditLog.ID, taskId) {
				record.AppendAction(models.AuditActionImport, "",
					fmt.Sprintf("task %d already claimed by another record in this batch", taskId))
				break
			}
			record.LinkedTaskId = &taskId
		} else {
			issueId := verdict.IssueIds[0]
			record.LinkedIssueId = &issueId
			record.MatchedIssues = models.IssueRefs{issueId}
		}
		record.IsMatched = true
		record.Status = models.AuditRecordStatusImported
		record.AppendAction(models.AuditActionAutoMatched, "", "")

	default:
		// Ambiguous and unmatched rows both land as Pending for manual
		// resolution; candidates are surfaced in the note, never auto-picked.
		record.AppendAction(models.AuditActionImport, "", verdict.Describe())
	}
	return record
}

// taskAlreadyClaimed is the explicit precondition check for the no-double-claim
// rule; the (audit_id, linked_task_id) unique index backs it up under races.
func taskAlreadyClaimed(tx *gorm.DB, auditId int, taskId int) bool {
	var count int64
	if err := tx.Model(&models.AuditRecord{}).
		Where("audit_id = ? AND linked_task_id = ?", auditId, taskId).
		Count(&count).Error; err != nil {
		return false
	}
	return count > 0
}

func isDuplicateOfIndex(err error, indexName string) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062 && strings.Contains(mysqlErr.Message, indexName)
	}
	return false
}

// batchContentHash identifies a batch by file content (row order included),
// independent of filename or upload time.
func batchContentHash(rows []models.RawRow) string {
	h := sha256.New()
	for _, row := range rows {
		h.Write([]byte(row.ContentHash()))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
