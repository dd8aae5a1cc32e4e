package workflow

import (
	"context"
	"errors"
	"fmt"

	"bitbucket.org/mmdatafocus/qaudit_backend/config"
	"bitbucket.org/mmdatafocus/qaudit_backend/models"
	"bitbucket.org/mmdatafocus/qaudit_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ManualActionInput is a human-issued transition against one AuditRecord.
type ManualActionInput struct {
	Action        string `json:"action" binding:"required,oneof=manual-link manual-add ignore note"`
	PerformedBy   string `json:"performed_by" binding:"required"`
	Note          string `json:"note"`
	LinkedTaskId  *int   `json:"linked_task_id"`
	LinkedIssueId *int   `json:"linked_issue_id"`
}

// ApplyManualAction applies one manual action to an AuditRecord, appends it
// to the record's action log and re-runs the statistics aggregator for the
// owning AuditLog. Invalid transitions are rejected without touching the
// action log.
func ApplyManualAction(ctx context.Context, logger *logrus.Logger, recordId int, input *ManualActionInput) (*models.AuditRecord, error) {
	db := config.GetDB()

	var record models.AuditRecord
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", recordId).First(&record).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrorRecordNotFound
			}
			return err
		}

		switch input.Action {
		case models.AuditActionNote:
			return applyNote(tx, &record, input)
		case models.AuditActionIgnore:
			return applyIgnore(tx, &record, input)
		case models.AuditActionManualLink:
			return applyManualLink(ctx, tx, &record, input, models.AuditRecordStatusImported)
		case models.AuditActionManualAdd:
			return applyManualLink(ctx, tx, &record, input, models.AuditRecordStatusManuallyAdded)
		default:
			return fmt.Errorf("unknown manual action %q", input.Action)
		}
	})
	if err != nil {
		return nil, err
	}

	if _, err := AggregateImportStats(ctx, logger, record.AuditId); err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"recordId":    record.ID,
		"auditId":     record.AuditId,
		"action":      input.Action,
		"performedBy": input.PerformedBy,
		"status":      record.Status,
	}).Info("manual action applied")
	return &record, nil
}

// applyNote appends free text without a status change; allowed in every
// state, including terminal ones.
func applyNote(tx *gorm.DB, record *models.AuditRecord, input *ManualActionInput) error {
	if input.Note == "" {
		return errors.New("note action requires a note")
	}
	record.AppendAction(models.AuditActionNote, input.PerformedBy, input.Note)
	return tx.Model(&models.AuditRecord{}).Where("id = ?", record.ID).
		Update("action_log", record.ActionLog).Error
}

// applyIgnore transitions the record to Ignored. A retracted auto-match
// releases its links so the task claim is freed and the matched-rows
// invariant holds; the prior link survives in the action log.
func applyIgnore(tx *gorm.DB, record *models.AuditRecord, input *ManualActionInput) error {
	if !models.CanTransitionAuditRecordStatus(record.Status, models.AuditRecordStatusIgnored) {
		return fmt.Errorf("%w: %s -> %s", utils.ErrorInvalidTransition, record.Status, models.AuditRecordStatusIgnored)
	}

	note := input.Note
	if record.LinkedTaskId != nil {
		note = appendNote(note, fmt.Sprintf("unlinked task %d", *record.LinkedTaskId))
	}
	if record.LinkedIssueId != nil {
		note = appendNote(note, fmt.Sprintf("unlinked issue %d", *record.LinkedIssueId))
	}
	record.AppendAction(models.AuditActionIgnore, input.PerformedBy, note)

	record.Status = models.AuditRecordStatusIgnored
	record.IsMatched = false
	record.LinkedTaskId = nil
	record.LinkedIssueId = nil
	record.MatchedIssues = models.IssueRefs{}

	return tx.Model(&models.AuditRecord{}).Where("id = ?", record.ID).
		Updates(map[string]interface{}{
			"status":          record.Status,
			"is_matched":      false,
			"linked_task_id":  nil,
			"linked_issue_id": nil,
			"matched_issues":  record.MatchedIssues,
			"action_log":      record.ActionLog,
		}).Error
}

// applyManualLink resolves a Pending record by hand: manual-link confirms a
// candidate (-> Imported), manual-add asserts a human-sourced entry
// (-> Manually Added). Both require at least one target and validate it.
func applyManualLink(ctx context.Context, tx *gorm.DB, record *models.AuditRecord, input *ManualActionInput, target models.AuditRecordStatus) error {
	if !models.CanTransitionAuditRecordStatus(record.Status, target) {
		return fmt.Errorf("%w: %s -> %s", utils.ErrorInvalidTransition, record.Status, target)
	}
	if input.LinkedTaskId == nil && input.LinkedIssueId == nil {
		return errors.New("manual link requires a task or issue target")
	}

	if input.LinkedTaskId != nil {
		if _, err := models.GetTask(ctx, *input.LinkedTaskId); err != nil {
			return fmt.Errorf("linked task: %w", err)
		}
		if taskAlreadyClaimed(tx, record.AuditId, *input.LinkedTaskId) {
			return fmt.Errorf("task %d is already claimed by another record in this batch", *input.LinkedTaskId)
		}
		record.LinkedTaskId = input.LinkedTaskId
	}
	if input.LinkedIssueId != nil {
		if _, err := models.GetCustomerIssue(ctx, *input.LinkedIssueId); err != nil {
			return fmt.Errorf("linked issue: %w", err)
		}
		record.LinkedIssueId = input.LinkedIssueId
		record.MatchedIssues = models.IssueRefs{*input.LinkedIssueId}
	}

	action := models.AuditActionManualLink
	if target == models.AuditRecordStatusManuallyAdded {
		action = models.AuditActionManualAdd
	}
	record.AppendAction(action, input.PerformedBy, input.Note)
	record.Status = target
	record.IsMatched = true

	return tx.Model(&models.AuditRecord{}).Where("id = ?", record.ID).
		Updates(map[string]interface{}{
			"status":          record.Status,
			"is_matched":      true,
			"linked_task_id":  record.LinkedTaskId,
			"linked_issue_id": record.LinkedIssueId,
			"matched_issues":  record.MatchedIssues,
			"action_log":      record.ActionLog,
		}).Error
}

func appendNote(base string, extra string) string {
	if base == "" {
		return extra
	}
	return base + "; " + extra
}
