package models

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/qaudit_backend/config"
	"bitbucket.org/mmdatafocus/qaudit_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type AuditRecordStatus string

const (
	AuditRecordStatusPending       AuditRecordStatus = "Pending"
	AuditRecordStatusImported      AuditRecordStatus = "Imported"
	AuditRecordStatusIgnored       AuditRecordStatus = "Ignored"
	AuditRecordStatusManuallyAdded AuditRecordStatus = "Manually Added"
)

// CanTransitionAuditRecordStatus encodes the record lifecycle:
//   Pending  -> Imported | Ignored | Manually Added
//   Imported -> Ignored        (a human may retract a bad auto-match)
// Ignored and Manually Added accept no further status changes; "removing" a
// record means transitioning it to Ignored, never deleting it.
func CanTransitionAuditRecordStatus(from, to AuditRecordStatus) bool {
	switch from {
	case AuditRecordStatusPending:
		return to == AuditRecordStatusImported ||
			to == AuditRecordStatusIgnored ||
			to == AuditRecordStatusManuallyAdded
	case AuditRecordStatusImported:
		return to == AuditRecordStatusIgnored
	default:
		return false
	}
}

const (
	AuditActionImport      = "import"
	AuditActionAutoMatched = "auto-matched"
	AuditActionRowUpdated  = "row-updated"
	AuditActionManualLink  = "manual-link"
	AuditActionManualAdd   = "manual-add"
	AuditActionIgnore      = "ignore"
	AuditActionNote        = "note"
)

// AuditActionEntry is one entry of a record's append-only action log.
type AuditActionEntry struct {
	Action      string    `json:"action"`
	Timestamp   time.Time `json:"timestamp"`
	PerformedBy string    `json:"performed_by,omitempty"`
	Note        string    `json:"note,omitempty"`
}

// ActionLog is append-only: entries are never truncated or reordered.
type ActionLog []AuditActionEntry

func (l ActionLog) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *ActionLog) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*l = ActionLog{}
		return nil
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("cannot scan %T into ActionLog", value)
	}
}

// IssueRefs is a JSON list of CustomerIssue ids (non-owning references).
type IssueRefs []int

func (r IssueRefs) Value() (driver.Value, error) {
	if r == nil {
		return "[]", nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (r *IssueRefs) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*r = IssueRefs{}
		return nil
	case []byte:
		return json.Unmarshal(v, r)
	case string:
		return json.Unmarshal([]byte(v), r)
	default:
		return fmt.Errorf("cannot scan %T into IssueRefs", value)
	}
}

// AuditRecord represents one row extracted from an AuditLog's file, after
// matching. Records are never hard-deleted; lifecycle is modeled entirely
// through Status plus the append-only ActionLog.
//
// Uniqueness: (audit_id, slid, row_hash). Re-importing identical content is
// a no-op at the store level (duplicate key), which is what makes a batch
// safe to re-run. LinkedTaskId additionally carries a per-log unique index
// so no two records of one batch can claim the same task.
type AuditRecord struct {
	ID               int                  `gorm:"primary_key" json:"id"`
	AuditId          int                  `gorm:"not null;index;uniqueIndex:uniq_audit_row,priority:1;uniqueIndex:uniq_audit_task,priority:1" json:"audit_id"`
	Slid             string               `gorm:"size:64;not null;index;uniqueIndex:uniq_audit_row,priority:2" json:"slid"`
	RowHash          string               `gorm:"size:64;not null;uniqueIndex:uniq_audit_row,priority:3" json:"row_hash"`
	InterviewDate    *time.Time           `json:"interview_date"`
	EvaluationScore  *decimal.Decimal     `gorm:"type:decimal(10,2)" json:"evaluation_score"`
	CustomerFeedback string               `gorm:"type:text" json:"customer_feedback"`
	IsMatched        bool                 `gorm:"not null;default:false" json:"is_matched"`
	MatchedIssues    IssueRefs            `gorm:"type:json" json:"matched_issues"`
	Status           AuditRecordStatus    `gorm:"type:enum('Pending','Imported','Ignored','Manually Added');not null;default:'Pending'" json:"status"`
	ActionLog        ActionLog            `gorm:"type:json" json:"action_log"`
	LinkedTaskId     *int                 `gorm:"uniqueIndex:uniq_audit_task,priority:2" json:"linked_task_id"`
	LinkedIssueId    *int                 `json:"linked_issue_id"`
	RawRowData       RawRow               `gorm:"type:longtext" json:"raw_row_data"`
	CreatedAt        time.Time            `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time            `gorm:"autoUpdateTime" json:"updated_at"`
}

// AppendAction adds one entry to the in-memory action log. Persisting is the
// caller's responsibility (inside its transaction).
func (r *AuditRecord) AppendAction(action string, performedBy string, note string) {
	r.ActionLog = append(r.ActionLog, AuditActionEntry{
		Action:      action,
		Timestamp:   time.Now().UTC(),
		PerformedBy: performedBy,
		Note:        note,
	})
}

func GetAuditRecord(ctx context.Context, id int) (*AuditRecord, error) {
	var result AuditRecord
	db := config.GetDB()
	if err := db.WithContext(ctx).First(&result, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &result, nil
}

func GetAuditRecordsByLog(ctx context.Context, auditId int) ([]*AuditRecord, error) {
	var results []*AuditRecord
	db := config.GetDB()
	if err := db.WithContext(ctx).
		Where("audit_id = ?", auditId).
		Order("id ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
