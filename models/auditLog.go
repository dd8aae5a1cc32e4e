package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/qaudit_backend/config"
	"bitbucket.org/mmdatafocus/qaudit_backend/utils"
	"gorm.io/gorm"
)

type AuditLogStatus string

const (
	AuditLogStatusUploaded AuditLogStatus = "Uploaded"
	AuditLogStatusImported AuditLogStatus = "Imported"
)

type AuditType string

const (
	AuditTypeDvoc             AuditType = "DVOC"
	AuditTypeReachSupervisors AuditType = "ReachSupervisors"
)

func (t AuditType) IsValid() bool {
	return t == AuditTypeDvoc || t == AuditTypeReachSupervisors
}

// ImportStats is the derived per-batch view maintained by the statistics
// aggregator. Never hand-edit these columns; they are recomputed from the
// audit_records table after every import pass and manual action.
type ImportStats struct {
	TotalRows    int `gorm:"default:0" json:"total_rows"`
	MatchedRows  int `gorm:"default:0" json:"matched_rows"`
	UpdatedTasks int `gorm:"default:0" json:"updated_tasks"`
}

// AuditLog represents one uploaded quality-audit file (one batch).
type AuditLog struct {
	ID           int            `gorm:"primary_key" json:"id"`
	Filename     string         `gorm:"size:255;not null" json:"filename"`
	OriginalName string         `gorm:"size:255;not null" json:"original_name"`
	Path         string         `gorm:"size:512;not null" json:"path"`
	UploadedBy   string         `gorm:"size:100" json:"uploaded_by"`
	Status       AuditLogStatus `gorm:"type:enum('Uploaded','Imported');not null;default:'Uploaded'" json:"status"`
	AuditType    AuditType      `gorm:"type:enum('DVOC','ReachSupervisors');not null" json:"audit_type"`
	ImportStats  ImportStats    `gorm:"embedded;embeddedPrefix:stats_" json:"import_stats"`
	StartDate    *time.Time     `json:"start_date"`
	EndDate      *time.Time     `json:"end_date"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewAuditLog struct {
	Filename     string     `json:"filename" binding:"required"`
	OriginalName string     `json:"original_name" binding:"required"`
	Path         string     `json:"path" binding:"required"`
	UploadedBy   string     `json:"uploaded_by"`
	AuditType    AuditType  `json:"audit_type" binding:"required"`
	StartDate    *time.Time `json:"start_date"`
	EndDate      *time.Time `json:"end_date"`
}

func CreateAuditLog(ctx context.Context, input *NewAuditLog) (*AuditLog, error) {
	if !input.AuditType.IsValid() {
		return nil, errors.New("invalid audit type")
	}
	if input.StartDate != nil && input.EndDate != nil && input.EndDate.Before(*input.StartDate) {
		return nil, errors.New("end date must not be before start date")
	}

	auditLog := AuditLog{
		Filename:     input.Filename,
		OriginalName: input.OriginalName,
		Path:         input.Path,
		UploadedBy:   input.UploadedBy,
		Status:       AuditLogStatusUploaded,
		AuditType:    input.AuditType,
		StartDate:    input.StartDate,
		EndDate:      input.EndDate,
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&auditLog).Error; err != nil {
		return nil, err
	}
	return &auditLog, nil
}

func GetAuditLog(ctx context.Context, id int) (*AuditLog, error) {
	var result AuditLog
	db := config.GetDB()
	if err := db.WithContext(ctx).First(&result, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &result, nil
}

func GetAuditLogs(ctx context.Context, limit int, offset int) ([]*AuditLog, error) {
	if limit <= 0 || limit > 100 {
		limit = config.SearchLimit
	}
	var results []*AuditLog
	db := config.GetDB()
	if err := db.WithContext(ctx).
		Order("id DESC").Limit(limit).Offset(offset).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// GetPendingAuditLogs returns logs still awaiting their first completed
// reconciliation pass.
func GetPendingAuditLogs(ctx context.Context) ([]*AuditLog, error) {
	var results []*AuditLog
	db := config.GetDB()
	if err := db.WithContext(ctx).
		Where("status = ?", AuditLogStatusUploaded).
		Order("id ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
