package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/qaudit_backend/config"
	"bitbucket.org/mmdatafocus/qaudit_backend/utils"
	"gorm.io/gorm"
)

type TaskStatus string

const (
	TaskStatusOpen       TaskStatus = "Open"
	TaskStatusInProgress TaskStatus = "InProgress"
	TaskStatusClosed     TaskStatus = "Closed"
)

// Task is an operational follow-up item keyed by subscriber line. The
// reconciliation engine consumes tasks read-only; the only back-reference is
// AuditRecord.LinkedTaskId.
type Task struct {
	ID         int        `gorm:"primary_key" json:"id"`
	Slid       string     `gorm:"size:64;not null;index" json:"slid"`
	Subject    string     `gorm:"size:255;not null" json:"subject"`
	AssignedTo string     `gorm:"size:100" json:"assigned_to"`
	Status     TaskStatus `gorm:"type:enum('Open','InProgress','Closed');not null;default:'Open'" json:"status"`
	OpenedAt   time.Time  `gorm:"not null" json:"opened_at"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func GetTask(ctx context.Context, id int) (*Task, error) {
	var result Task
	db := config.GetDB()
	if err := db.WithContext(ctx).First(&result, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &result, nil
}

// GetTasksInWindow returns the live task set for the given reporting window.
// Nil bounds widen the window on that side.
func GetTasksInWindow(ctx context.Context, startDate *time.Time, endDate *time.Time) ([]*Task, error) {
	var results []*Task
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Model(&Task{})
	if startDate != nil {
		dbCtx = dbCtx.Where("opened_at >= ?", *startDate)
	}
	if endDate != nil {
		dbCtx = dbCtx.Where("opened_at <= ?", *endDate)
	}
	if err := dbCtx.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
