package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/qaudit_backend/config"
	"bitbucket.org/mmdatafocus/qaudit_backend/utils"
	"gorm.io/gorm"
)

type CustomerIssueStatus string

const (
	CustomerIssueStatusOpen     CustomerIssueStatus = "Open"
	CustomerIssueStatusResolved CustomerIssueStatus = "Resolved"
)

// CustomerIssue is a reported subscriber problem keyed by subscriber line.
// Consumed read-only by the reconciliation engine.
type CustomerIssue struct {
	ID          int                 `gorm:"primary_key" json:"id"`
	Slid        string              `gorm:"size:64;not null;index" json:"slid"`
	Category    string              `gorm:"size:100" json:"category"`
	Description string              `gorm:"type:text" json:"description"`
	Status      CustomerIssueStatus `gorm:"type:enum('Open','Resolved');not null;default:'Open'" json:"status"`
	ReportedAt  time.Time           `gorm:"not null" json:"reported_at"`
	CreatedAt   time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

func GetCustomerIssue(ctx context.Context, id int) (*CustomerIssue, error) {
	var result CustomerIssue
	db := config.GetDB()
	if err := db.WithContext(ctx).First(&result, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &result, nil
}

// GetCustomerIssuesInWindow returns the live issue set for the given
// reporting window. Nil bounds widen the window on that side.
func GetCustomerIssuesInWindow(ctx context.Context, startDate *time.Time, endDate *time.Time) ([]*CustomerIssue, error) {
	var results []*CustomerIssue
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Model(&CustomerIssue{})
	if startDate != nil {
		dbCtx = dbCtx.Where("reported_at >= ?", *startDate)
	}
	if endDate != nil {
		dbCtx = dbCtx.Where("reported_at <= ?", *endDate)
	}
	if err := dbCtx.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
