package workflow

import (
	"context"

	"bitbucket.org/mmdatafocus/qaudit_backend/models"
)

// SlidIndex is the frozen candidate snapshot for one batch: normalized SLID
// -> candidate Task / CustomerIssue ids. Built once per batch; records
// created while a batch runs are not visible to that run, so results do not
// depend on row order.
type SlidIndex struct {
	tasks  map[string][]int
	issues map[string][]int
}

// BuildSlidIndex loads the candidate set for the AuditLog's reporting window
// (the full live set when no window is present) and indexes it by normalized
// SLID.
func BuildSlidIndex(ctx context.Context, auditLog *models.AuditLog) (*SlidIndex, error) {
	tasks, err := models.GetTasksInWindow(ctx, auditLog.StartDate, auditLog.EndDate)
	if err != nil {
		return nil, err
	}
	issues, err := models.GetCustomerIssuesInWindow(ctx, auditLog.StartDate, auditLog.EndDate)
	if err != nil {
		return nil, err
	}

	index := NewSlidIndex()
	for _, task := range tasks {
		index.AddTask(task.Slid, task.ID)
	}
	for _, issue := range issues {
		index.AddIssue(issue.Slid, issue.ID)
	}
	return index, nil
}

func NewSlidIndex() *SlidIndex {
	return &SlidIndex{
		tasks:  make(map[string][]int),
		issues: make(map[string][]int),
	}
}

// AddTask indexes one candidate task under its normalized SLID. Candidates
// whose SLID normalizes to nothing are unmatchable and skipped.
func (ix *SlidIndex) AddTask(slid string, taskId int) {
	key := NormalizeSlid(slid)
	if key == "" {
		return
	}
	ix.tasks[key] = append(ix.tasks[key], taskId)
}

func (ix *SlidIndex) AddIssue(slid string, issueId int) {
	key := NormalizeSlid(slid)
	if key == "" {
		return
	}
	ix.issues[key] = append(ix.issues[key], issueId)
}

// Lookup returns the candidate ids for a normalized SLID.
func (ix *SlidIndex) Lookup(slid string) (taskIds []int, issueIds []int) {
	return ix.tasks[slid], ix.issues[slid]
}
