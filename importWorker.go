package main

import (
	"context"

	"bitbucket.org/mmdatafocus/qaudit_backend/workflow"
	"github.com/sirupsen/logrus"
)

// ImportQueue feeds uploaded AuditLogs to a background worker. Batches are
// independent units of work; the queue only orders them, correctness comes
// from the row-level uniqueness constraints and batch idempotency keys, so a
// dropped or re-enqueued id is always safe.
type ImportQueue struct {
	logger *logrus.Logger
	ch     chan int
}

func NewImportQueue(logger *logrus.Logger, size int) *ImportQueue {
	return &ImportQueue{
		logger: logger,
		ch:     make(chan int, size),
	}
}

// Enqueue is non-blocking; a full queue reports false so the caller can ask
// the client to retry.
func (q *ImportQueue) Enqueue(auditLogId int) bool {
	select {
	case q.ch <- auditLogId:
		return true
	default:
		return false
	}
}

func (q *ImportQueue) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case auditLogId := <-q.ch:
			spanCtx, span := tracer.Start(ctx, "audit.import")
			if _, err := workflow.ProcessAuditImportWorkflow(spanCtx, q.logger, auditLogId); err != nil {
				q.logger.WithFields(logrus.Fields{
					"auditId": auditLogId,
				}).Error("audit import failed: " + err.Error())
			}
			span.End()
		}
	}
}
