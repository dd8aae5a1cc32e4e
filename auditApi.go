package main

import (
	"errors"
	"net/http"
	"strconv"

	"bitbucket.org/mmdatafocus/qaudit_backend/config"
	"bitbucket.org/mmdatafocus/qaudit_backend/models"
	"bitbucket.org/mmdatafocus/qaudit_backend/utils"
	"bitbucket.org/mmdatafocus/qaudit_backend/workflow"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

func idParam(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func listAuditLogsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
		logs, err := models.GetAuditLogs(c.Request.Context(), limit, offset)
		if err != nil {
			c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list audit logs"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"audit_logs": logs})
	}
}

func getAuditLogHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		auditLog, err := models.GetAuditLog(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "audit log not found"})
				return
			}
			c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load audit log"})
			return
		}
		c.JSON(http.StatusOK, auditLog)
	}
}

// getAuditStatsHandler serves the cached stats snapshot when redis holds one,
// otherwise the persisted columns. Meant for cheap dashboard polling.
func getAuditStatsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		var stats models.ImportStats
		if found, err := config.GetRedisObject(workflow.StatsSnapshotKey(id), &stats); err == nil && found {
			c.JSON(http.StatusOK, gin.H{"audit_id": id, "import_stats": stats, "cached": true})
			return
		}
		auditLog, err := models.GetAuditLog(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "audit log not found"})
				return
			}
			c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load audit log"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"audit_id": id, "import_stats": auditLog.ImportStats, "cached": false})
	}
}

func listAuditRecordsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		records, err := models.GetAuditRecordsByLog(c.Request.Context(), id)
		if err != nil {
			c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list audit records"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"audit_records": records})
	}
}

// importAuditHandler enqueues a reconciliation pass for an uploaded log.
// Processing is asynchronous; poll the audit log for status and stats.
func importAuditHandler(queue *ImportQueue) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		if _, err := models.GetAuditLog(c.Request.Context(), id); err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "audit log not found"})
				return
			}
			c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load audit log"})
			return
		}
		if !queue.Enqueue(id) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "import queue is full; retry later"})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"audit_id": id, "status": "queued"})
	}
}

func manualActionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}

		var input workflow.ManualActionInput
		if err := c.ShouldBindJSON(&input); err != nil {
			var validationErrors validator.ValidationErrors
			if errors.As(err, &validationErrors) {
				c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		record, err := workflow.ApplyManualAction(c.Request.Context(), config.GetLogger(), id, &input)
		if err != nil {
			switch {
			case errors.Is(err, utils.ErrorRecordNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": "audit record not found"})
			case errors.Is(err, utils.ErrorInvalidTransition):
				c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			default:
				c.Error(err)
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			}
			return
		}
		c.JSON(http.StatusOK, record)
	}
}
