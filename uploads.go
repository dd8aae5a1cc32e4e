package main

import (
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/qaudit_backend/models"
	"bitbucket.org/mmdatafocus/qaudit_backend/utils"
	"github.com/gin-gonic/gin"
)

const maxUploadSizeBytes int64 = 20 * 1024 * 1024

var auditFileExtensions = map[string]bool{
	".xlsx": true,
	".csv":  true,
}

// auditUploadHandler accepts a multipart audit file, stores it and creates
// the AuditLog (status=Uploaded, stats zeroed). Import happens separately so
// a slow or failing batch never blocks the upload response.
func auditUploadHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		fileHeader, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
			return
		}
		if fileHeader.Size > maxUploadSizeBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file exceeds upload size limit"})
			return
		}
		ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
		if !auditFileExtensions[ext] {
			c.JSON(http.StatusBadRequest, gin.H{"error": "only .xlsx and .csv audit files are accepted"})
			return
		}

		auditType := models.AuditType(c.PostForm("audit_type"))
		if !auditType.IsValid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "audit_type must be DVOC or ReachSupervisors"})
			return
		}

		startDate, err := parseDateForm(c.PostForm("start_date"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start_date"})
			return
		}
		endDate, err := parseDateForm(c.PostForm("end_date"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid end_date"})
			return
		}

		src, err := fileHeader.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "could not read uploaded file"})
			return
		}
		defer src.Close()

		ctx := c.Request.Context()
		objectName := "audits/" + utils.GenerateUniqueFilename() + ext
		path, err := utils.SaveAuditFile(ctx, objectName, src)
		if err != nil {
			c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not store audit file"})
			return
		}

		uploadedBy, _ := utils.GetUsernameFromContext(ctx)
		auditLog, err := models.CreateAuditLog(ctx, &models.NewAuditLog{
			Filename:     filepath.Base(objectName),
			OriginalName: fileHeader.Filename,
			Path:         path,
			UploadedBy:   uploadedBy,
			AuditType:    auditType,
			StartDate:    startDate,
			EndDate:      endDate,
		})
		if err != nil {
			c.Error(err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusCreated, auditLog)
	}
}

func parseDateForm(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if parsed, err := time.Parse(layout, value); err == nil {
			utc := parsed.UTC()
			return &utc, nil
		}
	}
	return nil, errors.New("unsupported date format")
}
