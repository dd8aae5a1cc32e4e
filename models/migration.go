package models

import (
	"log"

	"bitbucket.org/mmdatafocus/qaudit_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&AuditLog{}, &AuditRecord{},
		&Task{}, &CustomerIssue{},
		&IdempotencyKey{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
