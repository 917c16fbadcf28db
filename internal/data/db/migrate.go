package db

import (
	"fmt"

	types "github.com/yungbote/mechdata-backend/internal/domain"
	"gorm.io/gorm"
)

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(types.Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return EnsureIndexes(db)
}

// EnsureIndexes creates indexes that struct tags cannot express.
func EnsureIndexes(db *gorm.DB) error {
	stmts := []string{
		`CREATE INDEX IF NOT EXISTS idx_staging_slot_unresolved
		   ON staging_slot (staging_record_id) WHERE resolution_state = 'unresolved';`,
		`CREATE INDEX IF NOT EXISTS idx_valuation_job_queued
		   ON valuation_job (next_attempt_at, created_at) WHERE status = 'queued';`,
		`CREATE INDEX IF NOT EXISTS idx_valuation_job_unit_status
		   ON valuation_job (finalized_unit_id, status);`,
		`CREATE INDEX IF NOT EXISTS idx_unresolved_token_count
		   ON unresolved_token (count DESC);`,
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("ensure index: %w", err)
		}
	}
	return nil
}
