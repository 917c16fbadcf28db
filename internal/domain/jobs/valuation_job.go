package jobs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Status string

const (
	StatusQueued     Status = "queued"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further processing happens for the status.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// ValuationJob is one deferred rating lookup for a finalized unit. Only the
// worker moves it out of StatusQueued.
type ValuationJob struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	FinalizedUnitID uuid.UUID  `gorm:"type:uuid;column:finalized_unit_id;not null;index" json:"finalized_unit_id"`
	UnitClass       string     `gorm:"column:unit_class;not null" json:"unit_class"`
	UnitName        string     `gorm:"column:unit_name;not null" json:"unit_name"`
	Variant         string     `gorm:"column:variant;not null" json:"variant"`
	TypeFilter      *int       `gorm:"column:type_filter" json:"type_filter,omitempty"`
	Status          Status     `gorm:"column:status;not null;index:idx_valuation_job_claim,priority:1" json:"status"`
	Attempts        int        `gorm:"column:attempts;not null;default:0" json:"attempts"`
	BattleValue     *int       `gorm:"column:battle_value" json:"battle_value,omitempty"`
	PointValue      *int       `gorm:"column:point_value" json:"point_value,omitempty"`
	LastError       string     `gorm:"column:last_error" json:"last_error,omitempty"`
	ClaimedBy       string     `gorm:"column:claimed_by" json:"claimed_by,omitempty"`
	ClaimedAt       *time.Time `gorm:"column:claimed_at;index" json:"claimed_at,omitempty"`
	NextAttemptAt   time.Time  `gorm:"column:next_attempt_at;not null;index:idx_valuation_job_claim,priority:2" json:"next_attempt_at"`
	FinishedAt      *time.Time `gorm:"column:finished_at" json:"finished_at,omitempty"`
	CreatedAt       time.Time  `gorm:"not null;autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (ValuationJob) TableName() string { return "valuation_job" }

func (j *ValuationJob) BeforeCreate(tx *gorm.DB) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	if j.Status == "" {
		j.Status = StatusQueued
	}
	if j.NextAttemptAt.IsZero() {
		j.NextAttemptAt = tx.NowFunc()
	}
	return nil
}
