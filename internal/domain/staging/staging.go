package staging

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ResolutionState of a staging slot. Transitions only leave SlotUnresolved.
type ResolutionState string

const (
	SlotUnresolved ResolutionState = "unresolved"
	SlotResolved   ResolutionState = "resolved"
	SlotStructural ResolutionState = "structural"
)

// How a slot reached its state.
const (
	MethodExact    = "exact"
	MethodAlias    = "alias"
	MethodToken    = "token_subset"
	MethodKeyword  = "structural_keyword"
	MethodEmpty    = "empty"
	MethodAccepted = "accepted"
)

// Record is the mutable staging copy of one parsed unit, unique per
// (external_key, variant).
type Record struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ExternalKey string         `gorm:"column:external_key;not null;uniqueIndex:idx_staging_record_identity,priority:1" json:"external_key"`
	Variant     string         `gorm:"column:variant;not null;uniqueIndex:idx_staging_record_identity,priority:2" json:"variant"`
	Name        string         `gorm:"column:name;not null;index" json:"name"`
	MulID       string         `gorm:"column:mul_id;index" json:"mul_id,omitempty"`
	UnitClass   string         `gorm:"column:unit_class;not null;index" json:"unit_class"`
	Format      string         `gorm:"column:format;not null" json:"format"`
	SourceFile  string         `gorm:"column:source_file" json:"source_file,omitempty"`
	SourceHash  string         `gorm:"column:source_hash;not null" json:"source_hash"`
	Attributes  datatypes.JSON `gorm:"column:attributes" json:"attributes,omitempty"`
	Locations   datatypes.JSON `gorm:"column:locations" json:"locations,omitempty"`
	Finalized   bool           `gorm:"column:finalized;not null;default:false;index" json:"finalized"`
	FinalizedAt *time.Time     `gorm:"column:finalized_at" json:"finalized_at,omitempty"`
	CreatedAt   time.Time      `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (Record) TableName() string { return "staging_record" }

func (r *Record) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// Slot is one raw equipment string of a staging record. SlotIndex is unique
// within the record and follows file order across locations.
type Slot struct {
	ID               uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	StagingRecordID  uuid.UUID       `gorm:"type:uuid;column:staging_record_id;not null;uniqueIndex:idx_staging_slot_position,priority:1" json:"staging_record_id"`
	SlotIndex        int             `gorm:"column:slot_index;not null;uniqueIndex:idx_staging_slot_position,priority:2" json:"slot_index"`
	LocationName     string          `gorm:"column:location_name;not null" json:"location_name"`
	LocationSlot     int             `gorm:"column:location_slot;not null" json:"location_slot"`
	RawText          string          `gorm:"column:raw_text;not null" json:"raw_text"`
	NormalizedText   string          `gorm:"column:normalized_text;not null;index" json:"normalized_text"`
	ResolvedWeaponID *uuid.UUID      `gorm:"type:uuid;column:resolved_weapon_id;index" json:"resolved_weapon_id,omitempty"`
	ResolutionState  ResolutionState `gorm:"column:resolution_state;not null;index" json:"resolution_state"`
	ResolutionMethod string          `gorm:"column:resolution_method" json:"resolution_method,omitempty"`
	ResolvedAt       *time.Time      `gorm:"column:resolved_at" json:"resolved_at,omitempty"`
}

func (Slot) TableName() string { return "staging_slot" }

func (s *Slot) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// UnresolvedToken counts failed resolution attempts per normalized text.
// Diagnostic only.
type UnresolvedToken struct {
	Token      string    `gorm:"column:token;primaryKey" json:"token"`
	SampleRaw  string    `gorm:"column:sample_raw;not null" json:"sample_raw"`
	Count      int64     `gorm:"column:count;not null;default:0;index" json:"count"`
	LastSeenAt time.Time `gorm:"column:last_seen_at;not null" json:"last_seen_at"`
}

func (UnresolvedToken) TableName() string { return "unresolved_token" }

// IngestLog records the outcome of each pipeline stage per source file.
type IngestLog struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	SourceFile      string     `gorm:"column:source_file;index" json:"source_file"`
	UnitClass       string     `gorm:"column:unit_class" json:"unit_class"`
	StagingRecordID *uuid.UUID `gorm:"type:uuid;column:staging_record_id;index" json:"staging_record_id,omitempty"`
	Stage           string     `gorm:"column:stage;not null;index" json:"stage"`
	Outcome         string     `gorm:"column:outcome;not null;index" json:"outcome"`
	Code            string     `gorm:"column:code" json:"code,omitempty"`
	Message         string     `gorm:"column:message" json:"message,omitempty"`
	CreatedAt       time.Time  `gorm:"not null;autoCreateTime;index" json:"created_at"`
}

func (IngestLog) TableName() string { return "ingest_log" }

func (l *IngestLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
