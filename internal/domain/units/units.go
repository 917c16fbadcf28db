package units

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Unit is the production record of a finalized staging record. Its ID is
// kept across re-finalization of the same (external_key, variant).
type Unit struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ExternalKey     string         `gorm:"column:external_key;not null;uniqueIndex:idx_finalized_unit_identity,priority:1" json:"external_key"`
	Variant         string         `gorm:"column:variant;not null;uniqueIndex:idx_finalized_unit_identity,priority:2" json:"variant"`
	Name            string         `gorm:"column:name;not null;index" json:"name"`
	MulID           string         `gorm:"column:mul_id;index" json:"mul_id,omitempty"`
	UnitClass       string         `gorm:"column:unit_class;not null;index" json:"unit_class"`
	StagingRecordID uuid.UUID      `gorm:"type:uuid;column:staging_record_id;not null;index" json:"staging_record_id"`
	Attributes      datatypes.JSON `gorm:"column:attributes" json:"attributes,omitempty"`
	Locations       datatypes.JSON `gorm:"column:locations" json:"locations,omitempty"`
	BattleValue     *int           `gorm:"column:battle_value" json:"battle_value,omitempty"`
	PointValue      *int           `gorm:"column:point_value" json:"point_value,omitempty"`
	ValuedAt        *time.Time     `gorm:"column:valued_at" json:"valued_at,omitempty"`
	FinalizedAt     time.Time      `gorm:"column:finalized_at;not null" json:"finalized_at"`
	CreatedAt       time.Time      `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`

	Slots     []Slot           `gorm:"foreignKey:FinalizedUnitID" json:"slots,omitempty"`
	Instances []WeaponInstance `gorm:"foreignKey:FinalizedUnitID" json:"weapon_instances,omitempty"`
}

func (Unit) TableName() string { return "finalized_unit" }

func (u *Unit) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// Rated reports whether both ratings are set.
func (u *Unit) Rated() bool {
	return u.BattleValue != nil && u.PointValue != nil
}

type Slot struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	FinalizedUnitID uuid.UUID  `gorm:"type:uuid;column:finalized_unit_id;not null;uniqueIndex:idx_finalized_slot_position,priority:1" json:"finalized_unit_id"`
	SlotIndex       int        `gorm:"column:slot_index;not null;uniqueIndex:idx_finalized_slot_position,priority:2" json:"slot_index"`
	LocationName    string     `gorm:"column:location_name;not null" json:"location_name"`
	LocationSlot    int        `gorm:"column:location_slot;not null" json:"location_slot"`
	RawText         string     `gorm:"column:raw_text;not null" json:"raw_text"`
	ResolutionState string     `gorm:"column:resolution_state;not null" json:"resolution_state"`
	WeaponID        *uuid.UUID `gorm:"type:uuid;column:weapon_id;index" json:"weapon_id,omitempty"`
}

func (Slot) TableName() string { return "finalized_slot" }

func (s *Slot) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// WeaponInstance exists for every finalized slot that resolved to a weapon.
type WeaponInstance struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	FinalizedUnitID uuid.UUID `gorm:"type:uuid;column:finalized_unit_id;not null;index" json:"finalized_unit_id"`
	FinalizedSlotID uuid.UUID `gorm:"type:uuid;column:finalized_slot_id;not null;uniqueIndex" json:"finalized_slot_id"`
	WeaponID        uuid.UUID `gorm:"type:uuid;column:weapon_id;not null;index" json:"weapon_id"`
	LocationName    string    `gorm:"column:location_name;not null" json:"location_name"`
}

func (WeaponInstance) TableName() string { return "weapon_instance" }

func (w *WeaponInstance) BeforeCreate(tx *gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}
