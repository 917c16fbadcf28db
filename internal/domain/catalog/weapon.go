package catalog

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Weapon is a canonical catalog entry. Rows are loaded by the catalog import
// and only ever gain aliases afterwards.
type Weapon struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Name           string         `gorm:"column:name;not null" json:"name"`
	NormalizedName string         `gorm:"column:normalized_name;not null;uniqueIndex" json:"normalized_name"`
	Category       string         `gorm:"column:category;not null;default:'';index" json:"category"`
	Damage         *int           `gorm:"column:damage" json:"damage,omitempty"`
	Heat           *int           `gorm:"column:heat" json:"heat,omitempty"`
	Tonnage        *float64       `gorm:"column:tonnage" json:"tonnage,omitempty"`
	Crits          *int           `gorm:"column:crits" json:"crits,omitempty"`
	Attributes     datatypes.JSON `gorm:"column:attributes" json:"attributes,omitempty"`
	CreatedAt      time.Time      `gorm:"not null;autoCreateTime" json:"created_at"`
}

func (Weapon) TableName() string { return "weapon" }

func (w *Weapon) BeforeCreate(tx *gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}

const (
	AliasSourceManual    = "manual"
	AliasSourceGenerated = "generated"
	AliasSourceImport    = "import"
)

// WeaponAlias maps an alternate normalized spelling onto one weapon.
type WeaponAlias struct {
	Alias     string    `gorm:"column:alias;primaryKey" json:"alias"`
	WeaponID  uuid.UUID `gorm:"type:uuid;column:weapon_id;not null;index" json:"weapon_id"`
	Source    string    `gorm:"column:source;not null;default:'manual'" json:"source"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
}

func (WeaponAlias) TableName() string { return "weapon_alias" }
