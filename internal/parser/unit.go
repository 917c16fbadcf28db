package parser

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/yungbote/mechdata-backend/internal/domain/pipelineerr"
	"github.com/yungbote/mechdata-backend/internal/normalization"
)

// Unknown is the sentinel for identity fields a source file leaves out.
const Unknown = "unknown"

// Format is the source grammar of a unit file.
type Format string

const (
	FormatMTF Format = "mtf"
	FormatBLK Format = "blk"
)

// UnitClass tags the kind of unit a file describes. Mechs use MTF; every
// other class uses BLK.
type UnitClass string

const (
	ClassMech        UnitClass = "mech"
	ClassVehicle     UnitClass = "vehicle"
	ClassAerospace   UnitClass = "aerospace"
	ClassBattleArmor UnitClass = "battlearmor"
	ClassInfantry    UnitClass = "infantry"
)

var AllClasses = []UnitClass{ClassMech, ClassVehicle, ClassAerospace, ClassBattleArmor, ClassInfantry}

func (c UnitClass) Format() Format {
	if c == ClassMech {
		return FormatMTF
	}
	return FormatBLK
}

func (c UnitClass) Valid() bool {
	for _, v := range AllClasses {
		if c == v {
			return true
		}
	}
	return false
}

// ParseUnitClass accepts class names and the common shorthands used on the
// command line ("tank", "ba", "aero").
func ParseUnitClass(s string) (UnitClass, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mech", "mek", "battlemech":
		return ClassMech, nil
	case "vehicle", "tank", "vee", "vtol":
		return ClassVehicle, nil
	case "aerospace", "aero", "fighter":
		return ClassAerospace, nil
	case "battlearmor", "battle armor", "ba":
		return ClassBattleArmor, nil
	case "infantry", "inf":
		return ClassInfantry, nil
	}
	return "", pipelineerr.New(pipelineerr.CodeValidation, "parser.class", fmt.Sprintf("unknown unit class %q", s), nil)
}

// ClassFromUnitType maps a BLK <UnitType> value onto a unit class.
func ClassFromUnitType(unitType string) (UnitClass, bool) {
	switch strings.ToLower(strings.TrimSpace(unitType)) {
	case "tank", "supporttank", "largesupporttank", "vtol", "supportvtol", "naval", "gunemplacement":
		return ClassVehicle, true
	case "aero", "aerospacefighter", "convfighter", "fixedwingsupport", "smallcraft", "dropship":
		return ClassAerospace, true
	case "battlearmor":
		return ClassBattleArmor, true
	case "infantry", "conventionalinfantry":
		return ClassInfantry, true
	case "mech", "biped", "quad", "tripod":
		return ClassMech, true
	}
	return "", false
}

// DetectClass infers the unit class of a file from its extension and, for
// BLK files, its <UnitType> tag. Unrecognized BLK files default to vehicle.
func DetectClass(path string, src []byte) (UnitClass, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mtf":
		return ClassMech, nil
	case ".blk":
		if ut, ok := scanTag(src, "unittype"); ok {
			if c, ok := ClassFromUnitType(ut); ok {
				return c, nil
			}
		}
		return ClassVehicle, nil
	}
	return "", pipelineerr.New(pipelineerr.CodeValidation, "parser.detect", fmt.Sprintf("cannot infer unit class for %q", path), nil)
}

// ParsedUnit is the format-independent result of parsing one unit file.
type ParsedUnit struct {
	Class      UnitClass
	Format     Format
	Name       string
	Model      string
	MulID      string
	Attributes map[string]string
	Locations  []ParsedLocation
}

// ParsedLocation is one physical location with its raw slot strings in file order.
type ParsedLocation struct {
	Name      string   `json:"name"`
	Slots     []string `json:"slots"`
	Armor     *int     `json:"armor,omitempty"`
	RearArmor *int     `json:"rear_armor,omitempty"`
}

// ExternalKey is the stable identity of the unit across re-ingests: the MUL
// id when present, otherwise class plus normalized name.
func (u *ParsedUnit) ExternalKey() string {
	if id := strings.TrimSpace(u.MulID); id != "" {
		return "mul:" + id
	}
	return string(u.Class) + ":" + normalization.Normalize(u.Name)
}

func (u *ParsedUnit) Variant() string {
	if m := strings.TrimSpace(u.Model); m != "" {
		return m
	}
	return Unknown
}

func (u *ParsedUnit) DisplayName() string {
	if u.Variant() == Unknown {
		return u.Name
	}
	return u.Name + " " + u.Variant()
}

// SlotCount is the number of raw slot strings across all locations.
func (u *ParsedUnit) SlotCount() int {
	n := 0
	for _, l := range u.Locations {
		n += len(l.Slots)
	}
	return n
}

func (u *ParsedUnit) location(name string) *ParsedLocation {
	for i := range u.Locations {
		if strings.EqualFold(u.Locations[i].Name, name) {
			return &u.Locations[i]
		}
	}
	return nil
}

func (u *ParsedUnit) setAttr(key, val string) {
	if u.Attributes == nil {
		u.Attributes = map[string]string{}
	}
	if prev, ok := u.Attributes[key]; ok && prev != "" {
		u.Attributes[key] = prev + "\n" + val
		return
	}
	u.Attributes[key] = val
}

func (u *ParsedUnit) fillDefaults() {
	if strings.TrimSpace(u.Name) == "" {
		u.Name = Unknown
	}
	if strings.TrimSpace(u.Model) == "" {
		u.Model = Unknown
	}
	if u.Attributes == nil {
		u.Attributes = map[string]string{}
	}
}
