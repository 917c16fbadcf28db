package parser

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yungbote/mechdata-backend/internal/domain/pipelineerr"
)

const atlasMTF = `# Atlas sample
chassis:Atlas
model:AS7-D
mul id:140
Config:Biped
techbase:Inner Sphere
Mass:100
LA armor:34
RTL armor:10
quirk:command_mech
quirk:ubiquitous_is

Weapons:2
AC/20, Right Torso
Medium Laser, Left Arm

Left Arm:
Shoulder
Upper Arm Actuator
Medium Laser
-Empty-

Right Torso:
AC/20
AC/20

Head:
`

const demolisherBLK = `#building block data file
<BlockVersion>
1
</BlockVersion>

<Name>
Demolisher Heavy Tank
</Name>

<Model>
Standard
</Model>

<mul id:>
845
</mul id:>

<UnitType>
Tank
</UnitType>

<armor>
50
30
30
24
40
</armor>

<Front Equipment>
AC/20
</Front Equipment>

<Turret Equipment>
AC/20
Ammo AC/20
</Turret Equipment>

<Body Equipment>
</Body Equipment>

<tonnage>80.0</tonnage>
`

func syntaxErr(t *testing.T, err error) *SyntaxError {
	t.Helper()
	require.Error(t, err)
	assert.True(t, pipelineerr.IsCode(err, pipelineerr.CodeMalformedSource), "want malformed_source, got %v", err)
	var se *SyntaxError
	require.True(t, errors.As(err, &se), "want *SyntaxError in chain, got %T", err)
	return se
}

func TestParseMTF(t *testing.T) {
	u, err := ParseMTF([]byte(atlasMTF))
	require.NoError(t, err)

	assert.Equal(t, ClassMech, u.Class)
	assert.Equal(t, FormatMTF, u.Format)
	assert.Equal(t, "Atlas", u.Name)
	assert.Equal(t, "AS7-D", u.Variant())
	assert.Equal(t, "mul:140", u.ExternalKey())
	assert.Equal(t, "command_mech\nubiquitous_is", u.Attributes["quirk"])
	assert.Equal(t, "2\nAC/20, Right Torso\nMedium Laser, Left Arm", u.Attributes["weapons"])
	assert.Equal(t, "Biped", u.Attributes["config"])

	require.Len(t, u.Locations, 4)
	assert.Equal(t, "Left Arm", u.Locations[0].Name)
	assert.Equal(t, []string{"Shoulder", "Upper Arm Actuator", "Medium Laser", "-Empty-"}, u.Locations[0].Slots)
	require.NotNil(t, u.Locations[0].Armor)
	assert.Equal(t, 34, *u.Locations[0].Armor)
	assert.Equal(t, []string{"AC/20", "AC/20"}, u.Locations[1].Slots)
	assert.Equal(t, "Head", u.Locations[2].Name)
	assert.Empty(t, u.Locations[2].Slots)
	assert.Equal(t, "Left Torso", u.Locations[3].Name)
	require.NotNil(t, u.Locations[3].RearArmor)
	assert.Equal(t, 10, *u.Locations[3].RearArmor)
	assert.Equal(t, 6, u.SlotCount())
}

func TestParseMTFDefaultsMissingIdentity(t *testing.T) {
	u, err := ParseMTF([]byte("Left Arm:\nShoulder\n"))
	require.NoError(t, err)
	assert.Equal(t, Unknown, u.Name)
	assert.Equal(t, Unknown, u.Variant())
	assert.Equal(t, "mech:unknown", u.ExternalKey())
	require.Len(t, u.Locations, 1)
}

func TestParseMTFMalformed(t *testing.T) {
	cases := []struct {
		name string
		src  string
		line int
	}{
		{"empty file", "", 0},
		{"comments only", "# nothing here\n\n", 0},
		{"text before header", "Atlas\nchassis:Atlas\n", 1},
		{"duplicate location", "chassis:Atlas\nLeft Arm:\nShoulder\nLeft Arm:\nHand\n", 4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseMTF([]byte(tc.src))
			se := syntaxErr(t, err)
			assert.Equal(t, tc.line, se.Line)
			assert.Equal(t, FormatMTF, se.Format)
		})
	}
}

func TestParseBLK(t *testing.T) {
	u, err := ParseBLK([]byte(demolisherBLK), ClassVehicle)
	require.NoError(t, err)

	assert.Equal(t, "Demolisher Heavy Tank", u.Name)
	assert.Equal(t, "Standard", u.Variant())
	assert.Equal(t, "mul:845", u.ExternalKey())
	assert.Equal(t, "Tank", u.Attributes["unittype"])
	assert.Equal(t, "80.0", u.Attributes["tonnage"])
	assert.NotContains(t, u.Attributes, "blockversion")

	names := make([]string, 0, len(u.Locations))
	for _, l := range u.Locations {
		names = append(names, l.Name)
	}
	assert.Equal(t, []string{"Front", "Turret", "Body", "Left", "Right", "Rear"}, names)
	assert.Equal(t, []string{"AC/20", "Ammo AC/20"}, u.Locations[1].Slots)
	assert.Empty(t, u.Locations[2].Slots)
	require.NotNil(t, u.Locations[0].Armor)
	assert.Equal(t, 50, *u.Locations[0].Armor)
	assert.Equal(t, 40, *u.Locations[1].Armor)
	assert.Equal(t, 24, *u.Locations[5].Armor)
}

func TestParseBLKMalformed(t *testing.T) {
	cases := []struct {
		name string
		src  string
		line int
	}{
		{"no tags", "# just a comment\n", 0},
		{"unclosed", "<Name>\nDemolisher\n", 1},
		{"mismatched close", "<Name>\nDemolisher\n</Model>\n", 3},
		{"stray text", "Demolisher\n<Name>\nDemolisher\n</Name>\n", 1},
		{"close without open", "</Name>\n", 1},
		{"nested open", "<Name>\n<Model>\nX\n</Model>\n", 1},
		{"duplicate location", "<Body Equipment>\nAC/20\n</Body Equipment>\n<Body Equipment>\n</Body Equipment>\n", 4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseBLK([]byte(tc.src), ClassVehicle)
			se := syntaxErr(t, err)
			assert.Equal(t, tc.line, se.Line)
		})
	}
}

func TestParseDispatchesByClass(t *testing.T) {
	u, err := Parse(ClassMech, []byte(atlasMTF))
	require.NoError(t, err)
	assert.Equal(t, FormatMTF, u.Format)

	u, err = Parse(ClassAerospace, []byte("<Name>\nSparrowhawk\n</Name>\n<armor>\n20\n15\n15\n10\n</armor>\n"))
	require.NoError(t, err)
	assert.Equal(t, ClassAerospace, u.Class)
	assert.Equal(t, FormatBLK, u.Format)
	require.Len(t, u.Locations, 4)
	assert.Equal(t, "Nose", u.Locations[0].Name)
	assert.Equal(t, "aerospace:sparrowhawk", u.ExternalKey())

	_, err = Parse(UnitClass("walker"), []byte(atlasMTF))
	assert.True(t, pipelineerr.IsCode(err, pipelineerr.CodeValidation))
}

func TestDetectClass(t *testing.T) {
	c, err := DetectClass("units/Atlas AS7-D.mtf", nil)
	require.NoError(t, err)
	assert.Equal(t, ClassMech, c)

	c, err = DetectClass("units/elemental.blk", []byte("<UnitType>\nBattleArmor\n</UnitType>\n"))
	require.NoError(t, err)
	assert.Equal(t, ClassBattleArmor, c)

	c, err = DetectClass("units/demolisher.BLK", []byte(demolisherBLK))
	require.NoError(t, err)
	assert.Equal(t, ClassVehicle, c)

	_, err = DetectClass("units/readme.txt", nil)
	assert.Error(t, err)
}

func TestParseUnitClass(t *testing.T) {
	c, err := ParseUnitClass("BA")
	require.NoError(t, err)
	assert.Equal(t, ClassBattleArmor, c)
	_, err = ParseUnitClass("dropship-ish")
	assert.Error(t, err)
}
