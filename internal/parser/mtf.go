package parser

import (
	"bufio"
	"bytes"
	"regexp"
	"strconv"
	"strings"
)

var (
	mtfLocationKey = regexp.MustCompile(`(?i)\b(arm|torso|head|leg)\b`)
	mtfArmorKey    = regexp.MustCompile(`(?i)^([a-z]{2,3}) armor$`)
)

// mtfArmorLocations maps the armor line prefixes onto location names. Rear
// torso armor is recorded on the torso location itself.
var mtfArmorLocations = map[string]struct {
	name string
	rear bool
}{
	"la":  {"Left Arm", false},
	"ra":  {"Right Arm", false},
	"lt":  {"Left Torso", false},
	"rt":  {"Right Torso", false},
	"ct":  {"Center Torso", false},
	"hd":  {"Head", false},
	"ll":  {"Left Leg", false},
	"rl":  {"Right Leg", false},
	"cl":  {"Center Leg", false},
	"fll": {"Front Left Leg", false},
	"frl": {"Front Right Leg", false},
	"rll": {"Rear Left Leg", false},
	"rrl": {"Rear Right Leg", false},
	"rtl": {"Left Torso", true},
	"rtr": {"Right Torso", true},
	"rtc": {"Center Torso", true},
}

type mtfSection struct {
	key   string
	line  int
	lines []string
}

type mtfArmor struct {
	loc   string
	rear  bool
	value int
}

// ParseMTF parses the line-oriented "Key:value" mech format. A header with an
// empty value opens a block; blocks named after a body location (arm, torso,
// head, leg) are equipment locations whose lines are raw slot strings.
func ParseMTF(src []byte) (*ParsedUnit, error) {
	u := &ParsedUnit{Class: ClassMech, Format: FormatMTF, Attributes: map[string]string{}}

	var (
		section   *mtfSection
		lastKey   string
		sawHeader bool
		armor     []mtfArmor
		seen      = map[string]int{}
	)

	flush := func() error {
		if section == nil {
			return nil
		}
		s := section
		section = nil
		if mtfLocationKey.MatchString(s.key) {
			name := strings.TrimSpace(s.key)
			if first, dup := seen[strings.ToLower(name)]; dup {
				return malformed(FormatMTF, s.line, "duplicate location section %q (first at line %d)", name, first)
			}
			seen[strings.ToLower(name)] = s.line
			u.Locations = append(u.Locations, ParsedLocation{Name: name, Slots: s.lines})
			return nil
		}
		if len(s.lines) > 0 {
			u.setAttr(headerKey(s.key), strings.Join(s.lines, "\n"))
		}
		return nil
	}

	sc := bufio.NewScanner(bytes.NewReader(src))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, isHeader := splitMTFHeader(line)
		if !isHeader {
			switch {
			case !sawHeader:
				return nil, malformed(FormatMTF, lineNo, "text before first header: %q", line)
			case section != nil:
				section.lines = append(section.lines, line)
			default:
				// continuation of the previous valued header, e.g. the
				// weapon summary following "Weapons:4"
				u.setAttr(lastKey, line)
			}
			continue
		}

		if err := flush(); err != nil {
			return nil, err
		}
		sawHeader = true
		if val == "" {
			section = &mtfSection{key: key, line: lineNo}
			lastKey = headerKey(key)
			continue
		}

		k := headerKey(key)
		lastKey = k
		switch {
		case k == "chassis" || k == "name":
			u.Name = val
		case k == "model":
			u.Model = val
		case k == "mul id":
			u.MulID = val
			u.setAttr(k, val)
		case mtfArmorKey.MatchString(k):
			prefix := mtfArmorKey.FindStringSubmatch(k)[1]
			loc, ok := mtfArmorLocations[prefix]
			n, err := strconv.Atoi(val)
			if !ok || err != nil {
				u.setAttr(k, val)
				continue
			}
			armor = append(armor, mtfArmor{loc: loc.name, rear: loc.rear, value: n})
		default:
			u.setAttr(k, val)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, malformed(FormatMTF, lineNo, "read: %v", err)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	if !sawHeader {
		return nil, malformed(FormatMTF, 0, "no header lines")
	}

	for _, a := range armor {
		loc := u.location(a.loc)
		if loc == nil {
			u.Locations = append(u.Locations, ParsedLocation{Name: a.loc})
			loc = &u.Locations[len(u.Locations)-1]
		}
		v := a.value
		if a.rear {
			loc.RearArmor = &v
		} else {
			loc.Armor = &v
		}
	}
	u.fillDefaults()
	return u, nil
}

// splitMTFHeader splits "Key:value" on the first colon. Keys never start with
// a bracket or dash, which keeps slot text like "-Empty-" out.
func splitMTFHeader(line string) (key, val string, ok bool) {
	i := strings.IndexByte(line, ':')
	if i <= 0 {
		return "", "", false
	}
	key = strings.TrimSpace(line[:i])
	if key == "" || strings.ContainsAny(key[:1], "-([") {
		return "", "", false
	}
	return key, strings.TrimSpace(line[i+1:]), true
}

func headerKey(key string) string {
	return strings.Join(strings.Fields(strings.ToLower(key)), " ")
}
