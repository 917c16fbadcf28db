package parser

import (
	"bufio"
	"bytes"
	"regexp"
	"strconv"
	"strings"
)

var (
	blkOpenTag   = regexp.MustCompile(`^<([^/>][^>]*)>$`)
	blkCloseTag  = regexp.MustCompile(`^</([^>]+)>$`)
	blkInlineTag = regexp.MustCompile(`^<([^/>][^>]*)>(.*)</([^>]+)>$`)
)

// blkArmorLocations lists, per class, the location each positional <armor>
// value belongs to.
var blkArmorLocations = map[UnitClass][]string{
	ClassVehicle:     {"Front", "Left", "Right", "Rear", "Turret"},
	ClassAerospace:   {"Nose", "Left Wing", "Right Wing", "Aft"},
	ClassBattleArmor: {"Squad"},
	ClassInfantry:    {"Platoon"},
}

type blkTag struct {
	name  string
	line  int
	lines []string
}

// ParseBLK parses the tag-delimited format used by vehicles, aerospace,
// battle armor and infantry. "<X Equipment>" blocks are locations; <armor>
// holds one value per line in class-specific location order.
func ParseBLK(src []byte, class UnitClass) (*ParsedUnit, error) {
	if class == "" {
		class = ClassVehicle
	}
	u := &ParsedUnit{Class: class, Format: FormatBLK, Attributes: map[string]string{}}

	var (
		open    *blkTag
		sawTag  bool
		armor   []int
		seenLoc = map[string]int{}
	)

	apply := func(t *blkTag) error {
		lower := headerKey(t.name)
		content := strings.TrimSpace(strings.Join(t.lines, "\n"))
		switch {
		case lower == "name":
			u.Name = content
		case lower == "model":
			u.Model = content
		case lower == "mul id:" || lower == "mul id" || lower == "mulid":
			u.MulID = content
			u.setAttr("mul id", content)
		case lower == "armor":
			for _, l := range t.lines {
				if n, err := strconv.Atoi(strings.TrimSpace(l)); err == nil {
					armor = append(armor, n)
				}
			}
		case strings.HasSuffix(lower, "equipment"):
			name := strings.TrimSpace(t.name[:len(t.name)-len("equipment")])
			if name == "" {
				name = "Body"
			}
			key := strings.ToLower(name)
			if first, dup := seenLoc[key]; dup {
				return malformed(FormatBLK, t.line, "duplicate location section %q (first at line %d)", name, first)
			}
			seenLoc[key] = t.line
			slots := make([]string, 0, len(t.lines))
			for _, l := range t.lines {
				if l = strings.TrimSpace(l); l != "" {
					slots = append(slots, l)
				}
			}
			u.Locations = append(u.Locations, ParsedLocation{Name: name, Slots: slots})
		case lower == "blockversion":
		default:
			u.setAttr(lower, content)
		}
		return nil
	}

	sc := bufio.NewScanner(bytes.NewReader(src))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "#") {
			continue
		}

		if open == nil {
			if line == "" {
				continue
			}
			if m := blkInlineTag.FindStringSubmatch(line); m != nil {
				if !strings.EqualFold(strings.TrimSpace(m[1]), strings.TrimSpace(m[3])) {
					return nil, malformed(FormatBLK, lineNo, "tag <%s> closed by </%s>", m[1], m[3])
				}
				sawTag = true
				if err := apply(&blkTag{name: strings.TrimSpace(m[1]), line: lineNo, lines: []string{m[2]}}); err != nil {
					return nil, err
				}
				continue
			}
			if m := blkOpenTag.FindStringSubmatch(line); m != nil {
				sawTag = true
				open = &blkTag{name: strings.TrimSpace(m[1]), line: lineNo}
				continue
			}
			if m := blkCloseTag.FindStringSubmatch(line); m != nil {
				return nil, malformed(FormatBLK, lineNo, "closing tag </%s> without opening tag", m[1])
			}
			return nil, malformed(FormatBLK, lineNo, "text outside of any tag: %q", line)
		}

		if m := blkCloseTag.FindStringSubmatch(line); m != nil {
			if !strings.EqualFold(strings.TrimSpace(m[1]), open.name) {
				return nil, malformed(FormatBLK, lineNo, "tag <%s> (line %d) closed by </%s>", open.name, open.line, m[1])
			}
			if err := apply(open); err != nil {
				return nil, err
			}
			open = nil
			continue
		}
		if blkOpenTag.MatchString(line) {
			return nil, malformed(FormatBLK, open.line, "tag <%s> is never closed", open.name)
		}
		open.lines = append(open.lines, line)
	}
	if err := sc.Err(); err != nil {
		return nil, malformed(FormatBLK, lineNo, "read: %v", err)
	}
	if open != nil {
		return nil, malformed(FormatBLK, open.line, "tag <%s> is never closed", open.name)
	}
	if !sawTag {
		return nil, malformed(FormatBLK, 0, "no tags found")
	}

	names := blkArmorLocations[class]
	for i, v := range armor {
		name := "Location " + strconv.Itoa(i+1)
		if i < len(names) {
			name = names[i]
		}
		loc := u.location(name)
		if loc == nil {
			u.Locations = append(u.Locations, ParsedLocation{Name: name})
			loc = &u.Locations[len(u.Locations)-1]
		}
		val := v
		loc.Armor = &val
	}
	u.fillDefaults()
	return u, nil
}

// scanTag returns the trimmed content of the first <tag> block, matching
// the tag name case-insensitively. It does not validate the file.
func scanTag(src []byte, tag string) (string, bool) {
	sc := bufio.NewScanner(bytes.NewReader(src))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	inside := false
	var lines []string
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if m := blkInlineTag.FindStringSubmatch(line); m != nil && !inside && strings.EqualFold(strings.TrimSpace(m[1]), tag) {
			return strings.TrimSpace(m[2]), true
		}
		if m := blkOpenTag.FindStringSubmatch(line); m != nil && !inside && strings.EqualFold(strings.TrimSpace(m[1]), tag) {
			inside = true
			continue
		}
		if inside {
			if blkCloseTag.MatchString(line) {
				return strings.TrimSpace(strings.Join(lines, "\n")), true
			}
			lines = append(lines, line)
		}
	}
	return "", false
}
