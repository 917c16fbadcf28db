package normalization

import "strings"

var emptyVariants = map[string]struct{}{
	"":          {},
	"empty":     {},
	"-empty-":   {},
	"-empty":    {},
	"empty-":    {},
	"- empty -": {},
	"none":      {},
	"n a":       {},
	"-":         {},
	"--":        {},
}

// structuralKeywords are token sequences naming fixed, non-weapon components.
var structuralKeywords = [][]string{
	{"actuator"},
	{"shoulder"},
	{"upper", "arm"},
	{"lower", "arm"},
	{"hand"},
	{"hip"},
	{"upper", "leg"},
	{"lower", "leg"},
	{"foot"},
	{"engine"},
	{"gyro"},
	{"cockpit"},
	{"life", "support"},
	{"sensors"},
	{"heat", "sink"},
	{"heatsink"},
	{"double", "heat", "sink"},
	{"jump", "jet"},
	{"case"},
	{"endo", "steel"},
	{"ferro", "fibrous"},
	{"armor"},
	{"structure"},
	{"roll", "cage"},
}

// IsEmpty reports whether the normalized slot text denotes an empty slot.
func IsEmpty(normalized string) bool {
	_, ok := emptyVariants[strings.TrimSpace(normalized)]
	return ok
}

// IsStructural reports whether a normalized slot needs no catalog match:
// empty markers and fixed components such as actuators, engine or gyro.
func IsStructural(normalized string) bool {
	if IsEmpty(normalized) {
		return true
	}
	toks := strings.FieldsFunc(normalized, func(r rune) bool { return r == ' ' || r == '-' })
	for _, kw := range structuralKeywords {
		if containsSeq(toks, kw) {
			return true
		}
	}
	return false
}

func containsSeq(toks, seq []string) bool {
	if len(seq) == 0 || len(seq) > len(toks) {
		return false
	}
outer:
	for i := 0; i+len(seq) <= len(toks); i++ {
		for j := range seq {
			if toks[i+j] != seq[j] {
				continue outer
			}
		}
		return true
	}
	return false
}
