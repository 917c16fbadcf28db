package normalization

import (
	"sort"
	"strings"
)

// expansions maps a catalog abbreviation token to the spellings found in
// unit files.
var expansions = map[string][]string{
	"ac":     {"autocannon"},
	"lrm":    {"long range missile"},
	"srm":    {"short range missile"},
	"ppc":    {"particle projection cannon"},
	"er":     {"extended range"},
	"laser":  {"las"},
	"lg":     {"large", "l"},
	"med":    {"medium", "m"},
	"sm":     {"small", "s"},
	"pulse":  {"p"},
	"ultra":  {"u"},
	"gauss":  {"gauss rifle"},
	"mg":     {"machine gun"},
	"flamer": {"flame"},
}

// GenerateAliases returns normalized alternate spellings for a catalog name,
// excluding the normalized name itself. Output is sorted.
func GenerateAliases(name string) []string {
	canonical := Normalize(name)
	if canonical == "" {
		return nil
	}
	set := map[string]struct{}{}
	add := func(s string) {
		s = Normalize(s)
		if s != "" && s != canonical {
			set[s] = struct{}{}
		}
	}

	add(strings.ReplaceAll(canonical, " ", ""))
	if strings.Contains(canonical, "-") {
		add(strings.ReplaceAll(canonical, "-", " "))
		add(strings.ReplaceAll(canonical, "-", ""))
	}

	words := strings.Fields(canonical)
	for i, w := range words {
		for _, repl := range expansions[w] {
			expanded := make([]string, len(words))
			copy(expanded, words)
			expanded[i] = repl
			joined := strings.Join(expanded, " ")
			add(joined)
			add(strings.ReplaceAll(joined, " ", ""))
		}
	}

	// "ac 10" also appears as "ac10" and "ac-10".
	toks := Tokens(canonical)
	if n := len(toks); n >= 2 && isNumber(toks[n-1]) && !isNumber(toks[n-2]) {
		prefix := strings.Join(toks[:n-1], " ")
		add(prefix + toks[n-1])
		add(prefix + "-" + toks[n-1])
		add(prefix + " " + toks[n-1])
	}

	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func isNumber(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' {
			return false
		}
	}
	return true
}
