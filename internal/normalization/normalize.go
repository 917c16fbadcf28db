package normalization

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize folds raw equipment text into its comparison form: diacritics
// removed, lowercased, punctuation other than hyphens replaced by spaces and
// whitespace collapsed. "AC/20" becomes "ac 20".
func Normalize(s string) string {
	s = strings.TrimSpace(fold(s))
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	rs := []rune(strings.ToLower(s))
	for i, r := range rs {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-':
			b.WriteRune(r)
		case r == '.' && i > 0 && i < len(rs)-1 && unicode.IsDigit(rs[i-1]) && unicode.IsDigit(rs[i+1]):
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Tokens splits a normalized string into match tokens. Hyphens separate
// tokens and letter/digit boundaries are split, so "lrm-15" and "lrm15" both
// yield [lrm 15].
func Tokens(normalized string) []string {
	fields := strings.FieldsFunc(normalized, func(r rune) bool {
		return r == ' ' || r == '-'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		out = append(out, splitAlphaNum(f)...)
	}
	return out
}

// TokenSet is Tokens as a set.
func TokenSet(normalized string) map[string]struct{} {
	toks := Tokens(normalized)
	set := make(map[string]struct{}, len(toks))
	for _, t := range toks {
		set[t] = struct{}{}
	}
	return set
}

func splitAlphaNum(tok string) []string {
	rs := []rune(tok)
	if len(rs) < 2 {
		return []string{tok}
	}
	var out []string
	start := 0
	for i := 1; i < len(rs); i++ {
		prevDigit := unicode.IsDigit(rs[i-1]) || rs[i-1] == '.'
		curDigit := unicode.IsDigit(rs[i]) || rs[i] == '.'
		if prevDigit != curDigit {
			out = append(out, string(rs[start:i]))
			start = i
		}
	}
	return append(out, string(rs[start:]))
}

func fold(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
