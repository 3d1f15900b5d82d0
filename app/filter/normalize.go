package filter

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripMarks removes combining marks (Hebrew niqqud and cantillation) so
// that vocalized and unvocalized spellings compare equal.
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeName canonicalizes a restaurant name for matching: lowercase,
// trimmed, niqqud removed, the Hebrew geresh folded to an ASCII apostrophe,
// and punctuation outside Hebrew letters, ASCII word characters, spaces and
// apostrophes stripped.
func NormalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return ""
	}

	if stripped, _, err := transform.String(stripMarks, name); err == nil {
		name = stripped
	}
	name = strings.ReplaceAll(name, "׳", "'")

	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case unicode.Is(unicode.Hebrew, r):
			b.WriteRune(r)
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_':
			b.WriteRune(r)
		case r == ' ' || r == '\t':
			b.WriteRune(' ')
		case r == '\'':
			b.WriteRune(r)
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

// StripArticle removes a single leading definite-article ה from a word that
// is long enough to still be a word without it.
func StripArticle(word string) string {
	r := []rune(word)
	if len(r) > 2 && r[0] == 'ה' {
		return string(r[1:])
	}
	return word
}

func tokens(name string) []string {
	return strings.Fields(name)
}
