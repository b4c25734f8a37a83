package normalize

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// typographicReplacer folds typographic characters into their ASCII
// equivalents. Zero-width characters are removed; non-breaking spaces
// become plain spaces.
var typographicReplacer = strings.NewReplacer(
	"‘", "'", // left single quote
	"’", "'", // right single quote
	"“", `"`, // left double quote
	"”", `"`, // right double quote
	"«", `"`, // «
	"»", `"`, // »
	"–", "-", // en dash
	"—", "--", // em dash
	"…", "...", // ellipsis
	" ", " ", // non-breaking space
	" ", " ", // narrow no-break space
	"​", "", // zero-width space
	"‌", "", // zero-width non-joiner
	"‍", "", // zero-width joiner
	"\uFEFF", "", // BOM / zero-width no-break space
)

// FoldText applies canonical composition and the typographic fold.
func FoldText(s string) string {
	return typographicReplacer.Replace(norm.NFC.String(s))
}

// safeTruncate cuts s at no more than max bytes without splitting a
// multibyte character.
func safeTruncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
