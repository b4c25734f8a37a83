package threading

import (
	"regexp"
	"strings"

	"github.com/inboxly/maildigest/pkg/normalize"
)

// Reply/forward prefixes, nested and in either language, e.g.
// "RE: Fwd: Отв: subject".
var replyPrefixPattern = regexp.MustCompile(`^(?i)\s*(?:(?:re|fwd|fw|ответ|отв|пересл|пер)\s*:\s*)+`)

// External-sender markers injected by mail gateways.
var externalMarkerPattern = regexp.MustCompile(`(?i)[\[(](?:external|внешний|внешнее письмо)[\])]`)

// Bracketed tags such as ticket ids and priority labels.
var bracketTagPattern = regexp.MustCompile(`\[[^\]]*\]`)

// NormalizeSubject reduces a subject line to its comparable core: reply and
// forward prefixes, external markers, bracketed tags, and emoji are removed;
// typographic characters are folded to ASCII; the result is lower-cased with
// collapsed whitespace. Normalization is idempotent.
func NormalizeSubject(subject string) string {
	// Subjects fold both dash widths to a plain hyphen.
	s := strings.ReplaceAll(subject, "—", "-")
	s = normalize.FoldText(s)
	s = replyPrefixPattern.ReplaceAllString(s, "")
	s = externalMarkerPattern.ReplaceAllString(s, " ")
	s = bracketTagPattern.ReplaceAllString(s, " ")
	s = stripEmoji(s)
	s = strings.ToLower(s)
	return strings.Join(strings.Fields(s), " ")
}

// stripEmoji drops emoji and pictographic code points.
func stripEmoji(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if isEmoji(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isEmoji(r rune) bool {
	switch {
	case r >= 0x1F000 && r <= 0x1FAFF: // pictographs, emoticons, symbols
		return true
	case r >= 0x2600 && r <= 0x27BF: // misc symbols, dingbats
		return true
	case r >= 0x2300 && r <= 0x23FF: // misc technical (watch, hourglass)
		return true
	case r >= 0x1F1E6 && r <= 0x1F1FF: // regional indicators
		return true
	case r == 0xFE0F || r == 0xFE0E: // variation selectors
		return true
	case r == 0x200D: // zero-width joiner inside emoji sequences
		return true
	}
	return false
}
