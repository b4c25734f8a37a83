package threading

import "strings"

// semanticSampleRunes bounds how much body text feeds similarity.
const semanticSampleRunes = 200

// trigramSet returns the set of character trigrams of s, computed over runes
// so Cyrillic text is not split mid-character.
func trigramSet(s string) map[string]struct{} {
	runes := []rune(strings.ToLower(s))
	out := make(map[string]struct{})
	for i := 0; i+3 <= len(runes); i++ {
		out[string(runes[i:i+3])] = struct{}{}
	}
	return out
}

// trigramJaccard is |A∩B| / |A∪B| over character trigrams. Two empty inputs
// score zero, never one.
func trigramJaccard(a, b string) float64 {
	sa, sb := trigramSet(a), trigramSet(b)
	if len(sa) == 0 || len(sb) == 0 {
		return 0
	}
	inter := 0
	for t := range sa {
		if _, ok := sb[t]; ok {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	return float64(inter) / float64(union)
}

// bodySample returns the first semanticSampleRunes runes of text.
func bodySample(text string) string {
	runes := []rune(text)
	if len(runes) > semanticSampleRunes {
		runes = runes[:semanticSampleRunes]
	}
	return string(runes)
}
