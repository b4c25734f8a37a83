// Package digest turns a raw language-model response into a validated,
// cited digest envelope: strict JSON extraction, schema validation,
// citation attachment, the extractive fallback, and assembly of the JSON
// and markdown outputs.
package digest

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/inboxly/maildigest/pkg/models"
)

// ErrNoJSON means no JSON object could be located in the response.
var ErrNoJSON = errors.New("no JSON object in response")

var fencedBlockPattern = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// ExtractObject locates the JSON object in a model response. Accepted
// shapes, in order: a bare JSON object; an object inside a fenced code
// block; an object surrounded by free text (brace counting). Surrounding
// prose after the object is returned separately. No repair beyond trimming
// and fence extraction is performed.
func ExtractObject(response string) (string, string, error) {
	text := strings.TrimSpace(response)
	if text == "" {
		return "", "", ErrNoJSON
	}

	// Bare object.
	if strings.HasPrefix(text, "{") {
		if obj, rest, ok := braceExtract(text); ok {
			return obj, strings.TrimSpace(rest), nil
		}
		return "", "", fmt.Errorf("%w: unbalanced braces", ErrNoJSON)
	}

	// Fenced code block.
	if m := fencedBlockPattern.FindStringSubmatchIndex(text); m != nil {
		return text[m[2]:m[3]], strings.TrimSpace(text[m[1]:]), nil
	}

	// Leading prose before the object.
	if idx := strings.Index(text, "{"); idx >= 0 {
		if obj, rest, ok := braceExtract(text[idx:]); ok {
			return obj, strings.TrimSpace(rest), nil
		}
	}

	return "", "", ErrNoJSON
}

// ExtractSections parses the model response into digest sections.
// Malformed JSON is an error, never a salvage opportunity.
func ExtractSections(response string) (models.Sections, string, error) {
	obj, trailing, err := ExtractObject(response)
	if err != nil {
		return models.Sections{}, "", err
	}
	s, err := unmarshalSections(obj)
	return s, trailing, err
}

// braceExtract returns the balanced top-level object at the start of text
// and whatever follows it. String literals are respected.
func braceExtract(text string) (string, string, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return text[:i+1], text[i+1:], true
			}
		}
	}
	return "", "", false
}

func unmarshalSections(obj string) (models.Sections, error) {
	var s models.Sections
	if err := json.Unmarshal([]byte(obj), &s); err != nil {
		return models.Sections{}, fmt.Errorf("digest JSON: %w", err)
	}
	return s, nil
}
