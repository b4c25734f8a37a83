package digest

import (
	"strings"

	"github.com/inboxly/maildigest/pkg/extract"
	"github.com/inboxly/maildigest/pkg/models"
	"github.com/inboxly/maildigest/pkg/rank"
)

// Section size caps for the extractive fallback.
const (
	fallbackMaxPerSection = 10
	fallbackTitleLen      = 80
)

// blockerPattern flags chunks that call out a blocker explicitly.
var blockerPhrases = []string{"blocker", "blocked", "блокер", "блокирует", "заблокирован"}

// BuildFallback constructs the digest sections directly from rule-extracted
// candidates and the top-ranked chunks, without any language-model output.
// Deadline-bearing actions go to deadlines_meetings; requests split into
// mine/others by addressee; blocker or high-importance chunks become risks;
// the remaining top chunks are FYI.
func BuildFallback(actions []models.ExtractedAction, ranked []rank.Scored, userEmail string) models.Sections {
	var s models.Sections
	userEmail = strings.ToLower(userEmail)
	cited := make(map[string]bool)

	for _, a := range actions {
		if len(a.Text) < minQuoteLen {
			continue
		}
		core := models.ItemCore{
			Title:      fallbackTitle(a.Text),
			Quote:      a.Text,
			Owners:     ownersOf(a),
			Confidence: confidenceOf(a.Confidence),
			EvidenceID: a.EvidenceID,
			RankScore:  a.Confidence,
		}
		if a.Deadline != nil {
			core.DueDate = a.Deadline.Format("2006-01-02")
			core.DueDateNormalized = a.Deadline.Format("2006-01-02T15:04:05Z07:00")
			if len(s.DeadlinesMeetings) < fallbackMaxPerSection {
				s.DeadlinesMeetings = append(s.DeadlinesMeetings, models.DeadlineItem{ItemCore: core})
				cited[a.EvidenceID] = true
			}
			continue
		}
		switch a.Kind {
		case models.KindAction:
			item := models.ActionItem{ItemCore: core, Mine: strings.EqualFold(a.Who, userEmail)}
			if item.Mine && len(s.MyActions) < fallbackMaxPerSection {
				s.MyActions = append(s.MyActions, item)
				cited[a.EvidenceID] = true
			} else if !item.Mine && len(s.OthersActions) < fallbackMaxPerSection {
				s.OthersActions = append(s.OthersActions, item)
				cited[a.EvidenceID] = true
			}
		default:
			if len(s.FYI) < fallbackMaxPerSection {
				s.FYI = append(s.FYI, models.FYIItem{ItemCore: core})
				cited[a.EvidenceID] = true
			}
		}
	}

	for _, sc := range ranked {
		ch := sc.Chunk
		if cited[ch.EvidenceID] {
			continue
		}
		quote := firstSentence(ch.Content)
		if len(quote) < minQuoteLen {
			continue
		}
		core := models.ItemCore{
			Title:      fallbackTitle(quote),
			Quote:      quote,
			Confidence: models.ConfidenceLow,
			EvidenceID: ch.EvidenceID,
			RankScore:  sc.Score,
		}
		if isBlockerChunk(ch) {
			if len(s.RisksBlockers) < fallbackMaxPerSection {
				s.RisksBlockers = append(s.RisksBlockers, models.RiskItem{ItemCore: core})
			}
			continue
		}
		if len(s.FYI) < fallbackMaxPerSection {
			s.FYI = append(s.FYI, models.FYIItem{ItemCore: core})
		}
	}

	return s
}

func isBlockerChunk(ch models.Chunk) bool {
	if ch.Signals.SenderTier == 2 && (ch.Signals.HasImperative || ch.Signals.HasDeadline) {
		return true
	}
	lower := strings.ToLower(ch.Content)
	for _, p := range blockerPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func ownersOf(a models.ExtractedAction) []string {
	if a.Who == "" {
		return nil
	}
	return []string{a.Who}
}

func confidenceOf(score float64) models.Confidence {
	switch {
	case score >= 0.8:
		return models.ConfidenceHigh
	case score >= 0.6:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceLow
	}
}

func fallbackTitle(text string) string {
	title := firstSentence(text)
	if len(title) > fallbackTitleLen {
		cut := fallbackTitleLen
		for cut > 0 && title[cut]&0xC0 == 0x80 {
			cut--
		}
		title = title[:cut]
	}
	return strings.TrimRight(title, " .")
}

func firstSentence(text string) string {
	sentences := extract.Sentences(text)
	if len(sentences) == 0 {
		return strings.TrimSpace(text)
	}
	return sentences[0]
}
