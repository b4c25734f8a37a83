package digest

import (
	"fmt"
	"time"

	"github.com/inboxly/maildigest/pkg/models"
)

// minQuoteLen is the shortest acceptable evidence quote.
const minQuoteLen = 10

// ValidateSections enforces the digest item contract: title, evidence id,
// quote length, confidence enum, and timezone offsets on normalized dates.
// The first violation is returned; it feeds the repair prompt verbatim.
func ValidateSections(s *models.Sections) error {
	check := func(section string, i int, c *models.ItemCore) error {
		where := fmt.Sprintf("%s[%d]", section, i)
		if c.Title == "" {
			return fmt.Errorf("%s: missing title", where)
		}
		if c.EvidenceID == "" {
			return fmt.Errorf("%s: missing evidence_id", where)
		}
		if len(c.Quote) < minQuoteLen {
			return fmt.Errorf("%s: quote shorter than %d characters", where, minQuoteLen)
		}
		switch c.Confidence {
		case models.ConfidenceHigh, models.ConfidenceMedium, models.ConfidenceLow:
		default:
			return fmt.Errorf("%s: confidence %q not in {high, medium, low}", where, c.Confidence)
		}
		if c.DueDateNormalized != "" {
			if err := checkZonedInstant(c.DueDateNormalized); err != nil {
				return fmt.Errorf("%s: due_date_normalized: %w", where, err)
			}
		}
		return nil
	}

	for i := range s.MyActions {
		if err := check("my_actions", i, &s.MyActions[i].ItemCore); err != nil {
			return err
		}
	}
	for i := range s.OthersActions {
		if err := check("others_actions", i, &s.OthersActions[i].ItemCore); err != nil {
			return err
		}
	}
	for i := range s.DeadlinesMeetings {
		if err := check("deadlines_meetings", i, &s.DeadlinesMeetings[i].ItemCore); err != nil {
			return err
		}
	}
	for i := range s.RisksBlockers {
		if err := check("risks_blockers", i, &s.RisksBlockers[i].ItemCore); err != nil {
			return err
		}
	}
	for i := range s.FYI {
		if err := check("fyi", i, &s.FYI[i].ItemCore); err != nil {
			return err
		}
	}
	return nil
}

// checkZonedInstant requires a parseable ISO-8601 instant with an explicit
// timezone offset.
func checkZonedInstant(v string) error {
	if _, err := time.Parse(time.RFC3339, v); err != nil {
		return fmt.Errorf("not an ISO-8601 instant with offset: %q", v)
	}
	return nil
}
