package models

import (
	"fmt"
	"strings"
)

// AsRenderedLine implements Item. The form is shared by every variant:
// title, optional due/label, owners, a citation reference, and the quote.
func (c *ItemCore) AsRenderedLine() string {
	var b strings.Builder

	b.WriteString("- **")
	b.WriteString(c.Title)
	b.WriteString("**")

	if c.DueDate != "" {
		b.WriteString(" (due ")
		b.WriteString(c.DueDate)
		if c.DueDateLabel != DueNone {
			b.WriteString(", ")
			b.WriteString(string(c.DueDateLabel))
		}
		b.WriteString(")")
	}

	if len(c.Owners) > 0 {
		b.WriteString(" - ")
		b.WriteString(strings.Join(c.Owners, ", "))
	} else if len(c.Participants) > 0 {
		b.WriteString(" - ")
		b.WriteString(strings.Join(c.Participants, ", "))
	}

	b.WriteString(fmt.Sprintf("\n  source: %s, evidence %s", c.EmailSubject, c.EvidenceID))

	if c.Quote != "" {
		b.WriteString("\n  > ")
		b.WriteString(strings.ReplaceAll(c.Quote, "\n", " "))
	}

	return b.String()
}
