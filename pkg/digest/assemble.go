package digest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/inboxly/maildigest/pkg/models"
)

// renderWordCap bounds the rendered markdown view.
const renderWordCap = 400

// emptyDayLine is the fixed rendered line for a day with no items.
const emptyDayLine = "Nothing to report."

// AssembleInput carries everything the envelope needs beyond the sections.
type AssembleInput struct {
	DigestDate    string
	Timezone      string
	TraceID       string
	PromptVersion string

	TotalMessages       int
	MessagesWithActions int

	Partial       bool
	DegradeReason string

	Sections models.Sections

	// Trailing is the optional prose the model appended after its JSON.
	Trailing string
}

// Assemble builds the final envelope: deterministic item order, schema
// version stamp, and the rendered markdown summary.
func Assemble(in AssembleInput) models.Digest {
	sortSections(&in.Sections)

	d := models.Digest{
		SchemaVersion:          models.SchemaVersion,
		PromptVersion:          in.PromptVersion,
		DigestDate:             in.DigestDate,
		TraceID:                in.TraceID,
		Timezone:               in.Timezone,
		Sections:               in.Sections,
		TotalMessagesProcessed: in.TotalMessages,
		MessagesWithActions:    in.MessagesWithActions,
		Partial:                in.Partial,
		DegradeReason:          in.DegradeReason,
	}
	d.RenderedSummary = RenderMarkdown(&d, in.Trailing)
	return d
}

// sortSections orders items within each section by rank score descending,
// evidence id ascending. The order is part of the idempotency guarantee.
func sortSections(s *models.Sections) {
	byRank := func(a, b *models.ItemCore) bool {
		if a.RankScore != b.RankScore {
			return a.RankScore > b.RankScore
		}
		return a.EvidenceID < b.EvidenceID
	}
	sort.SliceStable(s.MyActions, func(i, j int) bool {
		return byRank(&s.MyActions[i].ItemCore, &s.MyActions[j].ItemCore)
	})
	sort.SliceStable(s.OthersActions, func(i, j int) bool {
		return byRank(&s.OthersActions[i].ItemCore, &s.OthersActions[j].ItemCore)
	})
	sort.SliceStable(s.DeadlinesMeetings, func(i, j int) bool {
		return byRank(&s.DeadlinesMeetings[i].ItemCore, &s.DeadlinesMeetings[j].ItemCore)
	})
	sort.SliceStable(s.RisksBlockers, func(i, j int) bool {
		return byRank(&s.RisksBlockers[i].ItemCore, &s.RisksBlockers[j].ItemCore)
	})
	sort.SliceStable(s.FYI, func(i, j int) bool {
		return byRank(&s.FYI[i].ItemCore, &s.FYI[j].ItemCore)
	})
}

// RenderMarkdown produces the short human-readable view, at most 400 words.
// Items beyond the cap are summarized as a count.
func RenderMarkdown(d *models.Digest, trailing string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Email digest %s\n", d.DigestDate)
	if d.Partial {
		fmt.Fprintf(&b, "_partial: %s_\n", d.DegradeReason)
	}

	if d.Sections.Empty() {
		b.WriteString("\n" + emptyDayLine + "\n")
		return b.String()
	}

	words := wordCount(b.String())
	skipped := 0

	section := func(header string, items []models.Item) {
		if len(items) == 0 {
			return
		}
		lines := make([]string, 0, len(items))
		for _, it := range items {
			lines = append(lines, it.AsRenderedLine())
		}
		headerWords := wordCount(header)
		if words+headerWords > renderWordCap {
			skipped += len(items)
			return
		}
		b.WriteString("\n## " + header + "\n")
		words += headerWords
		for _, line := range lines {
			w := wordCount(line)
			if words+w > renderWordCap {
				skipped++
				continue
			}
			b.WriteString(line + "\n")
			words += w
		}
	}

	section("My actions", actionItems(d.Sections.MyActions))
	section("Actions for others", actionItems(d.Sections.OthersActions))
	section("Deadlines and meetings", deadlineItems(d.Sections.DeadlinesMeetings))
	section("Risks and blockers", riskItems(d.Sections.RisksBlockers))
	section("FYI", fyiItems(d.Sections.FYI))

	if skipped > 0 {
		fmt.Fprintf(&b, "\n(%d more items in the JSON document)\n", skipped)
	}
	if trailing != "" && words+wordCount(trailing) <= renderWordCap {
		b.WriteString("\n" + trailing + "\n")
	}
	return b.String()
}

func wordCount(s string) int { return len(strings.Fields(s)) }

func actionItems(xs []models.ActionItem) []models.Item {
	out := make([]models.Item, len(xs))
	for i := range xs {
		out[i] = &xs[i]
	}
	return out
}

func deadlineItems(xs []models.DeadlineItem) []models.Item {
	out := make([]models.Item, len(xs))
	for i := range xs {
		out[i] = &xs[i]
	}
	return out
}

func riskItems(xs []models.RiskItem) []models.Item {
	out := make([]models.Item, len(xs))
	for i := range xs {
		out[i] = &xs[i]
	}
	return out
}

func fyiItems(xs []models.FYIItem) []models.Item {
	out := make([]models.Item, len(xs))
	for i := range xs {
		out[i] = &xs[i]
	}
	return out
}
