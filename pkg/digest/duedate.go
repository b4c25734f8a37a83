package digest

import (
	"time"

	"github.com/inboxly/maildigest/pkg/models"
)

// dueHorizon is the window within which items get a today/tomorrow label.
const dueHorizon = 48 * time.Hour

// ApplyDueLabels sets due_date_label on every item whose normalized due
// date falls within 48 hours of the digest date; anything outside the
// horizon keeps the empty label.
func ApplyDueLabels(sections *models.Sections, digestDate time.Time, loc *time.Location) {
	if loc == nil {
		loc = time.UTC
	}
	day := time.Date(digestDate.Year(), digestDate.Month(), digestDate.Day(), 0, 0, 0, 0, loc)

	for _, item := range allCores(sections) {
		due, ok := parseDue(item, loc)
		if !ok {
			continue
		}
		item.DueDateLabel = labelFor(day, due.In(loc))
	}
}

func parseDue(item *models.ItemCore, loc *time.Location) (time.Time, bool) {
	if item.DueDateNormalized != "" {
		if t, err := time.Parse(time.RFC3339, item.DueDateNormalized); err == nil {
			return t, true
		}
	}
	if item.DueDate != "" {
		if t, err := time.ParseInLocation("2006-01-02", item.DueDate, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func labelFor(day, due time.Time) models.DueLabel {
	delta := due.Sub(day)
	if delta < 0 || delta >= dueHorizon {
		return models.DueNone
	}
	if sameDay(day, due) {
		return models.DueToday
	}
	if sameDay(day.AddDate(0, 0, 1), due) {
		return models.DueTomorrow
	}
	return models.DueNone
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
