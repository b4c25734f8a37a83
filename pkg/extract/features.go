package extract

import (
	"regexp"
	"strings"
	"time"
)

// Language feature patterns, compiled once at package init. English and
// Russian are covered; other languages fall through as no-matches.
//
// \b is ASCII-only in Go regexp and never fires next to Cyrillic letters,
// so the Russian alternatives carry explicit boundary groups instead.
var (
	// Imperative sentence openings: a bare base-form verb, optionally after
	// a politeness marker.
	imperativeENPattern = regexp.MustCompile(`(?i)^\W*(?:please\s+|kindly\s+)?(approve|check|complete|confirm|finish|fix|forward|join|prepare|provide|reply|review|schedule|send|share|sign|submit|update|verify)\b`)

	// Russian imperative verb forms (-йте/-ьте/-ите endings).
	imperativeRUPattern = regexp.MustCompile(`(?i)(?:^|\s)(?:пожалуйста,?\s+)?([а-яё]{2,}(?:йте|ьте|ите))(?:$|[^а-яё])`)

	actionMarkerENPattern = regexp.MustCompile(`(?i)\b(?:please|could you|can you|would you|kindly|action required|needs? to)\b`)
	actionMarkerRUPattern = regexp.MustCompile(`(?i)(?:^|[\s,;:(])(прошу|пожалуйста|нужно|необходимо|требуется|надо)(?:$|[^а-яё])`)

	// Absolute date forms: 15.01.2024, 15/01/2024, 2024-01-15.
	dottedDatePattern = regexp.MustCompile(`\b(\d{1,2})[./](\d{1,2})[./](\d{4})\b`)
	isoDatePattern    = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)

	relativeENPattern = regexp.MustCompile(`(?i)\b(tomorrow|today|eod|end of day)\b`)
	relativeRUPattern = regexp.MustCompile(`(?i)(?:^|\s)(завтра|сегодня|до конца дня)(?:$|[^а-яё])`)

	weekdayENPattern = regexp.MustCompile(`(?i)\b(?:by\s+|until\s+)?(monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`)
	weekdayRUPattern = regexp.MustCompile(`(?i)(?:^|\s)(?:(?:до|к)\s+)?(понедельника?|вторника?|сред[ыу]|четверга?|пятниц[ыу]|суббот[ыу]|воскресенья)(?:$|[^а-яё])`)
)

var weekdayNames = map[string]time.Weekday{
	"monday": time.Monday, "tuesday": time.Tuesday, "wednesday": time.Wednesday,
	"thursday": time.Thursday, "friday": time.Friday, "saturday": time.Saturday,
	"sunday": time.Sunday,
	"понедельник": time.Monday, "понедельника": time.Monday,
	"вторник": time.Tuesday, "вторника": time.Tuesday,
	"среды": time.Wednesday, "среду": time.Wednesday,
	"четверг": time.Thursday, "четверга": time.Thursday,
	"пятницы": time.Friday, "пятницу": time.Friday,
	"субботы": time.Saturday, "субботу": time.Saturday,
	"воскресенья": time.Sunday,
}

// HasImperative reports an imperative verb form in either language and
// returns the verb that fired.
func HasImperative(sentence string) (string, bool) {
	if m := imperativeENPattern.FindStringSubmatch(sentence); m != nil {
		return strings.ToLower(m[1]), true
	}
	if m := imperativeRUPattern.FindStringSubmatch(sentence); m != nil {
		return strings.ToLower(m[1]), true
	}
	return "", false
}

// HasActionMarker reports a request marker ("please", "прошу", ...).
func HasActionMarker(sentence string) (string, bool) {
	if m := actionMarkerENPattern.FindString(sentence); m != "" {
		return strings.ToLower(m), true
	}
	if m := actionMarkerRUPattern.FindStringSubmatch(sentence); m != nil {
		return strings.ToLower(m[1]), true
	}
	return "", false
}

// IsQuestion reports a trailing question mark.
func IsQuestion(sentence string) bool {
	return strings.HasSuffix(strings.TrimRight(sentence, " \t\n»\")]"), "?")
}

// MentionsAny reports whether any alias occurs in the text,
// case-insensitively. Aliases are emails, full names, or short names.
func MentionsAny(text string, aliases []string) bool {
	lower := strings.ToLower(text)
	for _, a := range aliases {
		if a == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(a)) {
			return true
		}
	}
	return false
}

// FindDeadline parses the first deadline expression in the sentence and
// normalizes it into the given location. now anchors relative expressions.
func FindDeadline(sentence string, now time.Time, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.UTC
	}
	now = now.In(loc)

	if m := dottedDatePattern.FindStringSubmatch(sentence); m != nil {
		if t, ok := dateFromParts(m[3], m[2], m[1], loc); ok {
			return t, true
		}
	}
	if m := isoDatePattern.FindStringSubmatch(sentence); m != nil {
		if t, ok := dateFromParts(m[1], m[2], m[3], loc); ok {
			return t, true
		}
	}

	if rel := findRelative(sentence); rel != "" {
		day := now
		switch rel {
		case "tomorrow", "завтра":
			day = now.AddDate(0, 0, 1)
		}
		// today/eod/end of day resolve to the current date.
		return endOfBusinessDay(day), true
	}

	if wd, ok := findWeekday(sentence); ok {
		return endOfBusinessDay(nextWeekday(now, wd)), true
	}

	return time.Time{}, false
}

func findRelative(sentence string) string {
	if m := relativeENPattern.FindString(sentence); m != "" {
		return strings.ToLower(m)
	}
	if m := relativeRUPattern.FindStringSubmatch(sentence); m != nil {
		return strings.ToLower(m[1])
	}
	return ""
}

func findWeekday(sentence string) (time.Weekday, bool) {
	if m := weekdayENPattern.FindStringSubmatch(sentence); m != nil {
		wd, ok := weekdayNames[strings.ToLower(m[1])]
		return wd, ok
	}
	if m := weekdayRUPattern.FindStringSubmatch(sentence); m != nil {
		wd, ok := weekdayNames[strings.ToLower(m[1])]
		return wd, ok
	}
	return 0, false
}

// HasDeadline is the boolean form used for chunk signals.
func HasDeadline(sentence string) bool {
	if dottedDatePattern.MatchString(sentence) || isoDatePattern.MatchString(sentence) {
		return true
	}
	if findRelative(sentence) != "" {
		return true
	}
	_, ok := findWeekday(sentence)
	return ok
}

func dateFromParts(year, month, day string, loc *time.Location) (time.Time, bool) {
	t, err := time.ParseInLocation("2006-1-2", year+"-"+month+"-"+day, loc)
	if err != nil {
		return time.Time{}, false
	}
	return endOfBusinessDay(t), true
}

// nextWeekday returns the next occurrence of wd strictly within a week,
// counting today as this week's occurrence when it matches.
func nextWeekday(now time.Time, wd time.Weekday) time.Time {
	days := (int(wd) - int(now.Weekday()) + 7) % 7
	return now.AddDate(0, 0, days)
}

// endOfBusinessDay pins a deadline date to 18:00 local.
func endOfBusinessDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 18, 0, 0, 0, t.Location())
}
