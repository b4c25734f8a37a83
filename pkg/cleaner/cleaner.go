package cleaner

import (
	"strings"
)

// SpanType classifies a removed span.
type SpanType string

// Removal stages, in execution order.
const (
	SpanAutoresponse SpanType = "autoresponse"
	SpanDisclaimer   SpanType = "disclaimer"
	SpanSignature    SpanType = "signature"
	SpanQuote        SpanType = "quote"
)

// RemovedSpan records one removed region. Offsets refer to the text as it
// was when the owning stage ran; spans are transient diagnostics and are
// never persisted.
type RemovedSpan struct {
	Type    SpanType
	Start   int
	End     int
	Content string
}

// Config controls quote handling.
type Config struct {
	// KeepTopQuoteHead retains the head of the most recent quote when the
	// reply above it is very short.
	KeepTopQuoteHead bool

	// MaxQuoteRemovalLength caps how many bytes the quote stage may remove.
	// On trip the uncut body is used. Zero defaults to 64 KiB.
	MaxQuoteRemovalLength int
}


// Result is the outcome of one Clean pass.
type Result struct {
	Text    string
	Removed []RemovedSpan

	// IsAutoresponse means the entire message is machine-generated and the
	// caller should skip it.
	IsAutoresponse bool

	// SafetyCapTripped is set when quote removal was abandoned because it
	// would have removed essentially the whole body.
	SafetyCapTripped bool
}

// RemovedChars sums removed span lengths by type.
func (r *Result) RemovedChars() map[SpanType]int {
	out := make(map[SpanType]int)
	for _, s := range r.Removed {
		out[s.Type] += s.End - s.Start
	}
	return out
}

// Cleaner applies the four removal stages. Stateless and safe for
// concurrent use; patterns are compiled at package init.
type Cleaner struct {
	cfg Config
}

// New creates a Cleaner. A zero MaxQuoteRemovalLength defaults to 64 KiB.
func New(cfg Config) *Cleaner {
	if cfg.MaxQuoteRemovalLength <= 0 {
		cfg.MaxQuoteRemovalLength = 64 * 1024
	}
	return &Cleaner{cfg: cfg}
}

// shortAutoresponseBody caps how large a body can be while still counting
// as "the entire body is an autoresponse" on a body-pattern match alone.
const shortAutoresponseBody = 1000

// Clean runs the four removal stages over body. Subject and headers feed
// autoresponse detection only. Clean is idempotent over its own output.
func (c *Cleaner) Clean(body, subject string, headers map[string]string) Result {
	res := Result{Text: body}

	// Stage 1: autoresponses.
	if isAutoHeader(headers) || autoSubjectPattern.MatchString(subject) {
		res.IsAutoresponse = true
		res.Removed = append(res.Removed, RemovedSpan{
			Type: SpanAutoresponse, Start: 0, End: len(body), Content: body,
		})
		res.Text = ""
		return res
	}
	if len(body) <= shortAutoresponseBody && autoBodyPattern.MatchString(body) {
		res.IsAutoresponse = true
		res.Removed = append(res.Removed, RemovedSpan{
			Type: SpanAutoresponse, Start: 0, End: len(body), Content: body,
		})
		res.Text = ""
		return res
	}

	// Stage 2: disclaimers (tail only).
	res.Text = c.removeDisclaimer(res.Text, &res)

	// Stage 3: signatures.
	res.Text = c.removeSignature(res.Text, &res)

	// Stage 4: quoted history (with safety cap and optional head retention).
	res.Text = c.removeQuotes(res.Text, &res)

	res.Text = strings.TrimRight(res.Text, " \t\n")
	return res
}

// removeDisclaimer strips legal and unsubscribe boilerplate from the tail:
// trailing paragraphs that match the disclaimer patterns are removed, walking
// backwards until a paragraph of real content is hit. The first paragraph is
// never removed.
func (c *Cleaner) removeDisclaimer(text string, res *Result) string {
	paras := paragraphRanges(text)
	if len(paras) < 2 {
		return text
	}

	cut := len(paras)
	for i := len(paras) - 1; i >= 1; i-- {
		if disclaimerPattern.MatchString(text[paras[i][0]:paras[i][1]]) {
			cut = i
		} else {
			break
		}
	}
	if cut == len(paras) {
		return text
	}

	start := paras[cut][0]
	res.Removed = append(res.Removed, RemovedSpan{
		Type: SpanDisclaimer, Start: start, End: len(text), Content: text[start:],
	})
	return strings.TrimRight(text[:start], " \t\n")
}

// paragraphRanges returns [start, end) byte ranges of blank-line separated
// paragraphs.
func paragraphRanges(text string) [][2]int {
	var out [][2]int
	start := 0
	for start < len(text) {
		idx := strings.Index(text[start:], "\n\n")
		if idx < 0 {
			out = append(out, [2]int{start, len(text)})
			break
		}
		out = append(out, [2]int{start, start + idx})
		start += idx + 2
		for start < len(text) && text[start] == '\n' {
			start++
		}
	}
	return out
}

func (c *Cleaner) removeSignature(text string, res *Result) string {
	if text == "" {
		return text
	}
	// A signature lives in the second half of what is left.
	minStart := len(text) / 2

	locs := signaturePattern.FindAllStringIndex(text, -1)
	for _, loc := range locs {
		if loc[0] < minStart {
			continue
		}
		start := paragraphStart(text, loc[0])
		res.Removed = append(res.Removed, RemovedSpan{
			Type: SpanSignature, Start: start, End: len(text), Content: text[start:],
		})
		return strings.TrimRight(text[:start], " \t\n")
	}
	return text
}

func (c *Cleaner) removeQuotes(text string, res *Result) string {
	if text == "" {
		return text
	}

	lines := strings.Split(text, "\n")
	cut := quoteCutLine(lines)

	// Collect removal ranges: inline ">"-blocks before the cut marker, then
	// everything from the marker to the end.
	limit := len(lines)
	if cut >= 0 {
		limit = cut
	}
	ranges := quoteBlockRanges(lines[:limit])
	if cut >= 0 {
		ranges = append(ranges, [2]int{cut, len(lines) - 1})
	}
	if len(ranges) == 0 {
		return text
	}

	offsets := lineOffsets(text)
	rangeEnd := func(r [2]int) int {
		if r[1]+1 < len(lines) {
			return offsets[r[1]+1]
		}
		return len(text)
	}

	totalRemoved := 0
	for _, r := range ranges {
		totalRemoved += rangeEnd(r) - offsets[r[0]]
	}

	if totalRemoved > c.cfg.MaxQuoteRemovalLength {
		res.SafetyCapTripped = true
		return text
	}

	// Rebuild the kept text.
	removedLine := make([]bool, len(lines))
	for _, r := range ranges {
		for i := r[0]; i <= r[1]; i++ {
			removedLine[i] = true
		}
	}
	var keptLines []string
	for i, line := range lines {
		if !removedLine[i] {
			keptLines = append(keptLines, line)
		}
	}
	kept := strings.TrimRight(strings.Join(keptLines, "\n"), " \t\n")

	// Never strip the entire body: a reply of "OK." is still a reply, but
	// nothing at all means the heuristic misfired.
	if nonSpaceLen(kept) == 0 {
		res.SafetyCapTripped = true
		return text
	}

	// Retain the head of the most recent quote when the reply is very short.
	if c.cfg.KeepTopQuoteHead && isShortReply(kept) {
		first := ranges[0]
		head := quoteHead(lines, first[0], first[1])
		if head != "" {
			if kept != "" {
				kept += "\n\n"
			}
			kept += head
		}
	}

	for _, r := range ranges {
		res.Removed = append(res.Removed, RemovedSpan{
			Type:    SpanQuote,
			Start:   offsets[r[0]],
			End:     rangeEnd(r),
			Content: text[offsets[r[0]]:rangeEnd(r)],
		})
	}
	return kept
}

// quoteCutLine returns the index of the first line that starts quoted
// history (separator, top-post header block, or "wrote:" attribution), or -1.
func quoteCutLine(lines []string) int {
	for i, line := range lines {
		if originalMessagePattern.MatchString(line) || onWrotePattern.MatchString(line) {
			return i
		}
		if quoteHeaderPattern.MatchString(line) && headerBlockFollows(lines, i) {
			return i
		}
	}
	return -1
}

// headerBlockFollows confirms a From:/От: line opens a quoted header block
// by checking the next few lines for companion headers.
func headerBlockFollows(lines []string, i int) bool {
	companions := []string{"sent:", "to:", "subject:", "date:", "cc:",
		"кому:", "тема:", "дата:", "отправлено:", "копия:"}
	limit := i + 4
	if limit > len(lines) {
		limit = len(lines)
	}
	for _, line := range lines[i+1 : limit] {
		lower := strings.ToLower(strings.TrimSpace(line))
		for _, c := range companions {
			if strings.HasPrefix(lower, c) {
				return true
			}
		}
	}
	return false
}

// quoteBlockRanges returns every contiguous run of ">"-prefixed lines as
// inclusive [start, end] line ranges.
func quoteBlockRanges(lines []string) [][2]int {
	var ranges [][2]int
	start := -1
	for i, line := range lines {
		if quoteLinePattern.MatchString(line) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			ranges = append(ranges, [2]int{start, i - 1})
			start = -1
		}
	}
	if start >= 0 {
		ranges = append(ranges, [2]int{start, len(lines) - 1})
	}
	return ranges
}

func nonSpaceLen(s string) int {
	n := 0
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			n++
		}
	}
	return n
}

// isShortReply reports whether the kept reply is short enough to warrant
// retaining quote context: under 200 characters or under 3 non-empty lines.
func isShortReply(kept string) bool {
	if len(kept) < 200 {
		return true
	}
	n := 0
	for _, line := range strings.Split(kept, "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n < 3
}

// quoteHeadMaxLines caps retained quote context.
const quoteHeadMaxLines = 10

// quoteHead extracts the first 1-2 paragraphs (at most 10 lines) of the
// quoted block starting at cut. Quote markers and header-block lines are
// stripped so a second Clean pass leaves the result untouched.
func quoteHead(lines []string, cut, quoteEnd int) string {
	end := len(lines)
	if quoteEnd >= cut && quoteEnd+1 < end {
		end = quoteEnd + 1
	}

	var out []string
	paragraphs := 0
	blank := false
	for _, line := range lines[cut:end] {
		stripped := strings.TrimPrefix(strings.TrimSpace(line), ">")
		stripped = strings.TrimSpace(stripped)

		// Skip attribution and header-block lines entirely.
		if originalMessagePattern.MatchString(line) || onWrotePattern.MatchString(line) ||
			quoteHeaderPattern.MatchString(stripped) || isCompanionHeader(stripped) {
			continue
		}

		if stripped == "" {
			if len(out) > 0 && !blank {
				paragraphs++
				if paragraphs >= 2 {
					break
				}
				blank = true
				out = append(out, "")
			}
			continue
		}
		blank = false
		out = append(out, stripped)
		if len(out) >= quoteHeadMaxLines {
			break
		}
	}

	head := strings.TrimSpace(strings.Join(out, "\n"))
	if head == "" {
		return ""
	}
	return head
}

func isCompanionHeader(line string) bool {
	lower := strings.ToLower(line)
	for _, c := range []string{"sent:", "to:", "subject:", "date:", "cc:",
		"кому:", "тема:", "дата:", "отправлено:", "копия:"} {
		if strings.HasPrefix(lower, c) {
			return true
		}
	}
	return false
}

// paragraphStart walks back from pos to the start of its paragraph (the
// position after the previous blank line), falling back to the line start.
func paragraphStart(text string, pos int) int {
	if idx := strings.LastIndex(text[:pos], "\n\n"); idx >= 0 {
		return idx + 2
	}
	if idx := strings.LastIndexByte(text[:pos], '\n'); idx >= 0 {
		return idx + 1
	}
	return 0
}

func lineOffsets(text string) []int {
	lines := strings.Split(text, "\n")
	offsets := make([]int, len(lines))
	pos := 0
	for i, line := range lines {
		offsets[i] = pos
		pos += len(line) + 1
	}
	return offsets
}
