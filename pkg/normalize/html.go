// Package normalize turns raw driver records into normalized Messages:
// HTML to text, unicode folding, body cleanup, truncation, and the
// timezone policy.
package normalize

import (
	"fmt"
	stdhtml "html"
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"golang.org/x/net/html"
)

// HTMLOptions caps flattened tables.
type HTMLOptions struct {
	TableMaxColumnWidth int
	TableMaxRows        int
}

// stripped tags are removed with their entire subtree.
var strippedTags = map[string]bool{
	"script": true,
	"style":  true,
	"svg":    true,
	"head":   true,
}

var hiddenStylePattern = regexp.MustCompile(`(?i)(?:display\s*:\s*none|visibility\s*:\s*hidden)`)

// HTMLToText converts an HTML body to plain markdown-flavored text.
// Scripts, styles, SVG, tracking pixels, and hidden elements are removed;
// lists become markdown lists; tables become compact pipe tables.
func HTMLToText(raw string, opts HTMLOptions) (string, error) {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("html parse: %w", err)
	}

	prune(doc, opts)

	out, err := htmltomarkdown.ConvertNode(doc)
	if err != nil {
		return "", fmt.Errorf("html convert: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// prune removes unwanted subtrees in place and flattens tables to text.
func prune(n *html.Node, opts HTMLOptions) {
	var next *html.Node
	for c := n.FirstChild; c != nil; c = next {
		next = c.NextSibling

		if c.Type == html.ElementNode {
			switch {
			case strippedTags[c.Data]:
				n.RemoveChild(c)
				continue
			case isHidden(c):
				n.RemoveChild(c)
				continue
			case c.Data == "img" && isTrackingPixel(c):
				n.RemoveChild(c)
				continue
			case c.Data == "table":
				replaceWithText(n, c, flattenTable(c, opts))
				continue
			}
		}
		prune(c, opts)
	}
}

func attr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

func isHidden(n *html.Node) bool {
	style, ok := attr(n, "style")
	return ok && hiddenStylePattern.MatchString(style)
}

// isTrackingPixel flags 1x1 images and cid-sourced inline images.
func isTrackingPixel(n *html.Node) bool {
	if w, ok := attr(n, "width"); ok && strings.TrimSpace(w) == "1" {
		return true
	}
	if h, ok := attr(n, "height"); ok && strings.TrimSpace(h) == "1" {
		return true
	}
	if src, ok := attr(n, "src"); ok && strings.HasPrefix(strings.ToLower(src), "cid:") {
		return true
	}
	return false
}

func replaceWithText(parent, old *html.Node, text string) {
	node := &html.Node{Type: html.TextNode, Data: "\n\n" + text + "\n\n"}
	parent.InsertBefore(node, old)
	parent.RemoveChild(old)
}

// flattenTable renders a table as a pipe-delimited compact block. Column
// width and row count are capped; a truncated tail is summarized.
func flattenTable(table *html.Node, opts HTMLOptions) string {
	maxWidth := opts.TableMaxColumnWidth
	if maxWidth <= 0 {
		maxWidth = 30
	}
	maxRows := opts.TableMaxRows
	if maxRows <= 0 {
		maxRows = 10
	}

	var rows [][]string
	var walkRows func(*html.Node)
	walkRows = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && c.Data == "tr" {
				rows = append(rows, cellTexts(c, maxWidth))
				continue
			}
			walkRows(c)
		}
	}
	walkRows(table)

	total := len(rows)
	truncated := 0
	if total > maxRows {
		truncated = total - maxRows
		rows = rows[:maxRows]
	}

	var b strings.Builder
	for _, cells := range rows {
		b.WriteString("| ")
		b.WriteString(strings.Join(cells, " | "))
		b.WriteString(" |\n")
	}
	if truncated > 0 {
		fmt.Fprintf(&b, "... (%d more rows)\n", truncated)
	}
	return strings.TrimRight(b.String(), "\n")
}

func cellTexts(tr *html.Node, maxWidth int) []string {
	var cells []string
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (c.Data == "td" || c.Data == "th") {
			text := strings.Join(strings.Fields(nodeText(c)), " ")
			text = safeTruncate(text, maxWidth)
			cells = append(cells, text)
		}
	}
	return cells
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

var tagPattern = regexp.MustCompile(`(?s)<[^>]*>`)

// StripTags is the last-resort fallback when HTML parsing fails: drop
// anything tag-shaped and unescape entities.
func StripTags(raw string) string {
	text := tagPattern.ReplaceAllString(raw, " ")
	text = stdhtml.UnescapeString(text)
	return strings.TrimSpace(strings.Join(strings.Fields(text), " "))
}
