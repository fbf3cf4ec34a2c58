// Package format turns assistant reply text into renderable blocks.
//
// Each non-blank line becomes one block. A line shaped like "1. **Title** text"
// is a numbered list item; any other line is a paragraph whose **double-star**
// runs are bold.
package format

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	listItemRe = regexp.MustCompile(`^(\d+)\.\s*\*\*(.+?)\*\*\s*(.*)`)
	boldRe     = regexp.MustCompile(`\*\*(.*?)\*\*`)
)

// Block is a ListItem or a Paragraph.
type Block interface {
	block()
}

// ListItem is a numbered entry with a bold title.
type ListItem struct {
	Number int
	Title  string
	Text   string
}

// Paragraph is a line of plain and bold spans.
type Paragraph struct {
	Parts []Span
}

// Span is a run of text, optionally bold.
type Span struct {
	Text string
	Bold bool
}

func (ListItem) block()  {}
func (Paragraph) block() {}

// Format splits text into blocks. Empty input yields nil.
func Format(text string) []Block {
	var blocks []Block
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if item, ok := parseListItem(line); ok {
			blocks = append(blocks, item)
			continue
		}
		blocks = append(blocks, Paragraph{Parts: parseSpans(line)})
	}
	return blocks
}

func parseListItem(line string) (ListItem, bool) {
	m := listItemRe.FindStringSubmatch(line)
	if m == nil {
		return ListItem{}, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		// digits too long for int
		return ListItem{}, false
	}
	return ListItem{Number: n, Title: m[2], Text: m[3]}, true
}

// parseSpans alternates plain and bold runs. Empty plain runs are dropped;
// "****" is kept as an empty bold span and an unpaired "**" stays literal.
func parseSpans(line string) []Span {
	var spans []Span
	last := 0
	for _, loc := range boldRe.FindAllStringSubmatchIndex(line, -1) {
		if loc[0] > last {
			spans = append(spans, Span{Text: line[last:loc[0]]})
		}
		spans = append(spans, Span{Text: line[loc[2]:loc[3]], Bold: true})
		last = loc[1]
	}
	if last < len(line) {
		spans = append(spans, Span{Text: line[last:]})
	}
	return spans
}

// Plain renders blocks as text: bold markers dropped, list items as "N. Title: text".
func Plain(blocks []Block) string {
	var sb strings.Builder
	for i, b := range blocks {
		if i > 0 {
			sb.WriteByte('\n')
		}
		switch b := b.(type) {
		case ListItem:
			sb.WriteString(strconv.Itoa(b.Number))
			sb.WriteString(". ")
			sb.WriteString(b.Title)
			sb.WriteByte(':')
			if b.Text != "" {
				sb.WriteByte(' ')
				sb.WriteString(b.Text)
			}
		case Paragraph:
			for _, p := range b.Parts {
				sb.WriteString(p.Text)
			}
		}
	}
	return sb.String()
}
