package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []Block
	}{
		{
			name: "empty",
			in:   "",
			want: nil,
		},
		{
			name: "blank lines only",
			in:   "\n  \n\t\n",
			want: nil,
		},
		{
			name: "list item",
			in:   "1. **Title** body",
			want: []Block{ListItem{Number: 1, Title: "Title", Text: "body"}},
		},
		{
			name: "list item without text",
			in:   "12.**Reset password**",
			want: []Block{ListItem{Number: 12, Title: "Reset password", Text: ""}},
		},
		{
			name: "bold in paragraph",
			in:   "plain **bold** text",
			want: []Block{Paragraph{Parts: []Span{
				{Text: "plain "},
				{Text: "bold", Bold: true},
				{Text: " text"},
			}}},
		},
		{
			name: "no markers",
			in:   "just words",
			want: []Block{Paragraph{Parts: []Span{{Text: "just words"}}}},
		},
		{
			name: "leading bold drops empty plain span",
			in:   "**Note:** read this",
			want: []Block{Paragraph{Parts: []Span{
				{Text: "Note:", Bold: true},
				{Text: " read this"},
			}}},
		},
		{
			name: "unpaired marker stays literal",
			in:   "a **b** c ** d",
			want: []Block{Paragraph{Parts: []Span{
				{Text: "a "},
				{Text: "b", Bold: true},
				{Text: " c ** d"},
			}}},
		},
		{
			name: "empty bold pair",
			in:   "x****y",
			want: []Block{Paragraph{Parts: []Span{
				{Text: "x"},
				{Text: "", Bold: true},
				{Text: "y"},
			}}},
		},
		{
			name: "non-greedy pairs",
			in:   "**a** and **b**",
			want: []Block{Paragraph{Parts: []Span{
				{Text: "a", Bold: true},
				{Text: " and "},
				{Text: "b", Bold: true},
			}}},
		},
		{
			name: "mixed lines keep untrimmed text",
			in:   "Here are steps:\n\n1. **Open** the app\n  2. **Not a list** item\n",
			want: []Block{
				Paragraph{Parts: []Span{{Text: "Here are steps:"}}},
				ListItem{Number: 1, Title: "Open", Text: "the app"},
				Paragraph{Parts: []Span{
					{Text: "  2. "},
					{Text: "Not a list", Bold: true},
					{Text: " item"},
				}},
			},
		},
		{
			name: "number without bold title is a paragraph",
			in:   "1. plain item",
			want: []Block{Paragraph{Parts: []Span{{Text: "1. plain item"}}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Format(tt.in))
		})
	}
}

func TestPlain(t *testing.T) {
	blocks := Format("Intro **bold**\n1. **Step** do it\n2. **Done**")
	assert.Equal(t, "Intro bold\n1. Step: do it\n2. Done:", Plain(blocks))
	assert.Equal(t, "", Plain(nil))
}
