package app

import (
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var blankRunPattern = regexp.MustCompile(`\n{3,}`)

// markupToText converts an XHTML/HTML document into plain readable text.
// Paragraphs and headings become blank-line separated blocks, line breaks and
// list items become single newlines, script and style subtrees are dropped.
// Entities are decoded by the parser.
func markupToText(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		switch node.Type {
		case html.TextNode:
			b.WriteString(node.Data)
		case html.ElementNode:
			switch node.Data {
			case "script", "style":
				return
			case "br":
				b.WriteString("\n")
			}
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
		if node.Type == html.ElementNode {
			switch node.Data {
			case "p", "h1", "h2", "h3", "h4", "h5", "h6":
				b.WriteString("\n\n")
			case "li", "div":
				b.WriteString("\n")
			}
		}
	}
	walk(doc)
	return collapseBlankLines(b.String()), nil
}

// collapseBlankLines normalizes line endings, strips trailing spaces per
// line, and squeezes runs of blank lines down to a single blank line.
func collapseBlankLines(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	text = strings.Join(lines, "\n")
	text = blankRunPattern.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
