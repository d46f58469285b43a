package adapter

import (
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const blockSelector = "p, div, li, ul, ol, h1, h2, h3, h4, h5, h6, tr, table, section, article, blockquote, pre"

// htmlToText converts an HTML or HTML-encoded string to plain text, one line
// per block element. Greenhouse double-encodes its content, so entity-only
// input is unescaped first.
func htmlToText(content string) string {
	if content == "" {
		return ""
	}
	if !strings.Contains(content, "<") {
		content = html.UnescapeString(content)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return collapseSpace(content)
	}
	doc.Find("script, style").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
		s.PrependHtml("\n")
		s.AppendHtml("\n")
	})

	var lines []string
	for _, line := range strings.Split(doc.Text(), "\n") {
		if line = collapseSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// collapseSpace trims s and folds runs of whitespace into single spaces.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
