package fetch

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/verdictd/verdictd/internal/domain"
)

// skippedElements are removed wholesale before text extraction: they carry
// navigation chrome and code, not article content.
var skippedElements = map[string]bool{
	"script":   true,
	"style":    true,
	"nav":      true,
	"footer":   true,
	"header":   true,
	"aside":    true,
	"noscript": true,
	"iframe":   true,
	"form":     true,
	"svg":      true,
}

// publishedMetaNames are the meta tag names/properties checked, in order,
// for a publication date.
var publishedMetaNames = []string{
	"article:published_time",
	"og:published_time",
	"date",
	"publish-date",
	"datePublished",
}

// ExtractContent parses an HTML document and returns the main content text
// (capped at maxLen runes) together with title/description/author/publish
// date metadata where present. The main-content heuristic prefers <article>,
// then <main>, then falls back to <body>.
func ExtractContent(doc []byte, maxLen int) (domain.SourceContent, error) {
	root, err := html.Parse(bytes.NewReader(doc))
	if err != nil {
		return domain.SourceContent{}, fmt.Errorf("parse html: %w", err)
	}

	var content domain.SourceContent
	content.Title = findTitle(root)
	content.Description = findMeta(root, "description", "og:description")
	content.Author = findMeta(root, "author", "article:author")
	if raw := findMeta(root, publishedMetaNames...); raw != "" {
		if t, ok := parsePublishedDate(raw); ok {
			content.PublishedAt = &t
		}
	}

	main := findFirstElement(root, "article")
	if main == nil {
		main = findFirstElement(root, "main")
	}
	if main == nil {
		main = findFirstElement(root, "body")
	}
	if main == nil {
		main = root
	}

	var sb strings.Builder
	collectText(main, &sb)
	content.Text = capText(normalizeWhitespace(sb.String()), maxLen)

	return content, nil
}

// findTitle returns the document <title> text.
func findTitle(root *html.Node) string {
	node := findFirstElement(root, "title")
	if node == nil || node.FirstChild == nil {
		return ""
	}
	return strings.TrimSpace(node.FirstChild.Data)
}

// findMeta returns the content attribute of the first <meta> tag whose name
// or property matches any of the given keys, in key order.
func findMeta(root *html.Node, keys ...string) string {
	for _, key := range keys {
		if v := findMetaOnce(root, key); v != "" {
			return v
		}
	}
	return ""
}

func findMetaOnce(root *html.Node, key string) string {
	var result string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if result != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "meta" {
			var name, content string
			for _, attr := range n.Attr {
				switch attr.Key {
				case "name", "property", "itemprop":
					if name == "" {
						name = attr.Val
					}
				case "content":
					content = attr.Val
				}
			}
			if strings.EqualFold(name, key) && content != "" {
				result = strings.TrimSpace(content)
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return result
}

// findFirstElement returns the first element node with the given tag name.
func findFirstElement(root *html.Node, tag string) *html.Node {
	var result *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if result != nil {
			return
		}
		if n.Type == html.ElementNode && n.Data == tag {
			result = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return result
}

// collectText appends the visible text under n, skipping chrome elements.
func collectText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.ElementNode && skippedElements[n.Data] {
		return
	}
	if n.Type == html.TextNode {
		text := strings.TrimSpace(n.Data)
		if text != "" {
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(text)
		}
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb)
	}
}

// normalizeWhitespace collapses runs of whitespace into single spaces.
func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// capText truncates s to at most maxLen runes, cutting at a word boundary
// when one is close.
func capText(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	cut := string(runes[:maxLen])
	if idx := strings.LastIndexByte(cut, ' '); idx > maxLen/2 {
		cut = cut[:idx]
	}
	return cut
}

// publishedDateLayouts are the timestamp formats accepted from meta tags.
var publishedDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"January 2, 2006",
	"Jan 2, 2006",
}

func parsePublishedDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range publishedDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
