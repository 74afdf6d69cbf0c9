package generator

import (
	"errors"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Models wrap their output in markdown code fences more often than not,
// with or without a language tag.
var fenceRe = regexp.MustCompile("(?i)```(?:html|css|js)?\n?")

// ErrEmptyArtifact is returned when the model output contains no usable markup.
var ErrEmptyArtifact = errors.New("generator: model returned no usable markup")

// CleanHTML strips markdown code fences from raw model output and verifies
// that what remains still parses as markup with at least one element.
func CleanHTML(raw string) (string, error) {
	cleaned := strings.TrimSpace(fenceRe.ReplaceAllString(raw, ""))
	if cleaned == "" {
		return "", ErrEmptyArtifact
	}

	doc, err := html.Parse(strings.NewReader(cleaned))
	if err != nil {
		return "", ErrEmptyArtifact
	}
	if !hasElement(doc) {
		return "", ErrEmptyArtifact
	}
	return cleaned, nil
}

// hasElement walks the parse tree looking for any element node with content.
// html.Parse synthesizes empty html/head/body wrappers, so those alone do
// not count.
func hasElement(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.ElementNode:
			switch c.Data {
			case "html", "head", "body":
				if hasElement(c) {
					return true
				}
			default:
				return true
			}
		case html.TextNode:
			if strings.TrimSpace(c.Data) != "" {
				return true
			}
		default:
			if hasElement(c) {
				return true
			}
		}
	}
	return false
}

// SiteName derives a human-facing display name for a revision from the
// generated document's <title>. When the document has none, the fallback
// (normally the user prompt) is truncated instead.
func SiteName(htmlContent, fallback string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err == nil {
		if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
			return truncate(title, 120)
		}
	}
	fallback = strings.TrimSpace(fallback)
	if fallback == "" {
		return "Untitled site"
	}
	return truncate(fallback, 80)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
