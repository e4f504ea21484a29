// Package links extracts hyperlinks from message bodies.
package links

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// textURL matches http(s) URLs in plain text up to the next whitespace.
var textURL = regexp.MustCompile(`https?://\S+`)

// FromText returns every URL found in plain text, in order of appearance.
func FromText(text string) []string {
	return textURL.FindAllString(text, -1)
}

// FromHTML returns the href of every anchor that carries one, in document
// order. Malformed markup is parsed leniently; an unreadable document yields
// no links.
func FromHTML(content string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil
	}

	var out []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			out = append(out, href)
		}
	})
	return out
}

// All extracts links from HTML or from plain text.
func All(content string, isHTML bool) []string {
	if isHTML {
		return FromHTML(content)
	}
	return FromText(content)
}

// First returns the first link, or "" when there is none.
func First(content string, isHTML bool) string {
	found := All(content, isHTML)
	if len(found) == 0 {
		return ""
	}
	return found[0]
}

// Unique returns links with duplicates removed, keeping first occurrences.
func Unique(links []string) []string {
	seen := make(map[string]struct{}, len(links))
	out := make([]string, 0, len(links))
	for _, l := range links {
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out
}
