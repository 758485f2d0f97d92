package scraper

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/valpere/reclone/internal"
)

const (
	maxItemLen      = 300
	minParagraphLen = 20
	maxItems        = 50
)

const (
	navigationSelector = "nav a, header a, [role=navigation] a"
	headingSelector    = "h1, h2, h3, h4, h5, h6"
	buttonSelector     = "button, input[type=submit], input[type=button], [role=button], a.btn, a.button"
	paragraphSelector  = "main p, article p, section p, body > p, div > p"
)

// ExtractInventory collects the visible text of a page in document order.
// Labels are whitespace-collapsed, deduplicated, and dropped when empty or
// longer than 300 characters.
func ExtractInventory(markup string) (internal.TextInventory, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return internal.TextInventory{}, fmt.Errorf("failed to parse page: %w", err)
	}
	doc.Find("script, style, noscript, template").Remove()

	return internal.TextInventory{
		Navigation: collect(doc.Find(navigationSelector), 1),
		Headings:   collect(doc.Find(headingSelector), 1),
		Buttons:    collect(doc.Find(buttonSelector), 1),
		Paragraphs: collect(doc.Find(paragraphSelector), minParagraphLen),
	}, nil
}

func collect(sel *goquery.Selection, minLen int) []string {
	seen := make(map[string]struct{})
	var out []string
	sel.Each(func(_ int, s *goquery.Selection) {
		if len(out) >= maxItems {
			return
		}
		text := label(s)
		n := len([]rune(text))
		if n < minLen || n >= maxItemLen {
			return
		}
		if _, ok := seen[text]; ok {
			return
		}
		seen[text] = struct{}{}
		out = append(out, text)
	})
	return out
}

func label(s *goquery.Selection) string {
	text := strings.Join(strings.Fields(s.Text()), " ")
	if text != "" {
		return text
	}
	if goquery.NodeName(s) == "input" {
		v, _ := s.Attr("value")
		return strings.Join(strings.Fields(v), " ")
	}
	if v, ok := s.Attr("aria-label"); ok {
		return strings.Join(strings.Fields(v), " ")
	}
	return ""
}
