package normalize

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// IsInert reports whether no actionable element in markup can navigate or
// submit: every off-page hyperlink carries the no-op click handler, every
// button declares a click handler and every form a submit handler. Markup
// without any actionable element is inert.
func IsInert(markup string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return false
	}
	return LiveElements(doc) == 0
}

// LiveElements counts actionable elements that are not neutralized.
func LiveElements(doc *goquery.Document) int {
	live := 0

	doc.Find("a[href], area[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if IsFragment(href) {
			return
		}
		onclick, _ := s.Attr("onclick")
		if !strings.Contains(onclick, NoopHandler) {
			live++
		}
	})

	live += doc.Find("button:not([onclick])").Length()
	live += doc.Find("form:not([onsubmit])").Length()

	return live
}
