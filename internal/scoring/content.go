package scoring

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/valpere/reclone/internal"
	"github.com/valpere/reclone/internal/normalize"
)

const (
	// contentItemsPerGroup caps how many headings, buttons and navigation
	// labels are checked.
	contentItemsPerGroup = 8
	// contentMinItemLen skips labels too short to be meaningful ("Go", "›").
	contentMinItemLen = 3
)

// ContentReport is the checklist behind a content score.
type ContentReport struct {
	Total     int      `json:"total"`
	Passed    int      `json:"passed"`
	Missing   []string `json:"missing,omitempty"`
	Inert     bool     `json:"inert"`
	Landmarks bool     `json:"landmarks"`
}

// Score returns Passed/Total. Total is never below 2.
func (r ContentReport) Score() float64 {
	if r.Total <= 0 {
		return 0
	}
	return float64(r.Passed) / float64(r.Total)
}

// Content measures how much of the source text survived into candidate.
func Content(candidate string, inv internal.TextInventory) float64 {
	return CheckContent(candidate, inv).Score()
}

// CheckContent builds the checklist: up to 8 headings, 8 buttons and 8
// navigation labels (case-insensitive containment), plus two structural
// checks: actionable elements are inert and a page landmark exists.
func CheckContent(candidate string, inv internal.TextInventory) ContentReport {
	var r ContentReport
	haystack := fold(candidate)

	for _, group := range [][]string{inv.Headings, inv.Buttons, inv.Navigation} {
		for _, item := range head(group, contentItemsPerGroup) {
			item = strings.TrimSpace(item)
			if len([]rune(item)) < contentMinItemLen {
				continue
			}
			r.Total++
			if strings.Contains(haystack, fold(item)) {
				r.Passed++
			} else {
				r.Missing = append(r.Missing, item)
			}
		}
	}

	r.Total += 2
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(candidate))
	if err != nil {
		return r
	}
	if normalize.LiveElements(doc) == 0 {
		r.Inert = true
		r.Passed++
	}
	if doc.Find("nav, header, footer, main").Length() > 0 {
		r.Landmarks = true
		r.Passed++
	}

	return r
}

// fold prepares text for case-insensitive comparison.
func fold(s string) string {
	return cases.Fold().String(norm.NFC.String(s))
}

func head(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}
