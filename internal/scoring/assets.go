package scoring

import (
	"html"
	"math"
	"net/url"
	"strings"

	"github.com/valpere/reclone/internal"
	"github.com/valpere/reclone/internal/assets"
)

const (
	exactAward   = 1.0
	partialAward = 0.8
	glyphWeight  = 0.1
	glyphCap     = 0.5
)

// glyphs are the symbols a candidate may use instead of tiny icon images.
// The emoji variation selector U+FE0F counts on its own, so "❤️" is two.
var glyphs = map[rune]struct{}{
	'⚙': {}, '🔍': {}, '📱': {}, '💻': {}, '⭐': {}, '❤': {}, '🏠': {}, '📧': {},
	'📞': {}, '✓': {}, '▶': {}, '◀': {}, '▲': {}, '▼': {}, '►': {}, '◄': {},
	'\uFE0F': {},
}

// AssetReport is the breakdown behind an asset score.
type AssetReport struct {
	Priority int     `json:"priority"`
	Exact    int     `json:"exact"`
	Partial  int     `json:"partial"`
	Glyphs   int     `json:"glyphs"`
	Bonus    float64 `json:"bonus"`
	Score    float64 `json:"score"`
}

// Assets measures how well the priority images of the page were reused in
// candidate.
func Assets(candidate string, images []internal.ImageDescriptor) float64 {
	return CheckAssets(candidate, images).Score
}

// CheckAssets awards 1.0 per priority image referenced by its exact URL,
// 0.8 when only the file name survived, and a capped bonus for glyph icons.
func CheckAssets(candidate string, images []internal.ImageDescriptor) AssetReport {
	priority := assets.Classify(images).Priority()
	r := AssetReport{Priority: len(priority), Glyphs: CountGlyphs(candidate)}
	if len(priority) == 0 {
		r.Score = 1.0
		return r
	}

	awards := 0.0
	for _, a := range priority {
		switch {
		case mentions(candidate, a.ResolvedURL) || mentions(candidate, strings.TrimSpace(a.Src)):
			r.Exact++
			awards += exactAward
		case !assets.IsPlaceholder(a.ResolvedURL) && mentions(candidate, lastSegment(a.ResolvedURL)):
			r.Partial++
			awards += partialAward
		}
	}

	r.Bonus = math.Min(float64(r.Glyphs)*glyphWeight, glyphCap)
	r.Score = math.Min(1.0, (awards+r.Bonus)/float64(len(priority)))
	return r
}

// CountGlyphs counts icon glyphs in s.
func CountGlyphs(s string) int {
	n := 0
	for _, r := range s {
		if _, ok := glyphs[r]; ok {
			n++
		}
	}
	return n
}

// CountImageTags counts <img elements in s.
func CountImageTags(s string) int {
	return strings.Count(strings.ToLower(s), "<img")
}

// mentions reports whether needle appears in markup verbatim or in its
// HTML-escaped form (generators escape & in attribute values).
func mentions(markup, needle string) bool {
	if needle == "" {
		return false
	}
	if strings.Contains(markup, needle) {
		return true
	}
	escaped := html.EscapeString(needle)
	return escaped != needle && strings.Contains(markup, escaped)
}

// lastSegment returns the final path segment of rawURL, without query or
// fragment. A trailing slash yields "".
func lastSegment(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	if i := strings.LastIndex(p, "/"); i >= 0 {
		p = p[i+1:]
	}
	return p
}
