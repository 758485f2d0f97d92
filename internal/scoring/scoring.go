// Package scoring measures how faithfully a candidate recreates a page.
//
// Three independent signals are computed: visual similarity of the rendered
// candidate to the reference screenshot, content completeness of the markup
// against the scraped text inventory, and reuse of priority images. Scorers
// are pure functions with no shared state.
package scoring

import (
	"github.com/valpere/reclone/internal"
)

// Scores holds the three fidelity signals, each in [0,1].
type Scores struct {
	Visual  float64 `json:"visual" mapstructure:"visual"`
	Content float64 `json:"content" mapstructure:"content"`
	Asset   float64 `json:"asset" mapstructure:"asset"`
}

// Weights ranks candidates by a weighted sum of their scores.
type Weights struct {
	Visual  float64 `json:"visual" mapstructure:"visual"`
	Content float64 `json:"content" mapstructure:"content"`
	Asset   float64 `json:"asset" mapstructure:"asset"`
}

// DefaultWeights favours visual fidelity.
var DefaultWeights = Weights{Visual: 0.6, Content: 0.3, Asset: 0.1}

// Combined returns the weighted sum of s.
func (s Scores) Combined(w Weights) float64 {
	return w.Visual*s.Visual + w.Content*s.Content + w.Asset*s.Asset
}

// Suite exposes the scorers as methods so callers can substitute them.
type Suite struct{}

func (Suite) Visual(reference, rendered []byte) (float64, error) {
	return Visual(reference, rendered)
}

func (Suite) Content(markup string, inv internal.TextInventory) float64 {
	return Content(markup, inv)
}

func (Suite) Assets(markup string, images []internal.ImageDescriptor) float64 {
	return Assets(markup, images)
}
