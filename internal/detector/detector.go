// Package detector guesses the language a scraped page is written in so the
// construction prompt can ask the generator to keep it.
package detector

import (
	"strings"

	lingua "github.com/pemistahl/lingua-go"

	"github.com/valpere/reclone/internal"
)

// minSampleLength is the minimum rune count required to attempt detection on
// a page. Shorter samples produce unreliable results and are reported as
// unknown.
const minSampleLength = 20

// DefaultLanguages covers the languages most websites are published in.
// Building a detector for every language lingua knows costs several hundred
// megabytes of models.
var DefaultLanguages = []lingua.Language{
	lingua.English, lingua.German, lingua.French, lingua.Spanish,
	lingua.Italian, lingua.Portuguese, lingua.Dutch, lingua.Polish,
	lingua.Russian, lingua.Ukrainian, lingua.Turkish, lingua.Arabic,
	lingua.Chinese, lingua.Japanese, lingua.Korean,
}

type Detector struct {
	detector lingua.LanguageDetector
}

// New builds a detector restricted to languages, or to DefaultLanguages when
// fewer than two are given. The detector is expensive to build; reuse it.
func New(languages ...lingua.Language) *Detector {
	if len(languages) < 2 {
		languages = DefaultLanguages
	}
	detector := lingua.NewLanguageDetectorBuilder().
		FromLanguages(languages...).
		Build()

	return &Detector{detector: detector}
}

func (d *Detector) Detect(text string) (lingua.Language, bool) {
	if text == "" {
		return lingua.Unknown, false
	}
	return d.detector.DetectLanguageOf(text)
}

// DetectISO returns the lower-case ISO 639-1 code of text.
func (d *Detector) DetectISO(text string) (string, bool) {
	lang, ok := d.Detect(text)
	if !ok {
		return "", false
	}
	return strings.ToLower(lang.IsoCode639_1().String()), true
}

// DetectPage detects the language of the visible text of a page. Headings and
// paragraphs carry more prose than navigation labels and come first.
func (d *Detector) DetectPage(inv internal.TextInventory) (string, bool) {
	var parts []string
	parts = append(parts, inv.Headings...)
	parts = append(parts, inv.Paragraphs...)
	parts = append(parts, inv.Buttons...)
	parts = append(parts, inv.Navigation...)

	sample := strings.TrimSpace(strings.Join(parts, ". "))
	if len([]rune(sample)) < minSampleLength {
		return "", false
	}
	return d.DetectISO(sample)
}
