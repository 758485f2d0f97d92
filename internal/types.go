package internal

import (
	"strings"
	"time"
)

// ScrapedDocument is everything the scraper learned about one page. It is
// created once per clone request and never mutated afterwards.
type ScrapedDocument struct {
	URL        string        `json:"url" yaml:"url"`
	Title      string        `json:"title,omitempty" yaml:"title"`
	Screenshot []byte        `json:"screenshot_base64" yaml:"-"`
	Text       TextInventory `json:"text" yaml:"text"`
	Visual     VisualContext `json:"visual_context" yaml:"visual_context"`
	ScrapedAt  time.Time     `json:"scraped_at,omitempty" yaml:"scraped_at"`
}

// TextInventory holds the page's visible text in document order.
type TextInventory struct {
	Navigation []string `json:"navigation" yaml:"navigation"`
	Headings   []string `json:"headings" yaml:"headings"`
	Buttons    []string `json:"buttons" yaml:"buttons"`
	Paragraphs []string `json:"paragraphs" yaml:"paragraphs"`
}

// VisualContext is the layout digest collected in the browser.
type VisualContext struct {
	Images              []ImageDescriptor `json:"image_descriptions" yaml:"image_descriptions"`
	GridLayouts         int               `json:"grid_layouts" yaml:"grid_layouts"`
	ContentSections     int               `json:"content_sections" yaml:"content_sections"`
	InteractiveElements int               `json:"interactive_elements" yaml:"interactive_elements"`
	SiteStructure       string            `json:"site_structure,omitempty" yaml:"site_structure"`
	LayoutStyle         string            `json:"layout_style,omitempty" yaml:"layout_style"`
	SiteCategory        string            `json:"site_category,omitempty" yaml:"site_category"`
	Typography          Typography        `json:"typography" yaml:"typography"`
}

// ImageDescriptor is one image detected on the page. Geometry is in CSS
// pixels; Top/Left are relative to the document origin.
type ImageDescriptor struct {
	Width   float64 `json:"width" yaml:"width"`
	Height  float64 `json:"height" yaml:"height"`
	Top     float64 `json:"top" yaml:"top"`
	Left    float64 `json:"left" yaml:"left"`
	Src     string  `json:"src" yaml:"src"`
	Alt     string  `json:"alt,omitempty" yaml:"alt"`
	Context string  `json:"context,omitempty" yaml:"context"`
}

// Area returns width*height.
func (d ImageDescriptor) Area() float64 {
	return d.Width * d.Height
}

// IsInline reports whether the image source is an inline data URL.
func (d ImageDescriptor) IsInline() bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(d.Src)), "data:")
}

// Typography summarises fonts used on the page. FontStack is keyed by role:
// "body", "headings", "buttons".
type Typography struct {
	FontStack    map[string]FontSpec `json:"font_stack,omitempty" yaml:"font_stack"`
	CustomFonts  []string            `json:"custom_fonts,omitempty" yaml:"custom_fonts"`
	FontFamilies []FontUsage         `json:"font_families,omitempty" yaml:"font_families"`
	FontWeights  []string            `json:"font_weights,omitempty" yaml:"font_weights"`
}

type FontSpec struct {
	FontFamily    string `json:"fontFamily,omitempty" yaml:"font_family"`
	FontSize      string `json:"fontSize,omitempty" yaml:"font_size"`
	FontWeight    string `json:"fontWeight,omitempty" yaml:"font_weight"`
	LineHeight    string `json:"lineHeight,omitempty" yaml:"line_height"`
	Color         string `json:"color,omitempty" yaml:"color"`
	TextTransform string `json:"textTransform,omitempty" yaml:"text_transform"`
	LetterSpacing string `json:"letterSpacing,omitempty" yaml:"letter_spacing"`
}

type FontUsage struct {
	Family     string `json:"family" yaml:"family"`
	UsageCount int    `json:"usage_count" yaml:"usage_count"`
	IsCustom   bool   `json:"is_custom,omitempty" yaml:"is_custom"`
}

// CloneResult is what a caller receives. HTML is always displayable, even
// when Success is false.
type CloneResult struct {
	Success             bool    `json:"success"`
	HTML                string  `json:"html"`
	VisualSimilarity    float64 `json:"visual_similarity"`
	ContentCompleteness float64 `json:"content_completeness"`
	AssetScore          float64 `json:"asset_score"`
	Iterations          int     `json:"iterations"`
	Error               string  `json:"error,omitempty"`
}
