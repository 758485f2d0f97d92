// Package prompt builds the instructions sent to the generator: a shared
// system prompt, the construction prompt for the first candidate and the two
// refinement variants used afterwards.
package prompt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/valpere/reclone/internal"
	"github.com/valpere/reclone/internal/assets"
)

const (
	maxNavigation    = 10
	maxHeadings      = 8
	maxButtons       = 10
	maxParagraphs    = 6
	paragraphPreview = 80
	maxCustomFonts   = 5
	maxFontFamilies  = 5
	maxLogos         = 3
	maxContentImages = 5
	contextPreview   = 50
	placementPreview = 40
)

// IconGlyphs lists the symbols suggested as replacements for tiny icons.
const IconGlyphs = "⚙️ 🔍 📱 💻 ⭐ ❤️ 🏠 📧 📞 ✓"

// System returns the system prompt shared by every request of a session.
func System() string {
	return `You are an expert web developer who recreates existing websites as a single static HTML file.

TYPOGRAPHY PRIORITIES:
1. Use the exact font families of the original site
2. Include a Google Fonts link when custom fonts are detected
3. Match font weights precisely (100-900)
4. Preserve the text hierarchy with correct sizes
5. Keep line heights and letter spacing

IMAGE STRATEGY:
- LOGOS: always use <img> tags with the exact URLs provided
- CONTENT IMAGES (100px and larger): always use <img> tags with the exact URLs provided
- TINY ICONS (32px and smaller): use Unicode symbols (⚙️ 🔍 📱) or CSS shapes instead of <img> tags

ABSOLUTE PRIORITIES:
1. IMAGES: use the real image URLs of the website, never invented placeholders
2. CONTENT: include all text content from the provided lists
3. LAYOUT: use modern CSS (Grid/Flexbox) to match the detected structure
4. FUNCTIONALITY: disable every interactive element

RULES:
- Only use picsum.photos where the provided URL already points there
- Do not emit a separate <img> tag for each tiny icon
- Focus on the images users actually see

Always return one complete HTML document with embedded CSS.`
}

// Construction returns the prompt for the first candidate. lang is the ISO
// code of the page language, or empty when unknown.
func Construction(doc *internal.ScrapedDocument, cls assets.Classification, lang string) string {
	var sb strings.Builder

	sb.WriteString("You must recreate this website as exactly as possible using the screenshot and the data below.\n")
	if lang != "" {
		fmt.Fprintf(&sb, "The page is written in language %q. Keep every text in that language; do not translate.\n", lang)
	}

	writeContent(&sb, doc.Text)
	writeTypography(&sb, doc.Visual.Typography)
	writeImages(&sb, cls)
	writeLayout(&sb, doc.Visual, cls)
	writeRequirements(&sb, doc.Visual, cls)

	return sb.String()
}

func writeContent(sb *strings.Builder, text internal.TextInventory) {
	sb.WriteString("\nNAVIGATION ITEMS:\n")
	writeBullets(sb, head(text.Navigation, maxNavigation))

	sb.WriteString("\nHEADINGS:\n")
	writeBullets(sb, head(text.Headings, maxHeadings))

	sb.WriteString("\nBUTTONS:\n")
	writeBullets(sb, head(text.Buttons, maxButtons))

	sb.WriteString("\nPARAGRAPHS:\n")
	for _, p := range head(text.Paragraphs, maxParagraphs) {
		fmt.Fprintf(sb, "• %s...\n", truncate(p, paragraphPreview))
	}
}

var fontDefaults = map[string]internal.FontSpec{
	"body": {
		FontFamily: "system-ui, -apple-system, sans-serif",
		FontSize:   "16px",
		FontWeight: "400",
		LineHeight: "1.5",
		Color:      "#000000",
	},
	"headings": {FontFamily: "inherit", FontSize: "32px", FontWeight: "700", Color: "#000000"},
	"buttons": {
		FontFamily:    "inherit",
		FontSize:      "16px",
		FontWeight:    "500",
		TextTransform: "none",
		LetterSpacing: "normal",
	},
}

func fontSpec(t internal.Typography, role string) internal.FontSpec {
	spec := t.FontStack[role]
	def := fontDefaults[role]
	for _, f := range []struct{ dst, src *string }{
		{&spec.FontFamily, &def.FontFamily},
		{&spec.FontSize, &def.FontSize},
		{&spec.FontWeight, &def.FontWeight},
		{&spec.LineHeight, &def.LineHeight},
		{&spec.Color, &def.Color},
		{&spec.TextTransform, &def.TextTransform},
		{&spec.LetterSpacing, &def.LetterSpacing},
	} {
		if *f.dst == "" {
			*f.dst = *f.src
		}
	}
	return spec
}

func writeTypography(sb *strings.Builder, t internal.Typography) {
	sb.WriteString("\nTYPOGRAPHY SPECIFICATIONS:\n")

	fmt.Fprintf(sb, "\nCUSTOM FONTS DETECTED (%d web fonts):\n", len(t.CustomFonts))
	writeBullets(sb, head(t.CustomFonts, maxCustomFonts))

	body := fontSpec(t, "body")
	headings := fontSpec(t, "headings")
	buttons := fontSpec(t, "buttons")

	sb.WriteString("\nFONT STACK USAGE:\n")
	fmt.Fprintf(sb, "Body Text:\n├─ Font: %s\n├─ Size: %s\n├─ Weight: %s\n├─ Line Height: %s\n└─ Color: %s\n",
		body.FontFamily, body.FontSize, body.FontWeight, body.LineHeight, body.Color)
	fmt.Fprintf(sb, "\nHeadings:\n├─ Font: %s\n├─ Size: %s\n├─ Weight: %s\n└─ Color: %s\n",
		headings.FontFamily, headings.FontSize, headings.FontWeight, headings.Color)
	fmt.Fprintf(sb, "\nButtons:\n├─ Font: %s\n├─ Size: %s\n├─ Weight: %s\n├─ Transform: %s\n└─ Letter Spacing: %s\n",
		buttons.FontFamily, buttons.FontSize, buttons.FontWeight, buttons.TextTransform, buttons.LetterSpacing)

	sb.WriteString("\nFONT USAGE PRIORITY:\n")
	for i, ff := range head(t.FontFamilies, maxFontFamilies) {
		mark := ""
		if ff.IsCustom {
			mark = "*"
		}
		fmt.Fprintf(sb, "%d. %s (used %d times%s)\n", i+1, ff.Family, ff.UsageCount, mark)
	}

	weights := append([]string(nil), t.FontWeights...)
	sort.Strings(weights)

	sb.WriteString("\nIMPLEMENTATION RULES:\n")
	sb.WriteString("1. Use the exact font families specified above in the correct order\n")
	sb.WriteString("2. Include fallback fonts for each font stack\n")
	sb.WriteString("3. If custom fonts are detected, load them from an appropriate web font service\n")
	fmt.Fprintf(sb, "4. Maintain font weights: %s\n", strings.Join(weights, ", "))
	sb.WriteString("5. Keep the original text hierarchy with proper font sizes\n")
}

func writeImages(sb *strings.Builder, cls assets.Classification) {
	priority := len(cls.Logos) + len(cls.Content)

	sb.WriteString("\nIMAGE IMPLEMENTATION STRATEGY:\n")

	fmt.Fprintf(sb, "\nPRIORITY 1 - LOGOS (%d found):\n", len(cls.Logos))
	for i, a := range head(cls.Logos, maxLogos) {
		alt := a.Alt
		if alt == "" {
			alt = "Logo"
		}
		fmt.Fprintf(sb, "Logo %d: %s\n├─ Size: %s×%spx\n├─ URL: %s\n└─ Place in: Header/Navigation area\n",
			i+1, alt, dim(a.Width), dim(a.Height), a.ResolvedURL)
	}

	fmt.Fprintf(sb, "\nPRIORITY 2 - CONTENT IMAGES (%d found):\n", len(cls.Content))
	for i, a := range head(cls.Content, maxContentImages) {
		place := truncate(a.Context, placementPreview)
		if place == "" {
			place = "Main content area"
		}
		fmt.Fprintf(sb, "Content Image %d: %s\n├─ Size: %s×%spx\n├─ Context: %q\n├─ URL: %s\n└─ Place in: %s\n",
			i+1, a.Tier, dim(a.Width), dim(a.Height), truncate(a.Context, contextPreview), a.ResolvedURL, place)
	}

	fmt.Fprintf(sb, "\nPRIORITY 3 - TINY ICONS (%d found):\n", len(cls.Icons))
	fmt.Fprintf(sb, "For the %d tiny icons (≤32px), use simple replacements:\n", len(cls.Icons))
	fmt.Fprintf(sb, "- Unicode symbols: %s\n", IconGlyphs)
	sb.WriteString("- Or CSS-only shapes with background colors\n")
	sb.WriteString("- No <img> tags for these tiny elements\n")

	sb.WriteString("\nIMAGE RULES:\n")
	sb.WriteString("1. Always implement logos and content images with <img> tags\n")
	sb.WriteString("2. Use the exact URLs provided above; they come from the actual website\n")
	sb.WriteString("3. For tiny icons, use Unicode symbols or CSS shapes instead\n")
	fmt.Fprintf(sb, "4. Focus on the %d important images first\n", priority)
	sb.WriteString("5. Place logos prominently in the header/navigation\n")
}

func writeLayout(sb *strings.Builder, v internal.VisualContext, cls assets.Classification) {
	sb.WriteString("\nDETECTED LAYOUT:\n")
	fmt.Fprintf(sb, "- Site Structure: %s\n", orUnknown(v.SiteStructure))
	fmt.Fprintf(sb, "- Layout Style: %s\n", orUnknown(v.LayoutStyle))
	fmt.Fprintf(sb, "- Grid Layouts Found: %d\n", v.GridLayouts)
	fmt.Fprintf(sb, "- Content Sections: %d\n", v.ContentSections)
	fmt.Fprintf(sb, "- Interactive Elements: %d\n", v.InteractiveElements)
	fmt.Fprintf(sb, "- Site Category: %s\n", orUnknown(v.SiteCategory))

	sb.WriteString("\nIMAGE SUMMARY:\n")
	fmt.Fprintf(sb, "- Total images detected: %d\n", cls.Total())
	fmt.Fprintf(sb, "- Logos: %d (use <img> tags with actual URLs)\n", len(cls.Logos))
	fmt.Fprintf(sb, "- Content images: %d (use <img> tags with actual URLs)\n", len(cls.Content))
	fmt.Fprintf(sb, "- Tiny icons: %d (use Unicode/CSS instead)\n", len(cls.Icons))
	fmt.Fprintf(sb, "- Priority images to implement: %d\n", len(cls.Logos)+len(cls.Content))
}

func writeRequirements(sb *strings.Builder, v internal.VisualContext, cls assets.Classification) {
	sb.WriteString("\nCRITICAL REQUIREMENTS:\n")

	sb.WriteString("\n1. CONTENT COMPLETENESS:\n")
	sb.WriteString("   • Include ALL navigation items, headings, buttons and paragraphs listed above\n")
	sb.WriteString("   • Do not skip any text content\n")

	sb.WriteString("\n2. IMAGES:\n")
	fmt.Fprintf(sb, "   • Implement the %d logos with <img> tags and their actual URLs\n", len(cls.Logos))
	fmt.Fprintf(sb, "   • Implement the %d content images with <img> tags and their actual URLs\n", len(cls.Content))
	fmt.Fprintf(sb, "   • For the %d tiny icons, use Unicode symbols or CSS shapes (not <img> tags)\n", len(cls.Icons))

	sb.WriteString("\n3. LAYOUT & STRUCTURE:\n")
	fmt.Fprintf(sb, "   • Use CSS Grid or Flexbox (detected %d grid layouts)\n", v.GridLayouts)
	fmt.Fprintf(sb, "   • Follow the detected site structure: %s\n", orUnknown(v.SiteStructure))
	fmt.Fprintf(sb, "   • Match the layout style: %s\n", orUnknown(v.LayoutStyle))

	sb.WriteString("\n4. INTERACTIVITY (DISABLED):\n")
	sb.WriteString("   • All buttons: onclick=\"return false;\"\n")
	sb.WriteString("   • All links: href=\"#\" onclick=\"return false;\"\n")
	sb.WriteString("   • All forms: onsubmit=\"return false;\"\n")

	sb.WriteString("\n5. RESPONSIVE DESIGN:\n")
	sb.WriteString("   • Make it mobile-responsive with proper breakpoints\n")

	sb.WriteString("\nCreate a complete, working HTML file with embedded CSS that uses the actual images from the website.")
}

// Refinement describes the previous candidate for a refinement request.
type Refinement struct {
	HTML          string
	Visual        float64
	Minor         bool
	ImageTags     int
	Glyphs        int
	PriorityCount int
}

// Refine returns the refinement prompt. Minor requests only polish styling;
// otherwise the prompt reports image usage and asks for stronger layout work.
// Both forbid dropping content.
func Refine(r Refinement) string {
	if r.Minor {
		return fmt.Sprintf(`The visual similarity is good (%.3f). Make only minor improvements:

1. Fine-tune logo and content image positioning
2. Improve hover effects and transitions
3. Adjust colors and spacing to better match the screenshot
4. Keep logos and main images prominently displayed
5. Verify all image URLs are the actual ones from the website
6. Fine-tune typography:
   • Verify font families match exactly
   • Check that web fonts load properly
   • Adjust font weights and sizes

CRITICAL: Keep ALL existing content and important images exactly as they are.
Only improve styling and positioning.

Current HTML:
%s

Return the improved version with better styling but identical content and images.`, r.Visual, r.HTML)
	}

	return fmt.Sprintf(`Visual similarity is low (%.3f). Focus on image and layout improvements:

PRIORITY FIXES:
1. IMAGES: found %d <img> tags and %d Unicode icons; the page has %d priority images
   • Logos and content images (100px and larger) must use <img> tags with the actual URLs from the website
   • Replace tiny icons with Unicode symbols: %s
   • Verify all image URLs are the original ones, not placeholders

2. LAYOUT IMPROVEMENTS:
   • Better CSS Grid/Flexbox implementation
   • Improve spacing and positioning
   • Make logos more prominent in the header

3. STYLING:
   • Better color scheme matching
   • Improved typography and spacing
   • More accurate visual recreation

CRITICAL: Keep ALL existing text content exactly as it is. Do not remove any section.

Current HTML:
%s

Return the improved version with the image strategy applied and better styling.`,
		r.Visual, r.ImageTags, r.Glyphs, r.PriorityCount, IconGlyphs, r.HTML)
}

func writeBullets(sb *strings.Builder, items []string) {
	for _, item := range items {
		fmt.Fprintf(sb, "• %s\n", item)
	}
}

func head[T any](items []T, n int) []T {
	if len(items) > n {
		return items[:n]
	}
	return items
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		return string(r[:n])
	}
	return s
}

func dim(v float64) string {
	return fmt.Sprintf("%g", v)
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
