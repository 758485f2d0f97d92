// Package assets partitions detected page images into priority tiers.
//
// Logos and content images must be reproduced with their real URLs; icons
// are expected to be replaced by glyphs or CSS shapes.
package assets

import (
	"fmt"
	"sort"
	"strings"

	"github.com/valpere/reclone/internal"
)

// Tier is the priority class of an image.
type Tier string

const (
	TierLogo    Tier = "logo"
	TierContent Tier = "content"
	TierIcon    Tier = "icon"
)

// PlaceholderHost serves the synthetic URLs substituted for inline images.
const PlaceholderHost = "picsum.photos"

const (
	iconMaxSide       = 32
	logoMaxWidth      = 200
	logoMaxHeight     = 100
	logoMaxTop        = 200
	contentMinSide    = 100
	placeholderWidth  = 400
	placeholderHeight = 300
)

var contentHints = []string{"product", "feature", "hero", "banner", "main"}

// Asset is a classified image.
type Asset struct {
	internal.ImageDescriptor
	ResolvedURL string  `json:"resolved_url"`
	Area        float64 `json:"area"`
	Tier        Tier    `json:"tier"`
}

// Classification holds every input image in exactly one tier. Each tier is
// sorted by descending area.
type Classification struct {
	Logos   []Asset `json:"logos"`
	Content []Asset `json:"content"`
	Icons   []Asset `json:"icons"`
}

// Priority returns the images a faithful candidate must embed: logos first,
// then content images.
func (c Classification) Priority() []Asset {
	out := make([]Asset, 0, len(c.Logos)+len(c.Content))
	out = append(out, c.Logos...)
	return append(out, c.Content...)
}

// Total returns the number of classified images.
func (c Classification) Total() int {
	return len(c.Logos) + len(c.Content) + len(c.Icons)
}

// Summary is a one-line tier count used in logs and reports.
func (c Classification) Summary() string {
	return fmt.Sprintf("Logos: %d, Meaningful: %d, Icons: %d", len(c.Logos), len(c.Content), len(c.Icons))
}

// Classify assigns every image to a tier.
func Classify(images []internal.ImageDescriptor) Classification {
	var c Classification
	for _, img := range images {
		a := Asset{
			ImageDescriptor: img,
			ResolvedURL:     ResolveURL(img),
			Area:            img.Area(),
			Tier:            TierOf(img),
		}
		switch a.Tier {
		case TierLogo:
			c.Logos = append(c.Logos, a)
		case TierContent:
			c.Content = append(c.Content, a)
		default:
			c.Icons = append(c.Icons, a)
		}
	}
	byAreaDesc(c.Logos)
	byAreaDesc(c.Content)
	byAreaDesc(c.Icons)
	return c
}

// TierOf applies the classification rules to a single image. Rules are
// evaluated in order; the first match wins.
func TierOf(img internal.ImageDescriptor) Tier {
	w, h := img.Width, img.Height

	if w <= iconMaxSide && h <= iconMaxSide {
		return TierIcon
	}

	alt := strings.ToLower(img.Alt)
	src := strings.ToLower(img.Src)
	if strings.Contains(alt, "logo") || strings.Contains(src, "logo") ||
		(w < logoMaxWidth && h < logoMaxHeight && img.Top < logoMaxTop) {
		return TierLogo
	}

	if w >= contentMinSide || h >= contentMinSide {
		return TierContent
	}

	ctx := strings.ToLower(img.Context)
	for _, hint := range contentHints {
		if strings.Contains(ctx, hint) {
			return TierContent
		}
	}

	return TierIcon
}

// ResolveURL returns the URL a candidate should reference for img. Inline
// data images and images without a source get a placeholder derived from the
// declared dimensions so prompts never carry inline payloads.
func ResolveURL(img internal.ImageDescriptor) string {
	src := strings.TrimSpace(img.Src)
	if src != "" && !img.IsInline() {
		return src
	}
	w, h := int(img.Width), int(img.Height)
	if w <= 0 {
		w = placeholderWidth
	}
	if h <= 0 {
		h = placeholderHeight
	}
	return fmt.Sprintf("https://%s/%d/%d", PlaceholderHost, w, h)
}

// IsPlaceholder reports whether url was produced by ResolveURL for an image
// without a usable source.
func IsPlaceholder(url string) bool {
	return strings.Contains(url, PlaceholderHost)
}

func byAreaDesc(list []Asset) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Area > list[j].Area
	})
}
