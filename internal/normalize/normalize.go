// Package normalize turns raw generator output into a consistent, inert,
// renderable HTML document.
//
// Normalize runs in phases, each idempotent on already-normalized input:
//  1. Reasoning block removal
//  2. Code fence removal
//  3. Document extraction
//  4. Link, control and image rewriting (one tokenizer pass)
//  5. Viewport declaration
//
// It never fails. Malformed input comes back trimmed with whatever rewriting
// the tokenizer managed to apply.
package normalize

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// NoopHandler is the inline handler attached to neutralized elements.
const NoopHandler = "return false;"

const viewportMeta = `<meta name="viewport" content="width=device-width, initial-scale=1.0">`

// Normalize extracts the document from raw and makes it safe to render.
func Normalize(raw string) string {
	text := removeThinkingBlocks(raw)
	text = stripFences(text)
	text = extractDocument(text)
	text = neutralize(text)
	text = ensureViewport(text)
	return text
}

// --- Phase 1: reasoning blocks ---

// Each tag variant is listed explicitly because RE2 has no backreferences.
var thinkingBlockRe = regexp.MustCompile(
	`(?is)<thinking>.*?</thinking>|<think>.*?</think>|<reasoning>.*?</reasoning>|<reflection>.*?</reflection>`,
)

func removeThinkingBlocks(text string) string {
	return thinkingBlockRe.ReplaceAllString(text, "")
}

// --- Phase 2: code fences ---

var fenceRe = regexp.MustCompile("(?i)```[a-z0-9_-]*[ \t]*\r?\n?")

func stripFences(text string) string {
	return fenceRe.ReplaceAllString(text, "")
}

// --- Phase 3: document extraction ---

var documentPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<!DOCTYPE\s+html.*?</html\s*>`),
	regexp.MustCompile(`(?is)<html[\s>].*?</html\s*>`),
}

func extractDocument(text string) string {
	for _, re := range documentPatterns {
		if m := re.FindString(text); m != "" {
			return strings.TrimSpace(m)
		}
	}
	return strings.TrimSpace(text)
}

// --- Phase 4: neutralization ---

// neutralize walks the markup with the HTML tokenizer and rewrites only the
// start tags that need it. Every other byte is copied from the input.
func neutralize(text string) string {
	z := html.NewTokenizer(strings.NewReader(text))
	var sb strings.Builder
	sb.Grow(len(text) + 256)

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			// A tag cut off by EOF is kept as-is.
			sb.Write(z.Raw())
			break
		}

		raw := string(z.Raw())
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			sb.WriteString(raw)
			continue
		}

		tok := z.Token()
		if rewriteTag(&tok) {
			sb.WriteString(tok.String())
		} else {
			sb.WriteString(raw)
		}
	}

	return sb.String()
}

// rewriteTag applies the neutralization rules to tok and reports whether it
// changed anything.
func rewriteTag(tok *html.Token) bool {
	switch tok.Data {
	case "a", "area":
		href, ok := attr(tok, "href")
		if !ok || IsFragment(href) {
			return false
		}
		setAttr(tok, "href", "#")
		setAttr(tok, "onclick", NoopHandler)
		return true
	case "button":
		if _, ok := attr(tok, "onclick"); ok {
			return false
		}
		setAttr(tok, "onclick", NoopHandler)
		return true
	case "form":
		if _, ok := attr(tok, "onsubmit"); ok {
			return false
		}
		setAttr(tok, "onsubmit", NoopHandler)
		return true
	case "img":
		if v, ok := attr(tok, "loading"); ok && strings.EqualFold(strings.TrimSpace(v), "lazy") {
			return false
		}
		setAttr(tok, "loading", "lazy")
		return true
	}
	return false
}

// IsFragment reports whether href stays on the current page.
func IsFragment(href string) bool {
	return strings.HasPrefix(strings.TrimSpace(href), "#")
}

func attr(tok *html.Token, key string) (string, bool) {
	for _, a := range tok.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(tok *html.Token, key, val string) {
	for i := range tok.Attr {
		if tok.Attr[i].Namespace == "" && tok.Attr[i].Key == key {
			tok.Attr[i].Val = val
			return
		}
	}
	tok.Attr = append(tok.Attr, html.Attribute{Key: key, Val: val})
}

// --- Phase 5: viewport ---

var (
	viewportRe = regexp.MustCompile(`(?i)<meta\s[^>]*name\s*=\s*["']?viewport`)
	headOpenRe = regexp.MustCompile(`(?i)<head(\s[^>]*)?>`)
	htmlOpenRe = regexp.MustCompile(`(?i)<html(\s[^>]*)?>`)
)

func ensureViewport(text string) string {
	if viewportRe.MatchString(text) {
		return text
	}
	if loc := headOpenRe.FindStringIndex(text); loc != nil {
		return text[:loc[1]] + "\n    " + viewportMeta + text[loc[1]:]
	}
	if loc := htmlOpenRe.FindStringIndex(text); loc != nil {
		return text[:loc[1]] + "\n<head>\n    " + viewportMeta + "\n</head>" + text[loc[1]:]
	}
	return text
}
