package normalize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const sampleDoc = `<!DOCTYPE html>
<html lang="en">
<head>
<title>Acme</title>
<link rel="stylesheet" href="https://fonts.googleapis.com/css2?family=Inter">
</head>
<body>
<nav><a href="/about">About</a> <a href="#top">Top</a></nav>
<button class="cta">Buy</button>
<button onclick="track()">Track</button>
<form action="/search"><input name="q"></form>
<img src="https://cdn.acme.io/logo.png" alt="Acme logo">
<img src="https://cdn.acme.io/hero.jpg" loading="eager"/>
<script>if (a < b && c > d) { document.write("<a href='/x'>x</a>"); }</script>
</body>
</html>`

func TestNormalize_FencedWithCommentary(t *testing.T) {
	raw := "Here is your page:\n```html\n" + sampleDoc + "\n```\nLet me know if you need changes."

	out := Normalize(raw)

	assert.True(t, strings.HasPrefix(out, "<!DOCTYPE html>"))
	assert.True(t, strings.HasSuffix(out, "</html>"))
	assert.NotContains(t, out, "```")
	assert.NotContains(t, out, "Let me know")
}

func TestNormalize_Links(t *testing.T) {
	out := Normalize(sampleDoc)

	assert.NotContains(t, out, `href="/about"`)
	assert.Contains(t, out, `<a href="#" onclick="return false;">About</a>`)
	assert.Contains(t, out, `<a href="#top">Top</a>`)
	// stylesheet links are not hyperlinks
	assert.Contains(t, out, `href="https://fonts.googleapis.com/css2?family=Inter"`)
}

func TestNormalize_Controls(t *testing.T) {
	out := Normalize(sampleDoc)

	assert.Contains(t, out, `<button class="cta" onclick="return false;">Buy</button>`)
	assert.Contains(t, out, `<button onclick="track()">Track</button>`)
	assert.Contains(t, out, `<form action="/search" onsubmit="return false;">`)
}

func TestNormalize_Images(t *testing.T) {
	out := Normalize(sampleDoc)

	assert.Contains(t, out, `<img src="https://cdn.acme.io/logo.png" alt="Acme logo" loading="lazy">`)
	assert.Contains(t, out, `<img src="https://cdn.acme.io/hero.jpg" loading="lazy"/>`)
}

func TestNormalize_ScriptUntouched(t *testing.T) {
	out := Normalize(sampleDoc)
	assert.Contains(t, out, `document.write("<a href='/x'>x</a>")`)
}

func TestNormalize_Viewport(t *testing.T) {
	out := Normalize(sampleDoc)
	assert.Equal(t, 1, strings.Count(out, `name="viewport"`))
	assert.Contains(t, out, "<head>\n    "+viewportMeta)

	noHead := Normalize(`<html><body><p>hi</p></body></html>`)
	assert.Contains(t, noHead, "<html>\n<head>\n    "+viewportMeta+"\n</head><body>")

	existing := `<html><head><meta name="viewport" content="width=1024"></head><body></body></html>`
	assert.Equal(t, existing, Normalize(existing))
}

func TestNormalize_HeaderIsNotHead(t *testing.T) {
	out := Normalize(`<html><body><header>Top</header></body></html>`)
	assert.NotContains(t, out, "<header>\n    <meta")
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		sampleDoc,
		"```html\n" + sampleDoc + "\n```",
		`<div><a href="https://x.io">x</a><img src=a.png></div>`,
		"no markup at all",
		`<html><body><a href="/a"`,
		"",
	}

	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input: %q", in)
	}
}

func TestNormalize_FallbackToTrimmedText(t *testing.T) {
	out := Normalize("  <div><a href=\"/buy\">Buy</a></div>\n")
	assert.Equal(t, `<div><a href="#" onclick="return false;">Buy</a></div>`, out)
}

func TestNormalize_CaseInsensitiveExtraction(t *testing.T) {
	out := Normalize("junk <HTML><BODY>x</BODY></HTML> trailing")
	assert.True(t, strings.HasPrefix(out, "<HTML>"))
	assert.True(t, strings.HasSuffix(out, "</HTML>"))
}

func TestNormalize_ThinkingBlocks(t *testing.T) {
	out := Normalize("<think>plan the layout <html>draft</html></think>\n<html><body>final</body></html>")
	assert.Contains(t, out, "final")
	assert.NotContains(t, out, "draft")
}

func TestNormalize_Malformed(t *testing.T) {
	assert.NotPanics(t, func() {
		Normalize("<<<>>><a href=\"x\" <img src=<button")
	})
}

func TestIsInert(t *testing.T) {
	assert.False(t, IsInert(sampleDoc))
	assert.True(t, IsInert(Normalize(sampleDoc)))
	assert.True(t, IsInert("<p>plain</p>"))
	assert.True(t, IsInert(`<a href="#x">x</a>`))
	assert.False(t, IsInert(`<a href="/x" onclick="go()">x</a>`))
	assert.False(t, IsInert(`<form></form>`))
}

func TestIsFragment(t *testing.T) {
	assert.True(t, IsFragment("#"))
	assert.True(t, IsFragment("  #section"))
	assert.False(t, IsFragment(""))
	assert.False(t, IsFragment("/page#frag"))
}
