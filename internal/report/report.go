// Package report renders a stored clone session as a markdown summary and
// as HTML.
package report

import (
	"bytes"
	"fmt"
	stdhtml "html"
	"strings"
	"time"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"github.com/valpere/reclone/internal/store"
)

// Markdown summarises a session and its candidates.
func Markdown(s *store.Session, candidates []store.CandidateRecord) []byte {
	var b bytes.Buffer

	fmt.Fprintf(&b, "# Clone report: %s\n\n", s.URL)

	status := "succeeded"
	if !s.Success {
		status = "failed"
	}
	fmt.Fprintf(&b, "Session `%s` %s after %d iteration(s), stopped by **%s**.\n\n", s.ID, status, s.Iterations, s.StopReason)
	if s.Error != "" {
		fmt.Fprintf(&b, "> %s\n\n", oneLine(s.Error))
	}

	b.WriteString("## Result\n\n")
	b.WriteString("| Signal | Score |\n|---|---|\n")
	fmt.Fprintf(&b, "| Visual similarity | %.3f |\n", s.Visual)
	fmt.Fprintf(&b, "| Content completeness | %.3f |\n", s.Content)
	fmt.Fprintf(&b, "| Asset score | %.3f |\n\n", s.Asset)

	b.WriteString("## Session\n\n")
	if s.BestIteration >= 0 {
		fmt.Fprintf(&b, "- Best candidate: iteration %d\n", s.BestIteration)
	}
	if s.AssetSummary != "" {
		fmt.Fprintf(&b, "- Image strategy: %s\n", s.AssetSummary)
	}
	if s.Language != "" {
		fmt.Fprintf(&b, "- Language: %s\n", s.Language)
	}
	fmt.Fprintf(&b, "- Started: %s\n", s.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "- Duration: %s\n\n", s.Duration().Round(time.Millisecond))

	if len(candidates) == 0 {
		return b.Bytes()
	}

	b.WriteString("## Candidates\n\n")
	b.WriteString("| # | Visual | Content | Asset | Combined | Prompt | Notes |\n|---|---|---|---|---|---|---|\n")
	for _, c := range candidates {
		fmt.Fprintf(&b, "| %d | %.3f | %.3f | %.3f | %.3f | %s | %s |\n",
			c.Iteration, c.Visual, c.Content, c.Asset, c.Combined, promptKind(c), notes(s, c))
	}
	return b.Bytes()
}

func promptKind(c store.CandidateRecord) string {
	switch {
	case c.Iteration == 0:
		return "construction"
	case c.Minor:
		return "minor refinement"
	default:
		return "refinement"
	}
}

func notes(s *store.Session, c store.CandidateRecord) string {
	var n []string
	if s.Success && c.Iteration == s.BestIteration {
		n = append(n, "**best**")
	}
	if c.Regressed {
		n = append(n, "content regressed")
	}
	if c.RenderError != "" {
		n = append(n, "render failed: "+oneLine(c.RenderError))
	}
	return strings.Join(n, ", ")
}

func oneLine(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", "\\|")
}

// ToHTML renders markdown as an HTML fragment.
func ToHTML(md []byte) string {
	opts := html.RendererOptions{
		Flags: html.CommonFlags | html.HrefTargetBlank,
	}
	renderer := html.NewRenderer(opts)
	ext := parser.CommonExtensions | parser.Attributes
	p := parser.NewWithExtensions(ext)
	doc := p.Parse(md)
	return string(markdown.Render(doc, renderer))
}

// Page wraps the rendered report in a standalone document.
func Page(title string, md []byte) string {
	return fmt.Sprintf(pageTemplate, stdhtml.EscapeString(title), ToHTML(md))
}

const pageTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>%s</title>
<style>
body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; max-width: 960px; margin: 2em auto; color: #222; }
table { border-collapse: collapse; }
th, td { border: 1px solid #ddd; padding: 4px 10px; text-align: left; }
blockquote { color: #b71c1c; }
</style>
</head>
<body>
%s
</body>
</html>`
