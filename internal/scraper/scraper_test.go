package scraper

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valpere/reclone/internal"
)

const landingPage = `<!DOCTYPE html>
<html><head><title>Acme</title><style>h1{color:red}</style></head>
<body>
<header>
  <a href="/"><img src="/logo.svg" alt="Acme logo"></a>
  <nav><a href="/products">Products</a> <a href="/pricing">  Pricing  </a> <a href="/pricing">Pricing</a></nav>
</header>
<main>
  <h1>Build   faster</h1>
  <section>
    <h2>Trusted by teams</h2>
    <p>Short.</p>
    <p>Acme helps thousands of teams ship reliable software every single day.</p>
    <button>Get started</button>
    <input type="submit" value="Subscribe">
    <button aria-label="Close"></button>
  </section>
  <script>document.write("<h2>never</h2>")</script>
</main>
</body></html>`

func TestExtractInventory(t *testing.T) {
	inv, err := ExtractInventory(landingPage)
	require.NoError(t, err)

	assert.Equal(t, []string{"Products", "Pricing"}, inv.Navigation)
	assert.Equal(t, []string{"Build faster", "Trusted by teams"}, inv.Headings)
	assert.Equal(t, []string{"Get started", "Subscribe", "Close"}, inv.Buttons)
	assert.Equal(t, []string{"Acme helps thousands of teams ship reliable software every single day."}, inv.Paragraphs)
}

func TestExtractInventory_Empty(t *testing.T) {
	inv, err := ExtractInventory("")
	require.NoError(t, err)
	assert.Empty(t, inv.Headings)
	assert.Empty(t, inv.Navigation)
}

func TestParseTarget(t *testing.T) {
	u, err := ParseTarget(" https://acme.test/path ")
	require.NoError(t, err)
	assert.Equal(t, "acme.test", u.Host)

	for _, raw := range []string{"", "acme.test", "/relative", "ftp://acme.test/", "https://"} {
		_, err := ParseTarget(raw)
		assert.ErrorIs(t, err, ErrInvalidURL, raw)
	}
}

func TestScrape_InvalidURL(t *testing.T) {
	s := NewChromedpScraper(Options{})
	_, err := s.Scrape(context.Background(), "not a url")
	assert.ErrorIs(t, err, ErrInvalidURL)
}

func TestScrape_DisallowedByRobots(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("User-agent: *\nDisallow: /\n"))
	}))
	defer server.Close()

	s := NewChromedpScraper(Options{RespectRobots: true})
	_, err := s.Scrape(context.Background(), server.URL+"/page")
	assert.ErrorIs(t, err, ErrDisallowed)
}

func TestNewChromedpScraper_Defaults(t *testing.T) {
	s := NewChromedpScraper(Options{})
	assert.Equal(t, int64(1280), s.opts.ViewportWidth)
	assert.Equal(t, defaultUserAgent, s.opts.UserAgent)
	assert.Nil(t, s.robots)
	assert.NotEmpty(t, probeSource)
}

func TestRobots_Check(t *testing.T) {
	var fetches atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/robots.txt" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		fetches.Add(1)
		w.Write([]byte("User-agent: *\nDisallow: /private/\n\nUser-agent: reclone\nDisallow: /drafts/\n"))
	}))
	defer server.Close()

	r := NewRobots("reclone", server.Client())
	mustURL := func(p string) *url.URL {
		u, err := url.Parse(server.URL + p)
		require.NoError(t, err)
		return u
	}

	assert.NoError(t, r.Check(context.Background(), mustURL("/")))
	assert.ErrorIs(t, r.Check(context.Background(), mustURL("/drafts/x")), ErrDisallowed)
	assert.Equal(t, int32(1), fetches.Load(), "rules are cached per host")
}

func TestRobots_MissingFileAllows(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	r := NewRobots("", server.Client())
	u, _ := url.Parse(server.URL + "/anything")
	assert.NoError(t, r.Check(context.Background(), u))
}

func TestRobots_UnreachableAllows(t *testing.T) {
	r := NewRobots("", nil)
	u, _ := url.Parse("http://127.0.0.1:1/page")
	assert.NoError(t, r.Check(context.Background(), u))
}

func TestProbeResult_Decode(t *testing.T) {
	raw := `{"title":"Acme","images":[{"width":120,"height":40,"top":8,"left":16,"src":"https://acme.test/logo.svg","alt":"Acme","context":"a < header"}],
"grid_layouts":3,"content_sections":4,"interactive_elements":12,"site_structure":"header-nav-main-footer","layout_style":"grid","site_category":"saas",
"typography":{"font_stack":{"body":{"fontFamily":"Inter","fontSize":"16px"}},"custom_fonts":["Inter"],"font_families":[{"family":"Inter","usage_count":9,"is_custom":true}],"font_weights":["400","700"]}}`

	var p probeResult
	require.NoError(t, json.Unmarshal([]byte(raw), &p))
	v := p.visual()

	assert.Equal(t, 3, v.GridLayouts)
	assert.Equal(t, "header-nav-main-footer", v.SiteStructure)
	require.Len(t, v.Images, 1)
	assert.Equal(t, 120.0, v.Images[0].Width)
	assert.Equal(t, "Inter", v.Typography.FontStack["body"].FontFamily)
	assert.True(t, v.Typography.FontFamilies[0].IsCustom)
}

func sampleDoc() *internal.ScrapedDocument {
	return &internal.ScrapedDocument{
		URL:        "https://acme.test/",
		Title:      "Acme",
		Screenshot: []byte("\x89PNG fake"),
		Text:       internal.TextInventory{Headings: []string{"Build faster"}, Navigation: []string{"Products"}},
		Visual: internal.VisualContext{
			GridLayouts: 2,
			Images:      []internal.ImageDescriptor{{Width: 120, Height: 40, Src: "https://acme.test/logo.svg"}},
			Typography: internal.Typography{
				FontStack: map[string]internal.FontSpec{"body": {FontFamily: "Inter"}},
			},
		},
	}
}

func TestSaveAndLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "acme.yaml")

	require.NoError(t, SaveFile(path, sampleDoc()))
	_, err := os.Stat(filepath.Join(dir, "acme.png"))
	require.NoError(t, err)

	got, err := LoadFile(path)
	require.NoError(t, err)
	want := sampleDoc()
	assert.Equal(t, want.URL, got.URL)
	assert.Equal(t, want.Screenshot, got.Screenshot)
	assert.Equal(t, want.Text, got.Text)
	assert.Equal(t, want.Visual.Images, got.Visual.Images)
	assert.Equal(t, "Inter", got.Visual.Typography.FontStack["body"].FontFamily)
}

func TestLoadFile_InlineBase64YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.yml")
	content := "url: https://acme.test/\nscreenshot_base64: " + base64.StdEncoding.EncodeToString([]byte("png!")) +
		"\ntext:\n  headings: [Hello world]\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	doc, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("png!"), doc.Screenshot)
	assert.Equal(t, []string{"Hello world"}, doc.Text.Headings)
}

func TestLoadFile_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	data, err := json.Marshal(sampleDoc())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	doc, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, sampleDoc().Screenshot, doc.Screenshot)
	assert.Equal(t, "Inter", doc.Visual.Typography.FontStack["body"].FontFamily)
}

func TestLoadFile_Errors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("url: [unterminated"), 0o644))
	_, err = LoadFile(path)
	assert.Error(t, err)

	path = filepath.Join(t.TempDir(), "noshot.yaml")
	require.NoError(t, os.WriteFile(path, []byte("url: x\nscreenshot_path: gone.png\n"), 0o644))
	_, err = LoadFile(path)
	assert.True(t, err != nil && !errors.Is(err, ErrInvalidURL))
}
