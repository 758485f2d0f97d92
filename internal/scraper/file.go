package scraper

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/valpere/reclone/internal"
)

// documentFile is the on-disk form of a scraped document. The screenshot is
// either inlined as base64 or stored next to the file.
type documentFile struct {
	internal.ScrapedDocument `yaml:",inline"`
	ScreenshotBase64         string `yaml:"screenshot_base64,omitempty" json:"-"`
	ScreenshotPath           string `yaml:"screenshot_path,omitempty" json:"screenshot_path,omitempty"`
}

// LoadFile reads a document saved by SaveFile or written by hand. Files
// ending in .json are decoded as JSON, everything else as YAML.
func LoadFile(path string) (*internal.ScrapedDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}

	var f documentFile
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &f)
	} else {
		err = yaml.Unmarshal(data, &f)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse document %s: %w", path, err)
	}

	doc := f.ScrapedDocument
	switch {
	case len(doc.Screenshot) > 0:
	case f.ScreenshotBase64 != "":
		doc.Screenshot, err = base64.StdEncoding.DecodeString(strings.TrimSpace(f.ScreenshotBase64))
		if err != nil {
			return nil, fmt.Errorf("failed to decode screenshot: %w", err)
		}
	case f.ScreenshotPath != "":
		p := f.ScreenshotPath
		if !filepath.IsAbs(p) {
			p = filepath.Join(filepath.Dir(path), p)
		}
		doc.Screenshot, err = os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read screenshot: %w", err)
		}
	}
	return &doc, nil
}

// SaveFile writes doc as YAML to path and its screenshot as a PNG next to it.
func SaveFile(path string, doc *internal.ScrapedDocument) error {
	f := documentFile{ScrapedDocument: *doc}
	if len(doc.Screenshot) > 0 {
		shot := strings.TrimSuffix(path, filepath.Ext(path)) + ".png"
		if err := os.WriteFile(shot, doc.Screenshot, 0o644); err != nil {
			return fmt.Errorf("failed to write screenshot: %w", err)
		}
		f.ScreenshotPath = filepath.Base(shot)
	}

	data, err := yaml.Marshal(&f)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write document: %w", err)
	}
	return nil
}
