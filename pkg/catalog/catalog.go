// Package catalog holds the static portal content: programs, downloadable
// resources, dashboard cards and the sidebar menu.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultYAML []byte

// Card is a dashboard quick-access tile.
type Card struct {
	Title       string `yaml:"title" json:"title"`
	Description string `yaml:"description" json:"description"`
	Href        string `yaml:"href" json:"href"`
}

// Feature is one selling point on the public landing page.
type Feature struct {
	Title       string `yaml:"title" json:"title"`
	Description string `yaml:"description" json:"description"`
}

// Landing is the public home page content.
type Landing struct {
	Title     string    `yaml:"title" json:"title"`
	Tagline   string    `yaml:"tagline" json:"tagline"`
	LoginHref string    `yaml:"login_href" json:"loginHref"`
	Heading   string    `yaml:"heading" json:"heading"`
	Summary   string    `yaml:"summary" json:"summary"`
	Features  []Feature `yaml:"features" json:"features"`
}

// Dashboard is the signed-in landing content.
type Dashboard struct {
	Heading string `yaml:"heading" json:"heading"`
	Tagline string `yaml:"tagline" json:"tagline"`
	Cards   []Card `yaml:"cards" json:"cards"`
}

// MenuItem is a sidebar entry.
type MenuItem struct {
	Title string `yaml:"title" json:"title"`
	URL   string `yaml:"url" json:"url"`
}

// Program is one degree program.
type Program struct {
	Slug             string   `yaml:"slug" json:"program"`
	Title            string   `yaml:"title" json:"title"`
	Description      string   `yaml:"description" json:"description"`
	Overview         string   `yaml:"overview" json:"overview"`
	KeyFeatures      []string `yaml:"key_features" json:"keyFeatures"`
	CareerProspects  []string `yaml:"career_prospects" json:"careerProspects"`
	Duration         string   `yaml:"duration" json:"duration"`
	Units            string   `yaml:"units" json:"units"`
	ProspectusFileID string   `yaml:"prospectus_file_id,omitempty" json:"prospectusFileId,omitempty"`
}

// Summary is the short form shown on the program list.
type Summary struct {
	Slug        string `json:"program"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Href        string `json:"learnMoreHref"`
}

// Summary returns the list form of p.
func (p Program) Summary() Summary {
	return Summary{Slug: p.Slug, Title: p.Title, Description: p.Description, Href: "/prospectus/" + p.Slug}
}

// Resource is a downloadable form.
type Resource struct {
	Title  string `yaml:"title" json:"title"`
	FileID string `yaml:"file_id" json:"fileId"`
	Code   string `yaml:"code" json:"code"`
}

// Resources groups forms stored in one bucket.
type Resources struct {
	Bucket string     `yaml:"bucket" json:"bucketId"`
	Items  []Resource `yaml:"items" json:"items"`
}

// Catalog is the whole content set.
type Catalog struct {
	Landing          Landing    `yaml:"landing"`
	Dashboard        Dashboard  `yaml:"dashboard"`
	Menu             []MenuItem `yaml:"menu"`
	ProspectusBucket string     `yaml:"prospectus_bucket"`
	Programs         []Program  `yaml:"programs"`
	Resources        Resources  `yaml:"resources"`
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	return Parse(defaultYAML)
}

// Load reads the catalog at path, or the embedded one when path is empty.
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a catalog document.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) validate() error {
	seen := make(map[string]bool, len(c.Programs))
	for i, p := range c.Programs {
		if strings.TrimSpace(p.Slug) == "" {
			return fmt.Errorf("catalog: program %d has no slug", i)
		}
		if seen[p.Slug] {
			return fmt.Errorf("catalog: duplicate program %q", p.Slug)
		}
		seen[p.Slug] = true
	}
	if len(c.Resources.Items) > 0 && strings.TrimSpace(c.Resources.Bucket) == "" {
		return errors.New("catalog: resources need a bucket")
	}
	return nil
}

// Program returns the program with the given slug.
func (c *Catalog) Program(slug string) (Program, bool) {
	for _, p := range c.Programs {
		if p.Slug == slug {
			return p, true
		}
	}
	return Program{}, false
}

// Summaries lists every program in catalog order.
func (c *Catalog) Summaries() []Summary {
	out := make([]Summary, 0, len(c.Programs))
	for _, p := range c.Programs {
		out = append(out, p.Summary())
	}
	return out
}

// AllowsBucket reports whether downloads from bucket may be proxied.
func (c *Catalog) AllowsBucket(bucket string) bool {
	if bucket == "" {
		return false
	}
	return bucket == c.Resources.Bucket || bucket == c.ProspectusBucket
}
