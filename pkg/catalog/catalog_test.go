package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	require.Len(t, c.Programs, 4)
	assert.Len(t, c.Resources.Items, 11)
	assert.Len(t, c.Dashboard.Cards, 3)
	assert.Len(t, c.Menu, 4)
	assert.Equal(t, "Welcome to the CCS Hub", c.Dashboard.Heading)
	assert.Len(t, c.Landing.Features, 3)
	assert.Equal(t, "/login", c.Landing.LoginHref)

	p, ok := c.Program("computer-science")
	require.True(t, ok)
	assert.Equal(t, "BS-Computer Science", p.Title)
	assert.Equal(t, "145 (15)", p.Units)
	assert.Len(t, p.KeyFeatures, 6)
	assert.Len(t, p.CareerProspects, 5)

	_, ok = c.Program("astronomy")
	assert.False(t, ok)

	s := c.Summaries()
	assert.Equal(t, "/prospectus/information-technology", s[1].Href)

	assert.Equal(t, "FM-MSU-IIT-RGTR-011", c.Resources.Items[10].Code)
	assert.True(t, c.AllowsBucket(c.Resources.Bucket))
	assert.False(t, c.AllowsBucket("other"))
	assert.False(t, c.AllowsBucket(""))
}

func TestLoadOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	doc := `
programs:
  - slug: data-science
    title: BS-Data Science
resources:
  bucket: b
  items:
    - {title: Form, file_id: form, code: X-1}
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
	c, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, c.Programs, 1)
	assert.True(t, c.AllowsBucket("b"))

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := []string{
		"programs: [{title: x}]",
		"programs: [{slug: a}, {slug: a}]",
		"resources: {items: [{title: x}]}",
		"programs: {",
	}
	for _, doc := range cases {
		_, err := Parse([]byte(doc))
		assert.Error(t, err, doc)
	}
}
