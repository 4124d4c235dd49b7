package config

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/agentflare-ai/go-xmlvalidate/urn"
)

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(`
project_root: /srv/shop
require_schema: true
max_file_size: 2MB
concurrency: 4
exclude: [psalm.xml]
schema_cache_size: 8
components:
  modules:
    Acme_Blog: app/code/Acme/Blog
  libraries:
    magento/framework: lib/internal/Magento/Framework
  setup: setup/src
  aliases:
    "urn:acme:": schemas
`))
	require.NoError(t, err)
	assert.Equal(t, Config{
		ProjectRoot:     "/srv/shop",
		RequireSchema:   true,
		MaxFileSize:     "2MB",
		Concurrency:     4,
		Exclude:         []string{"psalm.xml"},
		SchemaCacheSize: 8,
		Components: urn.Components{
			Modules:   map[string]string{"Acme_Blog": "app/code/Acme/Blog"},
			Libraries: map[string]string{"magento/framework": "lib/internal/Magento/Framework"},
			Setup:     "setup/src",
			Aliases:   map[string]string{"urn:acme:": "schemas"},
		},
	}, cfg)
	require.NoError(t, cfg.Validate())

	size, err := cfg.MaxFileSizeBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(2000000), size)
}

func TestParseKeepsDefaults(t *testing.T) {
	cfg, err := Parse([]byte("require_schema: true\n"))
	require.NoError(t, err)
	expected := Default()
	expected.RequireSchema = true
	assert.Equal(t, expected, cfg)

	cfg, err = Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	size, err := cfg.MaxFileSizeBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(10*1024*1024), size)
}

func TestParseUnknownKey(t *testing.T) {
	_, err := Parse([]byte("concurency: 4\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "field concurency not found")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Concurrency = 0
	cfg.SchemaCacheSize = -1
	cfg.MaxFileSize = "huge"
	cfg.Exclude = []string{"ok.xml", "dir/phpunit.xml"}
	cfg.Components.Aliases = map[string]string{"acme:": "schemas"}

	err := cfg.Validate()
	require.Error(t, err)
	errs := multierr.Errors(err)
	require.Len(t, errs, 5)
	assert.EqualError(t, errs[0], "concurrency must be at least 1, got 0")
	assert.EqualError(t, errs[1], "schema_cache_size must be at least 1, got -1")
	assert.Contains(t, errs[2].Error(), `max_file_size "huge"`)
	assert.EqualError(t, errs[3], `exclude entry "dir/phpunit.xml" must be a file name`)
	assert.EqualError(t, errs[4], `alias "acme:" must start with urn:`)
}

func TestLoad(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/srv/shop/dev/xmlvalidate.yaml", []byte("project_root: ..\n"), 0o644))

	cfg, err := Load(fs, "/srv/shop/dev/xmlvalidate.yaml", true)
	require.NoError(t, err)
	assert.Equal(t, "/srv/shop", cfg.ProjectRoot)

	cfg, err = Load(fs, "/srv/shop/"+DefaultFile, false)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	_, err = Load(fs, "/srv/shop/missing.yaml", true)
	assert.Error(t, err)

	require.NoError(t, afero.WriteFile(fs, "/srv/shop/bad.yaml", []byte("concurrency: [\n"), 0o644))
	_, err = Load(fs, "/srv/shop/bad.yaml", true)
	assert.ErrorContains(t, err, "/srv/shop/bad.yaml")
}
