package texpub

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eringen/texpub/publish"
)

func TestSetDefaults(t *testing.T) {
	var cfg SiteConfig
	cfg.setDefaults()

	assert.Equal(t, "Blog", cfg.Name)
	assert.Equal(t, ":3000", cfg.Addr)
	assert.Equal(t, "data/work", cfg.WorkRoot)
	assert.Equal(t, "/media", cfg.MediaURL)
	assert.Equal(t, publish.DefaultConverter.Name, cfg.ConverterCommand)
	assert.Equal(t, publish.DefaultConverter.Args, cfg.ConverterArgs)
	assert.Equal(t, publish.DefaultPDFCompiler.Args, cfg.PDFArgs)
	assert.Equal(t, 2*time.Minute, cfg.CompileTimeout)
}

func TestSetDefaultsKeepsCustomCommandArgsEmpty(t *testing.T) {
	cfg := SiteConfig{ConverterCommand: "htlatex", URL: "https://example.com/"}
	cfg.setDefaults()

	assert.Empty(t, cfg.ConverterArgs, "default args belong to the default converter only")
	assert.Equal(t, "https://example.com", cfg.URL)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "texpub.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
site_name: Notes
media_root: /srv/media
compile_timeout: 30s
converter_args: ["{source}", "mathml"]
`), 0o644))
	t.Setenv("TEXPUB_SITE_NAME", "Env Notes")
	t.Setenv("TEXPUB_ADMIN_PASSWORD", "secret")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "Env Notes", cfg.Name)
	assert.Equal(t, "secret", cfg.AdminPassword)
	assert.Equal(t, "/srv/media", cfg.MediaRoot)
	assert.Equal(t, 30*time.Second, cfg.CompileTimeout)
	assert.Equal(t, []string{"{source}", "mathml"}, cfg.ConverterArgs)
	assert.Equal(t, "data/blog.db", cfg.DatabasePath)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
