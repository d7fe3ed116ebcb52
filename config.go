package texpub

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/eringen/texpub/logging"
	"github.com/eringen/texpub/publish"
)

// SiteConfig holds all configuration for a texpub site.
type SiteConfig struct {
	Name        string // Site name (default "Blog")
	URL         string // Canonical URL (default "http://localhost:3000")
	Description string // Site description for RSS and meta tags
	Author      string // Author name for JSON-LD

	Addr         string // Listen address (default ":3000")
	DatabasePath string // SQLite path (default "data/blog.db")

	WorkRoot  string // Per-post compile directories (default "data/work")
	MediaRoot string // Persisted post media (default "public/media")
	MediaURL  string // URL prefix media is served under (default "/media")

	ConverterCommand string        // HTML converter (default "make4ht")
	ConverterArgs    []string      // {source} and {base} are substituted
	PDFCommand       string        // PDF compiler (default "pdflatex")
	PDFArgs          []string      // {source} and {base} are substituted
	CompileTimeout   time.Duration // Per process (default 2min)

	AdminPassword string // Required: admin login password
	SessionSecret string // Required: session encryption secret
	CookieSecure  bool   // Set true for HTTPS

	PostCacheTTL time.Duration // Post cache TTL (default 5min)

	LogLevel  string // trace..fatal (default "info")
	LogFormat string // json, console, pretty (default "console")
}

func (c *SiteConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "Blog"
	}
	if c.URL == "" {
		c.URL = "http://localhost:3000"
	}
	c.URL = strings.TrimSuffix(c.URL, "/")
	if c.Addr == "" {
		c.Addr = ":3000"
	}
	if c.DatabasePath == "" {
		c.DatabasePath = "data/blog.db"
	}
	if c.WorkRoot == "" {
		c.WorkRoot = "data/work"
	}
	if c.MediaRoot == "" {
		c.MediaRoot = "public/media"
	}
	if c.MediaURL == "" {
		c.MediaURL = "/media"
	}
	if c.ConverterCommand == "" {
		c.ConverterCommand = publish.DefaultConverter.Name
	}
	if len(c.ConverterArgs) == 0 && c.ConverterCommand == publish.DefaultConverter.Name {
		c.ConverterArgs = publish.DefaultConverter.Args
	}
	if c.PDFCommand == "" {
		c.PDFCommand = publish.DefaultPDFCompiler.Name
	}
	if len(c.PDFArgs) == 0 && c.PDFCommand == publish.DefaultPDFCompiler.Name {
		c.PDFArgs = publish.DefaultPDFCompiler.Args
	}
	if c.CompileTimeout == 0 {
		c.CompileTimeout = 2 * time.Minute
	}
	if c.PostCacheTTL == 0 {
		c.PostCacheTTL = 5 * time.Minute
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "console"
	}
}

// LoadConfig reads TEXPUB_* environment variables and, when path is not
// empty, a config file (yaml, toml or json). Environment values win.
func LoadConfig(path string) (SiteConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("TEXPUB")
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return SiteConfig{}, fmt.Errorf("texpub: read config %s: %w", path, err)
		}
	}
	cfg := SiteConfig{
		Name:             v.GetString("site_name"),
		URL:              v.GetString("site_url"),
		Description:      v.GetString("site_description"),
		Author:           v.GetString("site_author"),
		Addr:             v.GetString("addr"),
		DatabasePath:     v.GetString("database_path"),
		WorkRoot:         v.GetString("work_root"),
		MediaRoot:        v.GetString("media_root"),
		MediaURL:         v.GetString("media_url"),
		ConverterCommand: v.GetString("converter_command"),
		ConverterArgs:    FilterEmpty(v.GetStringSlice("converter_args")),
		PDFCommand:       v.GetString("pdf_command"),
		PDFArgs:          FilterEmpty(v.GetStringSlice("pdf_args")),
		CompileTimeout:   v.GetDuration("compile_timeout"),
		AdminPassword:    v.GetString("admin_password"),
		SessionSecret:    v.GetString("session_secret"),
		CookieSecure:     v.GetBool("cookie_secure"),
		PostCacheTTL:     v.GetDuration("post_cache_ttl"),
		LogLevel:         v.GetString("log_level"),
		LogFormat:        v.GetString("log_format"),
	}
	cfg.setDefaults()
	return cfg, nil
}

// Option configures additional App behavior.
type Option func(*App)

// WithCustomRoutes registers additional routes on the Echo instance.
// The callback receives the App before the server starts.
func WithCustomRoutes(fn func(*App)) Option {
	return func(a *App) {
		a.customRoutes = append(a.customRoutes, fn)
	}
}

// WithStaticDir sets the directory for user-owned static assets (default "public").
func WithStaticDir(dir string) Option {
	return func(a *App) {
		a.staticDir = dir
	}
}

// WithPublishOptions passes options through to the publish pipeline, e.g. a
// different compiler or filesystem.
func WithPublishOptions(opts ...publish.Option) Option {
	return func(a *App) {
		a.publishOpts = append(a.publishOpts, opts...)
	}
}

// WithLoggerProvider replaces the go-logger backed provider built from
// LogLevel and LogFormat.
func WithLoggerProvider(p logging.Provider) Option {
	return func(a *App) {
		a.logProvider = p
	}
}
