// Package texpub is a publishing engine for LaTeX-authored articles built
// with Go, Echo, and templ. Posts are compiled to HTML pages and a PDF by
// external TeX tools; the resulting head/body fragments are stored in SQLite
// and served alongside the harvested figures.
//
// Users provide their own templ templates via the ViewFuncs struct, and
// texpub handles the handler logic, middleware, database operations and the
// publish pipeline.
package texpub

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"

	"github.com/eringen/texpub/logging"
	"github.com/eringen/texpub/publish"
)

// ViewFuncs holds user-provided templ components that the framework calls
// when rendering pages.
type ViewFuncs struct {
	Home           func(posts []Post, categories []Category, activeCategory string, banner []TitleElement, site SiteConfig) templ.Component
	Post           func(post Post, page RenderedPage, pages []RenderedPage, seeAlso []Post, site SiteConfig) templ.Component
	About          func(sections []AboutSection, links []SocialLink, site SiteConfig) templ.Component
	AdminLogin     func(showError bool, csrfToken string) templ.Component
	AdminDashboard func(posts []Post, message string, csrfToken string) templ.Component
	AdminEditor    func(post Post, categories []Category, media []PostMedium, message string, csrfToken string) templ.Component
	NotFound       func() templ.Component
	ServerError    func() templ.Component
}

// App is the central texpub application. It wires together the store,
// cache, publisher, handlers, middleware, and user-provided templates.
type App struct {
	Config    SiteConfig
	Echo      *echo.Echo
	Store     *Store
	Cache     *PostCache
	Publisher *publish.Publisher
	Views     ViewFuncs

	logProvider  logging.Provider
	logger       logging.Logger
	loginLimiter *LoginLimiter
	customRoutes []func(*App)
	publishOpts  []publish.Option
	staticDir    string
}

// New creates a new texpub App with the given configuration and view functions.
func New(cfg SiteConfig, views ViewFuncs, opts ...Option) *App {
	cfg.setDefaults()

	a := &App{
		Config:    cfg,
		Echo:      echo.New(),
		Views:     views,
		staticDir: "public",
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Init opens the store and builds the cache, logger and publisher. Start
// calls it; commands that only publish call it directly.
func (a *App) Init() error {
	if a.Store != nil {
		return nil
	}
	if a.logProvider == nil {
		provider, err := logging.NewGoLogger(logging.Config{Level: a.Config.LogLevel, Format: a.Config.LogFormat})
		if err != nil {
			return fmt.Errorf("texpub: init logger: %w", err)
		}
		a.logProvider = provider
	}
	a.logger = logging.ModuleLogger(a.logProvider, "app")

	store, err := NewStore(a.Config.DatabasePath)
	if err != nil {
		return fmt.Errorf("texpub: init store: %w", err)
	}
	a.Store = store

	a.Cache = NewPostCache(a.Store, a.Config.PostCacheTTL)

	compiler := &publish.ExecCompiler{
		Converter: publish.Command{Name: a.Config.ConverterCommand, Args: a.Config.ConverterArgs},
		PDF:       publish.Command{Name: a.Config.PDFCommand, Args: a.Config.PDFArgs},
		Timeout:   a.Config.CompileTimeout,
	}
	opts := append([]publish.Option{
		publish.WithCompiler(compiler),
		publish.WithLogger(logging.ModuleLogger(a.logProvider, "publish")),
	}, a.publishOpts...)
	a.Publisher = publish.NewPublisher(a.Store, publish.Config{
		WorkRoot:  a.Config.WorkRoot,
		MediaRoot: a.Config.MediaRoot,
		MediaURL:  a.Config.MediaURL,
	}, opts...)
	return nil
}

// Start initializes the app, middleware and routes, and starts the server.
func (a *App) Start() error {
	if a.Config.AdminPassword == "" {
		return fmt.Errorf("texpub: AdminPassword is required")
	}
	if a.Config.SessionSecret == "" {
		return fmt.Errorf("texpub: SessionSecret is required")
	}
	if err := a.Init(); err != nil {
		return err
	}

	a.loginLimiter = NewLoginLimiter(5, time.Minute)

	a.setupMiddleware()
	a.setupRoutes()
	for _, fn := range a.customRoutes {
		fn(a)
	}

	a.logger.Info("listening", "addr", a.Config.Addr)
	if err := a.Echo.Start(a.Config.Addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (a *App) setupRoutes() {
	e := a.Echo

	e.Static("/public", a.staticDir)
	e.Static(a.Config.MediaURL, a.Config.MediaRoot)
	e.GET("/favicon.svg", a.handleFavicon)
	e.GET("/robots.txt", a.handleRobots)

	e.GET("/sitemap.xml", a.handleSitemap)
	e.GET("/feed.xml", a.handleFeed)
	e.GET("/", a.handleHome)
	e.GET("/about/", a.handleAbout)
	e.GET("/posts/:slug/", a.handlePost)
	e.GET("/posts/:slug/pdf", a.handlePDF)
	e.GET("/posts/:slug/:page/", a.handlePost)

	e.GET("/admin/", a.handleAdmin)
	e.POST("/admin/login/", a.handleAdminLogin)
	e.POST("/admin/logout/", handleAdminLogout)
	e.GET("/admin/post/new/", a.handleAdminNew)
	e.GET("/admin/post/:id/", a.handleAdminPost)
	e.POST("/admin/save/", a.handleAdminSave)
	e.POST("/admin/post/:id/publish/", a.handleAdminRepublish)
	e.DELETE("/admin/post/:id/", a.handleAdminDelete)
	e.POST("/admin/post/:id/figures/", a.handleFigureUpload)
}

// SavePost validates and stores p, then publishes it. The post is kept even
// when publishing fails; the returned error is categorized for display.
func (a *App) SavePost(ctx context.Context, p *Post) (publish.Result, error) {
	if err := a.storePost(ctx, p); err != nil {
		return publish.Result{}, err
	}
	return a.Publish(ctx, p.ID)
}

// SavePostWithRelations is SavePost that also replaces the post's categories
// and see-also set. A post rejected by validation leaves its stored
// relations untouched.
func (a *App) SavePostWithRelations(ctx context.Context, p *Post, categoryIDs, seeAlsoIDs []int64) (publish.Result, error) {
	if err := a.storePost(ctx, p); err != nil {
		return publish.Result{}, err
	}
	if err := a.Store.SetPostCategories(ctx, p.ID, categoryIDs); err != nil {
		return publish.Result{}, err
	}
	if err := a.Store.SetSeeAlso(ctx, p.ID, seeAlsoIDs); err != nil {
		return publish.Result{}, err
	}
	return a.Publish(ctx, p.ID)
}

func (a *App) storePost(ctx context.Context, p *Post) error {
	if err := p.Validate(); err != nil {
		return wrapValidationError(err, "post validation failed")
	}
	if err := a.Store.SavePost(ctx, p); err != nil {
		return err
	}
	a.Cache.Invalidate()
	return nil
}

// Publish compiles the stored post id and records its pages and media.
func (a *App) Publish(ctx context.Context, id int64) (publish.Result, error) {
	post, err := a.Store.GetPost(ctx, id)
	if err != nil {
		return publish.Result{}, err
	}
	res, err := a.Publisher.Publish(ctx, publish.Document{
		PostID: post.ID,
		Title:  post.Title,
		Slug:   post.Slug,
		Source: post.Source,
	})
	// A failed run may still have assigned the slug.
	a.Cache.Invalidate()
	if err != nil {
		return res, wrapPublishError(err)
	}
	return res, nil
}

// PublishSlug republishes the post stored under slug.
func (a *App) PublishSlug(ctx context.Context, slug string) (publish.Result, error) {
	post, err := a.Store.GetPostBySlug(ctx, slug)
	if err != nil {
		return publish.Result{}, err
	}
	return a.Publish(ctx, post.ID)
}

// Close cleans up resources. Call this when the app is shutting down.
func (a *App) Close() error {
	if a.loginLimiter != nil {
		a.loginLimiter.Stop()
	}
	if a.Store != nil {
		return a.Store.Close()
	}
	return nil
}

// EnvOr returns the value of the environment variable key, or fallback if empty.
func EnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// MustEnv returns the value of the environment variable key, or fatally exits if empty.
func MustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("texpub: required environment variable %s is not set", key)
	}
	return v
}
