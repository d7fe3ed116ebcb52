// Package publish compiles LaTeX posts into stored HTML fragments and media.
//
// A publish run assigns the post identifier, writes the source into a
// per-post workspace, runs the HTML converter and the PDF compiler, copies
// generated assets into the media store, extracts head and body fragments
// from every generated page with asset references rewritten to their public
// URLs, and stores media and pages in one transaction.
package publish

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/eringen/texpub/logging"
)

const instrumentationName = "github.com/eringen/texpub/publish"

// Document is the post content a run works from.
type Document struct {
	PostID int64
	Title  string
	Slug   string // empty until assigned
	Source string
}

// Publication is everything a successful run stores for a post.
type Publication struct {
	PostID int64
	Media  []Medium
	Pages  []Page
}

// Repository is the persistence a publish run needs.
type Repository interface {
	SlugIndex
	// AssignSlug stores slug on the post. It returns ErrIdentifierConflict
	// when another post already holds it.
	AssignSlug(ctx context.Context, postID int64, slug string) error
	// SavePublication records media (get or create by path) and upserts
	// pages by (post, name) atomically.
	SavePublication(ctx context.Context, pub Publication) error
}

// Result summarizes a successful run.
type Result struct {
	Slug     string
	Pages    []Page
	Media    []Medium
	PDFPath  string
	Duration time.Duration
}

// Config locates the workspace and media roots and the public paths of
// media and pages.
type Config struct {
	WorkRoot  string
	MediaRoot string
	MediaURL  string
	PostsURL  string // pages are served at <PostsURL>/<slug>/<page>/
}

// Option customizes a Publisher.
type Option func(*Publisher)

// WithFs replaces the OS filesystem, e.g. with afero.NewMemMapFs in tests.
func WithFs(fs afero.Fs) Option {
	return func(p *Publisher) { p.fs = fs }
}

// WithCompiler replaces the external compilers.
func WithCompiler(c Compiler) Option {
	return func(p *Publisher) { p.compiler = c }
}

func WithLogger(l logging.Logger) Option {
	return func(p *Publisher) { p.logger = l }
}

func WithTracer(t trace.Tracer) Option {
	return func(p *Publisher) { p.tracer = t }
}

func WithMeter(m metric.Meter) Option {
	return func(p *Publisher) { p.meter = m }
}

// Publisher runs publishes one at a time.
type Publisher struct {
	repo     Repository
	cfg      Config
	fs       afero.Fs
	compiler Compiler
	logger   logging.Logger
	tracer   trace.Tracer
	meter    metric.Meter
	media    *MediaStore
	metrics  *instruments

	// mu serializes identifier assignment, workspace writes and
	// compilation across runs.
	mu sync.Mutex
}

// NewPublisher returns a Publisher storing through repo.
func NewPublisher(repo Repository, cfg Config, opts ...Option) *Publisher {
	if cfg.MediaURL == "" {
		cfg.MediaURL = "/media"
	}
	if cfg.PostsURL == "" {
		cfg.PostsURL = "/posts"
	}
	p := &Publisher{
		repo:     repo,
		cfg:      cfg,
		fs:       afero.NewOsFs(),
		compiler: NewExecCompiler(defaultCompileTimeout),
		logger:   logging.NoOp(),
		tracer:   otel.Tracer(instrumentationName),
		meter:    otel.Meter(instrumentationName),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.media = NewMediaStore(p.fs, cfg.MediaRoot, cfg.MediaURL)
	p.metrics = newInstruments(p.meter)
	return p
}

// Media exposes the store assets are persisted to.
func (p *Publisher) Media() *MediaStore { return p.media }

// Publish compiles doc and stores its pages and media.
func (p *Publisher) Publish(ctx context.Context, doc Document) (Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := time.Now()
	logger := logging.WithFields(p.logger, map[string]any{
		"run_id":  uuid.NewString(),
		"post_id": doc.PostID,
	}).WithContext(ctx)

	ctx, span := p.tracer.Start(ctx, "publish.Publish",
		trace.WithAttributes(attribute.Int64("texpub.post_id", doc.PostID)))
	defer span.End()

	res, err := p.publish(ctx, logger, doc)
	res.Duration = time.Since(start)
	p.metrics.record(ctx, res.Duration, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("publish failed", "slug", res.Slug, "error", err)
		return res, err
	}
	span.SetAttributes(
		attribute.String("texpub.slug", res.Slug),
		attribute.Int("texpub.pages", len(res.Pages)),
		attribute.Int("texpub.media", len(res.Media)),
	)
	logger.Info("publish finished", "slug", res.Slug, "pages", len(res.Pages),
		"media", len(res.Media), "duration", res.Duration)
	return res, nil
}

func (p *Publisher) publish(ctx context.Context, logger logging.Logger, doc Document) (Result, error) {
	var res Result

	slug := doc.Slug
	if slug == "" {
		assigned, err := p.assign(ctx, doc)
		if err != nil {
			return res, err
		}
		slug = assigned
		logger.Debug("identifier assigned", "slug", slug)
	}
	res.Slug = slug

	ws, err := PrepareWorkspace(p.fs, p.cfg.WorkRoot, slug, doc.Source)
	if err != nil {
		return res, err
	}
	res.PDFPath = ws.PDFPath()

	if err := p.compile(ctx, ws); err != nil {
		return res, err
	}
	logger.Debug("compiled", "dir", ws.Dir)

	media, err := Harvest(ws, p.media)
	if err != nil {
		return res, fmt.Errorf("harvest assets: %w", err)
	}
	pages, err := CollectPages(ws, URLMap(media), p.cfg.PostsURL)
	if err != nil {
		return res, err
	}

	if err := p.repo.SavePublication(ctx, Publication{PostID: doc.PostID, Media: media, Pages: pages}); err != nil {
		return res, fmt.Errorf("save publication: %w", err)
	}
	res.Media = media
	res.Pages = pages
	return res, nil
}

func (p *Publisher) assign(ctx context.Context, doc Document) (string, error) {
	ctx, span := p.tracer.Start(ctx, "publish.AssignIdentifier")
	defer span.End()
	slug, err := AssignIdentifier(ctx, p.repo, doc.Title)
	if err != nil {
		return "", err
	}
	if err := p.repo.AssignSlug(ctx, doc.PostID, slug); err != nil {
		return slug, err
	}
	return slug, nil
}

func (p *Publisher) compile(ctx context.Context, ws *Workspace) error {
	ctx, span := p.tracer.Start(ctx, "publish.Compile")
	defer span.End()
	return p.compiler.Compile(ctx, Job{Dir: ws.Dir, Base: ws.Slug})
}

// Reserve assigns a slug to doc if it has none yet, without compiling.
func (p *Publisher) Reserve(ctx context.Context, doc Document) (string, error) {
	if doc.Slug != "" {
		return doc.Slug, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.assign(ctx, doc)
}

// OpenPDF opens the PDF of the last run for slug. It never creates the
// workspace.
func (p *Publisher) OpenPDF(slug string) (afero.File, error) {
	dir, err := workspaceDir(p.cfg.WorkRoot, slug)
	if err != nil {
		return nil, err
	}
	return p.fs.Open(filepath.Join(dir, slug+".pdf"))
}

// StageFile writes a supporting file such as a figure into the workspace of
// slug so the next run can include it.
func (p *Publisher) StageFile(slug, name string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	ws, err := OpenWorkspace(p.fs, p.cfg.WorkRoot, slug)
	if err != nil {
		return err
	}
	return ws.Stage(name, bytes.NewReader(data))
}

type instruments struct {
	runs     metric.Int64Counter
	failures metric.Int64Counter
	duration metric.Float64Histogram
}

func newInstruments(meter metric.Meter) *instruments {
	runs, _ := meter.Int64Counter("texpub.publish.runs",
		metric.WithDescription("Publish runs started"),
		metric.WithUnit("{run}"),
	)
	failures, _ := meter.Int64Counter("texpub.publish.failures",
		metric.WithDescription("Publish runs that returned an error"),
		metric.WithUnit("{run}"),
	)
	duration, _ := meter.Float64Histogram("texpub.publish.duration",
		metric.WithDescription("Publish run duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	return &instruments{runs: runs, failures: failures, duration: duration}
}

func (m *instruments) record(ctx context.Context, d time.Duration, err error) {
	if m == nil {
		return
	}
	if m.runs != nil {
		m.runs.Add(ctx, 1)
	}
	if m.duration != nil {
		m.duration.Record(ctx, float64(d.Milliseconds()))
	}
	if err != nil && m.failures != nil {
		m.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("error.kind", errorKind(err))))
	}
}

func errorKind(err error) string {
	switch {
	case IsCompileFailure(err):
		return "compile"
	case IsMalformedOutput(err):
		return "malformed_output"
	default:
		return "other"
	}
}
