package publish

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryRepository keeps posts and pages in maps.
type memoryRepository struct {
	mu    sync.Mutex
	slugs map[int64]string
	pages map[int64]map[string]Page
	media map[int64]map[string]Medium
	saves int
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{
		slugs: make(map[int64]string),
		pages: make(map[int64]map[string]Page),
		media: make(map[int64]map[string]Medium),
	}
}

func (r *memoryRepository) SlugExists(_ context.Context, slug string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.slugs {
		if s == slug {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryRepository) CountSlugsContaining(_ context.Context, fragment string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.slugs {
		if strings.Contains(s, fragment) {
			n++
		}
	}
	return n, nil
}

func (r *memoryRepository) AssignSlug(_ context.Context, postID int64, slug string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.slugs {
		if s == slug && id != postID {
			return ErrIdentifierConflict
		}
	}
	r.slugs[postID] = slug
	return nil
}

func (r *memoryRepository) SavePublication(_ context.Context, pub Publication) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves++
	if r.pages[pub.PostID] == nil {
		r.pages[pub.PostID] = make(map[string]Page)
		r.media[pub.PostID] = make(map[string]Medium)
	}
	for _, m := range pub.Media {
		if _, ok := r.media[pub.PostID][m.Path]; !ok {
			r.media[pub.PostID][m.Path] = m
		}
	}
	for _, p := range pub.Pages {
		r.pages[pub.PostID][p.Name] = p
	}
	return nil
}

// fakeCompiler writes canned outputs into the job directory.
type fakeCompiler struct {
	fs    afero.Fs
	files map[string]string // name template, {base} replaced
	err   error
	jobs  []Job
}

func (c *fakeCompiler) Compile(_ context.Context, job Job) error {
	c.jobs = append(c.jobs, job)
	if c.err != nil {
		return c.err
	}
	for name, content := range c.files {
		name = strings.ReplaceAll(name, "{base}", job.Base)
		content = strings.ReplaceAll(content, "{base}", job.Base)
		if err := afero.WriteFile(c.fs, filepath.Join(job.Dir, name), []byte(content), 0o644); err != nil {
			return err
		}
	}
	return nil
}

const samplePage = `<!DOCTYPE html>
<html lang='en-US' xml:lang='en-US'>
<head><title>Hello</title>
<meta charset='utf-8' />
<link rel='stylesheet' type='text/css' href='{base}.css' />
</head><body>
<div class='maketitle'><h2 class='titleHead'>Hello</h2></div>
<img src='fig1.png' alt='figure' />
<a href='{base}li1.html'>next</a>
</body></html>
`

func newTestPublisher(t *testing.T, files map[string]string) (*Publisher, *memoryRepository, *fakeCompiler, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	repo := newMemoryRepository()
	compiler := &fakeCompiler{fs: fs, files: files}
	p := NewPublisher(repo, Config{WorkRoot: "/work", MediaRoot: "/media", MediaURL: "/media"},
		WithFs(fs), WithCompiler(compiler))
	return p, repo, compiler, fs
}

func defaultOutputs() map[string]string {
	return map[string]string{
		"{base}.html":    samplePage,
		"{base}li1.html": "<html><head></head><body><p>second</p></body></html>",
		"{base}.css":     "body{}",
		"fig1.png":       "png-bytes",
		"{base}.pdf":     "%PDF",
		"{base}.log":     "log",
	}
}

func TestPublishAssignsSlugAndStoresPages(t *testing.T) {
	p, repo, compiler, fs := newTestPublisher(t, defaultOutputs())

	res, err := p.Publish(context.Background(), Document{PostID: 1, Title: "Hello World", Source: `\documentclass{article}`})
	require.NoError(t, err)

	assert.Equal(t, "hello-world", res.Slug)
	assert.Equal(t, "hello-world", repo.slugs[1])
	require.Len(t, compiler.jobs, 1)
	assert.Equal(t, filepath.Join("/work", "hello-world"), compiler.jobs[0].Dir)
	assert.Equal(t, "hello-world.tex", compiler.jobs[0].Source())

	source, err := afero.ReadFile(fs, "/work/hello-world/hello-world.tex")
	require.NoError(t, err)
	assert.Equal(t, `\documentclass{article}`, string(source))

	require.Len(t, res.Media, 2)
	assert.Equal(t, "/media/posts/hello-world/fig1.png", URLMap(res.Media)["fig1.png"])
	copied, err := afero.ReadFile(fs, "/media/posts/hello-world/fig1.png")
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(copied))

	page, ok := repo.pages[1]["hello-world"]
	require.True(t, ok, "main page stored")
	assert.Contains(t, page.Body, "src='/media/posts/hello-world/fig1.png'")
	assert.NotContains(t, page.Body, "src='fig1.png'")
	assert.Contains(t, page.Head, "href='/media/posts/hello-world/hello-world.css'")
	assert.NotContains(t, page.Head, "<head>")
	assert.NotContains(t, page.Body, "<body>")
	assert.Contains(t, page.Body, "<a href='/posts/hello-world/hello-worldli1/'>next</a>")
	_, ok = repo.pages[1]["hello-worldli1"]
	assert.True(t, ok, "second page stored")
}

func TestPublishDisambiguatesSlug(t *testing.T) {
	p, repo, _, _ := newTestPublisher(t, defaultOutputs())
	ctx := context.Background()

	first, err := p.Publish(ctx, Document{PostID: 1, Title: "Hello World"})
	require.NoError(t, err)
	second, err := p.Publish(ctx, Document{PostID: 2, Title: "Hello World"})
	require.NoError(t, err)

	assert.Equal(t, "hello-world", first.Slug)
	assert.Equal(t, "hello-world-2", second.Slug)
	assert.NotEqual(t, repo.slugs[1], repo.slugs[2])
}

func TestPublishTwiceUpdatesInPlace(t *testing.T) {
	p, repo, compiler, _ := newTestPublisher(t, defaultOutputs())
	ctx := context.Background()

	res, err := p.Publish(ctx, Document{PostID: 1, Title: "Hello World"})
	require.NoError(t, err)

	compiler.files["{base}.html"] = strings.Replace(samplePage, "Hello</h2>", "Hello again</h2>", 1)
	_, err = p.Publish(ctx, Document{PostID: 1, Title: "Hello World", Slug: res.Slug})
	require.NoError(t, err)

	assert.Len(t, repo.pages[1], 2)
	assert.Len(t, repo.media[1], 2)
	assert.Contains(t, repo.pages[1]["hello-world"].Body, "Hello again")
	assert.Len(t, compiler.jobs, 2)
}

func TestPublishCompileFailureStoresNothing(t *testing.T) {
	p, repo, compiler, _ := newTestPublisher(t, defaultOutputs())
	compiler.err = &CompileError{Stage: StageConverter, Command: "make4ht", ExitCode: 1}

	_, err := p.Publish(context.Background(), Document{PostID: 1, Title: "Broken"})
	require.Error(t, err)

	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, StageConverter, ce.Stage)
	assert.True(t, IsCompileFailure(err))
	assert.Zero(t, repo.saves)
	assert.Empty(t, repo.pages[1])
}

func TestPublishMalformedOutput(t *testing.T) {
	p, repo, _, _ := newTestPublisher(t, map[string]string{
		"{base}.html": "<html><p>no head</p></html>",
	})

	_, err := p.Publish(context.Background(), Document{PostID: 1, Title: "Odd"})
	require.Error(t, err)
	assert.True(t, IsMalformedOutput(err))
	assert.Zero(t, repo.saves)
}

func TestPublishEmptyTitle(t *testing.T) {
	p, _, compiler, _ := newTestPublisher(t, defaultOutputs())

	_, err := p.Publish(context.Background(), Document{PostID: 1, Title: "  ?! "})
	require.ErrorIs(t, err, ErrEmptyIdentifier)
	assert.Empty(t, compiler.jobs)
}

func TestPublishNoPages(t *testing.T) {
	p, _, _, _ := newTestPublisher(t, map[string]string{"{base}.pdf": "%PDF"})

	_, err := p.Publish(context.Background(), Document{PostID: 1, Title: "Only PDF"})
	require.ErrorIs(t, err, ErrNoPages)
}

func TestStageFileWritesIntoWorkspace(t *testing.T) {
	p, _, _, fs := newTestPublisher(t, nil)

	require.NoError(t, p.StageFile("hello-world", "../plot.png", []byte("img")))

	data, err := afero.ReadFile(fs, "/work/hello-world/plot.png")
	require.NoError(t, err)
	assert.Equal(t, "img", string(data))
}

func TestReserveAssignsWithoutCompiling(t *testing.T) {
	p, repo, compiler, _ := newTestPublisher(t, defaultOutputs())
	ctx := context.Background()

	slug, err := p.Reserve(ctx, Document{PostID: 4, Title: "Draft Notes"})
	require.NoError(t, err)
	assert.Equal(t, "draft-notes", slug)
	assert.Equal(t, "draft-notes", repo.slugs[4])
	assert.Empty(t, compiler.jobs)

	again, err := p.Reserve(ctx, Document{PostID: 4, Title: "Other", Slug: slug})
	require.NoError(t, err)
	assert.Equal(t, slug, again)
}

func TestOpenPDF(t *testing.T) {
	p, _, _, fs := newTestPublisher(t, defaultOutputs())

	_, err := p.OpenPDF("hello-world")
	assert.ErrorIs(t, err, os.ErrNotExist)
	exists, err := afero.DirExists(fs, "/work/hello-world")
	require.NoError(t, err)
	assert.False(t, exists, "opening a missing PDF creates nothing")
	_, err = p.OpenPDF("../etc")
	assert.Error(t, err)

	res, err := p.Publish(context.Background(), Document{PostID: 1, Title: "Hello World"})
	require.NoError(t, err)
	f, err := p.OpenPDF(res.Slug)
	require.NoError(t, err)
	defer f.Close()
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(data))
}
