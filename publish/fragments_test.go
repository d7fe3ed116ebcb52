package publish

import (
	"errors"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractFragments(t *testing.T) {
	src := "<!DOCTYPE html>\n<html><head><title>T</title><link href='a.css' rel='stylesheet'/></head>\n<body class='x'><p>one</p>\n<img src='fig1.png'/></body></html>"

	frag, err := ExtractFragments("page.html", []byte(src))
	require.NoError(t, err)
	assert.Equal(t, "<title>T</title><link href='a.css' rel='stylesheet'/>", frag.Head)
	assert.Equal(t, "<p>one</p>\n<img src='fig1.png'/>", frag.Body)
}

func TestExtractFragmentsIgnoresMarkersInCommentsAndScripts(t *testing.T) {
	src := "<html><!-- <head>fake</head> --><HEAD><script>var s = '</body>';</script></HEAD><Body>real</BODY></html>"

	frag, err := ExtractFragments("page.html", []byte(src))
	require.NoError(t, err)
	assert.Equal(t, "<script>var s = '</body>';</script>", frag.Head)
	assert.Equal(t, "real", frag.Body)
}

func TestExtractFragmentsUsesFirstPair(t *testing.T) {
	src := "<head>h1</head><head>h2</head><body>b1</body><body>b2</body>"

	frag, err := ExtractFragments("page.html", []byte(src))
	require.NoError(t, err)
	assert.Equal(t, "h1", frag.Head)
	assert.Equal(t, "b1", frag.Body)
}

func TestExtractFragmentsMalformed(t *testing.T) {
	cases := map[string]string{
		"no head":       "<html><body>x</body></html>",
		"unclosed head": "<html><head><title>x</title><body>x</body></html>",
		"no body":       "<html><head></head><p>x</p></html>",
		"unclosed body": "<html><head></head><body><p>x</p></html>",
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ExtractFragments("page.html", []byte(src))
			var me *MalformedOutputError
			require.True(t, errors.As(err, &me), "got %v", err)
			assert.Equal(t, "page.html", me.File)
		})
	}
}

func TestRewriteAssets(t *testing.T) {
	urls := map[string]string{
		"fig1.png":        "/media/posts/hello-world/fig1.png",
		"hello-world.css": "/media/posts/hello-world/hello-world.css",
	}
	in := `<img src='fig1.png'/><link href='hello-world.css'/><img src="fig1.png"/><a href='fig1.png.html'>x</a>`

	out := RewriteAssets(in, urls)

	assert.Equal(t, `<img src='/media/posts/hello-world/fig1.png'/><link href='/media/posts/hello-world/hello-world.css'/><img src="fig1.png"/><a href='fig1.png.html'>x</a>`, out)
}

func TestPageName(t *testing.T) {
	assert.Equal(t, "hello-world", PageName("hello-world.html"))
	assert.Equal(t, "hello-worldse1", PageName("hello-worldse1.html"))
	assert.Equal(t, "hello_world-notes", PageName("Hello_World Notes.html"))
}

func TestPageURL(t *testing.T) {
	assert.Equal(t, "/posts/hello-world/", PageURL("/posts", "hello-world", "hello-world"))
	assert.Equal(t, "/posts/hello-world/hello-worldli1/", PageURL("/posts/", "hello-world", "hello-worldli1"))
}

func TestRewritePageLinks(t *testing.T) {
	links := map[string]string{
		"hello-world.html":    "/posts/hello-world/",
		"hello-worldli1.html": "/posts/hello-world/hello-worldli1/",
	}
	in := `<a href='hello-worldli1.html'>next</a><a href='hello-world.html#sec2'>up</a><a href="hello-world.html">dq</a><a href='other.html'>x</a>`

	out := RewritePageLinks(in, links)

	assert.Equal(t, `<a href='/posts/hello-world/hello-worldli1/'>next</a><a href='/posts/hello-world/#sec2'>up</a><a href="hello-world.html">dq</a><a href='other.html'>x</a>`, out)
}

func TestCollectPagesRewritesLinksBetweenPages(t *testing.T) {
	fs := afero.NewMemMapFs()
	ws, err := OpenWorkspace(fs, "/work", "post")
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(fs, "/work/post/post.html",
		[]byte("<head></head><body><a href='postli1.html'>Introduction</a><img src='fig.png'></body>"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/work/post/postli1.html",
		[]byte("<head></head><body><a href='post.html#tocli1'>top</a></body>"), 0o644))

	pages, err := CollectPages(ws, map[string]string{"fig.png": "/media/posts/post/fig.png"}, "/posts")
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, "post", pages[0].Name)
	assert.Equal(t, "<a href='/posts/post/postli1/'>Introduction</a><img src='/media/posts/post/fig.png'>", pages[0].Body)
	assert.Equal(t, "postli1", pages[1].Name)
	assert.Equal(t, "<a href='/posts/post/#tocli1'>top</a>", pages[1].Body)
}

func TestCollectPagesDuplicateName(t *testing.T) {
	fs := afero.NewMemMapFs()
	ws, err := OpenWorkspace(fs, "/work", "post")
	require.NoError(t, err)
	page := []byte("<head></head><body></body>")
	require.NoError(t, afero.WriteFile(fs, "/work/post/post.a.html", page, 0o644))
	require.NoError(t, afero.WriteFile(fs, "/work/post/posta.html", page, 0o644))

	_, err = CollectPages(ws, nil, "/posts")
	require.ErrorIs(t, err, ErrDuplicatePage)
}

func TestCollectPagesSkipsForeignFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	ws, err := OpenWorkspace(fs, "/work", "post")
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(fs, "/work/post/post.html", []byte("<head></head><body>mine</body>"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/work/post/index.html", []byte("broken"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/work/post/post.html.bak", []byte("broken"), 0o644))

	pages, err := CollectPages(ws, nil, "/posts")
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "post", pages[0].Name)
	assert.Equal(t, "mine", pages[0].Body)
}
