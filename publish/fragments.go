package publish

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"golang.org/x/net/html"
)

// Fragment is the inner head and body content of one generated page.
type Fragment struct {
	Head string
	Body string
}

// Page is a named fragment ready to be stored.
type Page struct {
	Name string
	Head string
	Body string
}

// ExtractFragments returns the raw markup strictly between the first <head>
// start tag and its end tag, and likewise for <body>. The input is tokenized
// so tag case, attributes and marker text inside comments or scripts do not
// confuse the split; the returned markup is the original bytes, unmodified.
func ExtractFragments(name string, data []byte) (Fragment, error) {
	z := html.NewTokenizer(bytes.NewReader(data))
	headStart, headEnd := -1, -1
	bodyStart, bodyEnd := -1, -1
	offset := 0
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if errors.Is(z.Err(), io.EOF) {
				break
			}
			return Fragment{}, &MalformedOutputError{File: name, Reason: z.Err().Error()}
		}
		start := offset
		offset += len(z.Raw())
		switch tt {
		case html.StartTagToken:
			tag, _ := z.TagName()
			switch string(tag) {
			case "head":
				if headStart < 0 {
					headStart = offset
				}
			case "body":
				if bodyStart < 0 {
					bodyStart = offset
				}
			}
		case html.EndTagToken:
			tag, _ := z.TagName()
			switch string(tag) {
			case "head":
				if headStart >= 0 && headEnd < 0 {
					headEnd = start
				}
			case "body":
				if bodyStart >= 0 && bodyEnd < 0 {
					bodyEnd = start
				}
			}
		}
	}
	switch {
	case headStart < 0:
		return Fragment{}, &MalformedOutputError{File: name, Reason: "missing <head>"}
	case headEnd < 0:
		return Fragment{}, &MalformedOutputError{File: name, Reason: "missing </head>"}
	case bodyStart < 0:
		return Fragment{}, &MalformedOutputError{File: name, Reason: "missing <body>"}
	case bodyEnd < 0:
		return Fragment{}, &MalformedOutputError{File: name, Reason: "missing </body>"}
	}
	return Fragment{
		Head: string(data[headStart:headEnd]),
		Body: string(data[bodyStart:bodyEnd]),
	}, nil
}

// RewriteAssets replaces src='<file>' and href='<file>' with the persisted
// URL for each file in urls. Only exact single-quoted attributes match.
func RewriteAssets(markup string, urls map[string]string) string {
	if len(urls) == 0 {
		return markup
	}
	names := make([]string, 0, len(urls))
	for name := range urls {
		names = append(names, name)
	}
	sort.Strings(names)
	pairs := make([]string, 0, len(names)*4)
	for _, name := range names {
		u := urls[name]
		pairs = append(pairs,
			"src='"+name+"'", "src='"+u+"'",
			"href='"+name+"'", "href='"+u+"'",
		)
	}
	return strings.NewReplacer(pairs...).Replace(markup)
}

// RewritePageLinks replaces href='<file>' and href='<file>#...' with the
// public path of each generated page in links, so the converter's
// navigation between split pages resolves to stored pages.
func RewritePageLinks(markup string, links map[string]string) string {
	if len(links) == 0 {
		return markup
	}
	files := make([]string, 0, len(links))
	for file := range links {
		files = append(files, file)
	}
	sort.Strings(files)
	pairs := make([]string, 0, len(files)*4)
	for _, file := range files {
		u := links[file]
		pairs = append(pairs,
			"href='"+file+"'", "href='"+u+"'",
			"href='"+file+"#", "href='"+u+"#",
		)
	}
	return strings.NewReplacer(pairs...).Replace(markup)
}

// PageName derives the stored page name from a generated file name.
func PageName(file string) string {
	return Slugify(strings.TrimSuffix(file, ".html"))
}

// PageURL is the public path of page name of the post slug under postsURL.
// The page named after the slug is the post's entry page.
func PageURL(postsURL, slug, name string) string {
	base := strings.TrimRight(postsURL, "/") + "/" + slug + "/"
	if name == slug {
		return base
	}
	return base + name + "/"
}

// CollectPages extracts and rewrites every generated page of the workspace.
// A page belongs to the post when its file name contains the slug. Asset
// references are rewritten to assets' URLs and links between pages to the
// pages' public paths under postsURL.
func CollectPages(ws *Workspace, assets map[string]string, postsURL string) ([]Page, error) {
	names, err := ws.Files()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]string)
	var files []string
	links := make(map[string]string)
	for _, file := range names {
		if !strings.HasSuffix(file, ".html") || !strings.Contains(file, ws.Slug) {
			continue
		}
		name := PageName(file)
		if prev, ok := seen[name]; ok {
			return nil, fmt.Errorf("%w: %s and %s both map to %q", ErrDuplicatePage, prev, file, name)
		}
		seen[name] = file
		files = append(files, file)
		links[file] = PageURL(postsURL, ws.Slug, name)
	}
	if len(files) == 0 {
		return nil, ErrNoPages
	}

	rewrite := func(markup string) string {
		return RewritePageLinks(RewriteAssets(markup, assets), links)
	}
	pages := make([]Page, 0, len(files))
	for _, file := range files {
		data, err := ws.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", file, err)
		}
		frag, err := ExtractFragments(file, data)
		if err != nil {
			return nil, err
		}
		pages = append(pages, Page{
			Name: PageName(file),
			Head: rewrite(frag.Head),
			Body: rewrite(frag.Body),
		})
	}
	return pages, nil
}
