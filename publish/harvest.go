package publish

import (
	"fmt"
	"io"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// assetExtensions are the generated files persisted for web delivery.
var assetExtensions = map[string]struct{}{
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"gif":  {},
	"svg":  {},
	"css":  {},
}

// IsAsset reports whether name has an allowed asset extension.
func IsAsset(name string) bool {
	ext := strings.TrimPrefix(filepath.Ext(name), ".")
	_, ok := assetExtensions[strings.ToLower(ext)]
	return ok
}

// Medium is a persisted asset.
type Medium struct {
	Filename string // name in the workspace
	Path     string // posts/<slug>/<filename>, relative to the media root
	URL      string
}

// MediaStore keeps persisted assets under root and maps them to public URLs.
type MediaStore struct {
	fs      afero.Fs
	root    string
	baseURL string
}

// NewMediaStore returns a store writing to root and serving from baseURL.
func NewMediaStore(fs afero.Fs, root, baseURL string) *MediaStore {
	return &MediaStore{fs: fs, root: root, baseURL: strings.TrimRight(baseURL, "/")}
}

// RelPath is the media-root relative path for a post asset.
func (m *MediaStore) RelPath(slug, name string) string {
	return path.Join("posts", slug, name)
}

// URL is the public URL of a post asset.
func (m *MediaStore) URL(slug, name string) string {
	return m.baseURL + "/" + path.Join("posts", slug, url.PathEscape(name))
}

// Put writes r as the asset name of post slug. An existing file is replaced.
func (m *MediaStore) Put(slug, name string, r io.Reader) (Medium, error) {
	rel := m.RelPath(slug, name)
	dst := filepath.Join(m.root, filepath.FromSlash(rel))
	if err := m.fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return Medium{}, fmt.Errorf("create media dir: %w", err)
	}
	f, err := m.fs.Create(dst)
	if err != nil {
		return Medium{}, fmt.Errorf("create %s: %w", rel, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return Medium{}, fmt.Errorf("write %s: %w", rel, err)
	}
	if err := f.Close(); err != nil {
		return Medium{}, err
	}
	return Medium{Filename: name, Path: rel, URL: m.URL(slug, name)}, nil
}

// Harvest copies every asset found directly in the workspace into the media
// store. Subdirectories are not scanned.
func Harvest(ws *Workspace, media *MediaStore) ([]Medium, error) {
	names, err := ws.Files()
	if err != nil {
		return nil, err
	}
	var out []Medium
	for _, name := range names {
		if !IsAsset(name) {
			continue
		}
		f, err := ws.Open(name)
		if err != nil {
			return nil, fmt.Errorf("open asset %s: %w", name, err)
		}
		m, err := media.Put(ws.Slug, name, f)
		f.Close()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// URLMap indexes media by workspace file name.
func URLMap(media []Medium) map[string]string {
	urls := make(map[string]string, len(media))
	for _, m := range media {
		urls[m.Filename] = m.URL
	}
	return urls
}
