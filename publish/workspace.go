package publish

import (
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Workspace is the per-post directory the compilers run in.
type Workspace struct {
	fs   afero.Fs
	Dir  string
	Slug string
}

// PrepareWorkspace creates root/slug if needed and writes source to slug.tex.
// An existing directory is reused as is.
func PrepareWorkspace(fs afero.Fs, root, slug, source string) (*Workspace, error) {
	ws, err := OpenWorkspace(fs, root, slug)
	if err != nil {
		return nil, err
	}
	if err := afero.WriteFile(fs, ws.SourcePath(), []byte(source), 0o644); err != nil {
		return nil, fmt.Errorf("write source: %w", err)
	}
	return ws, nil
}

// OpenWorkspace returns the workspace for slug, creating its directory.
func OpenWorkspace(fs afero.Fs, root, slug string) (*Workspace, error) {
	dir, err := workspaceDir(root, slug)
	if err != nil {
		return nil, err
	}
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace %s: %w", dir, err)
	}
	return &Workspace{fs: fs, Dir: dir, Slug: slug}, nil
}

func workspaceDir(root, slug string) (string, error) {
	if slug == "" || strings.ContainsAny(slug, `/\`) || slug == "." || slug == ".." {
		return "", fmt.Errorf("workspace: invalid slug %q", slug)
	}
	return filepath.Join(root, slug), nil
}

// SourceName is the file name handed to the compilers.
func (w *Workspace) SourceName() string { return w.Slug + ".tex" }

func (w *Workspace) SourcePath() string { return filepath.Join(w.Dir, w.SourceName()) }

func (w *Workspace) PDFPath() string { return filepath.Join(w.Dir, w.Slug+".pdf") }

// Stage copies r into the workspace as name, e.g. a figure the source includes.
func (w *Workspace) Stage(name string, r io.Reader) error {
	name = path.Base(filepath.ToSlash(name))
	if name == "." || name == "/" || name == ".." {
		return fmt.Errorf("workspace: invalid file name")
	}
	f, err := w.fs.Create(filepath.Join(w.Dir, name))
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Files lists the regular files directly inside the workspace, sorted by name.
func (w *Workspace) Files() ([]string, error) {
	infos, err := afero.ReadDir(w.fs, w.Dir)
	if err != nil {
		return nil, fmt.Errorf("read workspace: %w", err)
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		if info.Mode().IsRegular() {
			names = append(names, info.Name())
		}
	}
	return names, nil
}

// ReadFile reads a file from the workspace.
func (w *Workspace) ReadFile(name string) ([]byte, error) {
	return afero.ReadFile(w.fs, filepath.Join(w.Dir, name))
}

// Open opens a file from the workspace.
func (w *Workspace) Open(name string) (afero.File, error) {
	return w.fs.Open(filepath.Join(w.Dir, name))
}
