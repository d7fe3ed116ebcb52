package texpub

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"
	"golang.org/x/image/draw"

	"github.com/eringen/texpub/publish"
)

const (
	maxFigureWidth = 1600
	jpegQuality    = 85
	maxUploadSize  = 10 << 20 // 10MB
)

// passthroughExtensions are supporting files staged without processing.
var passthroughExtensions = map[string]bool{
	".pdf": true, ".eps": true, ".bib": true, ".sty": true, ".cls": true, ".tex": true,
}

// Figure is a file staged next to a post's source.
type Figure struct {
	Filename string
	Width    int
	Height   int
	Size     int
}

// processFigure decodes a raster image, scales it down to maxFigureWidth and
// re-encodes it. PNGs stay PNG so line art keeps sharp edges; everything
// else becomes JPEG.
func processFigure(src io.Reader, originalName string) (Figure, []byte, error) {
	img, format, err := image.Decode(src)
	if err != nil {
		return Figure{}, nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	if w > maxFigureWidth {
		newH := h * maxFigureWidth / w
		dst := image.NewRGBA(image.Rect(0, 0, maxFigureWidth, newH))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
		img = dst
		w = maxFigureWidth
		h = newH
	}

	var buf bytes.Buffer
	ext := ".jpg"
	if format == "png" {
		ext = ".png"
		err = png.Encode(&buf, img)
	} else {
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality})
	}
	if err != nil {
		return Figure{}, nil, fmt.Errorf("encode %s: %w", strings.TrimPrefix(ext, "."), err)
	}

	return Figure{
		Filename: figureBase(originalName) + ext,
		Width:    w,
		Height:   h,
		Size:     buf.Len(),
	}, buf.Bytes(), nil
}

// figureBase slugifies a file name without its extension. LaTeX is picky
// about dots and spaces in \includegraphics paths.
func figureBase(name string) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	if s := publish.Slugify(base); s != "" {
		return s
	}
	return "figure"
}

// StageFigure stores a supporting file in the workspace of post id, assigning
// the post a slug first if it has never been published.
func (a *App) StageFigure(ctx context.Context, id int64, originalName string, src io.Reader) (Figure, error) {
	post, err := a.Store.GetPost(ctx, id)
	if err != nil {
		return Figure{}, err
	}

	var fig Figure
	var data []byte
	ext := strings.ToLower(filepath.Ext(originalName))
	if passthroughExtensions[ext] {
		if data, err = io.ReadAll(io.LimitReader(src, maxUploadSize)); err != nil {
			return Figure{}, err
		}
		fig = Figure{Filename: figureBase(originalName) + ext, Size: len(data)}
	} else {
		if fig, data, err = processFigure(src, originalName); err != nil {
			return Figure{}, wrapValidationError(err, "figure rejected")
		}
	}

	slug, err := a.Publisher.Reserve(ctx, publish.Document{PostID: post.ID, Title: post.Title, Slug: post.Slug})
	if err != nil {
		return Figure{}, wrapPublishError(err)
	}
	if post.Slug == "" {
		a.Cache.Invalidate()
	}
	if err := a.Publisher.StageFile(slug, fig.Filename, data); err != nil {
		return Figure{}, fmt.Errorf("stage %s: %w", fig.Filename, err)
	}
	a.logger.Info("figure staged", "post_id", post.ID, "slug", slug, "file", fig.Filename, "bytes", fig.Size)
	return fig, nil
}

func (a *App) handleFigureUpload(c echo.Context) error {
	if !IsAdmin(c) {
		return c.Redirect(http.StatusSeeOther, "/admin/")
	}
	id, err := postID(c)
	if err != nil {
		return err
	}

	file, err := c.FormFile("figure")
	if err != nil {
		return c.String(http.StatusBadRequest, "No file provided")
	}
	if file.Size > maxUploadSize {
		return c.String(http.StatusBadRequest, "File too large (max 10MB)")
	}
	src, err := file.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	fig, err := a.StageFigure(c.Request().Context(), id, file.Filename, src)
	if err != nil {
		if IsNotFound(err) {
			return c.NoContent(http.StatusNotFound)
		}
		return c.String(http.StatusBadRequest, "Upload failed: "+err.Error())
	}
	return c.Redirect(http.StatusSeeOther, fmt.Sprintf("/admin/post/%d/?msg=%s", id, "staged+"+fig.Filename))
}
