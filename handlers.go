package texpub

import (
	"errors"
	"io"
	"net/http"
	"os"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"

	"github.com/eringen/texpub/publish"
)

// Render writes a templ component as an HTTP 200 HTML response.
func Render(c echo.Context, cmp templ.Component) error {
	return RenderStatus(c, http.StatusOK, cmp)
}

// RenderStatus writes a templ component with a specific HTTP status code.
func RenderStatus(c echo.Context, code int, cmp templ.Component) error {
	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	c.Response().WriteHeader(code)
	return cmp.Render(c.Request().Context(), c.Response().Writer)
}

func (a *App) handleHome(c echo.Context) error {
	ctx := c.Request().Context()
	category := c.QueryParam("category")
	posts, err := a.Cache.ListPosts(ctx, category)
	if err != nil {
		return err
	}
	cats, err := a.Cache.ListCategories(ctx)
	if err != nil {
		return err
	}
	banner, err := a.Store.ListTitleElements(ctx)
	if err != nil {
		return err
	}
	return Render(c, a.Views.Home(posts, cats, category, banner, a.Config))
}

// handlePost serves the first page of a post, or the page named by :page.
func (a *App) handlePost(c echo.Context) error {
	ctx := c.Request().Context()
	post, err := a.Cache.GetPost(ctx, c.Param("slug"))
	if err != nil {
		if IsNotFound(err) {
			return RenderStatus(c, http.StatusNotFound, a.Views.NotFound())
		}
		return err
	}
	pages, err := a.Store.ListRenderedPages(ctx, post.ID)
	if err != nil {
		return err
	}
	page, ok := pickPage(post, pages, c.Param("page"))
	if !ok {
		return RenderStatus(c, http.StatusNotFound, a.Views.NotFound())
	}
	seeAlso, err := a.Store.ListSeeAlso(ctx, post.ID)
	if err != nil {
		return err
	}
	if len(seeAlso) == 0 {
		// Fall back to posts sharing a category.
		all, err := a.Cache.ListPosts(ctx, "")
		if err != nil {
			return err
		}
		seeAlso = FilterRelatedPosts(post, all)
	}
	return Render(c, a.Views.Post(post, page, pages, seeAlso, a.Config))
}

// pickPage returns the named page, or the entry page when name is empty. The
// entry page is the one named after the slug; the converter names split pages
// with a suffix. Generated file names such as "<slug>li1.html" resolve to
// their page.
func pickPage(post Post, pages []RenderedPage, name string) (RenderedPage, bool) {
	if len(pages) == 0 {
		return RenderedPage{}, false
	}
	if name == "" {
		name = post.Slug
	} else {
		name = publish.PageName(name)
	}
	for _, p := range pages {
		if p.Name == name {
			return p, true
		}
	}
	if name == post.Slug {
		return pages[0], true
	}
	return RenderedPage{}, false
}

func (a *App) handlePDF(c echo.Context) error {
	ctx := c.Request().Context()
	post, err := a.Cache.GetPost(ctx, c.Param("slug"))
	if err != nil {
		if IsNotFound(err) {
			return echo.ErrNotFound
		}
		return err
	}
	f, err := a.Publisher.OpenPDF(post.Slug)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return echo.ErrNotFound
		}
		return err
	}
	defer f.Close()
	c.Response().Header().Set(echo.HeaderContentDisposition, `inline; filename="`+post.Slug+`.pdf"`)
	c.Response().Header().Set(echo.HeaderContentType, "application/pdf")
	c.Response().WriteHeader(http.StatusOK)
	_, err = io.Copy(c.Response(), f)
	return err
}

func (a *App) handleAbout(c echo.Context) error {
	ctx := c.Request().Context()
	sections, err := a.Store.ListAboutSections(ctx)
	if err != nil {
		return err
	}
	links, err := a.Store.ListSocialLinks(ctx)
	if err != nil {
		return err
	}
	return Render(c, a.Views.About(sections, links, a.Config))
}

func (a *App) handleSitemap(c echo.Context) error {
	posts, err := a.Cache.ListPosts(c.Request().Context(), "")
	if err != nil {
		return err
	}
	return a.renderSitemap(c, posts)
}

func (a *App) handleFeed(c echo.Context) error {
	posts, err := a.Cache.ListPosts(c.Request().Context(), "")
	if err != nil {
		return err
	}
	return a.renderRSS(c, posts)
}

func (a *App) handleFavicon(c echo.Context) error {
	return c.File(a.staticDir + "/favicon.svg")
}

func (a *App) handleRobots(c echo.Context) error {
	return c.File(a.staticDir + "/robots.txt")
}

func (a *App) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	he, ok := err.(*echo.HTTPError)
	if ok && he.Code == http.StatusNotFound {
		_ = RenderStatus(c, http.StatusNotFound, a.Views.NotFound())
		return
	}
	code := http.StatusInternalServerError
	if ok {
		code = he.Code
	}
	if code >= 500 {
		a.logger.Error("server error", "path", c.Request().URL.Path, "error", err)
		_ = RenderStatus(c, code, a.Views.ServerError())
		return
	}
	a.Echo.DefaultHTTPErrorHandler(err, c)
}
