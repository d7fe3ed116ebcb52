package texpub

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

func (a *App) handleAdmin(c echo.Context) error {
	if !IsAdmin(c) {
		return Render(c, a.Views.AdminLogin(false, CsrfToken(c)))
	}
	return a.renderAdminDashboard(c, c.QueryParam("msg"))
}

func (a *App) handleAdminNew(c echo.Context) error {
	if !IsAdmin(c) {
		return c.Redirect(http.StatusSeeOther, "/admin/")
	}
	return a.renderAdminEditor(c, Post{Source: DefaultSource}, "")
}

func (a *App) handleAdminPost(c echo.Context) error {
	if !IsAdmin(c) {
		return c.Redirect(http.StatusSeeOther, "/admin/")
	}
	id, err := postID(c)
	if err != nil {
		return err
	}
	post, err := a.Store.GetPost(c.Request().Context(), id)
	if err != nil {
		if IsNotFound(err) {
			return c.NoContent(http.StatusNotFound)
		}
		return err
	}
	return a.renderAdminEditor(c, post, c.QueryParam("msg"))
}

func (a *App) handleAdminLogin(c echo.Context) error {
	ip := c.RealIP()
	if !a.loginLimiter.Check(ip) {
		return c.String(http.StatusTooManyRequests, "Too many login attempts. Try again later.")
	}
	pass := c.FormValue("password")
	if subtle.ConstantTimeCompare([]byte(pass), []byte(a.Config.AdminPassword)) == 1 {
		if err := setAdminSession(c); err != nil {
			return err
		}
		return c.Redirect(http.StatusSeeOther, "/admin/")
	}
	a.loginLimiter.Record(ip)
	return Render(c, a.Views.AdminLogin(true, CsrfToken(c)))
}

func handleAdminLogout(c echo.Context) error {
	if err := clearAdminSession(c); err != nil {
		return err
	}
	return c.Redirect(http.StatusSeeOther, "/admin/")
}

// handleAdminSave stores the post and publishes it. Publish failures are
// shown in the editor next to the source that caused them.
func (a *App) handleAdminSave(c echo.Context) error {
	if !IsAdmin(c) {
		return c.Redirect(http.StatusSeeOther, "/admin/")
	}
	if err := c.Request().ParseForm(); err != nil {
		return err
	}
	ctx := c.Request().Context()
	post := Post{
		Title:    strings.TrimSpace(c.FormValue("title")),
		Source:   c.FormValue("source"),
		Abstract: c.FormValue("abstract"),
	}
	if id := c.FormValue("id"); id != "" {
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid post id")
		}
		existing, err := a.Store.GetPost(ctx, n)
		if err != nil {
			if IsNotFound(err) {
				return c.NoContent(http.StatusNotFound)
			}
			return err
		}
		post.ID = existing.ID
		post.Slug = existing.Slug
		post.CreatedAt = existing.CreatedAt
	}

	res, err := a.SavePostWithRelations(ctx, &post,
		ParseIDs(c.Request().Form["categories"]), ParseIDs(c.Request().Form["see_also"]))
	if err != nil {
		a.logger.Warn("save rejected", "post_id", post.ID, "error", err)
		if res.Slug != "" {
			post.Slug = res.Slug
		}
		if post.ID != 0 {
			// Relations as stored.
			if stored, getErr := a.Store.GetPost(ctx, post.ID); getErr == nil {
				post.Categories = stored.Categories
			}
		}
		return a.renderAdminEditor(c, post, publishMessage(err))
	}
	return a.renderAdminDashboard(c, "published "+res.Slug)
}

func (a *App) handleAdminRepublish(c echo.Context) error {
	if !IsAdmin(c) {
		return c.Redirect(http.StatusSeeOther, "/admin/")
	}
	id, err := postID(c)
	if err != nil {
		return err
	}
	res, err := a.Publish(c.Request().Context(), id)
	if err != nil {
		if IsNotFound(err) {
			return c.NoContent(http.StatusNotFound)
		}
		return a.renderAdminDashboard(c, publishMessage(err))
	}
	return a.renderAdminDashboard(c, "published "+res.Slug)
}

func (a *App) handleAdminDelete(c echo.Context) error {
	if !IsAdmin(c) {
		return c.Redirect(http.StatusSeeOther, "/admin/")
	}
	id, err := postID(c)
	if err != nil {
		return err
	}
	if err := a.Store.DeletePost(c.Request().Context(), id); err != nil {
		return err
	}
	a.Cache.Invalidate()
	return a.renderAdminDashboard(c, "deleted")
}

func (a *App) renderAdminDashboard(c echo.Context, msg string) error {
	posts, err := a.Store.ListAllPosts(c.Request().Context())
	if err != nil {
		return err
	}
	return Render(c, a.Views.AdminDashboard(posts, msg, CsrfToken(c)))
}

func (a *App) renderAdminEditor(c echo.Context, post Post, msg string) error {
	ctx := c.Request().Context()
	cats, err := a.Store.ListCategories(ctx)
	if err != nil {
		return err
	}
	var media []PostMedium
	if post.ID != 0 {
		if media, err = a.Store.ListMedia(ctx, post.ID); err != nil {
			return err
		}
	}
	return Render(c, a.Views.AdminEditor(post, cats, media, msg, CsrfToken(c)))
}

func postID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid post id")
	}
	return id, nil
}
