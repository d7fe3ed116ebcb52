package texpub

import (
	"encoding/xml"
	"net/http"

	"github.com/labstack/echo/v4"
)

type sitemapURLSet struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

func (a *App) renderSitemap(c echo.Context, posts []Post) error {
	base := a.Config.URL
	urls := []sitemapURL{
		{Loc: BuildURL(base)},
		{Loc: BuildURL(base, "about")},
	}
	for _, p := range posts {
		pages, err := a.Store.ListRenderedPages(c.Request().Context(), p.ID)
		if err != nil {
			return err
		}
		for _, pg := range pages {
			loc := BuildURL(base, "posts", p.Slug)
			if pg.Name != p.Slug {
				loc = BuildURL(base, "posts", p.Slug, pg.Name)
			}
			urls = append(urls, sitemapURL{
				Loc:     loc,
				LastMod: pg.UpdatedAt.Format("2006-01-02"),
			})
		}
	}
	sitemap := sitemapURLSet{
		XMLNS: "http://www.sitemaps.org/schemas/sitemap/0.9",
		URLs:  urls,
	}
	c.Response().Header().Set(echo.HeaderContentType, "application/xml; charset=utf-8")
	c.Response().WriteHeader(http.StatusOK)
	c.Response().Write([]byte(xml.Header))
	return xml.NewEncoder(c.Response()).Encode(sitemap)
}
