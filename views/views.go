// Package views provides the default templates for a texpub site.
//
// Each view is a templ.Component backed by html/template. Stored page
// fragments come from the site's own compiler and are inserted unescaped;
// everything else is escaped as usual.
package views

import (
	"context"
	"embed"
	"html/template"
	"io"
	"strings"

	"github.com/a-h/templ"

	"github.com/eringen/texpub"
	"github.com/eringen/texpub/markdown"
	"github.com/eringen/texpub/publish"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.New("").Funcs(template.FuncMap{
	"markdown": renderMarkdown,
	"jsonld":   func(s string) template.JS { return template.JS(s) },
	"pageURL":  pageURL,
	"join":     texpub.CategoryTitles,
	"date":     func(p texpub.Post) string { return p.CreatedAt.Format("2 Jan 2006") },
	"lines":    func(s string) []string { return strings.Split(s, "\n") },
}).ParseFS(templateFS, "templates/*.html"))

// Funcs returns the default view set.
func Funcs() texpub.ViewFuncs {
	return texpub.ViewFuncs{
		Home:           Home,
		Post:           Post,
		About:          About,
		AdminLogin:     AdminLogin,
		AdminDashboard: AdminDashboard,
		AdminEditor:    AdminEditor,
		NotFound:       NotFound,
		ServerError:    ServerError,
	}
}

func component(name string, data any) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return templates.ExecuteTemplate(w, name, data)
	})
}

func renderMarkdown(md string) template.HTML {
	out, err := markdown.HTML(md)
	if err != nil {
		return template.HTML(template.HTMLEscapeString(md))
	}
	return template.HTML(out)
}

// pageURL is the public path of a page of post.
func pageURL(post texpub.Post, page texpub.RenderedPage) string {
	return publish.PageURL("/posts", post.Slug, page.Name)
}

type homeData struct {
	Site       texpub.SiteConfig
	Meta       texpub.PageMeta
	JSONLD     string
	Posts      []texpub.Post
	Categories []texpub.Category
	Active     string
	Banner     []texpub.TitleElement
}

func Home(posts []texpub.Post, categories []texpub.Category, active string, banner []texpub.TitleElement, site texpub.SiteConfig) templ.Component {
	return component("home", homeData{
		Site:       site,
		Meta:       texpub.PageMeta{Title: site.Name, Description: site.Description, URL: texpub.BuildURL(site.URL), OGType: "website"},
		JSONLD:     texpub.WebsiteJsonLD(site),
		Posts:      posts,
		Categories: categories,
		Active:     active,
		Banner:     banner,
	})
}

type postData struct {
	Site    texpub.SiteConfig
	Meta    texpub.PageMeta
	JSONLD  string
	Post    texpub.Post
	Page    texpub.RenderedPage
	Pages   []texpub.RenderedPage
	SeeAlso []texpub.Post
	Head    template.HTML
	Body    template.HTML
}

func Post(post texpub.Post, page texpub.RenderedPage, pages []texpub.RenderedPage, seeAlso []texpub.Post, site texpub.SiteConfig) templ.Component {
	return component("post", postData{
		Site: site,
		Meta: texpub.PageMeta{
			Title:       post.Title + " | " + site.Name,
			Description: post.Abstract,
			URL:         texpub.BuildURL(site.URL, "posts", post.Slug),
			OGType:      "article",
		},
		JSONLD:  texpub.ArticleJsonLD(post, site),
		Post:    post,
		Page:    page,
		Pages:   pages,
		SeeAlso: seeAlso,
		Head:    template.HTML(page.Head),
		Body:    template.HTML(page.Body),
	})
}

type aboutData struct {
	Site     texpub.SiteConfig
	Meta     texpub.PageMeta
	Sections []texpub.AboutSection
	Links    []texpub.SocialLink
}

func About(sections []texpub.AboutSection, links []texpub.SocialLink, site texpub.SiteConfig) templ.Component {
	return component("about", aboutData{
		Site:     site,
		Meta:     texpub.PageMeta{Title: "About | " + site.Name, Description: site.Description, URL: texpub.BuildURL(site.URL, "about"), OGType: "website"},
		Sections: sections,
		Links:    links,
	})
}

type adminData struct {
	Site       texpub.SiteConfig
	Meta       texpub.PageMeta
	CSRF       string
	Message    string
	ShowError  bool
	Posts      []texpub.Post
	Post       texpub.Post
	Categories []texpub.Category
	Selected   map[int64]bool
	Media      []texpub.PostMedium
}

func adminMeta(title string) texpub.PageMeta {
	return texpub.PageMeta{Title: title, OGType: "website"}
}

func AdminLogin(showError bool, csrfToken string) templ.Component {
	return component("admin_login", adminData{Meta: adminMeta("Login"), CSRF: csrfToken, ShowError: showError})
}

func AdminDashboard(posts []texpub.Post, message string, csrfToken string) templ.Component {
	return component("admin_dashboard", adminData{Meta: adminMeta("Admin"), Posts: posts, Message: message, CSRF: csrfToken})
}

func AdminEditor(post texpub.Post, categories []texpub.Category, media []texpub.PostMedium, message string, csrfToken string) templ.Component {
	selected := make(map[int64]bool, len(post.Categories))
	for _, c := range post.Categories {
		selected[c.ID] = true
	}
	return component("admin_editor", adminData{
		Meta:       adminMeta("Edit " + post.Title),
		Post:       post,
		Categories: categories,
		Selected:   selected,
		Media:      media,
		Message:    message,
		CSRF:       csrfToken,
	})
}

func NotFound() templ.Component {
	return component("not_found", adminData{Meta: adminMeta("Not found")})
}

func ServerError() templ.Component {
	return component("server_error", adminData{Meta: adminMeta("Server error")})
}
