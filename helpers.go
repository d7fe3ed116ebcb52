package texpub

import (
	"encoding/json"
	"net/url"
	"path"
	"strconv"
	"strings"
)

// BuildURL joins a base URL with path segments, ensuring a trailing slash.
func BuildURL(base string, pathSegments ...string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	u.Path = path.Join(u.Path, path.Join(pathSegments...))
	if len(pathSegments) > 0 && !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u.String()
}

// FilterEmpty removes empty/whitespace-only strings from a slice.
func FilterEmpty(vals []string) []string {
	var out []string
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ParseIDs parses form values into ids, skipping anything that is not a
// positive integer.
func ParseIDs(vals []string) []int64 {
	var ids []int64
	for _, v := range FilterEmpty(vals) {
		id, err := strconv.ParseInt(v, 10, 64)
		if err == nil && id > 0 {
			ids = append(ids, id)
		}
	}
	return ids
}

// FilterRelatedPosts finds posts that share at least one category with current.
func FilterRelatedPosts(current Post, posts []Post) []Post {
	set := make(map[int64]struct{}, len(current.Categories))
	for _, c := range current.Categories {
		set[c.ID] = struct{}{}
	}
	var related []Post
	for _, p := range posts {
		if p.ID == current.ID {
			continue
		}
		for _, c := range p.Categories {
			if _, ok := set[c.ID]; ok {
				related = append(related, p)
				break
			}
		}
	}
	return related
}

// CategoryTitles joins category titles with ", ".
func CategoryTitles(cats []Category) string {
	titles := make([]string, len(cats))
	for i, c := range cats {
		titles[i] = c.Title
	}
	return strings.Join(titles, ", ")
}

// WebsiteJsonLD returns a JSON-LD string for a WebSite schema using SiteConfig.
func WebsiteJsonLD(cfg SiteConfig) string {
	data := map[string]interface{}{
		"@context":    "https://schema.org",
		"@type":       "WebSite",
		"name":        cfg.Name,
		"url":         BuildURL(cfg.URL),
		"description": cfg.Description,
	}
	if cfg.Author != "" {
		data["author"] = map[string]string{
			"@type": "Person",
			"name":  cfg.Author,
		}
	}
	b, err := json.Marshal(data)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// ArticleJsonLD returns a JSON-LD string for a ScholarlyArticle schema.
func ArticleJsonLD(post Post, cfg SiteConfig) string {
	postURL := BuildURL(cfg.URL, "posts", post.Slug)
	data := map[string]interface{}{
		"@context":      "https://schema.org",
		"@type":         "ScholarlyArticle",
		"headline":      post.Title,
		"description":   post.Abstract,
		"datePublished": post.CreatedAt.Format("2006-01-02"),
		"url":           postURL,
		"mainEntityOfPage": map[string]string{
			"@type": "WebPage",
			"@id":   postURL,
		},
	}
	if cfg.Author != "" {
		data["author"] = map[string]string{
			"@type": "Person",
			"name":  cfg.Author,
		}
	}
	if cfg.Name != "" {
		data["publisher"] = map[string]string{
			"@type": "Organization",
			"name":  cfg.Name,
		}
	}
	if len(post.Categories) > 0 {
		data["keywords"] = CategoryTitles(post.Categories)
	}
	b, err := json.Marshal(data)
	if err != nil {
		return "{}"
	}
	return string(b)
}
