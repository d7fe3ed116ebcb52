package texpub

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/eringen/texpub/publish"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = sql.ErrNoRows

// Store wraps a SQLite database holding posts, their rendered pages and
// media, and the site's inert content records.
type Store struct {
	db *sqlx.DB
}

var _ publish.Repository = (*Store)(nil)

// NewStore opens (or creates) the SQLite database at path, ensures the data
// directory exists, and creates the schema.
func NewStore(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	// Pragmas go in the DSN so every pooled connection gets them; foreign
	// keys are needed for the cascading deletes.
	dsn := path +
		"?_pragma=foreign_keys(1)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=synchronous(NORMAL)"
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS posts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    title TEXT NOT NULL,
    slug TEXT UNIQUE,
    source TEXT NOT NULL,
    abstract TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS categories (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    title TEXT NOT NULL,
    slug TEXT NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS post_categories (
    post_id INTEGER NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
    category_id INTEGER NOT NULL REFERENCES categories(id) ON DELETE CASCADE,
    PRIMARY KEY (post_id, category_id)
);
CREATE TABLE IF NOT EXISTS rendered_pages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    post_id INTEGER NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    head TEXT NOT NULL,
    body TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    UNIQUE (post_id, name)
);
CREATE TABLE IF NOT EXISTS post_media (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    post_id INTEGER NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
    filename TEXT NOT NULL,
    path TEXT NOT NULL,
    url TEXT NOT NULL,
    created_at TEXT NOT NULL,
    UNIQUE (post_id, path)
);
CREATE TABLE IF NOT EXISTS see_also (
    post_id INTEGER NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
    related_id INTEGER NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
    PRIMARY KEY (post_id, related_id)
);
CREATE TABLE IF NOT EXISTS title_elements (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    text TEXT NOT NULL,
    size INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS social_links (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    url TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS about_sections (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    title TEXT NOT NULL,
    text TEXT NOT NULL
);
`)
	return err
}

// timeLayout has fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

type postRow struct {
	ID        int64          `db:"id"`
	Title     string         `db:"title"`
	Slug      sql.NullString `db:"slug"`
	Source    string         `db:"source"`
	Abstract  string         `db:"abstract"`
	CreatedAt string         `db:"created_at"`
}

func (r postRow) post() Post {
	return Post{
		ID:        r.ID,
		Title:     r.Title,
		Slug:      r.Slug.String,
		Source:    r.Source,
		Abstract:  r.Abstract,
		CreatedAt: parseTime(r.CreatedAt),
	}
}

var publishedOnly = sq.Expr("p.slug IS NOT NULL AND EXISTS (SELECT 1 FROM rendered_pages rp WHERE rp.post_id = p.id)")

var postColumns = []string{"p.id", "p.title", "p.slug", "p.source", "p.abstract", "p.created_at"}

// SavePost inserts p when p.ID is zero and updates title, source and abstract
// otherwise. The slug is owned by the publish pipeline and never written here.
func (s *Store) SavePost(ctx context.Context, p *Post) error {
	if p.Source == "" {
		p.Source = DefaultSource
	}
	if p.ID == 0 {
		if p.CreatedAt.IsZero() {
			p.CreatedAt = time.Now().UTC()
		}
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO posts (title, source, abstract, created_at) VALUES (?, ?, ?, ?)`,
			p.Title, p.Source, p.Abstract, p.CreatedAt.UTC().Format(timeLayout))
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		p.ID = id
		return nil
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE posts SET title = ?, source = ?, abstract = ? WHERE id = ?`,
		p.Title, p.Source, p.Abstract, p.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetPost returns a post by id with its categories.
func (s *Store) GetPost(ctx context.Context, id int64) (Post, error) {
	return s.getPost(ctx, sq.Eq{"p.id": id})
}

// GetPostBySlug returns a post by slug with its categories.
func (s *Store) GetPostBySlug(ctx context.Context, slug string) (Post, error) {
	return s.getPost(ctx, sq.Eq{"p.slug": slug})
}

func (s *Store) getPost(ctx context.Context, where sq.Sqlizer) (Post, error) {
	query, args, err := sq.Select(postColumns...).From("posts p").Where(where).ToSql()
	if err != nil {
		return Post{}, err
	}
	var row postRow
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		return Post{}, err
	}
	post := row.post()
	cats, err := s.postCategories(ctx, post.ID)
	if err != nil {
		return Post{}, err
	}
	post.Categories = cats
	return post, nil
}

// ListPosts returns published posts, newest first. A post counts as
// published once a run has stored at least one page for it. If category is
// non-empty, only posts in the category with that slug are returned.
func (s *Store) ListPosts(ctx context.Context, category string) ([]Post, error) {
	b := sq.Select(postColumns...).From("posts p").
		Where(publishedOnly).
		OrderBy("p.created_at DESC", "p.id DESC")
	if category != "" {
		b = b.Join("post_categories pc ON pc.post_id = p.id").
			Join("categories c ON c.id = pc.category_id").
			Where(sq.Eq{"c.slug": category})
	}
	return s.selectPosts(ctx, b)
}

// ListAllPosts returns every post, including ones never published.
func (s *Store) ListAllPosts(ctx context.Context) ([]Post, error) {
	return s.selectPosts(ctx, sq.Select(postColumns...).From("posts p").OrderBy("p.created_at DESC", "p.id DESC"))
}

func (s *Store) selectPosts(ctx context.Context, b sq.SelectBuilder) ([]Post, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	var rows []postRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	posts := make([]Post, 0, len(rows))
	for _, r := range rows {
		post := r.post()
		cats, err := s.postCategories(ctx, post.ID)
		if err != nil {
			return nil, err
		}
		post.Categories = cats
		posts = append(posts, post)
	}
	return posts, nil
}

// DeletePost removes a post; its pages, media records and relations go with it.
func (s *Store) DeletePost(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id)
	return err
}

// SlugExists reports whether a post holds exactly slug.
func (s *Store) SlugExists(ctx context.Context, slug string) (bool, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM posts WHERE slug = ?`, slug); err != nil {
		return false, err
	}
	return n > 0, nil
}

// CountSlugsContaining counts posts whose slug contains fragment.
func (s *Store) CountSlugsContaining(ctx context.Context, fragment string) (int, error) {
	query, args, err := sq.Select("COUNT(*)").From("posts").
		Where(sq.Expr("instr(slug, ?) > 0", fragment)).ToSql()
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.db.GetContext(ctx, &n, query, args...); err != nil {
		return 0, err
	}
	return n, nil
}

// AssignSlug sets the slug of post postID.
func (s *Store) AssignSlug(ctx context.Context, postID int64, slug string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE posts SET slug = ? WHERE id = ?`, slug, postID)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", publish.ErrIdentifierConflict, slug)
	}
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SavePublication records the media of a publish run and upserts its pages
// by (post, name) in one transaction. Existing media rows are kept as is.
func (s *Store) SavePublication(ctx context.Context, pub publish.Publication) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()
	now := time.Now().UTC().Format(timeLayout)
	for _, m := range pub.Media {
		if _, err = tx.ExecContext(ctx, `
INSERT INTO post_media (post_id, filename, path, url, created_at) VALUES (?, ?, ?, ?, ?)
ON CONFLICT (post_id, path) DO NOTHING`,
			pub.PostID, m.Filename, m.Path, m.URL, now); err != nil {
			return fmt.Errorf("record medium %s: %w", m.Path, err)
		}
	}
	for _, p := range pub.Pages {
		if _, err = tx.ExecContext(ctx, `
INSERT INTO rendered_pages (post_id, name, head, body, updated_at) VALUES (?, ?, ?, ?, ?)
ON CONFLICT (post_id, name) DO UPDATE SET head = excluded.head, body = excluded.body, updated_at = excluded.updated_at`,
			pub.PostID, p.Name, p.Head, p.Body, now); err != nil {
			return fmt.Errorf("upsert page %s: %w", p.Name, err)
		}
	}
	return tx.Commit()
}

type pageRow struct {
	ID        int64  `db:"id"`
	PostID    int64  `db:"post_id"`
	Name      string `db:"name"`
	Head      string `db:"head"`
	Body      string `db:"body"`
	UpdatedAt string `db:"updated_at"`
}

func (r pageRow) page() RenderedPage {
	return RenderedPage{ID: r.ID, PostID: r.PostID, Name: r.Name, Head: r.Head, Body: r.Body, UpdatedAt: parseTime(r.UpdatedAt)}
}

// ListRenderedPages returns the pages of a post ordered by name.
func (s *Store) ListRenderedPages(ctx context.Context, postID int64) ([]RenderedPage, error) {
	var rows []pageRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT id, post_id, name, head, body, updated_at FROM rendered_pages WHERE post_id = ? ORDER BY name`, postID); err != nil {
		return nil, err
	}
	pages := make([]RenderedPage, 0, len(rows))
	for _, r := range rows {
		pages = append(pages, r.page())
	}
	return pages, nil
}

// GetRenderedPage returns the page name of post slug.
func (s *Store) GetRenderedPage(ctx context.Context, slug, name string) (RenderedPage, error) {
	var row pageRow
	err := s.db.GetContext(ctx, &row, `
SELECT rp.id, rp.post_id, rp.name, rp.head, rp.body, rp.updated_at
FROM rendered_pages rp JOIN posts p ON p.id = rp.post_id
WHERE p.slug = ? AND rp.name = ?`, slug, name)
	if err != nil {
		return RenderedPage{}, err
	}
	return row.page(), nil
}

type mediumRow struct {
	ID        int64  `db:"id"`
	PostID    int64  `db:"post_id"`
	Filename  string `db:"filename"`
	Path      string `db:"path"`
	URL       string `db:"url"`
	CreatedAt string `db:"created_at"`
}

// ListMedia returns the media records of a post.
func (s *Store) ListMedia(ctx context.Context, postID int64) ([]PostMedium, error) {
	var rows []mediumRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT id, post_id, filename, path, url, created_at FROM post_media WHERE post_id = ? ORDER BY path`, postID); err != nil {
		return nil, err
	}
	media := make([]PostMedium, 0, len(rows))
	for _, r := range rows {
		media = append(media, PostMedium{
			ID: r.ID, PostID: r.PostID, Filename: r.Filename, Path: r.Path, URL: r.URL,
			CreatedAt: parseTime(r.CreatedAt),
		})
	}
	return media, nil
}

// SaveCategory validates and inserts or updates a category. The slug
// defaults to the slugified title.
func (s *Store) SaveCategory(ctx context.Context, c *Category) error {
	if c.Slug == "" {
		c.Slug = publish.Slugify(c.Title)
	}
	if err := c.Validate(); err != nil {
		return wrapValidationError(err, "category validation failed")
	}
	if c.ID == 0 {
		res, err := s.db.ExecContext(ctx, `INSERT INTO categories (title, slug) VALUES (?, ?)`, c.Title, c.Slug)
		if err != nil {
			return err
		}
		c.ID, err = res.LastInsertId()
		return err
	}
	_, err := s.db.ExecContext(ctx, `UPDATE categories SET title = ?, slug = ? WHERE id = ?`, c.Title, c.Slug, c.ID)
	return err
}

// ListCategories returns all categories ordered by title.
func (s *Store) ListCategories(ctx context.Context) ([]Category, error) {
	var cats []Category
	err := s.db.SelectContext(ctx, &cats, `SELECT id AS "id", title AS "title", slug AS "slug" FROM categories ORDER BY title`)
	return cats, err
}

func (s *Store) postCategories(ctx context.Context, postID int64) ([]Category, error) {
	var cats []Category
	err := s.db.SelectContext(ctx, &cats, `
SELECT c.id AS "id", c.title AS "title", c.slug AS "slug"
FROM categories c JOIN post_categories pc ON pc.category_id = c.id
WHERE pc.post_id = ? ORDER BY c.title`, postID)
	return cats, err
}

// SetPostCategories replaces the categories of a post.
func (s *Store) SetPostCategories(ctx context.Context, postID int64, categoryIDs []int64) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()
	if _, err = tx.ExecContext(ctx, `DELETE FROM post_categories WHERE post_id = ?`, postID); err != nil {
		return err
	}
	for _, id := range categoryIDs {
		if _, err = tx.ExecContext(ctx, `INSERT OR IGNORE INTO post_categories (post_id, category_id) VALUES (?, ?)`, postID, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SetSeeAlso replaces the related posts of a post. A post is never related
// to itself.
func (s *Store) SetSeeAlso(ctx context.Context, postID int64, relatedIDs []int64) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()
	if _, err = tx.ExecContext(ctx, `DELETE FROM see_also WHERE post_id = ?`, postID); err != nil {
		return err
	}
	for _, id := range relatedIDs {
		if id == postID {
			continue
		}
		if _, err = tx.ExecContext(ctx, `INSERT OR IGNORE INTO see_also (post_id, related_id) VALUES (?, ?)`, postID, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListSeeAlso returns the published posts related to postID.
func (s *Store) ListSeeAlso(ctx context.Context, postID int64) ([]Post, error) {
	b := sq.Select(postColumns...).From("posts p").
		Join("see_also sa ON sa.related_id = p.id").
		Where(sq.Eq{"sa.post_id": postID}).
		Where(publishedOnly).
		OrderBy("p.created_at DESC")
	return s.selectPosts(ctx, b)
}

// SaveTitleElement inserts a banner line.
func (s *Store) SaveTitleElement(ctx context.Context, e *TitleElement) error {
	res, err := s.db.ExecContext(ctx, `INSERT INTO title_elements (text, size) VALUES (?, ?)`, e.Text, e.Size)
	if err != nil {
		return err
	}
	e.ID, err = res.LastInsertId()
	return err
}

func (s *Store) ListTitleElements(ctx context.Context) ([]TitleElement, error) {
	var out []TitleElement
	err := s.db.SelectContext(ctx, &out, `SELECT id AS "id", text AS "text", size AS "size" FROM title_elements ORDER BY id`)
	return out, err
}

func (s *Store) SaveSocialLink(ctx context.Context, l *SocialLink) error {
	res, err := s.db.ExecContext(ctx, `INSERT INTO social_links (name, url) VALUES (?, ?)`, l.Name, l.URL)
	if err != nil {
		return err
	}
	l.ID, err = res.LastInsertId()
	return err
}

func (s *Store) ListSocialLinks(ctx context.Context) ([]SocialLink, error) {
	var out []SocialLink
	err := s.db.SelectContext(ctx, &out, `SELECT id AS "id", name AS "name", url AS "url" FROM social_links ORDER BY id`)
	return out, err
}

func (s *Store) SaveAboutSection(ctx context.Context, a *AboutSection) error {
	res, err := s.db.ExecContext(ctx, `INSERT INTO about_sections (title, text) VALUES (?, ?)`, a.Title, a.Text)
	if err != nil {
		return err
	}
	a.ID, err = res.LastInsertId()
	return err
}

func (s *Store) ListAboutSections(ctx context.Context) ([]AboutSection, error) {
	var out []AboutSection
	err := s.db.SelectContext(ctx, &out, `SELECT id AS "id", title AS "title", text AS "text" FROM about_sections ORDER BY id`)
	return out, err
}

// IsNotFound reports whether err means the record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
