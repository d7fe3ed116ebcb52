package texpub

import (
	"context"
	"sync"
	"time"
)

// PostCache is an in-memory cache of published posts and categories with TTL.
type PostCache struct {
	mu         sync.RWMutex
	posts      []Post
	categories []Category
	fetched    time.Time
	ttl        time.Duration
	store      *Store
}

// NewPostCache creates a PostCache backed by the given Store.
func NewPostCache(s *Store, ttl time.Duration) *PostCache {
	return &PostCache{store: s, ttl: ttl}
}

func (c *PostCache) valid() bool {
	return c.posts != nil && time.Since(c.fetched) < c.ttl
}

// Invalidate clears the cache so the next read triggers a fresh load.
func (c *PostCache) Invalidate() {
	c.mu.Lock()
	c.posts = nil
	c.categories = nil
	c.mu.Unlock()
}

func (c *PostCache) load(ctx context.Context) error {
	if c.valid() {
		return nil
	}
	posts, err := c.store.ListPosts(ctx, "")
	if err != nil {
		return err
	}
	cats, err := c.store.ListCategories(ctx)
	if err != nil {
		return err
	}
	if posts == nil {
		posts = []Post{}
	}
	c.posts = posts
	c.categories = cats
	c.fetched = time.Now()
	return nil
}

// ensureLoaded tries a read lock first and only takes the write lock when a
// reload is needed.
func (c *PostCache) ensureLoaded(ctx context.Context) ([]Post, []Category, error) {
	c.mu.RLock()
	if c.valid() {
		posts, cats := c.posts, c.categories
		c.mu.RUnlock()
		return posts, cats, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.load(ctx); err != nil {
		return nil, nil, err
	}
	return c.posts, c.categories, nil
}

// ListPosts returns published posts, optionally filtered by category slug.
func (c *PostCache) ListPosts(ctx context.Context, category string) ([]Post, error) {
	posts, _, err := c.ensureLoaded(ctx)
	if err != nil {
		return nil, err
	}
	if category == "" {
		return posts, nil
	}
	var filtered []Post
	for _, p := range posts {
		for _, cat := range p.Categories {
			if cat.Slug == category {
				filtered = append(filtered, p)
				break
			}
		}
	}
	return filtered, nil
}

// ListCategories returns all categories.
func (c *PostCache) ListCategories(ctx context.Context) ([]Category, error) {
	_, cats, err := c.ensureLoaded(ctx)
	return cats, err
}

// GetPost returns a single published post by slug from the cache.
func (c *PostCache) GetPost(ctx context.Context, slug string) (Post, error) {
	posts, _, err := c.ensureLoaded(ctx)
	if err != nil {
		return Post{}, err
	}
	for _, p := range posts {
		if p.Slug == slug {
			return p, nil
		}
	}
	return Post{}, ErrNotFound
}
