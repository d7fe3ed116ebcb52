package publish

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Slugify converts text to a lowercase, hyphen separated identifier.
// Accented letters are folded to their ASCII base and any other non-ASCII
// character is dropped. Punctuation is removed rather than replaced, so
// "Euler's Theorem" becomes "eulers-theorem"; underscores and hyphens are
// kept, runs of hyphens and spaces collapse to one hyphen, and leading or
// trailing hyphens and underscores are trimmed.
func Slugify(s string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn))), s)
	if err == nil {
		s = folded
	}
	s = strings.ToLower(s)
	var b strings.Builder
	sep := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			if sep {
				b.WriteByte('-')
				sep = false
			}
			b.WriteRune(r)
		case r == '-', r < unicode.MaxASCII && unicode.IsSpace(r):
			sep = true
		}
	}
	if sep {
		b.WriteByte('-')
	}
	return strings.Trim(b.String(), "-_")
}

// SlugIndex answers the identifier questions asked during assignment.
type SlugIndex interface {
	SlugExists(ctx context.Context, slug string) (bool, error)
	CountSlugsContaining(ctx context.Context, fragment string) (int, error)
}

// AssignIdentifier derives the identifier for a new post titled title.
//
// When the naive slug is taken, the suffix is one more than the number of
// stored slugs containing it. Deleted or concurrently created posts can make
// that suffix collide; the caller's uniqueness constraint reports it.
func AssignIdentifier(ctx context.Context, index SlugIndex, title string) (string, error) {
	naive := Slugify(title)
	if naive == "" {
		return "", ErrEmptyIdentifier
	}
	taken, err := index.SlugExists(ctx, naive)
	if err != nil {
		return "", fmt.Errorf("check slug %q: %w", naive, err)
	}
	if !taken {
		return naive, nil
	}
	hits, err := index.CountSlugsContaining(ctx, naive)
	if err != nil {
		return "", fmt.Errorf("count slugs like %q: %w", naive, err)
	}
	return Slugify(title + " " + strconv.Itoa(hits+1)), nil
}
