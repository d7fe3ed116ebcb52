package publish

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Hello World":           "hello-world",
		"  Hello,   World!  ":   "hello-world",
		"Hello World 2":         "hello-world-2",
		"Café Society":          "cafe-society",
		"Gödel's Theorem":       "godels-theorem",
		"Euler's Theorem":       "eulers-theorem",
		"C.S. Lewis":            "cs-lewis",
		"snake_case title":      "snake_case-title",
		"_private - notes_":     "private-notes",
		"C++ & Go":              "c-go",
		"---":                   "",
		"Lemma 3.1 (revisited)": "lemma-31-revisited",
		"日本語":                   "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Slugify(in), "Slugify(%q)", in)
	}
}

type staticIndex struct {
	slugs []string
	err   error
}

func (s staticIndex) SlugExists(_ context.Context, slug string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	for _, v := range s.slugs {
		if v == slug {
			return true, nil
		}
	}
	return false, nil
}

func (s staticIndex) CountSlugsContaining(_ context.Context, fragment string) (int, error) {
	n := 0
	for _, v := range s.slugs {
		if strings.Contains(v, fragment) {
			n++
		}
	}
	return n, nil
}

func TestAssignIdentifier(t *testing.T) {
	ctx := context.Background()

	got, err := AssignIdentifier(ctx, staticIndex{}, "Hello World")
	require.NoError(t, err)
	assert.Equal(t, "hello-world", got)

	got, err = AssignIdentifier(ctx, staticIndex{slugs: []string{"hello-world"}}, "Hello World")
	require.NoError(t, err)
	assert.Equal(t, "hello-world-2", got)

	got, err = AssignIdentifier(ctx, staticIndex{slugs: []string{"hello-world", "hello-world-2", "say-hello-world"}}, "Hello World")
	require.NoError(t, err)
	assert.Equal(t, "hello-world-4", got)
}

func TestAssignIdentifierCountCanCollide(t *testing.T) {
	// hello-world-2 was deleted, so two matching slugs yield a suffix of 3
	// which is still taken.
	index := staticIndex{slugs: []string{"hello-world", "hello-world-3"}}

	got, err := AssignIdentifier(context.Background(), index, "Hello World")
	require.NoError(t, err)
	assert.Equal(t, "hello-world-3", got)
	exists, _ := index.SlugExists(context.Background(), got)
	assert.True(t, exists, "collision is left to the uniqueness constraint")
}

func TestAssignIdentifierErrors(t *testing.T) {
	_, err := AssignIdentifier(context.Background(), staticIndex{}, "!!!")
	require.ErrorIs(t, err, ErrEmptyIdentifier)

	boom := errors.New("db down")
	_, err = AssignIdentifier(context.Background(), staticIndex{err: boom}, "Hello")
	require.ErrorIs(t, err, boom)
}
