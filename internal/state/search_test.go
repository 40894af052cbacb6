package state

import (
	"strings"
	"testing"

	"github.com/starford/postdesk/internal/models"
)

func TestSearchCachedPosts(t *testing.T) {
	db := testDB(t)
	if err := db.ReplacePosts([]models.Post{
		{ID: "1", Fields: models.PostFields{Title: "Release notes", Slug: "release", Body: "We shipped the launch build today."}},
		{ID: "2", Fields: models.PostFields{Title: "Draft", Slug: "draft", Body: "nothing here"}},
	}); err != nil {
		t.Fatal(err)
	}

	hits, err := db.Search("launch", 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "1" {
		t.Fatalf("hits = %+v", hits)
	}
	if !strings.Contains(strings.ToLower(hits[0].Snippet), "launch") {
		t.Errorf("snippet = %q", hits[0].Snippet)
	}

	// Upserted posts are searchable without a full reload.
	if err := db.UpsertPost(models.Post{ID: "3", Fields: models.PostFields{Title: "Launch recap", Slug: "recap"}}); err != nil {
		t.Fatal(err)
	}
	hits, err = db.Search("recap", 10)
	if err != nil || len(hits) != 1 || hits[0].Slug != "recap" {
		t.Errorf("after upsert hits = %+v, err = %v", hits, err)
	}

	// A full replace drops posts that are gone.
	if err := db.ReplacePosts(nil); err != nil {
		t.Fatal(err)
	}
	if hits, _ := db.Search("launch", 0); len(hits) != 0 {
		t.Errorf("stale hits = %+v", hits)
	}
}

func TestSnippet(t *testing.T) {
	body := strings.Repeat("lorem ", 40) + "needle " + strings.Repeat("ipsum ", 40)
	got := snippet(body, "NEEDLE", 32)
	if !strings.Contains(got, "needle") || !strings.HasPrefix(got, "...") || !strings.HasSuffix(got, "...") {
		t.Errorf("snippet = %q", got)
	}
	if got := snippet("short", "x", 32); got != "short" {
		t.Errorf("short snippet = %q", got)
	}
}
