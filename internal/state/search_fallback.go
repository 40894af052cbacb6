//go:build !sqlite_fts5

package state

import (
	"database/sql"
	"strings"
)

// Bodies are stored compressed, so without FTS5 the match runs in Go over
// the decoded cache.
func initFTS(_ *sql.DB) error { return nil }

func ftsReset(_ *sql.Tx) error { return nil }

func ftsUpsert(_ *sql.Tx, _, _, _, _ string) error { return nil }

// Search matches query case-insensitively against title, slug and body of
// the cached posts, in list order.
func (db *DB) Search(query string, limit int) ([]SearchHit, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	q := strings.ToLower(strings.TrimSpace(query))
	posts, err := db.Posts()
	if err != nil {
		return nil, err
	}
	var out []SearchHit
	for _, p := range posts {
		if len(out) == limit {
			break
		}
		f := p.Fields
		if !strings.Contains(strings.ToLower(f.Title), q) &&
			!strings.Contains(strings.ToLower(f.Slug), q) &&
			!strings.Contains(strings.ToLower(f.Body), q) {
			continue
		}
		out = append(out, SearchHit{
			ID:      p.ID,
			Title:   f.Title,
			Slug:    f.Slug,
			Snippet: snippet(f.Body, query, 96),
		})
	}
	return out, nil
}
