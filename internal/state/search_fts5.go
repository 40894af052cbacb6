//go:build sqlite_fts5

package state

import (
	"database/sql"
	"fmt"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS posts_fts USING fts5(
			id UNINDEXED,
			title,
			slug,
			body,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsReset(tx *sql.Tx) error {
	if _, err := tx.Exec(`DELETE FROM posts_fts`); err != nil {
		return fmt.Errorf("state: clear fts: %w", err)
	}
	return nil
}

func ftsUpsert(tx *sql.Tx, id, title, slug, body string) error {
	_, _ = tx.Exec(`DELETE FROM posts_fts WHERE id = ?`, id)
	_, err := tx.Exec(`INSERT INTO posts_fts (id, title, slug, body) VALUES (?, ?, ?, ?)`,
		id, title, slug, body)
	if err != nil {
		return fmt.Errorf("state: upsert fts: %w", err)
	}
	return nil
}

// Search runs an FTS5 query over the cached posts, best match first.
func (db *DB) Search(query string, limit int) ([]SearchHit, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	rows, err := db.conn.Query(`
		SELECT id, title, slug, snippet(posts_fts, 3, '', '', '...', 24)
		FROM posts_fts
		WHERE posts_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("state: search: %w", err)
	}
	defer rows.Close()

	var out []SearchHit
	for rows.Next() {
		var h SearchHit
		if err := rows.Scan(&h.ID, &h.Title, &h.Slug, &h.Snippet); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
