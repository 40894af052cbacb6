package state

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/starford/postdesk/internal/apperr"
	"github.com/starford/postdesk/internal/models"
)

// codec compresses cached bodies. EncodeAll and DecodeAll are safe for
// concurrent use.
type codec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func newCodec() (*codec, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("state: zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("state: zstd decoder: %w", err)
	}
	return &codec{enc: enc, dec: dec}, nil
}

func (c *codec) close() {
	c.enc.Close()
	c.dec.Close()
}

// CachedPost is a post row with its cache timestamp.
type CachedPost struct {
	models.Post
	CachedAt time.Time
}

// ReplacePosts replaces the whole cache with posts, keeping their order.
func (db *DB) ReplacePosts(posts []models.Post) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("state: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM posts`); err != nil {
		return fmt.Errorf("state: clear posts: %w", err)
	}
	if err := ftsReset(tx); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`
		INSERT INTO posts (id, title, slug, state, body, position, cached_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("state: prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i, p := range posts {
		if _, err := stmt.Exec(p.ID, p.Fields.Title, p.Fields.Slug, p.Fields.State,
			db.codec.enc.EncodeAll([]byte(p.Fields.Body), nil), i, now); err != nil {
			return fmt.Errorf("state: insert post %s: %w", p.ID, err)
		}
		if err := ftsUpsert(tx, p.ID, p.Fields.Title, p.Fields.Slug, p.Fields.Body); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// UpsertPost inserts or refreshes one cached post. New posts go first.
func (db *DB) UpsertPost(p models.Post) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("state: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.Exec(`
		INSERT INTO posts (id, title, slug, state, body, position, cached_at)
		VALUES (?, ?, ?, ?, ?, (SELECT COALESCE(MIN(position), 0) - 1 FROM posts), ?)
		ON CONFLICT(id) DO UPDATE SET
			title     = excluded.title,
			slug      = excluded.slug,
			state     = excluded.state,
			body      = excluded.body,
			cached_at = excluded.cached_at
	`, p.ID, p.Fields.Title, p.Fields.Slug, p.Fields.State,
		db.codec.enc.EncodeAll([]byte(p.Fields.Body), nil), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("state: upsert post %s: %w", p.ID, err)
	}
	if err := ftsUpsert(tx, p.ID, p.Fields.Title, p.Fields.Slug, p.Fields.Body); err != nil {
		return err
	}
	return tx.Commit()
}

// Posts returns the cached posts in list order.
func (db *DB) Posts() ([]CachedPost, error) {
	rows, err := db.conn.Query(`
		SELECT id, title, slug, state, body, cached_at
		FROM posts ORDER BY position, id`)
	if err != nil {
		return nil, fmt.Errorf("state: list posts: %w", err)
	}
	defer rows.Close()

	var out []CachedPost
	for rows.Next() {
		cp, err := db.scanPost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

// Post returns one cached post by id or slug.
func (db *DB) Post(idOrSlug string) (CachedPost, error) {
	row := db.conn.QueryRow(`
		SELECT id, title, slug, state, body, cached_at
		FROM posts WHERE id = ? OR slug = ?
		ORDER BY id = ? DESC LIMIT 1`, idOrSlug, idOrSlug, idOrSlug)
	cp, err := db.scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return CachedPost{}, fmt.Errorf("state: post %s: %w", idOrSlug, apperr.ErrNotFound)
	}
	return cp, err
}

type scanner interface {
	Scan(dest ...any) error
}

func (db *DB) scanPost(s scanner) (CachedPost, error) {
	var (
		cp   CachedPost
		body []byte
	)
	if err := s.Scan(&cp.ID, &cp.Fields.Title, &cp.Fields.Slug, &cp.Fields.State, &body, &cp.CachedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CachedPost{}, err
		}
		return CachedPost{}, fmt.Errorf("state: scan post: %w", err)
	}
	if len(body) > 0 {
		raw, err := db.codec.dec.DecodeAll(body, nil)
		if err != nil {
			return CachedPost{}, fmt.Errorf("state: decompress post %s: %w", cp.ID, err)
		}
		cp.Fields.Body = string(raw)
	}
	return cp, nil
}
