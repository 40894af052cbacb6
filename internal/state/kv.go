package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/starford/postdesk/internal/apperr"
	"github.com/starford/postdesk/internal/models"
)

// Well-known keys of the global state.
const (
	KeyTokenSet = "tokenSet"
	KeyUserInfo = "userInfo"
	KeyClientID = "clientId"
)

// Get decodes the JSON value stored under key into v. A missing key
// returns an error wrapping apperr.ErrNotFound.
func (db *DB) Get(key string, v any) error {
	var raw string
	err := db.conn.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("state: get %s: %w", key, apperr.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("state: get %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("state: decode %s: %w", key, err)
	}
	return nil
}

// Put stores v as JSON under key, replacing any previous value.
func (db *DB) Put(key string, v any) error {
	return db.PutAll(map[string]any{key: v})
}

// PutAll stores every entry in a single transaction, so readers observe
// either all old or all new values.
func (db *DB) PutAll(entries map[string]any) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("state: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	for key, v := range entries {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("state: encode %s: %w", key, err)
		}
		if _, err := tx.Exec(`
			INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET
				value      = excluded.value,
				updated_at = excluded.updated_at
		`, key, string(raw), now); err != nil {
			return fmt.Errorf("state: put %s: %w", key, err)
		}
	}
	return tx.Commit()
}

// Delete removes keys. Missing keys are ignored.
func (db *DB) Delete(keys ...string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("state: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck
	for _, key := range keys {
		if _, err := tx.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
			return fmt.Errorf("state: delete %s: %w", key, err)
		}
	}
	return tx.Commit()
}

// TokenSet returns the stored credentials. ok is false when none are stored.
func (db *DB) TokenSet() (ts models.TokenSet, ok bool, err error) {
	err = db.Get(KeyTokenSet, &ts)
	if errors.Is(err, apperr.ErrNotFound) {
		return models.TokenSet{}, false, nil
	}
	if err != nil {
		return models.TokenSet{}, false, err
	}
	return ts, ts.AccessToken != "", nil
}

// SaveTokenSet atomically replaces the stored credentials.
func (db *DB) SaveTokenSet(ts models.TokenSet) error {
	return db.Put(KeyTokenSet, ts)
}

// UserInfo returns the last-known profile, or nil.
func (db *DB) UserInfo() (models.UserInfo, error) {
	var ui models.UserInfo
	err := db.Get(KeyUserInfo, &ui)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	return ui, err
}

// SaveLogin stores credentials and profile together.
func (db *DB) SaveLogin(ts models.TokenSet, ui models.UserInfo) error {
	return db.PutAll(map[string]any{KeyTokenSet: ts, KeyUserInfo: ui})
}

// ClearCredentials removes the token set and the profile.
func (db *DB) ClearCredentials() error {
	return db.Delete(KeyTokenSet, KeyUserInfo)
}
