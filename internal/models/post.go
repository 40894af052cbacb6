// Package models defines the domain types for postdesk.
package models

import (
	"encoding/json"
	"strconv"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Known post states. The platform treats state as an open set.
const (
	PostStateDraft     = "draft"
	PostStatePublished = "published"
)

// PostFields holds the editable content of a post.
type PostFields struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Slug  string `json:"slug"`
	State string `json:"state,omitempty"`
}

// Post is a remotely stored content resource.
type Post struct {
	ID     string     `json:"id"`
	Fields PostFields `json:"fields"`
}

// Published reports whether the post carries the published marker.
func (p Post) Published() bool {
	return p.Fields.State == PostStatePublished
}

// PostUpdate is the payload sent to PUT /api/posts.
type PostUpdate struct {
	ID     string       `json:"id"`
	Fields UpdateFields `json:"fields"`
}

// UpdateFields are the fields an update may carry.
type UpdateFields struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Slug  string `json:"slug,omitempty"`
	State string `json:"state,omitempty"`
}

// wirePost mirrors Post with pointer fields so presence can be validated.
type wirePost struct {
	ID     *string `json:"id"`
	Fields *struct {
		Title *string `json:"title"`
		Body  *string `json:"body"`
		Slug  *string `json:"slug"`
		State *string `json:"state"`
	} `json:"fields"`
}

func (w *wirePost) Validate() error {
	if err := validation.ValidateStruct(w,
		validation.Field(&w.ID, validation.NotNil),
		validation.Field(&w.Fields, validation.NotNil),
	); err != nil {
		return err
	}
	f := w.Fields
	return validation.ValidateStruct(f,
		validation.Field(&f.Title, validation.NotNil),
		validation.Field(&f.Body, validation.NotNil),
		validation.Field(&f.Slug, validation.NotNil),
	)
}

func (w *wirePost) post() Post {
	p := Post{
		ID: *w.ID,
		Fields: PostFields{
			Title: *w.Fields.Title,
			Body:  *w.Fields.Body,
			Slug:  *w.Fields.Slug,
		},
	}
	if w.Fields.State != nil {
		p.Fields.State = *w.Fields.State
	}
	return p
}

// DecodePost parses and validates a single post document.
func DecodePost(data []byte) (Post, error) {
	var w wirePost
	if err := json.Unmarshal(data, &w); err != nil {
		return Post{}, err
	}
	if err := w.Validate(); err != nil {
		return Post{}, err
	}
	return w.post(), nil
}

// DecodePosts parses and validates an array of posts.
func DecodePosts(data []byte) ([]Post, error) {
	var ws []wirePost
	if err := json.Unmarshal(data, &ws); err != nil {
		return nil, err
	}
	out := make([]Post, 0, len(ws))
	for i := range ws {
		if err := ws[i].Validate(); err != nil {
			return nil, validation.Errors{strconv.Itoa(i): err}
		}
		out = append(out, ws[i].post())
	}
	return out, nil
}

// TokenSet is the credential bundle persisted in global state.
type TokenSet struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
}

// Valid reports whether the access token is present and not expired at now.
func (t TokenSet) Valid(now time.Time) bool {
	if t.AccessToken == "" {
		return false
	}
	return t.ExpiresAt.IsZero() || t.ExpiresAt.After(now)
}

// UserInfo is the last-known user profile returned by the userinfo endpoint.
type UserInfo map[string]any
