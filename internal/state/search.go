package state

import (
	"strings"
	"unicode/utf8"
)

// DefaultSearchLimit caps search results when no limit is given.
const DefaultSearchLimit = 20

// SearchHit is one cached post matching a search.
type SearchHit struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Slug    string `json:"slug"`
	Snippet string `json:"snippet"`
}

// snippet returns up to width runes of body around the first
// case-insensitive occurrence of query.
func snippet(body, query string, width int) string {
	body = strings.Join(strings.Fields(body), " ")
	idx := strings.Index(strings.ToLower(body), strings.ToLower(query))
	if idx < 0 {
		idx = 0
	}
	start := idx
	for n := 0; start > 0 && n < width/4; n++ {
		_, size := utf8.DecodeLastRuneInString(body[:start])
		start -= size
	}
	end := start
	for n := 0; end < len(body) && n < width; n++ {
		_, size := utf8.DecodeRuneInString(body[end:])
		end += size
	}
	out := body[start:end]
	if start > 0 {
		out = "..." + out
	}
	if end < len(body) {
		out += "..."
	}
	return out
}
