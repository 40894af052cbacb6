package models

import (
	"cmp"
	"math"
	"slices"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// PopularTagLimit caps the unfiltered tag list.
const PopularTagLimit = 10

// Tag is a platform tag that can be attached to posts.
type Tag struct {
	ID     string    `json:"id"`
	Fields TagFields `json:"fields"`
}

// TagFields holds the display attributes of a tag.
type TagFields struct {
	Label           string `json:"label"`
	Name            string `json:"name,omitempty"`
	PopularityOrder *int   `json:"popularity_order,omitempty"`
}

// Validate validates the tag shape.
func (t Tag) Validate() error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.ID, validation.Required),
	)
}

// popularity returns the sort rank; missing or zero ranks sort last.
func (t Tag) popularity() int {
	if t.Fields.PopularityOrder == nil || *t.Fields.PopularityOrder == 0 {
		return math.MaxInt
	}
	return *t.Fields.PopularityOrder
}

// FilterTags selects tags for display. An empty query yields the most
// popular tags by popularity_order, at most PopularTagLimit. Otherwise it
// yields every tag whose label contains query, ignoring case, in input
// order.
func FilterTags(tags []Tag, query string) []Tag {
	query = strings.TrimSpace(query)
	if query == "" {
		out := slices.Clone(tags)
		slices.SortStableFunc(out, func(a, b Tag) int {
			return cmp.Compare(a.popularity(), b.popularity())
		})
		if len(out) > PopularTagLimit {
			out = out[:PopularTagLimit]
		}
		return out
	}
	q := strings.ToLower(query)
	var out []Tag
	for _, t := range tags {
		if strings.Contains(strings.ToLower(t.Fields.Label), q) {
			out = append(out, t)
		}
	}
	return out
}
