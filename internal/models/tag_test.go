package models

import (
	"fmt"
	"testing"
)

func tag(id, label string, order int) Tag {
	t := Tag{ID: id, Fields: TagFields{Label: label}}
	if order >= 0 {
		t.Fields.PopularityOrder = &order
	}
	return t
}

func ids(tags []Tag) string {
	s := ""
	for i, t := range tags {
		if i > 0 {
			s += ","
		}
		s += t.ID
	}
	return s
}

func TestFilterTags_Popular(t *testing.T) {
	tags := []Tag{
		tag("none", "No rank", -1),
		tag("zero", "Zero rank", 0),
		tag("third", "Go", 3),
		tag("first", "TypeScript", 1),
		tag("second", "React", 2),
	}
	if got := ids(FilterTags(tags, "")); got != "first,second,third,none,zero" {
		t.Errorf("order = %s", got)
	}
}

func TestFilterTags_PopularLimit(t *testing.T) {
	var tags []Tag
	for i := 20; i > 0; i-- {
		tags = append(tags, tag(fmt.Sprint(i), "t", i))
	}
	got := FilterTags(tags, "  ")
	if len(got) != PopularTagLimit {
		t.Fatalf("len = %d", len(got))
	}
	if got[0].ID != "1" || got[9].ID != "10" {
		t.Errorf("got = %s", ids(got))
	}
	if tags[0].ID != "20" {
		t.Error("input was reordered")
	}
}

func TestFilterTags_Query(t *testing.T) {
	tags := []Tag{
		tag("a", "TypeScript", 1),
		tag("b", "JavaScript", 2),
		tag("c", "Go", 3),
	}
	if got := ids(FilterTags(tags, "script")); got != "a,b" {
		t.Errorf("got = %s", got)
	}
	if got := FilterTags(tags, "rust"); len(got) != 0 {
		t.Errorf("got = %s", ids(got))
	}
}
