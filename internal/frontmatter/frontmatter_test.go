package frontmatter

import (
	"testing"
)

func TestRoundTrip(t *testing.T) {
	data, err := Render("T", "B")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	doc := Parse(data)
	if got := doc.Title(""); got != "T" {
		t.Errorf("title = %q, want %q", got, "T")
	}
	if doc.Body != "B" {
		t.Errorf("body = %q, want %q", doc.Body, "B")
	}
}

func TestRoundTrip_Awkward(t *testing.T) {
	cases := []struct{ title, body string }{
		{"Colon: in title", "\n\nleading blank lines\n"},
		{"---", "---\nbody starting with a delimiter\n"},
		{"Quotes \"and\" 'apostrophes'", ""},
		{"Ünïcödé", "# Heading\n\ntext"},
	}
	for _, c := range cases {
		data, err := Render(c.title, c.body)
		if err != nil {
			t.Fatalf("Render(%q): %v", c.title, err)
		}
		doc := Parse(data)
		if got := doc.Title(""); got != c.title {
			t.Errorf("title = %q, want %q", got, c.title)
		}
		if doc.Body != c.body {
			t.Errorf("body = %q, want %q", doc.Body, c.body)
		}
	}
}

func TestParse_NoFrontmatter(t *testing.T) {
	doc := Parse([]byte("# Just a heading\nSome text.\n"))
	if doc.Meta != nil {
		t.Errorf("expected nil meta, got %+v", doc.Meta)
	}
	if doc.Title("prior") != "prior" {
		t.Errorf("title should fall back")
	}
	if doc.Body != "# Just a heading\nSome text.\n" {
		t.Errorf("body = %q", doc.Body)
	}
}

func TestParse_MissingTitleFallsBack(t *testing.T) {
	doc := Parse([]byte("---\ntags: [a]\n---\nBody\n"))
	if doc.Title("Prior Title") != "Prior Title" {
		t.Errorf("title = %q", doc.Title("Prior Title"))
	}
	if doc.Body != "Body\n" {
		t.Errorf("body = %q", doc.Body)
	}
	if doc.Extra["tags"] == nil {
		t.Errorf("extra keys lost: %v", doc.Extra)
	}
}

func TestParse_EmptyBlock(t *testing.T) {
	doc := Parse([]byte("---\n---\nBody"))
	if doc.Meta == nil {
		t.Fatal("expected empty meta")
	}
	if doc.Body != "Body" {
		t.Errorf("body = %q", doc.Body)
	}
}

func TestParse_InvalidYAMLFallback(t *testing.T) {
	input := "---\n: invalid: yaml: {{{\n---\nBody\n"
	doc := Parse([]byte(input))
	if doc.Meta != nil {
		t.Errorf("expected nil meta on invalid YAML")
	}
	if doc.Body != input {
		t.Errorf("body = %q, want whole input", doc.Body)
	}
}

func TestParse_UnclosedBlock(t *testing.T) {
	input := "---\ntitle: Open\nno closing delimiter"
	doc := Parse([]byte(input))
	if doc.Meta != nil || doc.Body != input {
		t.Errorf("doc = %+v", doc)
	}
}

func TestParse_CRLF(t *testing.T) {
	doc := Parse([]byte("---\r\ntitle: Windows\r\n---\r\nBody\r\n"))
	if doc.Title("") != "Windows" {
		t.Errorf("title = %q", doc.Title(""))
	}
	if doc.Body != "Body\r\n" {
		t.Errorf("body = %q", doc.Body)
	}
}
