package ui

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/starford/postdesk/internal/models"
	"github.com/starford/postdesk/internal/postservice"
	"github.com/starford/postdesk/internal/session"
	"github.com/starford/postdesk/internal/state"
	"github.com/starford/postdesk/internal/video"
)

func newTestPrinter() (*Printer, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	return NewPrinter(&out, &errOut), &out, &errOut
}

func TestPostsTable(t *testing.T) {
	p, out, _ := newTestPrinter()
	p.Posts([]postservice.PostListItem{
		{ID: "p1", Title: "Launch", Slug: "launch", Published: true},
		{ID: "p2", Title: "Draft idea", Slug: "draft-idea"},
	})
	text := out.String()
	for _, want := range []string{"TITLE", "Launch", "draft-idea", PublishedMark, DraftMark} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
	if got := strings.Count(text, "\n"); got != 3 {
		t.Errorf("lines = %d, want header plus two rows:\n%s", got, text)
	}
}

func TestEmptyLists(t *testing.T) {
	p, out, _ := newTestPrinter()
	p.Posts(nil)
	p.Tags(nil)
	p.Sessions(nil)
	for _, want := range []string{"no posts", "no tags found", "no open sessions"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("missing %q in %q", want, out.String())
		}
	}
}

func TestTagsTable(t *testing.T) {
	p, out, _ := newTestPrinter()
	one := 1
	p.Tags([]models.Tag{
		{ID: "t1", Fields: models.TagFields{Label: "Go", PopularityOrder: &one}},
		{ID: "t2", Fields: models.TagFields{Label: "Rust"}},
	})
	if !strings.Contains(out.String(), "Rust") || !strings.Contains(out.String(), "-") {
		t.Errorf("output = %s", out.String())
	}
}

func TestSessionsTable(t *testing.T) {
	p, out, _ := newTestPrinter()
	p.Sessions([]session.Info{{Path: "/a.mdx", Title: "A", State: "editing"}})
	if !strings.Contains(out.String(), "/a.mdx") {
		t.Errorf("output = %s", out.String())
	}
}

func TestPostDetail(t *testing.T) {
	p, out, _ := newTestPrinter()
	p.Post(&postservice.PostDetail{
		PostListItem: postservice.PostListItem{ID: "p1", Title: "T", Slug: "t"},
		Body:         "body",
	})
	if !strings.HasSuffix(out.String(), "body\n") || !strings.Contains(out.String(), "draft") {
		t.Errorf("output = %q", out.String())
	}
}

func TestVideoStatusRouting(t *testing.T) {
	p, out, errOut := newTestPrinter()
	p.VideoStatus(video.Status{View: video.ViewProcessing, Message: video.MsgStoring})
	p.VideoStatus(video.Status{View: video.ViewError, Message: video.MsgErrored})
	if !strings.Contains(out.String(), video.MsgStoring) {
		t.Errorf("out = %q", out.String())
	}
	if !strings.Contains(errOut.String(), video.MsgErrored) {
		t.Errorf("err = %q", errOut.String())
	}
}

func TestProgress(t *testing.T) {
	p, _, errOut := newTestPrinter()
	update, done := p.Progress("clip.mp4")
	update(50, 100)
	update(50, 100)
	update(100, 100)
	done()
	text := errOut.String()
	if strings.Count(text, "\r") != 2 || !strings.Contains(text, "100%") || !strings.HasSuffix(text, "\n") {
		t.Errorf("progress = %q", text)
	}
}

func TestNotifier(t *testing.T) {
	p, out, errOut := newTestPrinter()
	n := p.Notifier()
	n.Info("saved")
	n.Error("save failed", errors.New("boom"))
	if out.Len() != 0 {
		t.Errorf("notifications must not go to stdout: %q", out.String())
	}
	if !strings.Contains(errOut.String(), "saved") || !strings.Contains(errOut.String(), "save failed: boom") {
		t.Errorf("err = %q", errOut.String())
	}
}

func TestSearchHits(t *testing.T) {
	p, out, errOut := newTestPrinter()
	p.SearchHits([]state.SearchHit{{ID: "1", Title: "Launch", Slug: "launch", Snippet: "...the launch build..."}})
	if !strings.Contains(out.String(), "the launch build") {
		t.Errorf("output = %q", out.String())
	}
	p.SearchHits(nil)
	if !strings.Contains(out.String()+errOut.String(), "no matches") {
		t.Error("empty result not reported")
	}
}

func TestNoticeGoesToDiagnostics(t *testing.T) {
	p, out, errOut := newTestPrinter()
	p.Notice("enter code %s", "ABCD")
	if out.Len() != 0 || !strings.Contains(errOut.String(), "ABCD") {
		t.Errorf("out = %q, errOut = %q", out.String(), errOut.String())
	}
}

func TestPickPost(t *testing.T) {
	items := []postservice.PostListItem{
		{ID: "p1", Title: "Launch day", Slug: "launch"},
		{ID: "p2", Title: "Roadmap", Slug: "roadmap", Published: true},
		{ID: "p3", Title: "Road trip", Slug: "road-trip"},
	}
	tests := []struct {
		input  string
		wantID string
		fails  bool
	}{
		{"2\n", "p2", false},
		{"launch\n", "p1", false},
		{"TRIP", "p3", false},
		{"road\n", "", true},
		{"9\n", "", true},
		{"\n", "", true},
	}
	for _, tt := range tests {
		p, out, errOut := newTestPrinter()
		got, err := p.PickPost(strings.NewReader(tt.input), items)
		if tt.fails {
			if err == nil {
				t.Errorf("PickPost(%q) = %+v, want error", tt.input, got)
			}
			continue
		}
		if err != nil || got.ID != tt.wantID {
			t.Errorf("PickPost(%q) = %+v, %v; want %s", tt.input, got, err, tt.wantID)
		}
		if out.Len() != 0 || !strings.Contains(errOut.String(), "Roadmap") {
			t.Errorf("choices should go to diagnostics; out=%q", out.String())
		}
	}

	p, _, _ := newTestPrinter()
	if _, err := p.PickPost(strings.NewReader("1\n"), nil); !errors.Is(err, ErrNoChoice) {
		t.Errorf("empty list err = %v", err)
	}
}
