package mcpserver

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/postdesk/internal/events"
	"github.com/starford/postdesk/internal/gateway"
	"github.com/starford/postdesk/internal/models"
	"github.com/starford/postdesk/internal/postservice"
	"github.com/starford/postdesk/internal/testutil"
	"github.com/starford/postdesk/internal/video"
)

type staticToken string

func (s staticToken) AccessToken(context.Context) (string, error) { return string(s), nil }

type videos struct {
	*video.Service
	*video.Tracker
}

func testServer(t *testing.T) (*Server, *testutil.Platform) {
	t.Helper()
	p := testutil.NewPlatform(t, "tok")
	bus := events.New(nil)
	gw := gateway.New(p.URL(), gateway.WithBus(bus))
	tokens := staticToken("tok")
	posts := postservice.NewService(gw, tokens, testutil.TestState(t), nil, bus, nil)
	posts.Subscribe(bus)
	v := videos{
		Service: video.NewService(gw, tokens, video.NewSignedURLUploader(gw, tokens, nil), nil, nil),
		Tracker: video.NewTracker(video.TrackerConfig{}, gw, tokens, nil, nil),
	}
	return New(posts, v, "test"), p
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	var (
		result *mcp.CallToolResult
		err    error
	)
	switch name {
	case "list_posts":
		result, err = srv.listPosts(ctx, req)
	case "search_posts":
		result, err = srv.searchPosts(ctx, req)
	case "read_post":
		result, err = srv.readPost(ctx, req)
	case "create_post":
		result, err = srv.createPost(ctx, req)
	case "update_post":
		result, err = srv.updatePost(ctx, req)
	case "publish_post":
		result, err = srv.publishPost(ctx, req)
	case "get_post_format":
		result, err = srv.getPostFormat(ctx, req)
	case "list_tags":
		result, err = srv.listTags(ctx, req)
	case "add_tag":
		result, err = srv.addTag(ctx, req)
	case "upload_video":
		result, err = srv.uploadVideo(ctx, req)
	case "video_status":
		result, err = srv.videoStatus(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}
	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestCreateUpdateRead(t *testing.T) {
	srv, p := testServer(t)

	r := callTool(t, srv, "create_post", map[string]any{"title": "Hello"})
	if r.IsError || !strings.HasPrefix(resultText(r), "created: ") {
		t.Fatalf("create = %q", resultText(r))
	}
	id := p.Posts()[0].ID

	r = callTool(t, srv, "update_post", map[string]any{
		"id":      id,
		"content": "---\ntitle: Renamed\n---\nNew body\n",
	})
	if r.IsError {
		t.Fatalf("update = %q", resultText(r))
	}

	r = callTool(t, srv, "read_post", map[string]any{"id": id})
	if got := resultText(r); got != "---\ntitle: Renamed\n---\nNew body\n" {
		t.Errorf("read = %q", got)
	}
}

func TestUpdateWithoutTitleKeepsTitle(t *testing.T) {
	srv, p := testServer(t)
	p.AddPost(models.Post{ID: "x", Fields: models.PostFields{Title: "Keep", Slug: "x"}})

	r := callTool(t, srv, "update_post", map[string]any{"id": "x", "content": "just a body"})
	if r.IsError {
		t.Fatalf("update = %q", resultText(r))
	}
	got := p.Posts()[0]
	if got.Fields.Title != "Keep" || got.Fields.Body != "just a body" {
		t.Errorf("post = %+v", got)
	}
}

func TestListAndPublish(t *testing.T) {
	srv, p := testServer(t)

	r := callTool(t, srv, "list_posts", map[string]any{})
	if resultText(r) != "no posts" {
		t.Errorf("empty list = %q", resultText(r))
	}

	p.AddPost(models.Post{ID: "x", Fields: models.PostFields{Title: "X", Slug: "x"}})
	r = callTool(t, srv, "list_posts", map[string]any{})
	var items []postservice.PostListItem
	if err := json.Unmarshal([]byte(resultText(r)), &items); err != nil || len(items) != 1 {
		t.Fatalf("list = %q", resultText(r))
	}

	r = callTool(t, srv, "publish_post", map[string]any{"id": "x"})
	if r.IsError || !p.Posts()[0].Published() {
		t.Errorf("publish = %q", resultText(r))
	}

	r = callTool(t, srv, "list_posts", map[string]any{"offline": true})
	items = nil
	_ = json.Unmarshal([]byte(resultText(r)), &items)
	if len(items) != 1 || !items[0].Published {
		t.Errorf("offline list = %q", resultText(r))
	}
}

func TestReadPostMissing(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "read_post", map[string]any{"id": "nope"})
	if !r.IsError {
		t.Error("expected error for missing post")
	}
	r = callTool(t, srv, "read_post", map[string]any{})
	if !r.IsError {
		t.Error("expected error for missing id")
	}
}

func TestPostFormat(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "get_post_format", nil)
	if !strings.Contains(resultText(r), "title:") {
		t.Errorf("format = %q", resultText(r))
	}
}

func TestTagTools(t *testing.T) {
	srv, p := testServer(t)
	p.AddPost(models.Post{ID: "x", Fields: models.PostFields{Title: "X", Slug: "x"}})
	p.SetTags([]models.Tag{{ID: "t1", Fields: models.TagFields{Label: "Go"}}})

	r := callTool(t, srv, "list_tags", map[string]any{"query": "go"})
	if resultText(r) != "t1\tGo" {
		t.Errorf("tags = %q", resultText(r))
	}
	r = callTool(t, srv, "add_tag", map[string]any{"id": "x", "tag_id": "t1"})
	if r.IsError || len(p.PostTags("x")) != 1 {
		t.Errorf("add_tag = %q", resultText(r))
	}
}

func TestVideoTools(t *testing.T) {
	srv, p := testServer(t)
	p.AddPost(models.Post{ID: "x", Fields: models.PostFields{Title: "X", Slug: "x"}})
	clip := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(clip, []byte("video"), 0o600); err != nil {
		t.Fatal(err)
	}

	r := callTool(t, srv, "upload_video", map[string]any{"id": "x", "path": "clip.mp4"})
	if !r.IsError {
		t.Error("relative path should be rejected")
	}

	r = callTool(t, srv, "upload_video", map[string]any{"id": "x", "path": clip})
	var up videoUpload
	if err := json.Unmarshal([]byte(resultText(r)), &up); err != nil || up.VideoID == "" {
		t.Fatalf("upload = %q", resultText(r))
	}

	r = callTool(t, srv, "video_status", map[string]any{"video_id": up.VideoID})
	var rep videoReport
	if err := json.Unmarshal([]byte(resultText(r)), &rep); err != nil {
		t.Fatalf("status = %q", resultText(r))
	}
	if rep.State != models.VideoStateNew || rep.Status.Message != video.MsgStoring {
		t.Errorf("report = %+v", rep)
	}
}

func TestSearchPosts(t *testing.T) {
	srv, p := testServer(t)
	p.AddPost(models.Post{ID: "x", Fields: models.PostFields{Title: "Launch notes", Slug: "launch"}})

	r := callTool(t, srv, "search_posts", map[string]any{"query": "launch"})
	if resultText(r) != "no matches" {
		t.Errorf("before list = %q", resultText(r))
	}
	callTool(t, srv, "list_posts", map[string]any{})
	r = callTool(t, srv, "search_posts", map[string]any{"query": "launch"})
	if !strings.Contains(resultText(r), `"slug": "launch"`) {
		t.Errorf("search = %q", resultText(r))
	}
}
