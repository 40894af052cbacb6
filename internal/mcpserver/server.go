// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes postdesk tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/postdesk/internal/frontmatter"
	"github.com/starford/postdesk/internal/postservice"
)

const formatURI = "postdesk://post-format"

// Server wraps the MCP server with postdesk tools.
type Server struct {
	mcp    *server.MCPServer
	posts  *postservice.Service
	videos Videos
}

// New creates a new MCP server with all postdesk tools registered. videos
// may be nil, in which case the video tools are not offered.
func New(posts *postservice.Service, videos Videos, version string) *Server {
	s := &Server{posts: posts, videos: videos}

	s.mcp = server.NewMCPServer(
		"postdesk",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_posts",
		mcp.WithDescription("List posts on the platform with their id, slug, title and publish state."),
		mcp.WithBoolean("offline", mcp.Description("Return the locally cached list without contacting the platform")),
	), s.listPosts)

	s.mcp.AddTool(mcp.NewTool("search_posts",
		mcp.WithDescription("Search the locally cached posts by title, slug and body. Call list_posts first to refresh the cache."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search terms")),
	), s.searchPosts)

	s.mcp.AddTool(mcp.NewTool("read_post",
		mcp.WithDescription("Read a post as a Markdown document with a title front-matter block."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Post id or slug")),
	), s.readPost)

	s.mcp.AddTool(mcp.NewTool("create_post",
		mcp.WithDescription("Create a new draft post with the given title."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Title of the new post")),
	), s.createPost)

	s.mcp.AddTool(mcp.NewTool("update_post",
		mcp.WithDescription("Replace a post's title and body. Content MUST follow the post format; "+
			"read it first via the get_post_format tool or the "+formatURI+" resource."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Post id or slug")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Full document: front matter with title, then the body")),
	), s.updatePost)

	s.mcp.AddTool(mcp.NewTool("publish_post",
		mcp.WithDescription("Publish a post."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Post id or slug")),
	), s.publishPost)

	s.mcp.AddTool(mcp.NewTool("get_post_format",
		mcp.WithDescription("Returns the post document format. Call this before updating posts."),
	), s.getPostFormat)

	s.mcp.AddTool(mcp.NewTool("list_tags",
		mcp.WithDescription("List tags. Without a query the most popular tags are returned."),
		mcp.WithString("query", mcp.Description("Case-insensitive label filter")),
	), s.listTags)

	s.mcp.AddTool(mcp.NewTool("add_tag",
		mcp.WithDescription("Attach an existing tag to a post."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Post id or slug")),
		mcp.WithString("tag_id", mcp.Required(), mcp.Description("Tag id from list_tags")),
	), s.addTag)

	if videos != nil {
		s.mcp.AddTool(mcp.NewTool("upload_video",
			mcp.WithDescription("Upload a local video file and attach it to a post."),
			mcp.WithString("id", mcp.Required(), mcp.Description("Post id or slug")),
			mcp.WithString("path", mcp.Required(), mcp.Description("Absolute path of the video file")),
		), s.uploadVideo)

		s.mcp.AddTool(mcp.NewTool("video_status",
			mcp.WithDescription("Report the processing status of an uploaded video."),
			mcp.WithString("video_id", mcp.Required(), mcp.Description("Video resource id")),
		), s.videoStatus)
	}

	s.mcp.AddResource(
		mcp.NewResource(formatURI, "Post Format",
			mcp.WithResourceDescription("Document format used to read and update posts."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readPostFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listPosts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var (
		items []postservice.PostListItem
		err   error
	)
	if req.GetBool("offline", false) {
		items, err = s.posts.Cached()
	} else {
		items, err = s.posts.List(ctx)
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(items) == 0 {
		return mcp.NewToolResultText("no posts"), nil
	}
	return jsonResult(items)
}

func (s *Server) readPost(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	p, err := s.posts.Post(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}
	doc, err := frontmatter.Render(p.Fields.Title, p.Fields.Body)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(doc)), nil
}

func (s *Server) createPost(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	p, err := s.posts.Create(ctx, title)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s (%s)", p.ID, p.Fields.Slug)), nil
}

func (s *Server) updatePost(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc := frontmatter.Parse([]byte(content))
	p, err := s.posts.Update(ctx, id, doc.Title(""), doc.Body)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("updated: %s", p.ID)), nil
}

func (s *Server) publishPost(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	p, err := s.posts.Publish(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("published: %s", p.ID)), nil
}

func (s *Server) searchPosts(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	hits, err := s.posts.Search(query, 0)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(hits) == 0 {
		return mcp.NewToolResultText("no matches"), nil
	}
	return jsonResult(hits)
}

func (s *Server) getPostFormat(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(PostFormatContract), nil
}

func (s *Server) listTags(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tags, err := s.posts.Tags(ctx, req.GetString("query", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(tags) == 0 {
		return mcp.NewToolResultText("no tags found"), nil
	}
	lines := make([]string, len(tags))
	for i, t := range tags {
		lines[i] = t.ID + "\t" + t.Fields.Label
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) addTag(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	tagID, err := req.RequireString("tag_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.posts.AddTag(ctx, id, tagID); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("tagged: %s with %s", id, tagID)), nil
}

func (s *Server) readPostFormatResource(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     PostFormatContract,
		},
	}, nil
}
