package mcpserver

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/postdesk/internal/models"
	"github.com/starford/postdesk/internal/video"
)

// Videos uploads videos and reports their processing status.
type Videos interface {
	Upload(ctx context.Context, postID, path string, onProgress func(read, total int64)) (string, error)
	Snapshot(ctx context.Context, id string) (video.Status, *models.VideoResource, error)
}

type videoUpload struct {
	PostID  string `json:"postId"`
	VideoID string `json:"videoId,omitempty"`
	File    string `json:"file"`
}

type videoReport struct {
	VideoID    string       `json:"videoId"`
	Status     video.Status `json:"status"`
	State      string       `json:"state,omitempty"`
	PlaybackID string       `json:"playbackId,omitempty"`
}

func (s *Server) uploadVideo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !filepath.IsAbs(path) {
		return mcp.NewToolResultError(fmt.Sprintf("path must be absolute: %s", path)), nil
	}
	p, err := s.posts.Post(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}
	videoID, err := s.videos.Upload(ctx, p.ID, path, nil)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(videoUpload{PostID: p.ID, VideoID: videoID, File: filepath.Base(path)})
}

func (s *Server) videoStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("video_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	status, res, err := s.videos.Snapshot(ctx, id)
	if err != nil && res == nil && status.View == video.ViewError {
		return mcp.NewToolResultError(err.Error()), nil
	}
	report := videoReport{VideoID: id, Status: status}
	if res != nil {
		report.State = res.State
		report.PlaybackID = res.PlaybackID()
	}
	return jsonResult(report)
}
