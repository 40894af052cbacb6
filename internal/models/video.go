package models

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Video processing states reported by the platform.
const (
	VideoStateNew        = "new"
	VideoStateProcessing = "processing"
	VideoStatePreparing  = "preparing"
	VideoStateReady      = "ready"
	VideoStateErrored    = "errored"
	VideoStateDeleted    = "deleted"
)

// VideoResource is the processing record of an uploaded video.
type VideoResource struct {
	ID            string   `json:"id"`
	Duration      *float64 `json:"duration"`
	MuxAssetID    *string  `json:"muxAssetId"`
	MuxPlaybackID *string  `json:"muxPlaybackId"`
	State         string   `json:"state"`
	Transcript    *string  `json:"transcript"`
}

// Validate validates the resource shape.
func (v VideoResource) Validate() error {
	return validation.ValidateStruct(&v,
		validation.Field(&v.ID, validation.Required),
		validation.Field(&v.State, validation.Required, validation.In(
			VideoStateNew, VideoStateProcessing, VideoStatePreparing,
			VideoStateReady, VideoStateErrored, VideoStateDeleted,
		)),
	)
}

// PlaybackID returns the playback id or "".
func (v VideoResource) PlaybackID() string {
	if v.MuxPlaybackID == nil {
		return ""
	}
	return *v.MuxPlaybackID
}

// SignedURL is the response of POST /api/uploads/signed-url.
type SignedURL struct {
	SignedURL  string `json:"signedUrl"`
	PublicURL  string `json:"publicUrl"`
	Filename   string `json:"filename"`
	ObjectName string `json:"objectName"`
}

// Validate validates the signed url response.
func (s SignedURL) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.SignedURL, validation.Required),
		validation.Field(&s.PublicURL, validation.Required),
	)
}

// UploadRegistration is the body of POST /api/uploads/new.
type UploadRegistration struct {
	File     UploadedFile   `json:"file"`
	Metadata UploadMetadata `json:"metadata"`
}

// UploadedFile identifies the stored object.
type UploadedFile struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

// UploadMetadata links the upload to its parent resource.
type UploadMetadata struct {
	ParentResourceID string `json:"parentResourceId"`
}

// UploadResult is the answer to an upload registration.
type UploadResult struct {
	ID string `json:"id"`
}
