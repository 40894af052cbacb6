// Package video uploads video assets for posts and follows their
// processing on the platform.
package video

import "github.com/starford/postdesk/internal/models"

// View is what a status display should show.
type View string

// Views.
const (
	ViewLoading    View = "loading"
	ViewUpload     View = "upload"
	ViewProcessing View = "processing"
	ViewReady      View = "ready"
	ViewError      View = "error"
)

// Status is a view plus its message.
type Status struct {
	View    View   `json:"view"`
	Message string `json:"message"`
}

// Terminal reports whether following should stop.
func (s Status) Terminal() bool {
	return s.View == ViewReady || s.View == ViewError
}

// MP4 is the readiness of the downloadable rendition.
type MP4 int

// MP4 states.
const (
	MP4Unknown MP4 = iota
	MP4Checking
	MP4Ready
	MP4Pending
)

// Input is everything known about a video at one instant.
type Input struct {
	// Loading is set until the first fetch completes.
	Loading bool
	// FetchFailed is set when fetching keeps failing.
	FetchFailed bool
	Resource    *models.VideoResource
	// NewResourceID is the id of a video just uploaded and not yet visible.
	NewResourceID string
	MP4           MP4
}

// Messages shown while a video moves through processing.
const (
	MsgLoading     = "Loading..."
	MsgLoadError   = "error loading video"
	MsgProcessing  = "video is processing"
	MsgStoring     = "storing video files"
	MsgConverting  = "converting video formats for distribution"
	MsgPreparing   = "video is preparing"
	MsgFinalEncode = "final encoding"
	MsgErrored     = "video is errored. sorry for the hassle. try again and send me a message."
)

// Reduce derives the next status from prev and in. States without a
// display of their own (deleted) keep prev.
func Reduce(prev Status, in Input) Status {
	if in.Loading {
		return Status{View: ViewLoading, Message: MsgLoading}
	}

	v := in.Resource
	if v == nil {
		switch {
		case in.FetchFailed:
			return Status{View: ViewError, Message: MsgLoadError}
		case in.NewResourceID != "":
			return Status{View: ViewProcessing, Message: MsgProcessing}
		default:
			return Status{View: ViewUpload}
		}
	}

	switch v.State {
	case models.VideoStateReady:
		switch in.MP4 {
		case MP4Ready:
			return Status{View: ViewReady}
		case MP4Checking:
			return Status{View: ViewLoading, Message: MsgLoading}
		default:
			return Status{View: ViewProcessing, Message: MsgFinalEncode}
		}
	case models.VideoStateNew:
		return Status{View: ViewProcessing, Message: MsgStoring}
	case models.VideoStateProcessing:
		return Status{View: ViewProcessing, Message: MsgConverting}
	case models.VideoStatePreparing:
		return Status{View: ViewProcessing, Message: MsgPreparing}
	case models.VideoStateErrored:
		return Status{View: ViewError, Message: MsgErrored}
	default:
		return prev
	}
}
