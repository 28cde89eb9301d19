package reel

import "fmt"

// Action names routed over the bridge.
const (
	ActionProcessReel = "processReel"
)

const (
	MessageProcessed  = "Video processed and downloading."
	MessageUnknownErr = "Unknown error"

	// Filename is the default name given to the saved video.
	Filename = "watermarked_video.mp4"
	// MimeType of the processed artifact.
	MimeType = "video/mp4"
)

// Request asks the background context to process the reel at URL.
type Request struct {
	Action string `json:"action"`
	URL    string `json:"url"`
}

// NewRequest builds a processReel request for the given page address.
func NewRequest(url string) Request {
	return Request{Action: ActionProcessReel, URL: url}
}

// Result is the single reply produced for every Request.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Succeeded returns the result reported once a download has been enqueued.
func Succeeded() Result {
	return Result{Success: true, Message: MessageProcessed}
}

// ProcessingFailed wraps a failure that happened before any download was attempted.
func ProcessingFailed(err error) Result {
	return Result{Success: false, Message: fmt.Sprintf("Error processing video: %s", detail(err))}
}

// DownloadFailed wraps a failure reported by the download facility.
// A nil err means the facility gave no reason.
func DownloadFailed(err error) Result {
	return Result{Success: false, Message: fmt.Sprintf("Download failed: %s", detail(err))}
}

func detail(err error) string {
	if err == nil || err.Error() == "" {
		return MessageUnknownErr
	}
	return err.Error()
}
