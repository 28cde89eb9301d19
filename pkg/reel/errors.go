package reel

import (
	"errors"
	"fmt"
)

// ErrChannelUnavailable is returned when a request cannot be handed to the
// background context. A reply will never arrive for such a request.
var ErrChannelUnavailable = errors.New("could not establish connection: receiving end does not exist")

// NetworkError means the service request could not be sent or its response
// could not be received.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return e.Err.Error() }
func (e *NetworkError) Unwrap() error { return e.Err }

// HTTPStatusError means the service answered with a non-2xx status.
type HTTPStatusError struct {
	Status int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("HTTP error! status: %d", e.Status)
}

// BodyReadError means the response stream could not be fully consumed.
type BodyReadError struct {
	Err error
}

func (e *BodyReadError) Error() string { return e.Err.Error() }
func (e *BodyReadError) Unwrap() error { return e.Err }

// DownloadEnqueueError means the download facility refused or failed to
// start the save. Err may be nil when no reason was given.
type DownloadEnqueueError struct {
	Err error
}

func (e *DownloadEnqueueError) Error() string {
	if e.Err == nil {
		return MessageUnknownErr
	}
	return e.Err.Error()
}

func (e *DownloadEnqueueError) Unwrap() error { return e.Err }
