package stream

import (
	"context"
	"errors"
	"fmt"
)

// ErrAborted is returned when the caller cancelled the stream. It is not a
// failure and should never be shown to the user as one.
var ErrAborted = errors.New("stream aborted")

// DefaultErrorMessage is used when an error event carries no message.
const DefaultErrorMessage = "stream failed"

// StreamError reports a transport failure, a non-success response, an
// explicit error event or a malformed payload.
type StreamError struct {
	Message string
	Status  int // HTTP status, when the failure came from the response status
	Err     error
}

func (e *StreamError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = DefaultErrorMessage
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

// IsAborted reports whether err represents a user cancellation.
func IsAborted(err error) bool {
	return errors.Is(err, ErrAborted) || errors.Is(err, context.Canceled)
}
