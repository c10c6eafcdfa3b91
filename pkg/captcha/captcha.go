// Package captcha turns captcha images into login codes.
//
// A Recognizer talks to one OCR backend. The Resolver wraps a Recognizer with
// the bot's failure policy: one recognition per image, a short pause on
// failure and upper-cased output on success.
package captcha

import (
	"context"
	"errors"
	"fmt"
)

// ErrResolution is returned by Resolve when the image could not be turned
// into a code. The caller should fetch a new image and try again.
var ErrResolution = errors.New("captcha resolution failed")

// Recognition is a recognizer's reading of one image.
type Recognition struct {
	// Text is the recognized code as returned by the backend.
	Text string

	// ID identifies the recognition on the backend, if it has one.
	ID string
}

// Recognizer reads the code in a captcha image.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte) (Recognition, error)
}

// ServiceError is a failure reported by the OCR service itself, as opposed
// to a transport failure.
type ServiceError struct {
	// Code is the service's error number, or the HTTP status for non-200
	// replies.
	Code int

	Message string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("ocr service error %d: %s", e.Code, e.Message)
}
