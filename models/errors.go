package models

import (
	"errors"
	"fmt"
)

// ErrUnsupportedFileType is returned when an upload is neither PDF nor plain text.
var ErrUnsupportedFileType = errors.New("unsupported file type: only PDF and TXT files are supported")

// ErrDocumentNotFound is returned when a document id has no record.
var ErrDocumentNotFound = errors.New("document not found")

// GatewayError wraps a failure from the external model service. The
// underlying cause is carried in the message; callers must not assume
// any partial result exists when one is returned.
type GatewayError struct {
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("error analyzing text: %v", e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}
