package generation

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrInvalidInputCount  = errors.New("upload exactly 1 or 4 images")
	ErrTransport          = errors.New("generation request failed")
	ErrApplicationFailure = errors.New("generation failed")
	ErrMissingAssetURLs   = fmt.Errorf("%w: model generated but file urls missing", ErrApplicationFailure)
	ErrBusy               = errors.New("a generation is already in progress")
	ErrNotFound           = errors.New("generation not found")
)

// Kind classifies why an attempt failed.
type Kind string

const (
	KindNone               Kind = ""
	KindInvalidInputCount  Kind = "invalid_input_count"
	KindTransport          Kind = "transport_error"
	KindApplicationFailure Kind = "application_failure"
	KindMissingAssetURLs   Kind = "missing_asset_urls"
	KindCancelled          Kind = "cancelled"
)

func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrInvalidInputCount):
		return KindInvalidInputCount
	case errors.Is(err, ErrMissingAssetURLs):
		return KindMissingAssetURLs
	case errors.Is(err, ErrApplicationFailure):
		return KindApplicationFailure
	case errors.Is(err, context.Canceled):
		return KindCancelled
	default:
		return KindTransport
	}
}

// applicationError keeps the server's own message readable while still
// matching ErrApplicationFailure.
type applicationError struct {
	message string
}

func (e *applicationError) Error() string { return e.message }

func (e *applicationError) Unwrap() error { return ErrApplicationFailure }
