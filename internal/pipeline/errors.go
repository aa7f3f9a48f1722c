package pipeline

import "errors"

var (
	ErrInvalidName         = errors.New("please enter a valid name for your model")
	ErrNotAuthenticated    = errors.New("you must be logged in to save models")
	ErrNoAssets            = errors.New("no model files to save")
	ErrMetadataWriteFailed = errors.New("failed to save model")
)
