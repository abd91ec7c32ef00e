package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrValidation         = errors.New("invalid story request")
	ErrUploadFailed       = errors.New("asset upload failed")
	ErrGeneration         = errors.New("story generation failed")
	ErrMalformedNarrative = errors.New("malformed narrative")
	ErrIllustration       = errors.New("illustration generation failed")
)
