package lifecycle

import "errors"

// Request errors. The record is left untouched when one is returned.
var (
	ErrNotFound          = errors.New("download not found")
	ErrNotReady          = errors.New("file not downloaded yet")
	ErrArtifactMissing   = errors.New("download is finished but file not found")
	ErrNotDownloaded     = errors.New("media file is not downloaded yet")
	ErrCannotRetry       = errors.New("download cannot be retried")
	ErrInvalidTransition = errors.New("invalid status transition")
)
