package errs

import (
	"errors"
)

var (
	// ErrInvalidURL indicates that the input is not a supported tweet URL.
	ErrInvalidURL = errors.New("invalid video url")
	// ErrVideoNotFound indicates that the provider knows nothing about the video.
	ErrVideoNotFound = errors.New("video not found")
	// ErrNoLinks indicates that the provider answered without any downloadable link.
	ErrNoLinks = errors.New("no downloadable links")
	// ErrQualityUnavailable indicates that the requested quality is missing.
	ErrQualityUnavailable = errors.New("quality unavailable")
	// ErrProviderFailed indicates a failure of the third-party resolver API.
	ErrProviderFailed = errors.New("provider failed")
	// ErrRateLimited indicates throttling or rate limiting by the remote service.
	ErrRateLimited = errors.New("rate limited")
	// ErrNoFile indicates that an upload request carried no file.
	ErrNoFile = errors.New("no file selected")
	// ErrFileTooLarge indicates that an uploaded file exceeds the size limit.
	ErrFileTooLarge = errors.New("file too large")
	// ErrUnsupportedType indicates that an uploaded file is not an allowed image type.
	ErrUnsupportedType = errors.New("unsupported file type")
	// ErrShortCodeConflict indicates that a generated short code is already taken.
	ErrShortCodeConflict = errors.New("short code conflict")
	// ErrLinkNotFound indicates that a short link is malformed or points nowhere.
	ErrLinkNotFound = errors.New("link not found")
)
