package extract

import "errors"

var (
	// ErrInvalidURL indicates the submitted URL could not be normalized
	// into a fetchable http(s) URL.
	ErrInvalidURL = errors.New("invalid URL")

	// ErrFetchFailed indicates the page could not be downloaded.
	ErrFetchFailed = errors.New("fetch failed")

	// ErrNoContent indicates the page was downloaded but yielded no
	// usable content.
	ErrNoContent = errors.New("no extractable content")
)
