package feed

import (
	"errors"
	"fmt"
	"net"
	neturl "net/url"

	"github.com/mmcdole/gofeed"
)

// FetchError wraps a network-level failure reaching a source.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError wraps a document that did not have the expected feed or HTML
// shape, including feed URLs that redirect to plain HTML pages.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// wrapFeedErr sorts a gofeed failure into the fetch/parse taxonomy.
func wrapFeedErr(rawURL string, err error) error {
	if errors.Is(err, gofeed.ErrFeedTypeNotDetected) {
		return &ParseError{URL: rawURL, Err: err}
	}
	var httpErr gofeed.HTTPError
	if errors.As(err, &httpErr) {
		return &FetchError{URL: rawURL, Err: err}
	}
	var urlErr *neturl.Error
	if errors.As(err, &urlErr) {
		return &FetchError{URL: rawURL, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &FetchError{URL: rawURL, Err: err}
	}
	return &ParseError{URL: rawURL, Err: err}
}
