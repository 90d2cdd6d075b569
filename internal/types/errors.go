package types

import "errors"

var (
	// ErrInvalidURL indicates the input could not be parsed as an absolute
	// http(s) URL.
	ErrInvalidURL = errors.New("invalid url")

	// ErrCredentialUnavailable indicates the credential blob for a platform
	// exists but could not be read. Callers degrade to anonymous access.
	ErrCredentialUnavailable = errors.New("credentials unavailable")

	// ErrBackendTimeout indicates a backend invocation exceeded its
	// wall-clock timeout and was killed.
	ErrBackendTimeout = errors.New("backend timeout")

	// ErrBufferOverflow indicates a backend produced more stdout than the
	// adapter is willing to buffer.
	ErrBufferOverflow = errors.New("backend output exceeds buffer limit")

	// ErrParseFailure indicates a backend exited cleanly but its stdout was
	// not the expected structured document.
	ErrParseFailure = errors.New("backend output parse failure")

	// ErrInvalidFormat indicates a requested format id failed the allow-list
	// check and was never passed to a backend.
	ErrInvalidFormat = errors.New("invalid format id")

	// ErrStreamCancelled indicates the client went away mid-relay. This is
	// the expected shape of a disconnect, not a server fault.
	ErrStreamCancelled = errors.New("stream cancelled by client")

	// ErrUpstreamFetch indicates a resolved direct URL became unreachable
	// while relaying.
	ErrUpstreamFetch = errors.New("upstream fetch failed")
)
