package types

// Operation selects what the caller wants from an extraction.
type Operation int

const (
	// OpMetadata dumps the full structured metadata document.
	OpMetadata Operation = iota
	// OpResolve resolves a single time-limited direct media URL.
	OpResolve
	// OpStream emits media bytes on stdout for relaying.
	OpStream
	// OpConvert streams media through an external encoder as a terminal step.
	OpConvert
)

func (o Operation) String() string {
	switch o {
	case OpMetadata:
		return "metadata"
	case OpResolve:
		return "resolve"
	case OpStream:
		return "stream"
	case OpConvert:
		return "convert"
	}
	return "unknown"
}

// SourceURL is a validated absolute http(s) URL with its derived platform
// tag. Immutable once classified.
type SourceURL struct {
	// Raw is the URL as received, after successful validation.
	Raw string
	// Normalized is the canonical string used for cache fingerprints:
	// lowercased scheme and host, fragment stripped.
	Normalized string
	// Platform is the classifier tag, "generic" when no table entry matched.
	Platform string
}

// ExtractionRequest describes one inbound call. Created per request,
// never mutated, owned by the handling goroutine.
type ExtractionRequest struct {
	URL       SourceURL
	Format    string // optional backend format id, already allow-list checked
	Operation Operation
}
