package types

// VideoMetadata is the stable result schema for a successful extraction.
// Constructed once per extraction, either freshly computed or retrieved
// unchanged from the result cache.
type VideoMetadata struct {
	Title        string        `json:"title"`
	DurationSec  float64       `json:"duration"`
	ThumbnailURL string        `json:"thumbnail"`
	Formats      []MediaFormat `json:"formats"`
	Platform     string        `json:"platform"`
}

// HasFormats reports whether any downloadable format survived
// normalization. An empty list is a valid result, not an error.
func (m *VideoMetadata) HasFormats() bool {
	return len(m.Formats) > 0
}
