package types

// MediaFormat is the normalized public format model. It is derived from
// backend-reported formats and read-only once produced.
type MediaFormat struct {
	ID         string  `json:"id"`
	Ext        string  `json:"ext"`
	Resolution string  `json:"resolution"`
	VideoCodec string  `json:"vcodec,omitempty"`
	AudioCodec string  `json:"acodec,omitempty"`
	SizeBytes  int64   `json:"filesize,omitempty"`
	Bitrate    float64 `json:"bitrate,omitempty"`

	// Height is the parsed resolution height used for ordering.
	// Zero means unknown; unknown heights sort last.
	Height int `json:"-"`
}

// AudioOnly reports whether the format carries no video track.
func (f MediaFormat) AudioOnly() bool {
	return (f.VideoCodec == "" || f.VideoCodec == "none") &&
		f.AudioCodec != "" && f.AudioCodec != "none"
}
