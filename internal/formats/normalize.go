// Package formats turns the extraction backend's JSON dump into the stable
// VideoMetadata schema. The transform is pure and tolerant: optional fields
// may be missing, an empty format list is a valid result.
package formats

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/mediagate/mediagate/internal/types"
)

type rawInfo struct {
	Title     string      `json:"title"`
	Thumbnail string      `json:"thumbnail"`
	Duration  float64     `json:"duration"`
	Formats   []rawFormat `json:"formats"`
}

type rawFormat struct {
	FormatID   string  `json:"format_id"`
	Ext        string  `json:"ext"`
	Resolution string  `json:"resolution"`
	Height     int     `json:"height"`
	VCodec     string  `json:"vcodec"`
	ACodec     string  `json:"acodec"`
	Filesize   int64   `json:"filesize"`
	TBR        float64 `json:"tbr"`
}

// Normalize parses a single backend JSON document into VideoMetadata.
// Malformed JSON is a parse failure; formats without a format id are
// dropped; the rest are ordered by descending resolution height with
// unknown heights last, stable otherwise.
func Normalize(raw []byte, platform string) (*types.VideoMetadata, error) {
	var info rawInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrParseFailure, err)
	}

	usable := lo.Filter(info.Formats, func(f rawFormat, _ int) bool {
		return f.FormatID != ""
	})

	out := make([]types.MediaFormat, 0, len(usable))
	for _, f := range usable {
		out = append(out, normalizeOne(f))
	}
	SortByResolution(out)

	return &types.VideoMetadata{
		Title:        info.Title,
		DurationSec:  info.Duration,
		ThumbnailURL: info.Thumbnail,
		Formats:      out,
		Platform:     platform,
	}, nil
}

func normalizeOne(f rawFormat) types.MediaFormat {
	m := types.MediaFormat{
		ID:         f.FormatID,
		Ext:        f.Ext,
		Resolution: f.Resolution,
		VideoCodec: codec(f.VCodec),
		AudioCodec: codec(f.ACodec),
		SizeBytes:  f.Filesize,
		Bitrate:    f.TBR,
		Height:     f.Height,
	}
	if m.Height == 0 {
		m.Height = parseHeight(f.Resolution)
	}
	if m.Resolution == "" {
		if f.Height > 0 {
			m.Resolution = strconv.Itoa(f.Height) + "p"
		} else {
			m.Resolution = "audio only"
		}
	}
	return m
}

// codec maps the backend's "none" marker to absence.
func codec(c string) string {
	if c == "none" {
		return ""
	}
	return c
}

// parseHeight extracts a height from resolution labels like "1920x1080"
// or "720p". Returns 0 when no height can be derived.
func parseHeight(resolution string) int {
	s := strings.TrimSpace(strings.ToLower(resolution))
	if s == "" || s == "audio only" {
		return 0
	}
	if x := strings.LastIndex(s, "x"); x >= 0 {
		if h, err := strconv.Atoi(s[x+1:]); err == nil {
			return h
		}
		return 0
	}
	s = strings.TrimSuffix(s, "p")
	if h, err := strconv.Atoi(s); err == nil {
		return h
	}
	return 0
}

// SortByResolution orders formats by descending height. Formats with
// unknown height keep their relative order at the end.
func SortByResolution(formats []types.MediaFormat) {
	sort.SliceStable(formats, func(i, j int) bool {
		return formats[i].Height > formats[j].Height
	})
}
