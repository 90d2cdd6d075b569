// Package backend invokes the external extraction executable. Arguments
// are always passed as a discrete vector, never through a shell, and every
// invocation runs under an enforced timeout with bounded output capture.
package backend

import (
	"fmt"
	"regexp"

	"github.com/mediagate/mediagate/internal/types"
)

// Command is one concrete process invocation: a binary and its full
// argument vector.
type Command struct {
	// Name identifies the strategy in logs and failure reports.
	Name   string
	Binary string
	Args   []string
}

// CommandTemplate describes one backend strategy. The same template serves
// every operation; Build appends the operation-specific arguments.
type CommandTemplate struct {
	Name      string
	Binary    string
	ExtraArgs []string
}

const defaultUserAgent = "Mozilla/5.0"

// formatPattern is the allow-list for user-supplied format selectors.
// Anything else is rejected before a process is ever assembled.
var formatPattern = regexp.MustCompile(`^[A-Za-z0-9._+/-]+$`)

// ValidFormat reports whether f is safe to pass to a backend.
func ValidFormat(f string) bool {
	return f != "" && len(f) <= 64 && formatPattern.MatchString(f)
}

// Build assembles the argument vector for req. cookiePath is attached when
// non-empty. The source URL always goes last, as its own argument.
func (t CommandTemplate) Build(req types.ExtractionRequest, cookiePath string) (Command, error) {
	args := append([]string(nil), t.ExtraArgs...)

	switch req.Operation {
	case types.OpMetadata:
		args = append(args, "-J", "--no-playlist")
	case types.OpResolve:
		args = append(args, "-g", "--no-playlist")
		if req.Format != "" {
			if !ValidFormat(req.Format) {
				return Command{}, fmt.Errorf("%w: %q", types.ErrInvalidFormat, req.Format)
			}
			args = append(args, "-f", req.Format)
		}
	case types.OpStream, types.OpConvert:
		format := req.Format
		if format == "" {
			format = "best"
		}
		if !ValidFormat(format) {
			return Command{}, fmt.Errorf("%w: %q", types.ErrInvalidFormat, format)
		}
		args = append(args, "-o", "-", "--no-playlist", "-f", format)
	default:
		return Command{}, fmt.Errorf("unsupported operation %v", req.Operation)
	}

	if cookiePath != "" {
		args = append(args, "--cookies", cookiePath)
	}
	args = append(args, "--user-agent", defaultUserAgent, req.URL.Raw)

	return Command{Name: t.Name, Binary: t.Binary, Args: args}, nil
}

// DefaultChain is the ordered fallback list used when configuration does
// not override it: stock yt-dlp first, then yt-dlp pinned to the android
// player client, then youtube-dl.
func DefaultChain() []CommandTemplate {
	return []CommandTemplate{
		{Name: "yt-dlp", Binary: "yt-dlp"},
		{Name: "yt-dlp-android", Binary: "yt-dlp",
			ExtraArgs: []string{"--extractor-args", "youtube:player_client=android"}},
		{Name: "youtube-dl", Binary: "youtube-dl"},
	}
}

// EncoderCommand builds the terminal encoding step for Convert: ffmpeg
// reading media from stdin and emitting the target container on stdout.
func EncoderCommand(target string) (Command, error) {
	switch target {
	case "mp3":
		return Command{
			Name:   "ffmpeg",
			Binary: "ffmpeg",
			Args: []string{
				"-loglevel", "error", "-nostdin",
				"-i", "pipe:0",
				"-vn", "-acodec", "libmp3lame", "-ar", "44100", "-b:a", "192k",
				"-f", "mp3", "pipe:1",
			},
		}, nil
	case "m4a", "aac":
		return Command{
			Name:   "ffmpeg",
			Binary: "ffmpeg",
			Args: []string{
				"-loglevel", "error", "-nostdin",
				"-i", "pipe:0",
				"-vn", "-acodec", "aac", "-f", "adts", "pipe:1",
			},
		}, nil
	default:
		return Command{}, fmt.Errorf("%w: unsupported conversion target %q", types.ErrInvalidFormat, target)
	}
}

// VersionCommand probes a backend binary for its version string.
func VersionCommand(t CommandTemplate) Command {
	return Command{Name: t.Name, Binary: t.Binary, Args: []string{"--version"}}
}

// ProbeCommand is a lightweight credential probe: metadata-only extraction
// of a reference URL with the credential attached, no media access.
func ProbeCommand(t CommandTemplate, refURL, cookiePath string) Command {
	args := []string{"-J", "--no-playlist", "--skip-download"}
	if cookiePath != "" {
		args = append(args, "--cookies", cookiePath)
	}
	args = append(args, "--user-agent", defaultUserAgent, refURL)
	return Command{Name: t.Name, Binary: t.Binary, Args: args}
}
