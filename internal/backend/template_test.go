package backend

import (
	"errors"
	"strings"
	"testing"

	"github.com/mediagate/mediagate/internal/types"
)

func sourceURL(raw string) types.SourceURL {
	return types.SourceURL{Raw: raw, Normalized: raw, Platform: "youtube"}
}

func TestBuildMetadataArgs(t *testing.T) {
	tmpl := CommandTemplate{Name: "yt-dlp", Binary: "yt-dlp"}
	cmd, err := tmpl.Build(types.ExtractionRequest{
		URL:       sourceURL("https://www.youtube.com/watch?v=abc"),
		Operation: types.OpMetadata,
	}, "/data/cookies/youtube.txt")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	want := []string{
		"-J", "--no-playlist",
		"--cookies", "/data/cookies/youtube.txt",
		"--user-agent", "Mozilla/5.0",
		"https://www.youtube.com/watch?v=abc",
	}
	if len(cmd.Args) != len(want) {
		t.Fatalf("args = %v, want %v", cmd.Args, want)
	}
	for i := range want {
		if cmd.Args[i] != want[i] {
			t.Fatalf("args[%d] = %q, want %q", i, cmd.Args[i], want[i])
		}
	}
}

func TestBuildURLIsSingleArgument(t *testing.T) {
	// A hostile URL must stay one argv element; there is no shell to abuse,
	// and it must never leak into the option positions.
	hostile := `https://example.com/v?x=1; rm -rf / "$(reboot)"`
	tmpl := CommandTemplate{Name: "yt-dlp", Binary: "yt-dlp"}
	cmd, err := tmpl.Build(types.ExtractionRequest{
		URL:       sourceURL(hostile),
		Operation: types.OpMetadata,
	}, "")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if got := cmd.Args[len(cmd.Args)-1]; got != hostile {
		t.Fatalf("URL argument = %q, want untouched %q", got, hostile)
	}
}

func TestBuildRejectsUnsafeFormat(t *testing.T) {
	tmpl := CommandTemplate{Name: "yt-dlp", Binary: "yt-dlp"}
	for _, format := range []string{
		"22; rm -rf /",
		"$(id)",
		"best --exec whoami",
		"`ls`",
		"a b",
		strings.Repeat("9", 65),
	} {
		_, err := tmpl.Build(types.ExtractionRequest{
			URL:       sourceURL("https://youtu.be/abc"),
			Operation: types.OpResolve,
			Format:    format,
		}, "")
		if !errors.Is(err, types.ErrInvalidFormat) {
			t.Errorf("Build(format=%q) error = %v, want ErrInvalidFormat", format, err)
		}
	}
}

func TestBuildAcceptsSelectorSyntax(t *testing.T) {
	tmpl := CommandTemplate{Name: "yt-dlp", Binary: "yt-dlp"}
	for _, format := range []string{"22", "bestvideo+bestaudio", "best/18", "m4a"} {
		if _, err := tmpl.Build(types.ExtractionRequest{
			URL:       sourceURL("https://youtu.be/abc"),
			Operation: types.OpStream,
			Format:    format,
		}, ""); err != nil {
			t.Errorf("Build(format=%q) error = %v", format, err)
		}
	}
}

func TestBuildStreamEmitsToStdout(t *testing.T) {
	tmpl := CommandTemplate{Name: "yt-dlp", Binary: "yt-dlp"}
	cmd, err := tmpl.Build(types.ExtractionRequest{
		URL:       sourceURL("https://youtu.be/abc"),
		Operation: types.OpStream,
		Format:    "22",
	}, "")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	joined := strings.Join(cmd.Args, " ")
	if !strings.Contains(joined, "-o -") {
		t.Fatalf("stream args missing stdout output: %v", cmd.Args)
	}
}

func TestBuildCarriesStrategyExtraArgs(t *testing.T) {
	tmpl := CommandTemplate{
		Name:      "yt-dlp-android",
		Binary:    "yt-dlp",
		ExtraArgs: []string{"--extractor-args", "youtube:player_client=android"},
	}
	cmd, err := tmpl.Build(types.ExtractionRequest{
		URL:       sourceURL("https://youtu.be/abc"),
		Operation: types.OpMetadata,
	}, "")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if cmd.Args[0] != "--extractor-args" || cmd.Args[1] != "youtube:player_client=android" {
		t.Fatalf("strategy args not first: %v", cmd.Args)
	}
}

func TestEncoderCommandTargets(t *testing.T) {
	if _, err := EncoderCommand("mp3"); err != nil {
		t.Fatalf("EncoderCommand(mp3) error = %v", err)
	}
	if _, err := EncoderCommand("exe"); !errors.Is(err, types.ErrInvalidFormat) {
		t.Fatalf("EncoderCommand(exe) error = %v, want ErrInvalidFormat", err)
	}
}
