package tools

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Stage identifies which external invocation failed.
type Stage string

const (
	StageResolve    Stage = "resolve"
	StageExtract    Stage = "extract"
	StageFilter     Stage = "filter"
	StageSynthesize Stage = "synthesize"
)

// ToolError is a non-zero exit (or timeout) of an external tool, tagged
// by pipeline stage.
type ToolError struct {
	Stage  Stage
	Tool   string
	Stderr string
	Err    error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s stage failed running %s: %v", e.Stage, e.Tool, e.Err)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

var _ error = (*ToolError)(nil)

// Toolbox exposes the external capabilities the core consumes:
// media-URL resolution, transcoding, and text-to-speech.
type Toolbox struct {
	runner Runner
}

func NewToolbox(runner Runner) *Toolbox {
	return &Toolbox{runner: runner}
}

// ResolveMediaURL resolves a page URL to a direct media stream URL via
// yt-dlp. The last stdout line carries the audio stream.
func (t *Toolbox) ResolveMediaURL(ctx context.Context, url string) (string, error) {
	stdout, stderr, err := t.runner.Run(ctx, "yt-dlp", "--no-playlist", "-g", url)
	if err != nil {
		return "", &ToolError{Stage: StageResolve, Tool: "yt-dlp", Stderr: string(stderr), Err: err}
	}

	lines := strings.Fields(strings.TrimSpace(string(stdout)))
	if len(lines) == 0 {
		return "", &ToolError{Stage: StageResolve, Tool: "yt-dlp", Err: fmt.Errorf("no stream url for %s", url)}
	}
	return lines[len(lines)-1], nil
}

// ExtractWindow pulls the [start, end) window of a media stream into a
// canonical-format workspace file.
func (t *Toolbox) ExtractWindow(ctx context.Context, streamURL string, start, end time.Duration, out string) error {
	_, stderr, err := t.runner.Run(ctx, "ffmpeg",
		"-y",
		"-ss", FormatTimestamp(start),
		"-to", FormatTimestamp(end),
		"-i", streamURL,
		"-vn",
		"-f", "flac",
		"file:"+out,
	)
	if err != nil {
		return &ToolError{Stage: StageExtract, Tool: "ffmpeg", Stderr: string(stderr), Err: err}
	}
	return nil
}

// FilterNormalize applies the caller's filter chain (if any) followed by
// the mandatory loudness normalization, re-encoding to the canonical
// codec and rate, in a single invocation. A positive limit also bounds
// the output length.
func (t *Toolbox) FilterNormalize(ctx context.Context, in, out, filters string, limit time.Duration) error {
	chain := "loudnorm"
	if filters != "" {
		chain = filters + ",loudnorm"
	}

	args := []string{"-y"}
	if limit > 0 {
		args = append(args, "-t", FormatTimestamp(limit))
	}
	args = append(args,
		"-i", "file:"+in,
		"-filter:a", chain,
		"-ar", "48000",
		"-f", "flac",
		"file:"+out,
	)

	_, stderr, err := t.runner.Run(ctx, "ffmpeg", args...)
	if err != nil {
		return &ToolError{Stage: StageFilter, Tool: "ffmpeg", Stderr: string(stderr), Err: err}
	}
	return nil
}

// Synthesize renders text to a placeholder audio file via espeak.
func (t *Toolbox) Synthesize(ctx context.Context, text, out string) error {
	_, stderr, err := t.runner.Run(ctx, "espeak", "-w", out, text)
	if err != nil {
		return &ToolError{Stage: StageSynthesize, Tool: "espeak", Stderr: string(stderr), Err: err}
	}
	return nil
}

// FormatTimestamp renders a duration as HH:MM:SS.mmm for ffmpeg.
func FormatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	return fmt.Sprintf("%02d:%02d:%02d.%03d",
		ms/3600000,
		ms/60000%60,
		ms/1000%60,
		ms%1000,
	)
}
