package tools_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/yzarul/announcer/internal/tools"
)

// captureRunner records the last invocation and replays scripted output.
type captureRunner struct {
	name   string
	args   []string
	stdout string
	err    error
}

func (r *captureRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	r.name = name
	r.args = args
	return []byte(r.stdout), []byte("tool noise"), r.err
}

func TestResolveMediaURLTakesLastStreamURL(t *testing.T) {
	runner := &captureRunner{stdout: "https://cdn.example.com/video.mp4\nhttps://cdn.example.com/audio.m4a\n"}
	toolbox := tools.NewToolbox(runner)

	url, err := toolbox.ResolveMediaURL(context.Background(), "https://www.youtube.com/watch?v=x")
	if err != nil {
		t.Fatalf("ResolveMediaURL returned error: %v", err)
	}
	if want := "https://cdn.example.com/audio.m4a"; url != want {
		t.Errorf("ResolveMediaURL = %q; want %q", url, want)
	}

	want := []string{"--no-playlist", "-g", "https://www.youtube.com/watch?v=x"}
	if diff := cmp.Diff(want, runner.args); diff != "" {
		t.Errorf("yt-dlp args mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveMediaURLEmptyOutput(t *testing.T) {
	toolbox := tools.NewToolbox(&captureRunner{stdout: "\n"})

	_, err := toolbox.ResolveMediaURL(context.Background(), "https://example.com/v")
	var toolErr *tools.ToolError
	if !errors.As(err, &toolErr) {
		t.Fatalf("expected ToolError, got %v", err)
	}
	if toolErr.Stage != tools.StageResolve {
		t.Errorf("stage = %q; want %q", toolErr.Stage, tools.StageResolve)
	}
}

func TestExtractWindowArgs(t *testing.T) {
	runner := &captureRunner{}
	toolbox := tools.NewToolbox(runner)

	err := toolbox.ExtractWindow(context.Background(), "https://cdn.example.com/a.m4a", 20*time.Second, 25*time.Second, "/work/x.flac")
	if err != nil {
		t.Fatalf("ExtractWindow returned error: %v", err)
	}

	want := []string{
		"-y",
		"-ss", "00:00:20.000",
		"-to", "00:00:25.000",
		"-i", "https://cdn.example.com/a.m4a",
		"-vn",
		"-f", "flac",
		"file:/work/x.flac",
	}
	if diff := cmp.Diff(want, runner.args); diff != "" {
		t.Errorf("ffmpeg args mismatch (-want +got):\n%s", diff)
	}
}

func TestFilterNormalize(t *testing.T) {
	table := []struct {
		name     string
		filters  string
		limit    time.Duration
		wantArgs []string
	}{
		{
			name:  "normalization only",
			limit: 6 * time.Second,
			wantArgs: []string{
				"-y",
				"-t", "00:00:06.000",
				"-i", "file:/work/in.flac",
				"-filter:a", "loudnorm",
				"-ar", "48000",
				"-f", "flac",
				"file:/work/out.flac",
			},
		},
		{
			name:    "caller filters prepended",
			filters: "vibrato=f=5",
			limit:   6 * time.Second,
			wantArgs: []string{
				"-y",
				"-t", "00:00:06.000",
				"-i", "file:/work/in.flac",
				"-filter:a", "vibrato=f=5,loudnorm",
				"-ar", "48000",
				"-f", "flac",
				"file:/work/out.flac",
			},
		},
		{
			name: "no limit when overridden",
			wantArgs: []string{
				"-y",
				"-i", "file:/work/in.flac",
				"-filter:a", "loudnorm",
				"-ar", "48000",
				"-f", "flac",
				"file:/work/out.flac",
			},
		},
	}

	for _, tc := range table {
		t.Run(tc.name, func(t *testing.T) {
			runner := &captureRunner{}
			toolbox := tools.NewToolbox(runner)

			err := toolbox.FilterNormalize(context.Background(), "/work/in.flac", "/work/out.flac", tc.filters, tc.limit)
			if err != nil {
				t.Fatalf("FilterNormalize returned error: %v", err)
			}
			if diff := cmp.Diff(tc.wantArgs, runner.args); diff != "" {
				t.Errorf("ffmpeg args mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestToolErrorCarriesStageAndStderr(t *testing.T) {
	runner := &captureRunner{err: errors.New("exit status 1")}
	toolbox := tools.NewToolbox(runner)

	err := toolbox.Synthesize(context.Background(), "alice", "/config/audio/alice.flac")
	var toolErr *tools.ToolError
	if !errors.As(err, &toolErr) {
		t.Fatalf("expected ToolError, got %v", err)
	}
	if toolErr.Stage != tools.StageSynthesize {
		t.Errorf("stage = %q; want %q", toolErr.Stage, tools.StageSynthesize)
	}
	if toolErr.Tool != "espeak" {
		t.Errorf("tool = %q; want espeak", toolErr.Tool)
	}
	if toolErr.Stderr != "tool noise" {
		t.Errorf("stderr = %q; want the captured tool output", toolErr.Stderr)
	}
}

func TestFormatTimestamp(t *testing.T) {
	table := []struct {
		in   time.Duration
		want string
	}{
		{0, "00:00:00.000"},
		{-time.Second, "00:00:00.000"},
		{7010 * time.Millisecond, "00:00:07.010"},
		{90 * time.Second, "00:01:30.000"},
		{3661 * time.Second, "01:01:01.000"},
	}

	for _, tc := range table {
		if got := tools.FormatTimestamp(tc.in); got != tc.want {
			t.Errorf("FormatTimestamp(%v) = %q; want %q", tc.in, got, tc.want)
		}
	}
}
