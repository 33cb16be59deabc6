package ingest_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/yzarul/announcer/internal/config"
	"github.com/yzarul/announcer/internal/datalayer"
	"github.com/yzarul/announcer/internal/ingest"
	"github.com/yzarul/announcer/internal/tools"
)

// fakeRunner scripts external tool behavior. ffmpeg invocations create
// their output file so rename-based publishing can be exercised.
type fakeRunner struct {
	calls    []string
	failTool string
}

func (r *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	r.calls = append(r.calls, name)
	if name == r.failTool {
		return nil, []byte("simulated tool failure"), errors.New("exit status 1")
	}

	switch name {
	case "yt-dlp":
		return []byte("https://cdn.example.com/stream.m4a\n"), nil, nil
	case "ffmpeg":
		for _, arg := range args {
			if out, ok := strings.CutPrefix(arg, "file:"); ok {
				if err := os.WriteFile(out, []byte("audio"), 0o644); err != nil {
					return nil, nil, err
				}
			}
		}
		return nil, nil, nil
	}
	return nil, nil, nil
}

type recordKey struct {
	name   string
	userID int64
}

type fakeRecords struct {
	active        map[recordKey]string
	failSetActive bool
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{active: make(map[recordKey]string)}
}

func (f *fakeRecords) SetActive(ctx context.Context, name string, userID int64, clip string) error {
	if f.failSetActive {
		return errors.New("connection refused")
	}
	f.active[recordKey{name, userID}] = clip
	return nil
}

type sequentialIDs struct {
	n int
}

func (g *sequentialIDs) Next() (string, error) {
	g.n++
	return fmt.Sprintf("workspace-%04d", g.n), nil
}

func newTestLibrary(t *testing.T) *datalayer.Library {
	t.Helper()
	root := t.TempDir()
	library := datalayer.NewLibrary(&config.AudioConfig{
		AudioRoot:      filepath.Join(root, "audio"),
		IndexRoot:      filepath.Join(root, "index"),
		QueueRoot:      filepath.Join(root, "queue"),
		ProcessingRoot: filepath.Join(root, "processing"),
	})
	if err := library.EnsureRoots(); err != nil {
		t.Fatalf("failed to prepare library roots: %v", err)
	}
	return library
}

func workspaceFiles(t *testing.T, library *datalayer.Library) []string {
	t.Helper()
	entries, err := os.ReadDir(library.WorkspacePath(""))
	if err != nil {
		t.Fatalf("failed to read processing dir: %v", err)
	}
	var names []string
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names
}

func newTestPipeline(t *testing.T, records ingest.RecordStore, runner *fakeRunner, limits ingest.Limits) (*ingest.Pipeline, *datalayer.Library) {
	t.Helper()
	library := newTestLibrary(t)
	pipeline := ingest.NewPipeline(records, library, tools.NewToolbox(runner), &sequentialIDs{}, limits)
	return pipeline, library
}

func TestIngestFileRoundTrip(t *testing.T) {
	records := newFakeRecords()
	runner := &fakeRunner{}
	pipeline, library := newTestPipeline(t, records, runner, ingest.Limits{})

	if err := library.WriteMarker("alice"); err != nil {
		t.Fatalf("failed to seed marker: %v", err)
	}

	clip, err := pipeline.Ingest(context.Background(), ingest.Request{
		Owner:       7,
		Requester:   7,
		DisplayName: "alice",
		ClipName:    "funny",
		Source:      ingest.Source{Data: []byte("uploaded audio")},
	})
	if err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}
	if clip != "funny" {
		t.Errorf("Ingest returned clip %q; want %q", clip, "funny")
	}

	if got := records.active[recordKey{"alice", 7}]; got != "funny" {
		t.Errorf("active clip = %q; want %q", got, "funny")
	}
	if !library.HasClip("alice", "funny") {
		t.Error("published clip not found in library")
	}
	if library.HasMarker("alice") {
		t.Error("pending-synthesis marker should be removed after ingestion")
	}
	if residue := workspaceFiles(t, library); len(residue) != 0 {
		t.Errorf("workspace files left behind: %v", residue)
	}
}

func TestIngestURLUsesResolverAndExtraction(t *testing.T) {
	records := newFakeRecords()
	runner := &fakeRunner{}
	pipeline, _ := newTestPipeline(t, records, runner, ingest.Limits{})

	_, err := pipeline.Ingest(context.Background(), ingest.Request{
		Owner:       7,
		Requester:   7,
		DisplayName: "alice",
		ClipName:    "drop",
		Source: ingest.Source{
			URL:   "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
			Start: 20 * time.Second,
			End:   25 * time.Second,
		},
	})
	if err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}

	want := []string{"yt-dlp", "ffmpeg", "ffmpeg"}
	if len(runner.calls) != len(want) {
		t.Fatalf("tool calls = %v; want %v", runner.calls, want)
	}
	for i := range want {
		if runner.calls[i] != want[i] {
			t.Errorf("tool call %d = %q; want %q", i, runner.calls[i], want[i])
		}
	}
}

func TestIngestValidationShortCircuits(t *testing.T) {
	table := []struct {
		name string
		req  ingest.Request
	}{
		{
			name: "clip name too long",
			req: ingest.Request{
				DisplayName: "alice",
				ClipName:    strings.Repeat("x", 101),
				Source:      ingest.Source{Data: []byte("audio")},
			},
		},
		{
			name: "malformed url",
			req: ingest.Request{
				DisplayName: "alice",
				ClipName:    "clip",
				Source:      ingest.Source{URL: "not a url", Start: 0, End: time.Second},
			},
		},
		{
			name: "window over cap",
			req: ingest.Request{
				DisplayName: "alice",
				ClipName:    "clip",
				Source:      ingest.Source{URL: "https://example.com/v", Start: 0, End: 7010 * time.Millisecond},
			},
		},
		{
			name: "override without authorization",
			req: ingest.Request{
				Requester:      99,
				DisplayName:    "alice",
				ClipName:       "clip",
				OverrideLength: true,
				Source:         ingest.Source{Data: []byte("audio")},
			},
		},
		{
			name: "end before start",
			req: ingest.Request{
				DisplayName: "alice",
				ClipName:    "clip",
				Source:      ingest.Source{URL: "https://example.com/v", Start: 5 * time.Second, End: 3 * time.Second},
			},
		},
	}

	for _, tc := range table {
		t.Run(tc.name, func(t *testing.T) {
			runner := &fakeRunner{}
			pipeline, _ := newTestPipeline(t, newFakeRecords(), runner, ingest.Limits{AdminUserID: 1})

			_, err := pipeline.Ingest(context.Background(), tc.req)

			var validation *ingest.ValidationError
			if !errors.As(err, &validation) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if len(runner.calls) != 0 {
				t.Errorf("validation must run before any external process, but tools ran: %v", runner.calls)
			}
		})
	}
}

func TestIngestWindowBoundary(t *testing.T) {
	t.Run("exactly at the cap succeeds", func(t *testing.T) {
		pipeline, _ := newTestPipeline(t, newFakeRecords(), &fakeRunner{}, ingest.Limits{})

		_, err := pipeline.Ingest(context.Background(), ingest.Request{
			Owner:       7,
			DisplayName: "alice",
			ClipName:    "clip",
			Source:      ingest.Source{URL: "https://example.com/v", Start: 0, End: 7 * time.Second},
		})
		if err != nil {
			t.Fatalf("a 7.00s window must succeed, got: %v", err)
		}
	})

	t.Run("authorized override lifts the cap", func(t *testing.T) {
		pipeline, _ := newTestPipeline(t, newFakeRecords(), &fakeRunner{}, ingest.Limits{AdminUserID: 42})

		_, err := pipeline.Ingest(context.Background(), ingest.Request{
			Owner:          7,
			Requester:      42,
			DisplayName:    "alice",
			ClipName:       "clip",
			OverrideLength: true,
			Source:         ingest.Source{URL: "https://example.com/v", Start: 0, End: 10 * time.Minute},
		})
		if err != nil {
			t.Fatalf("an authorized override must lift the cap, got: %v", err)
		}
	})
}

func TestIngestFilterFailureCleansUp(t *testing.T) {
	records := newFakeRecords()
	runner := &fakeRunner{failTool: "ffmpeg"}
	pipeline, library := newTestPipeline(t, records, runner, ingest.Limits{})

	_, err := pipeline.Ingest(context.Background(), ingest.Request{
		Owner:       7,
		DisplayName: "alice",
		ClipName:    "broken",
		Source:      ingest.Source{Data: []byte("audio")},
	})

	var toolErr *tools.ToolError
	if !errors.As(err, &toolErr) {
		t.Fatalf("expected ToolError, got %v", err)
	}
	if toolErr.Stage != tools.StageFilter {
		t.Errorf("failed stage = %q; want %q", toolErr.Stage, tools.StageFilter)
	}

	if residue := workspaceFiles(t, library); len(residue) != 0 {
		t.Errorf("workspace files left behind after failure: %v", residue)
	}
	if len(records.active) != 0 {
		t.Errorf("record store mutated on failure: %v", records.active)
	}
	if library.HasClip("alice", "broken") {
		t.Error("no clip may be published on failure")
	}
}

func TestIngestRecordFailureAfterPublish(t *testing.T) {
	records := newFakeRecords()
	records.failSetActive = true
	pipeline, library := newTestPipeline(t, records, &fakeRunner{}, ingest.Limits{})

	_, err := pipeline.Ingest(context.Background(), ingest.Request{
		Owner:       7,
		DisplayName: "alice",
		ClipName:    "orphan",
		Source:      ingest.Source{Data: []byte("audio")},
	})

	var storageErr *ingest.StorageError
	if !errors.As(err, &storageErr) {
		t.Fatalf("expected StorageError, got %v", err)
	}

	// Rename happens before the record upsert: the clip stays on disk
	// as a recoverable inconsistency rather than being rolled back.
	if !library.HasClip("alice", "orphan") {
		t.Error("published clip should remain on disk when only the record upsert fails")
	}
	if residue := workspaceFiles(t, library); len(residue) != 0 {
		t.Errorf("workspace files left behind: %v", residue)
	}
}
