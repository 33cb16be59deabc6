package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/yzarul/announcer/internal/datalayer"
	"github.com/yzarul/announcer/internal/generator"
	"github.com/yzarul/announcer/internal/tools"
)

// MaxClipNameLength bounds the logical name of a clip.
const MaxClipNameLength = 100

// RecordStore is the relational half of the asset store the pipeline
// publishes into.
type RecordStore interface {
	SetActive(ctx context.Context, name string, userID int64, clip string) error
}

// Source is either uploaded raw bytes or a time-windowed remote media URL.
type Source struct {
	Data []byte

	URL   string
	Start time.Duration
	End   time.Duration
}

// Request is one ingestion submission.
type Request struct {
	// Owner is the user the announcement belongs to.
	Owner int64
	// Requester is the identity that submitted the request; it gates
	// the length override.
	Requester   int64
	DisplayName string
	ClipName    string
	Source      Source
	// Filters is an optional ffmpeg audio filter chain applied before
	// normalization.
	Filters string
	// OverrideLength lifts the window cap and the clip length bound.
	OverrideLength bool
}

// Limits are the fixed processing bounds for the pipeline.
type Limits struct {
	// ClipBound truncates processed clips unless overridden.
	ClipBound time.Duration
	// WindowCap rejects URL windows longer than this unless overridden.
	WindowCap time.Duration
	// AdminUserID is the only requester allowed to override lengths.
	AdminUserID int64
}

// Pipeline converts one submission into exactly one durably published
// clip, or leaves all durable state unchanged on failure.
type Pipeline struct {
	records RecordStore
	library *datalayer.Library
	toolbox *tools.Toolbox
	ids     generator.Generator[string]
	limits  Limits
}

func NewPipeline(
	records RecordStore,
	library *datalayer.Library,
	toolbox *tools.Toolbox,
	ids generator.Generator[string],
	limits Limits,
) *Pipeline {
	if limits.ClipBound <= 0 {
		limits.ClipBound = 6 * time.Second
	}
	if limits.WindowCap <= 0 {
		limits.WindowCap = 7 * time.Second
	}
	return &Pipeline{
		records: records,
		library: library,
		toolbox: toolbox,
		ids:     ids,
		limits:  limits,
	}
}

// Ingest runs the full pipeline: validate, acquire, filter+normalize,
// publish, cleanup. Exactly one of (clip name, error) is returned.
// Workspace files are removed on both success and failure; no durable
// state is mutated before the publish stage.
func (p *Pipeline) Ingest(ctx context.Context, req Request) (string, error) {
	if err := p.validate(req); err != nil {
		return "", err
	}

	id, err := p.ids.Next()
	if err != nil {
		return "", fmt.Errorf("failed to generate workspace id: %w", err)
	}

	// Workspace names carry a unique per-request id so concurrent
	// ingestions for the same target cannot clobber each other. Only
	// the publish rename uses the caller-chosen clip name.
	sourceFile := p.library.WorkspacePath(id + ".source" + datalayer.ClipExt)
	processedFile := p.library.WorkspacePath(id + ".processed" + datalayer.ClipExt)
	defer cleanupWorkspace(sourceFile, processedFile)

	if err := p.acquire(ctx, req, sourceFile); err != nil {
		return "", err
	}

	limit := p.limits.ClipBound
	if p.overrideGranted(req) {
		limit = 0
	}
	if err := p.toolbox.FilterNormalize(ctx, sourceFile, processedFile, req.Filters, limit); err != nil {
		return "", err
	}

	if err := p.publish(ctx, req, processedFile); err != nil {
		return "", err
	}
	return req.ClipName, nil
}

func (p *Pipeline) validate(req Request) error {
	if req.ClipName == "" {
		return &ValidationError{Reason: "announcement name is required"}
	}
	if utf8.RuneCountInString(req.ClipName) > MaxClipNameLength {
		return &ValidationError{Reason: "announcement name is too long"}
	}
	if strings.ContainsAny(req.ClipName, `/\`) {
		return &ValidationError{Reason: "announcement name must not contain path separators"}
	}
	if req.OverrideLength && !p.overrideGranted(req) {
		return &ValidationError{Reason: "you are not allowed to use the length override"}
	}

	if req.Source.Data != nil {
		return nil
	}

	parsed, err := url.Parse(req.Source.URL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return &ValidationError{Reason: "please provide a valid url"}
	}
	window := req.Source.End - req.Source.Start
	if window <= 0 {
		return &ValidationError{Reason: "end time must be after start time"}
	}
	if window > p.limits.WindowCap && !p.overrideGranted(req) {
		return &ValidationError{Reason: "duration is too long"}
	}
	return nil
}

func (p *Pipeline) overrideGranted(req Request) bool {
	return req.OverrideLength && p.limits.AdminUserID != 0 && req.Requester == p.limits.AdminUserID
}

// acquire persists uploaded bytes, or resolves the URL and extracts the
// requested window, into the workspace source file.
func (p *Pipeline) acquire(ctx context.Context, req Request, sourceFile string) error {
	if req.Source.Data != nil {
		if err := os.WriteFile(sourceFile, req.Source.Data, 0o644); err != nil {
			return &StorageError{Op: "write upload", Err: err}
		}
		return nil
	}

	streamURL, err := p.toolbox.ResolveMediaURL(ctx, req.Source.URL)
	if err != nil {
		return err
	}
	return p.toolbox.ExtractWindow(ctx, streamURL, req.Source.Start, req.Source.End, sourceFile)
}

// publish renames the processed file into the library, then records the
// new clip as the active selection. Rename goes first: the filesystem
// is authoritative for clip existence and the resolver re-validates it,
// so a post-rename upsert failure leaves a recoverable on-disk clip
// rather than a record pointing at nothing.
func (p *Pipeline) publish(ctx context.Context, req Request, processedFile string) error {
	if err := p.library.EnsureLibrary(req.DisplayName); err != nil {
		return &StorageError{Op: "create library", Err: err}
	}
	if err := p.library.Publish(processedFile, req.DisplayName, req.ClipName); err != nil {
		return &StorageError{Op: "publish clip", Err: err}
	}

	if err := p.records.SetActive(ctx, req.DisplayName, req.Owner, req.ClipName); err != nil {
		slog.Warn("clip published on disk but record update failed",
			"name", req.DisplayName,
			"clip", req.ClipName,
			"error", err,
		)
		return &StorageError{Op: "record active clip", Err: err}
	}

	if err := p.library.RemoveMarker(req.DisplayName); err != nil {
		slog.Debug("failed to remove pending-synthesis marker",
			"name", req.DisplayName,
			"error", err,
		)
	}
	return nil
}

func cleanupWorkspace(files ...string) {
	for _, file := range files {
		if err := os.Remove(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Debug("failed to remove workspace file", "file", file, "error", err)
		}
	}
}
