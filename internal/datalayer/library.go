package datalayer

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/yzarul/announcer/internal/config"
)

// ClipExt is the canonical extension for every published audio asset.
const ClipExt = ".flac"

// Library is the filesystem half of the asset store. Clip existence is
// encoded only by file presence; the relational table holds the active
// selection and random flag. Directory contents are read fresh on every
// call, relying on read-after-rename visibility of the filesystem.
type Library struct {
	audioRoot      string
	indexRoot      string
	queueRoot      string
	processingRoot string
}

func NewLibrary(cfg *config.AudioConfig) *Library {
	return &Library{
		audioRoot:      cfg.AudioRoot,
		indexRoot:      cfg.IndexRoot,
		queueRoot:      cfg.QueueRoot,
		processingRoot: cfg.ProcessingRoot,
	}
}

// EnsureRoots creates the top-level directories if they do not exist.
func (l *Library) EnsureRoots() error {
	for _, root := range []string{l.audioRoot, l.indexRoot, l.queueRoot, l.processingRoot} {
		if err := os.MkdirAll(root, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", root, err)
		}
	}
	return nil
}

// ClipPath returns the path a published clip lives at.
func (l *Library) ClipPath(name, clip string) string {
	return filepath.Join(l.indexRoot, name, clip+ClipExt)
}

// FallbackPath returns the path of the synthesized fallback clip for a name.
func (l *Library) FallbackPath(name string) string {
	return filepath.Join(l.audioRoot, name+ClipExt)
}

// MarkerPath returns the path of the pending-synthesis marker for a name.
func (l *Library) MarkerPath(name string) string {
	return filepath.Join(l.queueRoot, name)
}

// WorkspacePath returns the path of an ephemeral processing file.
func (l *Library) WorkspacePath(file string) string {
	return filepath.Join(l.processingRoot, file)
}

// ClipNames enumerates the clips currently published for a display name.
// Each call reads the directory fresh; subdirectories are excluded and
// the canonical extension is stripped. A missing library yields an
// empty result, not an error.
func (l *Library) ClipNames(name string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(l.indexRoot, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read library for %s: %w", name, err)
	}

	var clips []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		clips = append(clips, strings.TrimSuffix(entry.Name(), ClipExt))
	}
	return clips, nil
}

// HasClip reports whether a clip is currently present in the library.
func (l *Library) HasClip(name, clip string) bool {
	_, err := os.Stat(l.ClipPath(name, clip))
	return err == nil
}

// HasFallback reports whether a synthesized fallback already exists.
func (l *Library) HasFallback(name string) bool {
	_, err := os.Stat(l.FallbackPath(name))
	return err == nil
}

// EnsureLibrary lazily creates the clip directory for a display name.
func (l *Library) EnsureLibrary(name string) error {
	if err := os.MkdirAll(filepath.Join(l.indexRoot, name), 0o755); err != nil {
		return fmt.Errorf("failed to create library for %s: %w", name, err)
	}
	return nil
}

// Publish moves a processed workspace file into the library under the
// caller-chosen clip name. Rename is the one step that is atomic on a
// single filesystem, so no partial content is ever visible under the
// final name.
func (l *Library) Publish(src, name, clip string) error {
	if err := os.Rename(src, l.ClipPath(name, clip)); err != nil {
		return fmt.Errorf("failed to publish clip %s for %s: %w", clip, name, err)
	}
	return nil
}

// WriteMarker records that a fallback was synthesized for a name that
// still lacks a real clip.
func (l *Library) WriteMarker(name string) error {
	return os.WriteFile(l.MarkerPath(name), []byte(name), 0o644)
}

// RemoveMarker deletes the pending-synthesis marker. A missing marker
// is not an error.
func (l *Library) RemoveMarker(name string) error {
	if err := os.Remove(l.MarkerPath(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// HasMarker reports whether a pending-synthesis marker exists for a name.
func (l *Library) HasMarker(name string) bool {
	_, err := os.Stat(l.MarkerPath(name))
	return err == nil
}
