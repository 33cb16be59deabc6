package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/yzarul/announcer/internal/datalayer"
)

// RecordStore is the relational half of the asset store the resolver
// reads selection state from.
type RecordStore interface {
	ActiveClip(ctx context.Context, name string, userID int64) (string, bool, error)
	RandomEnabled(ctx context.Context, name string, userID int64) (bool, error)
}

// Synthesizer renders a display name to a placeholder audio file.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, out string) error
}

// Resolver decides the concrete path to hand to the voice transport for
// a (display name, user) pair.
type Resolver struct {
	records RecordStore
	library *datalayer.Library
	synth   Synthesizer

	// pick selects a uniform index; replaced in tests.
	pick func(n int) int
}

func New(records RecordStore, library *datalayer.Library, synth Synthesizer) *Resolver {
	return &Resolver{
		records: records,
		library: library,
		synth:   synth,
		pick:    rand.IntN,
	}
}

// Resolve returns the path of the clip to play. It fails only on
// storage unreachability: a missing selection, empty library, or stale
// active clip all degrade to the synthesized fallback.
func (r *Resolver) Resolve(ctx context.Context, name string, userID int64) (string, error) {
	active, ok, err := r.records.ActiveClip(ctx, name, userID)
	if err != nil {
		return "", err
	}

	clips, err := r.library.ClipNames(name)
	if err != nil {
		return "", err
	}

	if ok && len(clips) > 0 {
		random, err := r.records.RandomEnabled(ctx, name, userID)
		if err != nil {
			return "", err
		}
		if random {
			// Random mode samples the whole library, active clip
			// included, reselected independently on every call.
			return r.library.ClipPath(name, clips[r.pick(len(clips))]), nil
		}
		if r.library.HasClip(name, active) {
			return r.library.ClipPath(name, active), nil
		}
		slog.Warn("active clip missing from library, falling back", "name", name, "clip", active)
	}

	return r.fallback(ctx, name)
}

// fallback returns the synthesized placeholder for a name, creating it
// on first miss. The cached file is reused indefinitely; a marker
// records that the name still lacks a real clip.
func (r *Resolver) fallback(ctx context.Context, name string) (string, error) {
	path := r.library.FallbackPath(name)
	if r.library.HasFallback(name) {
		return path, nil
	}

	if err := r.synth.Synthesize(ctx, name, path); err != nil {
		return "", fmt.Errorf("failed to synthesize fallback for %s: %w", name, err)
	}
	if err := r.library.WriteMarker(name); err != nil {
		slog.Warn("failed to write pending-synthesis marker", "name", name, "error", err)
	}
	return path, nil
}
