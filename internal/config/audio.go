package config

import (
	"context"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// AudioConfig holds the filesystem layout and processing limits for the
// announcement library.
type AudioConfig struct {
	// AudioRoot holds one synthesized fallback clip per display name.
	AudioRoot string `env:"ANNOUNCER_AUDIO_ROOT, default=/config/audio"`
	// IndexRoot holds one directory of published clips per display name.
	IndexRoot string `env:"ANNOUNCER_INDEX_ROOT, default=/config/index"`
	// QueueRoot holds pending-synthesis markers.
	QueueRoot string `env:"ANNOUNCER_QUEUE_ROOT, default=/config/queue"`
	// ProcessingRoot holds ephemeral per-ingestion workspace files.
	ProcessingRoot string `env:"ANNOUNCER_PROCESSING_ROOT, default=/config/processing"`

	// ClipBound is the maximum published clip length unless overridden.
	ClipBound time.Duration `env:"ANNOUNCER_CLIP_BOUND, default=6s"`
	// WindowCap is the maximum [start,end) window for URL sources.
	WindowCap time.Duration `env:"ANNOUNCER_WINDOW_CAP, default=7s"`
	// ToolTimeout bounds every external tool invocation.
	ToolTimeout time.Duration `env:"ANNOUNCER_TOOL_TIMEOUT, default=5m"`
}

func NewAudioConfigFromEnv() (*AudioConfig, error) {
	var cfg AudioConfig
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
