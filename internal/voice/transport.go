package voice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/jogramming/dca"
)

// Transport is the voice-connection capability: join, leave, and play a
// local audio file. Implementations allow at most one active connection
// and one stream per guild; a new Play replaces any in-progress playback.
type Transport interface {
	Join(ctx context.Context, guildID, channelID string) error
	Leave(ctx context.Context, guildID string) error
	Play(ctx context.Context, guildID, path string) error
}

// DiscordTransport drives discordgo voice connections and streams audio
// through dca. All join/leave/play calls for one guild are serialized
// behind a per-guild mutex; guilds do not block each other.
type DiscordTransport struct {
	session *discordgo.Session

	mu     sync.Mutex
	guilds map[string]*guildVoice
}

type guildVoice struct {
	mu     sync.Mutex
	conn   *discordgo.VoiceConnection
	encode *dca.EncodeSession
}

func NewDiscordTransport(session *discordgo.Session) *DiscordTransport {
	return &DiscordTransport{
		session: session,
		guilds:  make(map[string]*guildVoice),
	}
}

var _ Transport = (*DiscordTransport)(nil)

func (t *DiscordTransport) guild(guildID string) *guildVoice {
	t.mu.Lock()
	defer t.mu.Unlock()
	gv, ok := t.guilds[guildID]
	if !ok {
		gv = &guildVoice{}
		t.guilds[guildID] = gv
	}
	return gv
}

func (t *DiscordTransport) Join(ctx context.Context, guildID, channelID string) error {
	gv := t.guild(guildID)
	gv.mu.Lock()
	defer gv.mu.Unlock()

	if gv.conn != nil && gv.conn.ChannelID == channelID {
		return nil
	}

	conn, err := t.session.ChannelVoiceJoin(guildID, channelID, false, true)
	if err != nil {
		return fmt.Errorf("unable to join the voice channel: %w", err)
	}
	gv.conn = conn
	return nil
}

func (t *DiscordTransport) Leave(ctx context.Context, guildID string) error {
	gv := t.guild(guildID)
	gv.mu.Lock()
	defer gv.mu.Unlock()

	if gv.conn == nil {
		return nil
	}
	gv.stopPlayback()
	if err := gv.conn.Disconnect(); err != nil {
		return fmt.Errorf("failed to disconnect: %w", err)
	}
	gv.conn = nil
	return nil
}

func (t *DiscordTransport) Play(ctx context.Context, guildID, path string) error {
	gv := t.guild(guildID)
	gv.mu.Lock()
	defer gv.mu.Unlock()

	if gv.conn == nil {
		return errors.New("not connected to a voice channel")
	}

	// At most one stream per guild: a new play call tears down the
	// previous encode session before starting the next.
	gv.stopPlayback()

	options := *dca.StdEncodeOptions
	options.RawOutput = true
	options.Bitrate = 96
	options.Application = "audio"
	options.Volume = 256

	encode, err := dca.EncodeFile(path, &options)
	if err != nil {
		return fmt.Errorf("unable to encode audio file: %w", err)
	}
	gv.encode = encode

	if err := gv.conn.Speaking(true); err != nil {
		encode.Cleanup()
		gv.encode = nil
		return fmt.Errorf("error setting speaking state: %w", err)
	}

	conn := gv.conn
	go func() {
		done := make(chan error, 1)
		dca.NewStream(encode, conn, done)
		if err := <-done; err != nil && err != io.EOF {
			slog.Error("error occurred while playing sound", "path", path, "error", err)
		}
		if err := conn.Speaking(false); err != nil {
			slog.Error("failed to stop speaking", "error", err)
		}

		gv.mu.Lock()
		if gv.encode == encode {
			gv.encode = nil
		}
		gv.mu.Unlock()
		encode.Cleanup()
	}()

	return nil
}

// stopPlayback must be called with gv.mu held.
func (gv *guildVoice) stopPlayback() {
	if gv.encode != nil {
		gv.encode.Cleanup()
		gv.encode = nil
	}
}
