package handler

import (
	"log/slog"

	"github.com/bwmarrin/discordgo"
)

type ReadyHandler = func(*discordgo.Session, *discordgo.Ready)
type InteractionCreateHandler = func(*discordgo.Session, *discordgo.InteractionCreate)
type VoiceStateUpdateHandler = func(*discordgo.Session, *discordgo.VoiceStateUpdate)

var ReadyLog = func(s *discordgo.Session, r *discordgo.Ready) {
	slog.Info("Bot is ready", "username", r.User.Username, "userID", r.User.ID)
}

type Handlers struct {
	Ready             ReadyHandler
	InteractionCreate InteractionCreateHandler
	VoiceStateUpdate  VoiceStateUpdateHandler
}

// NewSession creates a Discord session with the intents the announcer
// needs. Handlers are attached separately with Register so they can be
// built around the session itself.
func NewSession(token string) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}

	s.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildVoiceStates

	return s, nil
}

func Register(s *discordgo.Session, handlers Handlers) {
	if handlers.Ready != nil {
		s.AddHandler(handlers.Ready)
	}
	if handlers.InteractionCreate != nil {
		s.AddHandler(handlers.InteractionCreate)
	}
	if handlers.VoiceStateUpdate != nil {
		s.AddHandler(handlers.VoiceStateUpdate)
	}
}

// DisplayName returns the library key for a user in a guild: the
// nickname when set, the account username otherwise.
func DisplayName(s *discordgo.Session, guildID string, user *discordgo.User) string {
	if guildID == "" || user == nil {
		if user == nil {
			return ""
		}
		return user.Username
	}

	member, err := s.State.Member(guildID, user.ID)
	if err != nil {
		member, err = s.GuildMember(guildID, user.ID)
	}
	if err == nil && member.Nick != "" {
		return member.Nick
	}
	return user.Username
}
