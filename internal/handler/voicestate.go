package handler

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"github.com/yzarul/announcer/internal/voice"
)

// SessionPermissions answers connect-permission queries from the
// session's state cache.
type SessionPermissions struct {
	Session *discordgo.Session
}

var _ voice.PermissionQuery = (*SessionPermissions)(nil)

func (p *SessionPermissions) CanConnect(guildID, channelID string) bool {
	perms, err := p.Session.State.UserChannelPermissions(p.Session.State.User.ID, channelID)
	if err != nil {
		perms, err = p.Session.UserChannelPermissions(p.Session.State.User.ID, channelID)
		if err != nil {
			return false
		}
	}
	return perms&discordgo.PermissionVoiceConnect != 0
}

// SessionOccupancy enumerates voice channel occupants from the session's
// state cache.
type SessionOccupancy struct {
	Session *discordgo.Session
}

var _ voice.Occupancy = (*SessionOccupancy)(nil)

func (o *SessionOccupancy) Occupants(guildID, channelID string) []voice.Member {
	guild, err := o.Session.State.Guild(guildID)
	if err != nil {
		return nil
	}

	var members []voice.Member
	for _, vs := range guild.VoiceStates {
		if vs.ChannelID != channelID {
			continue
		}
		bot := false
		if member, err := o.Session.State.Member(guildID, vs.UserID); err == nil && member.User != nil {
			bot = member.User.Bot
		}
		members = append(members, voice.Member{UserID: vs.UserID, Bot: bot})
	}
	return members
}

// MakeVoiceStateHandler adapts discordgo voice-state updates into
// controller events. Each event is handled on its own goroutine so a
// blocking transport or resolver call never stalls the gateway
// dispatcher.
func MakeVoiceStateHandler(controller *voice.Controller) VoiceStateUpdateHandler {
	return func(s *discordgo.Session, vsu *discordgo.VoiceStateUpdate) {
		if vsu.UserID == s.State.User.ID {
			return
		}

		user := voiceStateUser(s, vsu)
		if user == nil {
			return
		}

		ev := voice.Event{
			GuildID:      vsu.GuildID,
			UserID:       vsu.UserID,
			DisplayName:  DisplayName(s, vsu.GuildID, user),
			Bot:          user.Bot,
			NewChannelID: vsu.ChannelID,
			NewMuted:     vsu.SelfMute || vsu.Mute,
		}
		if prev := vsu.BeforeUpdate; prev != nil {
			ev.PrevChannelID = prev.ChannelID
			ev.PrevMuted = prev.SelfMute || prev.Mute
		}

		go controller.HandleEvent(context.Background(), ev)
	}
}

func voiceStateUser(s *discordgo.Session, vsu *discordgo.VoiceStateUpdate) *discordgo.User {
	if vsu.Member != nil && vsu.Member.User != nil {
		return vsu.Member.User
	}
	if member, err := s.State.Member(vsu.GuildID, vsu.UserID); err == nil {
		return member.User
	}
	if member, err := s.GuildMember(vsu.GuildID, vsu.UserID); err == nil {
		return member.User
	}
	return nil
}
