package handler

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
)

var baseNewOptions = []*discordgo.ApplicationCommandOption{
	{
		Name:        "user",
		Type:        discordgo.ApplicationCommandOptionUser,
		Description: "The user the announcement is for.",
		Required:    true,
	},
	{
		Name:        "name",
		Type:        discordgo.ApplicationCommandOptionString,
		Description: "Name of the announcement.",
		Required:    true,
	},
}

var trailingNewOptions = []*discordgo.ApplicationCommandOption{
	{
		Name:        "filters",
		Type:        discordgo.ApplicationCommandOptionString,
		Description: "FFMPEG audio filters to transform the clip.",
		Required:    false,
	},
	{
		Name:        "override-length",
		Type:        discordgo.ApplicationCommandOptionBoolean,
		Description: "Override the length limit (admin only).",
		Required:    false,
	},
}

var fileNewOptions = append(append([]*discordgo.ApplicationCommandOption{}, baseNewOptions...),
	append([]*discordgo.ApplicationCommandOption{
		{
			Name:        "audio",
			Type:        discordgo.ApplicationCommandOptionAttachment,
			Description: "Audio file to use as the announcement.",
			Required:    true,
		},
	}, trailingNewOptions...)...,
)

var urlNewOptions = append(append([]*discordgo.ApplicationCommandOption{}, baseNewOptions...),
	append([]*discordgo.ApplicationCommandOption{
		{
			Name:        "url",
			Type:        discordgo.ApplicationCommandOptionString,
			Description: "Media URL for the announcement.",
			Required:    true,
		},
		{
			Name:        "start",
			Type:        discordgo.ApplicationCommandOptionString,
			Description: "Start time (SS, MM:SS or HH:MM:SS).",
			Required:    true,
		},
		{
			Name:        "end",
			Type:        discordgo.ApplicationCommandOptionString,
			Description: "End time (SS, MM:SS or HH:MM:SS).",
			Required:    true,
		},
	}, trailingNewOptions...)...,
)

// Commands is the set of slash commands the bot registers with Discord.
var Commands = []*discordgo.ApplicationCommand{
	{
		Name:        "announce",
		Description: "Manage voice announcements",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Name:        "new",
				Type:        discordgo.ApplicationCommandOptionSubCommandGroup,
				Description: "Submit a new announcement",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Name:        "file",
						Type:        discordgo.ApplicationCommandOptionSubCommand,
						Description: "Add a new announcement from a file attachment.",
						Options:     fileNewOptions,
					},
					{
						Name:        "url",
						Type:        discordgo.ApplicationCommandOptionSubCommand,
						Description: "Add a new announcement from a time-windowed URL.",
						Options:     urlNewOptions,
					},
				},
			},
			{
				Name:        "set",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Description: "Set the active announcement for your nickname.",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Name:        "name",
						Type:        discordgo.ApplicationCommandOptionString,
						Description: "The announcement to activate.",
						Required:    true,
					},
					{
						Name:        "user",
						Type:        discordgo.ApplicationCommandOptionUser,
						Description: "The user to set the announcement for. Defaults to you.",
						Required:    false,
					},
				},
			},
			{
				Name:        "random",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Description: "Toggle randomised announcement mode.",
			},
			{
				Name:        "list",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Description: "List the announcements for a nickname.",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Name:        "user",
						Type:        discordgo.ApplicationCommandOptionUser,
						Description: "The user whose announcements to list. Defaults to you.",
						Required:    false,
					},
				},
			},
		},
	},
}

func EstablishCommands(s *discordgo.Session, guildID string) error {
	_, err := s.ApplicationCommandBulkOverwrite(s.State.User.ID, guildID, Commands)
	if err != nil {
		return fmt.Errorf("failed to establish commands: %w", err)
	}
	return nil
}
