package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/yzarul/announcer/internal/datalayer"
	"github.com/yzarul/announcer/internal/ingest"
	"github.com/yzarul/announcer/internal/repository"
)

// HTTPClient is an abstraction for making HTTP requests.
// The implementation is usually Go's stdlib http.Client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// AttachmentDownloader fetches uploaded attachment bytes from Discord's CDN.
type AttachmentDownloader struct {
	httpClient HTTPClient
}

func (d *AttachmentDownloader) Download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download attachment: %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// NewRequest is a parsed "announce new" submission, either file- or
// URL-sourced.
type NewRequest struct {
	User     *discordgo.User
	ClipName string

	Attachment *discordgo.MessageAttachment

	URL   string
	Start string
	End   string

	Filters        string
	OverrideLength bool
}

// ParseNewRequest extracts a NewRequest from the options of an
// "announce new file" or "announce new url" subcommand.
func ParseNewRequest(
	resolved *discordgo.ApplicationCommandInteractionDataResolved,
	options []*discordgo.ApplicationCommandInteractionDataOption,
) (*NewRequest, error) {
	req := &NewRequest{}

	for _, option := range options {
		switch option.Name {
		case "user":
			if option.Type != discordgo.ApplicationCommandOptionUser {
				return nil, fmt.Errorf("invalid type for user option")
			}
			id := option.Value.(string)
			if resolved == nil || resolved.Users[id] == nil {
				return nil, fmt.Errorf("user option not resolved")
			}
			req.User = resolved.Users[id]
		case "name":
			req.ClipName = option.StringValue()
		case "audio":
			id := option.Value.(string)
			if resolved == nil || resolved.Attachments[id] == nil {
				return nil, fmt.Errorf("audio attachment not resolved")
			}
			req.Attachment = resolved.Attachments[id]
		case "url":
			req.URL = option.StringValue()
		case "start":
			req.Start = option.StringValue()
		case "end":
			req.End = option.StringValue()
		case "filters":
			req.Filters = option.StringValue()
		case "override-length":
			req.OverrideLength = option.BoolValue()
		}
	}

	if req.User == nil {
		return nil, fmt.Errorf("user option is required")
	}
	if req.ClipName == "" {
		return nil, fmt.Errorf("name option is required")
	}
	if req.Attachment == nil && req.URL == "" {
		return nil, fmt.Errorf("either an attachment or a url is required")
	}
	return req, nil
}

// MakeInteractionCreateHandler wires slash commands to the ingestion
// pipeline and the announcement store. Every interaction receives
// exactly one confirmation or one error message.
func MakeInteractionCreateHandler(
	pipeline *ingest.Pipeline,
	repo repository.AnnouncementStore,
	library *datalayer.Library,
) InteractionCreateHandler {
	downloader := &AttachmentDownloader{httpClient: http.DefaultClient}

	return func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		if i.Type != discordgo.InteractionApplicationCommand {
			return
		}
		command := i.ApplicationCommandData()
		if command.Name != "announce" || len(command.Options) == 0 {
			return
		}

		sub := command.Options[0]
		switch sub.Name {
		case "new":
			if len(sub.Options) == 0 {
				slog.Warn("No subcommand provided for announce new command")
				return
			}
			handleNew(s, i, pipeline, downloader, &command, sub.Options[0])
		case "set":
			handleSet(s, i, repo, library, &command, sub.Options)
		case "random":
			handleRandom(s, i, repo)
		case "list":
			handleList(s, i, library, &command, sub.Options)
		}
	}
}

func handleNew(
	s *discordgo.Session,
	i *discordgo.InteractionCreate,
	pipeline *ingest.Pipeline,
	downloader *AttachmentDownloader,
	command *discordgo.ApplicationCommandInteractionData,
	sub *discordgo.ApplicationCommandInteractionDataOption,
) {
	req, err := ParseNewRequest(command.Resolved, sub.Options)
	if err != nil {
		respondEphemeral(s, i, "Invalid announcement submission: "+err.Error())
		return
	}

	// Ingestion runs external tools, so acknowledge first and edit the
	// response when the pipeline finishes.
	if err := deferResponse(s, i); err != nil {
		slog.Error("failed to defer interaction response", "error", err)
		return
	}

	ctx := context.Background()
	displayName := DisplayName(s, i.GuildID, req.User)

	ingestReq := ingest.Request{
		Owner:          parseSnowflake(req.User.ID),
		Requester:      parseSnowflake(interactionUserID(i)),
		DisplayName:    displayName,
		ClipName:       req.ClipName,
		Filters:        req.Filters,
		OverrideLength: req.OverrideLength,
	}

	if req.Attachment != nil {
		data, err := downloader.Download(ctx, req.Attachment.URL)
		if err != nil {
			slog.Error("failed to download attachment", "url", req.Attachment.URL, "error", err)
			editResponse(s, i, "Error downloading attachment")
			return
		}
		ingestReq.Source = ingest.Source{Data: data}
	} else {
		start, err := ingest.ParseTimestamp(req.Start)
		if err != nil {
			editResponse(s, i, "Invalid start time")
			return
		}
		end, err := ingest.ParseTimestamp(req.End)
		if err != nil {
			editResponse(s, i, "Invalid end time")
			return
		}
		ingestReq.Source = ingest.Source{URL: req.URL, Start: start, End: end}
	}

	clip, err := pipeline.Ingest(ctx, ingestReq)
	if err != nil {
		editResponse(s, i, ingestErrorMessage(err))
		return
	}

	editResponse(s, i, fmt.Sprintf("Successfully added `%s` for %s", clip, displayName))
}

func handleSet(
	s *discordgo.Session,
	i *discordgo.InteractionCreate,
	repo repository.AnnouncementStore,
	library *datalayer.Library,
	command *discordgo.ApplicationCommandInteractionData,
	options []*discordgo.ApplicationCommandInteractionDataOption,
) {
	var clip string
	user := interactionUser(i)
	for _, option := range options {
		switch option.Name {
		case "name":
			clip = option.StringValue()
		case "user":
			id := option.Value.(string)
			if command.Resolved != nil && command.Resolved.Users[id] != nil {
				user = command.Resolved.Users[id]
			}
		}
	}

	displayName := DisplayName(s, i.GuildID, user)
	if !library.HasClip(displayName, clip) {
		respondEphemeral(s, i, "Please choose a valid announcement")
		return
	}

	if err := repo.SetActive(context.Background(), displayName, parseSnowflake(user.ID), clip); err != nil {
		slog.Error("failed to set active announcement", "name", displayName, "error", err)
		respondEphemeral(s, i, "Failed to set announcement")
		return
	}

	respond(s, i, fmt.Sprintf("Set announcement `%s` for %s", clip, displayName))
}

func handleRandom(s *discordgo.Session, i *discordgo.InteractionCreate, repo repository.AnnouncementStore) {
	user := interactionUser(i)
	displayName := DisplayName(s, i.GuildID, user)

	err := repo.ToggleRandom(context.Background(), displayName, parseSnowflake(user.ID))
	if errors.Is(err, repository.ErrUnknownName) {
		respondEphemeral(s, i, "No announcements exist for "+displayName)
		return
	}
	if err != nil {
		slog.Error("failed to toggle random", "name", displayName, "error", err)
		respondEphemeral(s, i, "Failed to toggle random mode")
		return
	}

	respond(s, i, "Toggled random mode for "+displayName)
}

func handleList(
	s *discordgo.Session,
	i *discordgo.InteractionCreate,
	library *datalayer.Library,
	command *discordgo.ApplicationCommandInteractionData,
	options []*discordgo.ApplicationCommandInteractionDataOption,
) {
	user := interactionUser(i)
	for _, option := range options {
		if option.Name == "user" {
			id := option.Value.(string)
			if command.Resolved != nil && command.Resolved.Users[id] != nil {
				user = command.Resolved.Users[id]
			}
		}
	}

	displayName := DisplayName(s, i.GuildID, user)
	clips, err := library.ClipNames(displayName)
	if err != nil {
		slog.Error("failed to list announcements", "name", displayName, "error", err)
		respondEphemeral(s, i, "Failed to list announcements")
		return
	}
	if len(clips) == 0 {
		respond(s, i, "No announcements found for "+displayName)
		return
	}

	respond(s, i, fmt.Sprintf("Announcements for %s:\n`%s`", displayName, strings.Join(clips, "`\n`")))
}

// ingestErrorMessage maps pipeline errors to the single user-visible
// message; details stay in the log.
func ingestErrorMessage(err error) string {
	var validation *ingest.ValidationError
	if errors.As(err, &validation) {
		return validation.Reason
	}

	slog.Error("ingestion failed", "error", err)
	return "Failed to process the announcement"
}

func interactionUser(i *discordgo.InteractionCreate) *discordgo.User {
	if i.Member != nil {
		return i.Member.User
	}
	return i.User
}

func interactionUserID(i *discordgo.InteractionCreate) string {
	if user := interactionUser(i); user != nil {
		return user.ID
	}
	return ""
}

func parseSnowflake(id string) int64 {
	v, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return 0
	}
	return int64(v)
}

func respond(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: content},
	})
	if err != nil {
		slog.Error("failed to respond to interaction", "error", err)
	}
}

func respondEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		slog.Error("failed to respond to interaction", "error", err)
	}
}

func deferResponse(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
}

func editResponse(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	_, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Content: &content,
	})
	if err != nil {
		slog.Error("failed to edit interaction response", "error", err)
	}
}
