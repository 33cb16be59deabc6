package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"

	"github.com/yzarul/announcer/internal/config"
	"github.com/yzarul/announcer/internal/datalayer"
	"github.com/yzarul/announcer/internal/generator"
	"github.com/yzarul/announcer/internal/handler"
	"github.com/yzarul/announcer/internal/ingest"
	"github.com/yzarul/announcer/internal/repository"
	"github.com/yzarul/announcer/internal/resolver"
	"github.com/yzarul/announcer/internal/tools"
	"github.com/yzarul/announcer/internal/voice"
)

func runBotForever() error {
	if err := config.LoadEnv(); err != nil {
		if os.IsNotExist(err) {
			slog.Warn("No .env file found, continuing without it")
		} else {
			return fmt.Errorf("failed to load .env file: %w", err)
		}
	}

	postgresConfig, err := config.NewPostgresConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load postgres config: %w", err)
	}

	pool, err := datalayer.NewPostgresPool(context.Background(), postgresConfig.DSN())
	if err != nil {
		return fmt.Errorf("failed to create postgres pool: %w", err)
	}
	defer pool.Close()

	if err := datalayer.MigratePostgres(pool); err != nil {
		return fmt.Errorf("failed to migrate postgres: %w", err)
	}

	discordConfig, err := config.NewDiscordConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load discord config: %w", err)
	}

	audioConfig, err := config.NewAudioConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load audio config: %w", err)
	}

	library := datalayer.NewLibrary(audioConfig)
	if err := library.EnsureRoots(); err != nil {
		return fmt.Errorf("failed to prepare audio directories: %w", err)
	}

	repo := repository.NewPostgresAnnouncementRepository(pool)
	toolbox := tools.NewToolbox(&tools.ExecRunner{Timeout: audioConfig.ToolTimeout})

	pipeline := ingest.NewPipeline(repo, library, toolbox, &generator.UUIDV4Generator{}, ingest.Limits{
		ClipBound:   audioConfig.ClipBound,
		WindowCap:   audioConfig.WindowCap,
		AdminUserID: discordConfig.AdminUserID,
	})
	announcer := resolver.New(repo, library, toolbox)

	pairRules, err := voice.ParsePairRules(discordConfig.Pairs)
	if err != nil {
		return fmt.Errorf("failed to parse pair rules: %w", err)
	}

	session, err := handler.NewSession(discordConfig.Token)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	transport := voice.NewDiscordTransport(session)
	controller := voice.NewController(
		transport,
		announcer,
		&handler.SessionPermissions{Session: session},
		&handler.SessionOccupancy{Session: session},
		pairRules,
	)

	handler.Register(session, handler.Handlers{
		Ready:             handler.ReadyLog,
		InteractionCreate: handler.MakeInteractionCreateHandler(pipeline, repo, library),
		VoiceStateUpdate:  handler.MakeVoiceStateHandler(controller),
	})

	if err := session.Open(); err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			slog.Warn("failed to close session", "error", err)
		}
	}()

	if err := handler.EstablishCommands(session, discordConfig.GuildID); err != nil {
		return fmt.Errorf("failed to establish commands: %w", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	<-stop
	return nil
}

func main() {
	if err := runBotForever(); err != nil {
		log.Fatalf("failed to run bot: %v", err)
	}
}
