package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
	"github.com/yzarul/announcer/internal/config"
	"github.com/yzarul/announcer/internal/datalayer"
	"github.com/yzarul/announcer/internal/generator"
	"github.com/yzarul/announcer/internal/ingest"
	"github.com/yzarul/announcer/internal/repository"
	"github.com/yzarul/announcer/internal/resolver"
	"github.com/yzarul/announcer/internal/tools"
)

type env struct {
	repo     *repository.PostgresAnnouncementRepository
	library  *datalayer.Library
	pipeline *ingest.Pipeline
	resolver *resolver.Resolver
}

func setup() (*env, error) {
	if err := config.LoadEnv(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	postgresConfig, err := config.NewPostgresConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load postgres config: %w", err)
	}

	pool, err := datalayer.NewPostgresPool(context.Background(), postgresConfig.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := datalayer.MigratePostgres(pool); err != nil {
		return nil, fmt.Errorf("failed to migrate postgres: %w", err)
	}

	audioConfig, err := config.NewAudioConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load audio config: %w", err)
	}

	library := datalayer.NewLibrary(audioConfig)
	if err := library.EnsureRoots(); err != nil {
		return nil, fmt.Errorf("failed to prepare audio directories: %w", err)
	}

	repo := repository.NewPostgresAnnouncementRepository(pool)
	toolbox := tools.NewToolbox(&tools.ExecRunner{Timeout: audioConfig.ToolTimeout})

	return &env{
		repo:    repo,
		library: library,
		pipeline: ingest.NewPipeline(repo, library, toolbox, &generator.UUIDV4Generator{}, ingest.Limits{
			ClipBound: audioConfig.ClipBound,
			WindowCap: audioConfig.WindowCap,
		}),
		resolver: resolver.New(repo, library, toolbox),
	}, nil
}

var nameFlag = &cli.StringFlag{
	Name:     "name",
	Usage:    "Display name the announcement library is keyed by",
	Required: true,
}

var userFlag = &cli.Int64Flag{
	Name:     "user",
	Usage:    "Numeric user ID owning the selection",
	Required: true,
}

func main() {
	app := &cli.App{
		Name:        "announcer-cli",
		Description: "A development CLI for exercising the announcer core without Discord",
		Commands: []*cli.Command{
			{
				Name:  "ingest",
				Usage: "Ingest a local audio file into a display name's library",
				Flags: []cli.Flag{
					nameFlag,
					userFlag,
					&cli.StringFlag{Name: "clip", Usage: "Name of the new announcement", Required: true},
					&cli.StringFlag{Name: "file", Usage: "Path of the audio file to ingest", Required: true},
					&cli.StringFlag{Name: "filters", Usage: "Optional ffmpeg audio filter chain"},
				},
				Action: func(c *cli.Context) error {
					e, err := setup()
					if err != nil {
						return cli.Exit(err.Error(), 1)
					}

					data, err := os.ReadFile(c.String("file"))
					if err != nil {
						return cli.Exit("Failed to read audio file: "+err.Error(), 1)
					}

					clip, err := e.pipeline.Ingest(c.Context, ingest.Request{
						Owner:       c.Int64("user"),
						Requester:   c.Int64("user"),
						DisplayName: c.String("name"),
						ClipName:    c.String("clip"),
						Source:      ingest.Source{Data: data},
						Filters:     c.String("filters"),
					})
					if err != nil {
						return cli.Exit("Ingestion failed: "+err.Error(), 1)
					}

					log.Printf("Published clip %q", clip)
					return nil
				},
			},
			{
				Name:  "set",
				Usage: "Set the active announcement for a (name, user) pair",
				Flags: []cli.Flag{
					nameFlag,
					userFlag,
					&cli.StringFlag{Name: "clip", Usage: "Announcement to activate", Required: true},
				},
				Action: func(c *cli.Context) error {
					e, err := setup()
					if err != nil {
						return cli.Exit(err.Error(), 1)
					}

					name, clip := c.String("name"), c.String("clip")
					if !e.library.HasClip(name, clip) {
						return cli.Exit("No such clip in the library", 1)
					}
					if err := e.repo.SetActive(c.Context, name, c.Int64("user"), clip); err != nil {
						return cli.Exit("Failed to set active clip: "+err.Error(), 1)
					}

					log.Printf("Active clip for %q is now %q", name, clip)
					return nil
				},
			},
			{
				Name:  "random",
				Usage: "Toggle random mode for a (name, user) pair",
				Flags: []cli.Flag{nameFlag, userFlag},
				Action: func(c *cli.Context) error {
					e, err := setup()
					if err != nil {
						return cli.Exit(err.Error(), 1)
					}

					if err := e.repo.ToggleRandom(c.Context, c.String("name"), c.Int64("user")); err != nil {
						return cli.Exit("Failed to toggle random: "+err.Error(), 1)
					}

					record, err := e.repo.Get(c.Context, c.String("name"), c.Int64("user"))
					if err != nil {
						return cli.Exit("Failed to read back record: "+err.Error(), 1)
					}
					log.Printf("Random mode for %q is now %v", record.Name, record.Random)
					return nil
				},
			},
			{
				Name:  "clips",
				Usage: "List the published clips for a display name",
				Flags: []cli.Flag{nameFlag},
				Action: func(c *cli.Context) error {
					e, err := setup()
					if err != nil {
						return cli.Exit(err.Error(), 1)
					}

					clips, err := e.library.ClipNames(c.String("name"))
					if err != nil {
						return cli.Exit("Failed to list clips: "+err.Error(), 1)
					}
					if len(clips) == 0 {
						log.Println("No clips found.")
						return nil
					}
					for _, clip := range clips {
						log.Println(clip)
					}
					return nil
				},
			},
			{
				Name:  "resolve",
				Usage: "Print the path that would be played for a (name, user) pair",
				Flags: []cli.Flag{nameFlag, userFlag},
				Action: func(c *cli.Context) error {
					e, err := setup()
					if err != nil {
						return cli.Exit(err.Error(), 1)
					}

					path, err := e.resolver.Resolve(c.Context, c.String("name"), c.Int64("user"))
					if err != nil {
						return cli.Exit("Failed to resolve: "+err.Error(), 1)
					}

					fmt.Println(path)
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Error running CLI: %v", err)
	}
}
