package main

import (
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/glizzus/needsmorejpeg/internal/blocklist"
	"github.com/glizzus/needsmorejpeg/internal/config"
	"github.com/glizzus/needsmorejpeg/internal/datalayer"
	"github.com/glizzus/needsmorejpeg/internal/generator"
	"github.com/glizzus/needsmorejpeg/internal/media"
	"github.com/glizzus/needsmorejpeg/internal/repository"
	"github.com/glizzus/needsmorejpeg/internal/schedule"
	"github.com/glizzus/needsmorejpeg/internal/soundcron"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
)

var guildFlag = &cli.StringFlag{
	Name:     "guild-id",
	Usage:    "ID of the guild",
	Required: true,
}

func openPostgres(c *cli.Context) (*pgxpool.Pool, error) {
	cfg, err := config.NewPostgresConfigFromEnv()
	if err != nil {
		return nil, err
	}
	pool, err := datalayer.NewPostgresPool(c.Context, cfg)
	if err != nil {
		return nil, err
	}
	if err := datalayer.MigratePostgres(pool); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func openBlocklist() (*blocklist.RedisBlocklist, func(), error) {
	cfg, err := config.NewRedisConfigFromEnv()
	if err != nil {
		return nil, nil, err
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return blocklist.NewRedisBlocklist(rdb, cfg.BlocklistKey), func() { _ = rdb.Close() }, nil
}

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List what recently played in a guild",
		Flags: []cli.Flag{
			guildFlag,
			&cli.IntFlag{Name: "count", Value: 10, Usage: "How many plays to show"},
		},
		Action: func(c *cli.Context) error {
			pool, err := openPostgres(c)
			if err != nil {
				return cli.Exit("Failed to connect to postgres: "+err.Error(), 1)
			}
			defer pool.Close()

			records, err := repository.NewPostgresPlayLogRepository(pool).Recent(c.Context, c.String("guild-id"), c.Int("count"))
			if err != nil {
				return cli.Exit("Failed to read history: "+err.Error(), 1)
			}
			if len(records) == 0 {
				log.Println("Nothing has been played yet.")
				return nil
			}
			for _, rec := range records {
				fmt.Printf("%s\t%s\t%s\n", rec.StartedAt.Format(time.DateTime), rec.Kind, rec.Description)
			}
			return nil
		},
	}
}

func soundCronCommand() *cli.Command {
	withService := func(c *cli.Context, fn func(*soundcron.Service) error) error {
		pool, err := openPostgres(c)
		if err != nil {
			return cli.Exit("Failed to connect to postgres: "+err.Error(), 1)
		}
		defer pool.Close()

		playbackConfig, err := config.NewPlaybackConfigFromEnv()
		if err != nil {
			return cli.Exit("Failed to load playback config: "+err.Error(), 1)
		}
		minioConfig, err := config.NewMinioConfigFromEnv()
		if err != nil {
			return cli.Exit("Failed to load minio config: "+err.Error(), 1)
		}
		storage, err := datalayer.NewMinioStorage(minioConfig)
		if err != nil {
			return cli.Exit("Failed to create minio storage: "+err.Error(), 1)
		}
		if err := storage.EnsureBucket(c.Context); err != nil {
			return cli.Exit("Failed to ensure minio bucket: "+err.Error(), 1)
		}

		downloader := media.NewDownloader(http.DefaultClient, storage, &generator.UUIDV4Generator{}, playbackConfig.MaxDownloadBytes)
		service := soundcron.NewService(repository.NewPostgresSoundCronRepository(pool), downloader, storage, &generator.UUIDV4Generator{}, slog.Default())
		return fn(service)
	}

	return &cli.Command{
		Name:  "soundcron",
		Usage: "Manage soundcrons without Discord",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List the soundcrons of a guild",
				Flags: []cli.Flag{guildFlag},
				Action: func(c *cli.Context) error {
					return withService(c, func(s *soundcron.Service) error {
						soundCrons, err := s.List(c.Context, c.String("guild-id"))
						if err != nil {
							return cli.Exit("Failed to list soundcrons: "+err.Error(), 1)
						}
						if len(soundCrons) == 0 {
							log.Println("No soundcrons found.")
							return nil
						}
						for _, sc := range soundCrons {
							next, _ := schedule.NextRunTimes(sc.Cron, 1)
							line := fmt.Sprintf("%s\t%s", sc.Name, sc.Cron)
							if len(next) > 0 {
								line += "\tnext " + next[0].Format(time.DateTime)
							}
							fmt.Println(line)
						}
						return nil
					})
				},
			},
			{
				Name:  "add",
				Usage: "Download a clip and play it on a cron schedule",
				Flags: []cli.Flag{
					guildFlag,
					&cli.StringFlag{Name: "name", Required: true},
					&cli.StringFlag{Name: "cron", Required: true, Usage: "e.g. '0 12 * * *'"},
					&cli.StringFlag{Name: "url", Required: true, Usage: "Where to download the clip from"},
					&cli.StringFlag{Name: "channel-id", Usage: "Voice channel to play in; defaults to the busiest one"},
				},
				Action: func(c *cli.Context) error {
					return withService(c, func(s *soundcron.Service) error {
						sc, err := s.Add(c.Context, soundcron.AddRequest{
							GuildID:   c.String("guild-id"),
							ChannelID: c.String("channel-id"),
							Name:      c.String("name"),
							Cron:      c.String("cron"),
							SourceURL: c.String("url"),
						})
						if err != nil {
							return cli.Exit("Failed to add soundcron: "+err.Error(), 1)
						}
						log.Printf("Added soundcron %s (%s)", sc.Name, sc.ID)
						return nil
					})
				},
			},
			{
				Name:  "delete",
				Usage: "Delete a soundcron and its clip",
				Flags: []cli.Flag{
					guildFlag,
					&cli.StringFlag{Name: "name", Required: true},
				},
				Action: func(c *cli.Context) error {
					return withService(c, func(s *soundcron.Service) error {
						if err := s.Delete(c.Context, c.String("guild-id"), c.String("name")); err != nil {
							return cli.Exit("Failed to delete soundcron: "+err.Error(), 1)
						}
						log.Println("Soundcron deleted.")
						return nil
					})
				},
			},
		},
	}
}

func blocklistCommand() *cli.Command {
	edit := func(name, usage, done string, apply func(*blocklist.RedisBlocklist, *cli.Context, string) error) *cli.Command {
		return &cli.Command{
			Name:      name,
			Usage:     usage,
			ArgsUsage: "<url or search>",
			Action: func(c *cli.Context) error {
				source := c.Args().First()
				if source == "" {
					return cli.Exit("Please provide a source", 1)
				}
				b, closeRedis, err := openBlocklist()
				if err != nil {
					return cli.Exit("Failed to load redis config: "+err.Error(), 1)
				}
				defer closeRedis()
				if err := apply(b, c, source); err != nil {
					return cli.Exit("Failed to update blocklist: "+err.Error(), 1)
				}
				log.Println(done)
				return nil
			},
		}
	}

	return &cli.Command{
		Name:  "blocklist",
		Usage: "Manage sources the bot refuses to play",
		Subcommands: []*cli.Command{
			edit("add", "Block a source", "Source blocked.", func(b *blocklist.RedisBlocklist, c *cli.Context, source string) error {
				return b.Add(c.Context, source)
			}),
			edit("remove", "Unblock a source", "Source unblocked.", func(b *blocklist.RedisBlocklist, c *cli.Context, source string) error {
				return b.Remove(c.Context, source)
			}),
		},
	}
}

func main() {
	if err := config.LoadEnv(); err != nil {
		log.Fatalf("Failed to load .env file: %v", err)
	}

	app := &cli.App{
		Name:        "needsmorejpeg-cli",
		Description: "Operator tooling for needsmorejpeg that works without Discord",
		Commands: []*cli.Command{
			historyCommand(),
			soundCronCommand(),
			blocklistCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Error running CLI: %v", err)
	}
}
