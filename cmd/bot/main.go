package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	awssession "github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/polly"
	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/needsmorejpeg/internal/blocklist"
	"github.com/glizzus/needsmorejpeg/internal/config"
	"github.com/glizzus/needsmorejpeg/internal/datalayer"
	"github.com/glizzus/needsmorejpeg/internal/generator"
	"github.com/glizzus/needsmorejpeg/internal/handler"
	"github.com/glizzus/needsmorejpeg/internal/media"
	"github.com/glizzus/needsmorejpeg/internal/metrics"
	"github.com/glizzus/needsmorejpeg/internal/opus"
	"github.com/glizzus/needsmorejpeg/internal/playback"
	"github.com/glizzus/needsmorejpeg/internal/repository"
	"github.com/glizzus/needsmorejpeg/internal/soundcron"
	"github.com/glizzus/needsmorejpeg/internal/speech"
	"github.com/glizzus/needsmorejpeg/internal/voice"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func newSpeechEngine(cfg *config.PlaybackConfig) (speech.Engine, error) {
	if cfg.SpeechEngine != config.SpeechEnginePolly {
		return &speech.Espeak{Path: cfg.EspeakPath}, nil
	}

	awsConfig, err := config.NewAWSConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	sess, err := awssession.NewSession(&aws.Config{Region: aws.String(awsConfig.Region)})
	if err != nil {
		return nil, fmt.Errorf("failed to create aws session: %w", err)
	}
	return speech.NewPolly(polly.New(sess), awsConfig.PollyVoice, awsConfig.PollyNeural), nil
}

// busiestChannel picks the voice channel with the most people for soundcrons
// that were not pinned to one.
func busiestChannel(presence *voice.Presence) soundcron.ChannelPicker {
	return func(guildID string) (string, error) {
		states, err := presence.VoiceStates(guildID)
		if err != nil {
			return "", err
		}
		return voice.MaxAttendedChannel(states, func(userID string) bool {
			return presence.IsBot(guildID, userID)
		}), nil
	}
}

func runBotForever() error {
	if err := config.LoadEnv(); err != nil {
		return fmt.Errorf("failed to load .env file: %w", err)
	}

	logConfig, err := config.NewLogConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load log config: %w", err)
	}
	logger := logConfig.Logger()
	slog.SetDefault(logger)

	discordConfig, err := config.NewDiscordConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load discord config: %w", err)
	}
	playbackConfig, err := config.NewPlaybackConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load playback config: %w", err)
	}
	postgresConfig, err := config.NewPostgresConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load postgres config: %w", err)
	}
	minioConfig, err := config.NewMinioConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load minio config: %w", err)
	}
	redisConfig, err := config.NewRedisConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load redis config: %w", err)
	}
	metricsConfig, err := config.NewMetricsConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load metrics config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := datalayer.NewPostgresPool(ctx, postgresConfig)
	if err != nil {
		return fmt.Errorf("failed to create postgres pool: %w", err)
	}
	defer pool.Close()
	if err := datalayer.MigratePostgres(pool); err != nil {
		return fmt.Errorf("failed to migrate postgres: %w", err)
	}

	minioStorage, err := datalayer.NewMinioStorage(minioConfig)
	if err != nil {
		return fmt.Errorf("failed to create minio storage: %w", err)
	}
	if err := minioStorage.EnsureBucket(ctx); err != nil {
		return fmt.Errorf("failed to ensure minio bucket: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     redisConfig.Addr,
		Password: redisConfig.Password,
		DB:       redisConfig.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	speechEngine, err := newSpeechEngine(playbackConfig)
	if err != nil {
		return err
	}

	encoder := &opus.Encoder{FFmpegPath: playbackConfig.FFmpegPath}
	items := media.NewItems(encoder, minioStorage, logger)
	downloader := media.NewDownloader(&http.Client{Timeout: 2 * time.Minute}, minioStorage, &generator.UUIDV4Generator{}, playbackConfig.MaxDownloadBytes)
	youtube := &media.YoutubeDL{Path: playbackConfig.YoutubeDLPath, TempDir: playbackConfig.TempDir}

	soundCronRepository := repository.NewPostgresSoundCronRepository(pool)
	playLogRepository := repository.NewPostgresPlayLogRepository(pool)
	playLog := repository.NewPlayLogObserver(playLogRepository, logger)
	botMetrics := metrics.New()

	// The interaction handler is wired after the registry exists, but the
	// session has to be created first for the voice connector.
	var bot *handler.Bot
	var autoLeave *handler.AutoLeave
	session, err := handler.NewSession(discordConfig.Token, handler.Handlers{
		Ready: handler.ReadyLog(logger),
		InteractionCreate: func(s *discordgo.Session, i *discordgo.InteractionCreate) {
			bot.Handle(s, i)
		},
		VoiceStateUpdate: func(s *discordgo.Session, u *discordgo.VoiceStateUpdate) {
			autoLeave.Handle(s, u)
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	registry := playback.NewRegistry(voice.NewConnector(session, logger), playback.Options{
		IdleGrace: playbackConfig.IdleGrace,
		Observer:  playback.Observers{botMetrics, playLog},
		Logger:    logger,
	})
	presence := voice.NewPresence(session.State)

	bot = handler.NewBot(handler.Deps{
		Queues:     registry,
		Voice:      presence,
		Speech:     speechEngine,
		Items:      items,
		Downloader: downloader,
		Youtube:    youtube,
		Blocklist:  blocklist.NewRedisBlocklist(rdb, redisConfig.BlocklistKey),
		SoundCrons: soundcron.NewService(soundCronRepository, downloader, minioStorage, &generator.UUIDV4Generator{}, logger),
		History:    playLogRepository,
		Metrics:    botMetrics,
		Logger:     logger,
	})
	autoLeave = handler.NewAutoLeave(registry, presence, playbackConfig.IdleGrace, logger)

	runner := soundcron.NewRunner(
		soundCronRepository,
		registry,
		busiestChannel(presence),
		func(sc repository.SoundCron) *playback.Item {
			return items.Stored(playback.KindSoundCron, media.SoundCronDescription(sc.Name), sc.BlobKey, false)
		},
		logger,
	)

	if err := session.Open(); err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn("failed to close session", "error", err)
		}
	}()

	if err := handler.EstablishCommands(session, discordConfig.CommandGuildID()); err != nil {
		return fmt.Errorf("failed to establish commands: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		playLog.Run(gctx)
		return nil
	})
	g.Go(func() error {
		runner.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return botMetrics.Serve(gctx, metricsConfig.Addr, logger)
	})

	<-gctx.Done()
	logger.Info("shutting down")
	stop()

	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := registry.Close(closeCtx); err != nil {
		logger.Warn("failed to close voice queues", "error", err)
	}
	return g.Wait()
}

func main() {
	if err := runBotForever(); err != nil {
		log.Fatalf("failed to run bot: %v", err)
	}
}
