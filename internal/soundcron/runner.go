package soundcron

import (
	"context"
	"log/slog"
	"time"

	"github.com/glizzus/needsmorejpeg/internal/playback"
	"github.com/glizzus/needsmorejpeg/internal/repository"
	"github.com/glizzus/needsmorejpeg/internal/schedule"
)

const (
	// DefaultInterval is how often due jobs are claimed.
	DefaultInterval = 15 * time.Second
	// staleAfter drops runs missed by more than this, e.g. while the bot
	// was down.
	staleAfter = 2 * time.Minute
	claimLimit = 50
)

// Enqueuer is the part of the playback registry the runner needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, guildID, channelID string, item *playback.Item) error
}

// ChannelPicker chooses a voice channel for soundcrons without one. It
// returns "" when there is nobody to play to.
type ChannelPicker func(guildID string) (string, error)

// ItemFunc builds the queue item for a soundcron run.
type ItemFunc func(sc repository.SoundCron) *playback.Item

type Runner struct {
	repo     repository.SoundCronRepository
	queue    Enqueuer
	pick     ChannelPicker
	item     ItemFunc
	interval time.Duration
	log      *slog.Logger
}

func NewRunner(repo repository.SoundCronRepository, queue Enqueuer, pick ChannelPicker, item ItemFunc, logger *slog.Logger) *Runner {
	return &Runner{
		repo:     repo,
		queue:    queue,
		pick:     pick,
		item:     item,
		interval: DefaultInterval,
		log:      logger,
	}
}

// Run claims and plays due jobs until ctx is done.
func (r *Runner) Run(ctx context.Context) {
	schedule.RunEvery(ctx, r.interval, func(ctx context.Context, now time.Time) {
		if err := r.Tick(ctx, now); err != nil {
			r.log.Error("soundcron tick failed", "error", err)
		}
	})
}

// Tick plays every job due at now and schedules the following runs.
func (r *Runner) Tick(ctx context.Context, now time.Time) error {
	jobs, err := r.repo.ClaimDue(ctx, now, claimLimit)
	if err != nil {
		return err
	}

	refill := make(map[string]repository.SoundCronJob)
	for _, job := range jobs {
		if last, ok := refill[job.SoundCron.ID]; !ok || job.RunTime.After(last.RunTime) {
			refill[job.SoundCron.ID] = job
		}
		if now.Sub(job.RunTime) > staleAfter {
			r.log.Info("skipping missed soundcron run", "name", job.SoundCron.Name, "runTime", job.RunTime)
			continue
		}
		r.play(ctx, job.SoundCron)
	}

	for _, job := range refill {
		if err := r.repo.Refill(ctx, job.SoundCron, job.RunTime); err != nil {
			r.log.Error("failed to schedule soundcron runs", "name", job.SoundCron.Name, "error", err)
		}
	}
	return nil
}

func (r *Runner) play(ctx context.Context, sc repository.SoundCron) {
	logger := r.log.With("guildID", sc.GuildID, "name", sc.Name)

	channelID := sc.ChannelID
	if channelID == "" {
		picked, err := r.pick(sc.GuildID)
		if err != nil {
			logger.Warn("failed to pick a voice channel", "error", err)
			return
		}
		channelID = picked
	}
	if channelID == "" {
		logger.Debug("nobody in voice, skipping soundcron")
		return
	}

	if err := r.queue.Enqueue(ctx, sc.GuildID, channelID, r.item(sc)); err != nil {
		logger.Warn("failed to enqueue soundcron", "error", err)
		return
	}
	logger.Info("enqueued soundcron", "channelID", channelID)
}
