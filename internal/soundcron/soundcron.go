// Package soundcron plays stored clips into guild voice queues on cron
// schedules.
package soundcron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/glizzus/needsmorejpeg/internal/datalayer"
	"github.com/glizzus/needsmorejpeg/internal/generator"
	"github.com/glizzus/needsmorejpeg/internal/repository"
	"github.com/glizzus/needsmorejpeg/internal/schedule"
)

var ErrInvalidName = errors.New("soundcron names are 1-32 letters, digits, dashes or underscores")

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,32}$`)

// Fetcher stores a remote file and returns its blob key.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (string, error)
}

// Service manages a guild's soundcrons.
type Service struct {
	repo    repository.SoundCronRepository
	fetcher Fetcher
	storage datalayer.BlobStorage
	ids     generator.Generator[string]
	log     *slog.Logger
}

func NewService(repo repository.SoundCronRepository, fetcher Fetcher, storage datalayer.BlobStorage, ids generator.Generator[string], logger *slog.Logger) *Service {
	return &Service{
		repo:    repo,
		fetcher: fetcher,
		storage: storage,
		ids:     ids,
		log:     logger,
	}
}

type AddRequest struct {
	GuildID   string
	ChannelID string
	Name      string
	Cron      string
	// SourceURL is where the clip is downloaded from.
	SourceURL string
}

// Add downloads the clip and schedules it.
func (s *Service) Add(ctx context.Context, req AddRequest) (repository.SoundCron, error) {
	if !namePattern.MatchString(req.Name) {
		return repository.SoundCron{}, ErrInvalidName
	}
	if err := schedule.ValidateCron(req.Cron); err != nil {
		return repository.SoundCron{}, err
	}

	id, err := s.ids.Next()
	if err != nil {
		return repository.SoundCron{}, fmt.Errorf("failed to generate soundcron id: %w", err)
	}
	key, err := s.fetcher.Fetch(ctx, req.SourceURL)
	if err != nil {
		return repository.SoundCron{}, err
	}

	sc := repository.SoundCron{
		ID:        id,
		Name:      req.Name,
		GuildID:   req.GuildID,
		ChannelID: req.ChannelID,
		Cron:      req.Cron,
		BlobKey:   key,
	}
	if err := s.repo.Save(ctx, sc); err != nil {
		if rerr := s.storage.Remove(context.WithoutCancel(ctx), key); rerr != nil {
			s.log.Warn("failed to remove clip of unsaved soundcron", "key", key, "error", rerr)
		}
		return repository.SoundCron{}, err
	}
	s.log.Info("added soundcron", "guildID", sc.GuildID, "name", sc.Name, "cron", sc.Cron)
	return sc, nil
}

func (s *Service) List(ctx context.Context, guildID string) ([]repository.SoundCron, error) {
	return s.repo.List(ctx, guildID)
}

// Delete unschedules the named soundcron and removes its clip.
func (s *Service) Delete(ctx context.Context, guildID, name string) error {
	sc, err := s.repo.Delete(ctx, guildID, name)
	if err != nil {
		return err
	}
	if err := s.storage.Remove(ctx, sc.BlobKey); err != nil {
		s.log.Warn("failed to remove clip of deleted soundcron", "key", sc.BlobKey, "error", err)
	}
	return nil
}
