package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/glizzus/needsmorejpeg/internal/playback"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PlayRecord is one item that started playing.
type PlayRecord struct {
	GuildID     string
	Kind        string
	Description string
	StartedAt   time.Time
}

type PlayLogRepository interface {
	Record(ctx context.Context, record PlayRecord) error
	Recent(ctx context.Context, guildID string, limit int) ([]PlayRecord, error)
}

type PostgresPlayLogRepository struct {
	db *pgxpool.Pool
}

var _ PlayLogRepository = (*PostgresPlayLogRepository)(nil)

func NewPostgresPlayLogRepository(db *pgxpool.Pool) *PostgresPlayLogRepository {
	return &PostgresPlayLogRepository{db: db}
}

func (r *PostgresPlayLogRepository) Record(ctx context.Context, record PlayRecord) error {
	const query = `
	INSERT INTO play_log (guild_id, kind, description, started_at)
	VALUES ($1, $2, $3, $4)
	`
	if _, err := r.db.Exec(ctx, query, record.GuildID, record.Kind, record.Description, record.StartedAt); err != nil {
		return fmt.Errorf("failed to record play: %w", err)
	}
	return nil
}

// Recent returns the guild's latest plays, newest first.
func (r *PostgresPlayLogRepository) Recent(ctx context.Context, guildID string, limit int) ([]PlayRecord, error) {
	const query = `
	SELECT guild_id, kind, description, started_at
	FROM play_log
	WHERE guild_id = $1
	ORDER BY started_at DESC, id DESC
	LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, guildID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query play log: %w", err)
	}
	defer rows.Close()

	var records []PlayRecord
	for rows.Next() {
		var rec PlayRecord
		if err := rows.Scan(&rec.GuildID, &rec.Kind, &rec.Description, &rec.StartedAt); err != nil {
			return nil, fmt.Errorf("failed to scan play: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate play log: %w", err)
	}
	return records, nil
}

// PlayLogObserver writes started items to a PlayLogRepository from its own
// goroutine so queues never wait on the database.
type PlayLogObserver struct {
	repo    PlayLogRepository
	records chan PlayRecord
	now     func() time.Time
	log     *slog.Logger
}

var _ playback.Observer = (*PlayLogObserver)(nil)

func NewPlayLogObserver(repo PlayLogRepository, logger *slog.Logger) *PlayLogObserver {
	return &PlayLogObserver{
		repo:    repo,
		records: make(chan PlayRecord, 64),
		now:     time.Now,
		log:     logger,
	}
}

// Run writes records until ctx is done.
func (o *PlayLogObserver) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case rec := <-o.records:
			if err := o.repo.Record(ctx, rec); err != nil {
				o.log.Warn("failed to record play", "guildID", rec.GuildID, "error", err)
			}
		}
	}
}

func (o *PlayLogObserver) ItemStarted(guildID string, item *playback.Item) {
	rec := PlayRecord{
		GuildID:     guildID,
		Kind:        string(item.Kind),
		Description: item.Description,
		StartedAt:   o.now().UTC(),
	}
	select {
	case o.records <- rec:
	default:
		o.log.Warn("play log backlog full, dropping record", "guildID", guildID)
	}
}

func (o *PlayLogObserver) ItemFailed(string, *playback.Item, error) {}

func (o *PlayLogObserver) QueueChanged(string, int) {}
