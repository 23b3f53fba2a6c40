package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/glizzus/needsmorejpeg/internal/schedule"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a guild already has a soundcron
	// with the same name.
	ErrAlreadyExists = errors.New("already exists")
)

const uniqueViolation = "23505"

// UpcomingJobs is how many future runs are kept scheduled per soundcron.
const UpcomingJobs = 5

// SoundCron plays a stored clip in a guild on a cron schedule.
type SoundCron struct {
	ID      string
	Name    string
	GuildID string
	// ChannelID pins the voice channel. Empty means the busiest channel at
	// run time.
	ChannelID string
	Cron      string
	BlobKey   string
	CreatedAt time.Time
}

// SoundCronJob is one scheduled run of a soundcron.
type SoundCronJob struct {
	ID        int64
	RunTime   time.Time
	SoundCron SoundCron
}

type SoundCronRepository interface {
	Save(ctx context.Context, soundCron SoundCron) error
	List(ctx context.Context, guildID string) ([]SoundCron, error)
	Delete(ctx context.Context, guildID, name string) (SoundCron, error)
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]SoundCronJob, error)
	Refill(ctx context.Context, soundCron SoundCron, after time.Time) error
}

type PostgresSoundCronRepository struct {
	db *pgxpool.Pool
}

var _ SoundCronRepository = (*PostgresSoundCronRepository)(nil)

func NewPostgresSoundCronRepository(db *pgxpool.Pool) *PostgresSoundCronRepository {
	return &PostgresSoundCronRepository{db: db}
}

func soundCronToRowParams(soundCron SoundCron) []any {
	return []any{
		soundCron.ID,
		soundCron.Name,
		soundCron.GuildID,
		soundCron.ChannelID,
		soundCron.Cron,
		soundCron.BlobKey,
	}
}

const soundCronJobsQuery = `
INSERT INTO soundcron_job (soundcron_id, run_time)
SELECT $1, unnest($2::timestamptz[])
ON CONFLICT (soundcron_id, run_time) DO NOTHING
`

// Save upserts soundCron and schedules its next runs.
func (r *PostgresSoundCronRepository) Save(ctx context.Context, soundCron SoundCron) error {
	const soundCronQuery = `
	INSERT INTO soundcron (id, soundcron_name, guild_id, channel_id, cron, blob_key)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (id) DO UPDATE SET
		soundcron_name = EXCLUDED.soundcron_name,
		guild_id = EXCLUDED.guild_id,
		channel_id = EXCLUDED.channel_id,
		cron = EXCLUDED.cron,
		blob_key = EXCLUDED.blob_key
	`

	runTimes, err := schedule.NextRunTimes(soundCron.Cron, UpcomingJobs)
	if err != nil {
		return fmt.Errorf("failed to get next run times: %w", err)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			slog.Error("failed to rollback transaction", "error", err)
		}
	}()

	if _, err := tx.Exec(ctx, soundCronQuery, soundCronToRowParams(soundCron)...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("soundcron %q: %w", soundCron.Name, ErrAlreadyExists)
		}
		return fmt.Errorf("failed to execute sound cron query: %w", err)
	}
	if _, err := tx.Exec(ctx, soundCronJobsQuery, soundCron.ID, runTimes); err != nil {
		return fmt.Errorf("failed to execute sound cron jobs query: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

const soundCronColumns = `s.id::text, s.soundcron_name, s.guild_id, s.channel_id, s.cron, s.blob_key, s.created_at`

func scanSoundCron(row pgx.Row, extra ...any) (SoundCron, error) {
	var sc SoundCron
	dest := append([]any{&sc.ID, &sc.Name, &sc.GuildID, &sc.ChannelID, &sc.Cron, &sc.BlobKey, &sc.CreatedAt}, extra...)
	err := row.Scan(dest...)
	return sc, err
}

func (r *PostgresSoundCronRepository) List(ctx context.Context, guildID string) ([]SoundCron, error) {
	query := `SELECT ` + soundCronColumns + ` FROM soundcron s WHERE s.guild_id = $1 ORDER BY s.soundcron_name`

	rows, err := r.db.Query(ctx, query, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to query soundcrons: %w", err)
	}
	defer rows.Close()

	var soundCrons []SoundCron
	for rows.Next() {
		sc, err := scanSoundCron(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan soundcron: %w", err)
		}
		soundCrons = append(soundCrons, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate soundcrons: %w", err)
	}
	return soundCrons, nil
}

// Delete removes the named soundcron and its jobs and returns it, so the
// caller can drop the clip.
func (r *PostgresSoundCronRepository) Delete(ctx context.Context, guildID, name string) (SoundCron, error) {
	query := `DELETE FROM soundcron s WHERE s.guild_id = $1 AND s.soundcron_name = $2 RETURNING ` + soundCronColumns

	sc, err := scanSoundCron(r.db.QueryRow(ctx, query, guildID, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return SoundCron{}, fmt.Errorf("soundcron %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return SoundCron{}, fmt.Errorf("failed to delete soundcron: %w", err)
	}
	return sc, nil
}

// ClaimDue marks up to limit unclaimed jobs due at now as claimed and
// returns them. A job is handed out once even with several bots running.
func (r *PostgresSoundCronRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]SoundCronJob, error) {
	query := `
	WITH due AS (
		SELECT id FROM soundcron_job
		WHERE claimed_at IS NULL AND run_time <= $1
		ORDER BY run_time
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	)
	UPDATE soundcron_job j
	SET claimed_at = $1
	FROM due, soundcron s
	WHERE j.id = due.id AND s.id = j.soundcron_id
	RETURNING ` + soundCronColumns + `, j.id, j.run_time
	`

	rows, err := r.db.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim soundcron jobs: %w", err)
	}
	defer rows.Close()

	var jobs []SoundCronJob
	for rows.Next() {
		var job SoundCronJob
		sc, err := scanSoundCron(rows, &job.ID, &job.RunTime)
		if err != nil {
			return nil, fmt.Errorf("failed to scan soundcron job: %w", err)
		}
		job.SoundCron = sc
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate soundcron jobs: %w", err)
	}
	return jobs, nil
}

// Refill schedules the next runs of soundCron after the given time.
func (r *PostgresSoundCronRepository) Refill(ctx context.Context, soundCron SoundCron, after time.Time) error {
	runTimes, err := schedule.NextRunTimesAfter(soundCron.Cron, after, UpcomingJobs)
	if err != nil {
		return fmt.Errorf("failed to get next run times: %w", err)
	}
	if _, err := r.db.Exec(ctx, soundCronJobsQuery, soundCron.ID, runTimes); err != nil {
		return fmt.Errorf("failed to refill soundcron jobs: %w", err)
	}
	return nil
}
