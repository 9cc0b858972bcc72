package schedules

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/streamvault/backend/internal/models"
)

// ErrDuplicate is returned when a schedule for the same platform and
// streamer already exists.
var ErrDuplicate = errors.New("schedule already exists for this streamer")

// Repository handles schedule persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a schedule repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const scheduleColumns = `id, platform, streamer_id, streamer_name, quality,
	COALESCE(custom_arguments,''), COALESCE(output_format,''), COALESCE(filename_template,''),
	enabled, COALESCE(created_by,''),
	rotation_enabled, COALESCE(rotation_type,''), COALESCE(max_age_days,0),
	COALESCE(max_count,0), COALESCE(max_size_gb,0), protect_favorites, delete_empty_files,
	created_at, updated_at`

func scanSchedule(row pgx.Row) (*models.Schedule, error) {
	var s models.Schedule
	err := row.Scan(&s.ID, &s.Platform, &s.StreamerID, &s.StreamerName, &s.Quality,
		&s.CustomArguments, &s.OutputFormat, &s.FilenameTemplate,
		&s.Enabled, &s.CreatedBy,
		&s.RotationEnabled, &s.RotationType, &s.MaxAgeDays,
		&s.MaxCount, &s.MaxSizeGB, &s.ProtectFavorites, &s.DeleteEmptyFiles,
		&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Create inserts a schedule. Returns ErrDuplicate when (platform, streamer_id)
// is already monitored.
func (r *Repository) Create(ctx context.Context, s *models.Schedule) error {
	const q = `INSERT INTO schedules
		(id, platform, streamer_id, streamer_name, quality, custom_arguments,
		 output_format, filename_template, enabled, created_by,
		 rotation_enabled, rotation_type, max_age_days, max_count, max_size_gb,
		 protect_favorites, delete_empty_files)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, q, s.Platform, s.StreamerID, s.StreamerName, s.Quality,
		s.CustomArguments, s.OutputFormat, s.FilenameTemplate, s.Enabled, s.CreatedBy,
		s.RotationEnabled, s.RotationType, s.MaxAgeDays, s.MaxCount, s.MaxSizeGB,
		s.ProtectFavorites, s.DeleteEmptyFiles).
		Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// GetByID returns a schedule, nil when absent.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Schedule, error) {
	s, err := scanSchedule(r.pool.QueryRow(ctx,
		`SELECT `+scheduleColumns+` FROM schedules WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return s, err
}

// List returns all schedules ordered by platform then streamer.
func (r *Repository) List(ctx context.Context) ([]models.Schedule, error) {
	return r.list(ctx, `SELECT `+scheduleColumns+` FROM schedules ORDER BY platform, streamer_id`)
}

// ListEnabled returns schedules that the monitor loop should check.
func (r *Repository) ListEnabled(ctx context.Context) ([]models.Schedule, error) {
	return r.list(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE enabled ORDER BY platform, streamer_id`)
}

func (r *Repository) list(ctx context.Context, q string) ([]models.Schedule, error) {
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *s)
	}
	return list, rows.Err()
}

// Update rewrites a schedule. Last write wins.
func (r *Repository) Update(ctx context.Context, s *models.Schedule) error {
	const q = `UPDATE schedules SET platform=$1, streamer_id=$2, streamer_name=$3, quality=$4,
		custom_arguments=$5, output_format=$6, filename_template=$7, enabled=$8,
		rotation_enabled=$9, rotation_type=$10, max_age_days=$11, max_count=$12,
		max_size_gb=$13, protect_favorites=$14, delete_empty_files=$15, updated_at=NOW()
		WHERE id=$16`
	_, err := r.pool.Exec(ctx, q, s.Platform, s.StreamerID, s.StreamerName, s.Quality,
		s.CustomArguments, s.OutputFormat, s.FilenameTemplate, s.Enabled,
		s.RotationEnabled, s.RotationType, s.MaxAgeDays, s.MaxCount, s.MaxSizeGB,
		s.ProtectFavorites, s.DeleteEmptyFiles, s.ID)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// SetEnabled flips a schedule's enabled flag. Returns the updated row, nil
// when the schedule does not exist.
func (r *Repository) SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) (*models.Schedule, error) {
	s, err := scanSchedule(r.pool.QueryRow(ctx,
		`UPDATE schedules SET enabled=$1, updated_at=NOW() WHERE id=$2 RETURNING `+scheduleColumns, enabled, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return s, err
}

// Delete removes a schedule. Its recordings keep their rows with a null
// schedule reference.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM schedules WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
