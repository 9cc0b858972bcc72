// Package recordings stores and serves capture results.
package recordings

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/streamvault/backend/internal/models"
)

// Repository handles recording persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a recording repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const recordingColumns = `id, COALESCE(schedule_id, '00000000-0000-0000-0000-000000000000'::uuid),
	platform, streamer_id, streamer_name, quality, file_path, file_name, file_size,
	start_time, end_time, duration, status, COALESCE(error_message,''), is_favorite,
	COALESCE(archive_url,''), COALESCE(archive_key,''), created_at, updated_at`

func scanRecording(row pgx.Row) (*models.Recording, error) {
	var r models.Recording
	err := row.Scan(&r.ID, &r.ScheduleID, &r.Platform, &r.StreamerID, &r.StreamerName,
		&r.Quality, &r.FilePath, &r.FileName, &r.FileSize,
		&r.StartTime, &r.EndTime, &r.Duration, &r.Status, &r.ErrorMessage, &r.IsFavorite,
		&r.ArchiveURL, &r.ArchiveKey, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Create inserts a recording row in "recording" status. The partial unique
// index on (schedule_id) WHERE status='recording' makes a second concurrent
// insert for the same schedule fail, which enforces one capture per streamer.
func (r *Repository) Create(ctx context.Context, rec *models.Recording) error {
	const q = `INSERT INTO recordings
		(id, schedule_id, platform, streamer_id, streamer_name, quality,
		 file_path, file_name, file_size, start_time, status)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, rec.ScheduleID, rec.Platform, rec.StreamerID,
		rec.StreamerName, rec.Quality, rec.FilePath, rec.FileName, rec.FileSize,
		rec.StartTime, models.RecordingStatusRecording).
		Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
}

// GetByID returns a recording, nil when absent.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Recording, error) {
	rec, err := scanRecording(r.pool.QueryRow(ctx,
		`SELECT `+recordingColumns+` FROM recordings WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

// ListFilter narrows a recording listing.
type ListFilter struct {
	Platform   string
	StreamerID string
	Status     string
	IsFavorite *bool
	Limit      int
	Offset     int
}

// List returns recordings newest-first with optional filters.
func (r *Repository) List(ctx context.Context, f ListFilter) ([]models.Recording, error) {
	q := `SELECT ` + recordingColumns + ` FROM recordings WHERE 1=1`
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if f.Platform != "" {
		q += ` AND platform = ` + arg(f.Platform)
	}
	if f.StreamerID != "" {
		q += ` AND streamer_id = ` + arg(f.StreamerID)
	}
	if f.Status != "" {
		q += ` AND status = ` + arg(f.Status)
	}
	if f.IsFavorite != nil {
		q += ` AND is_favorite = ` + arg(*f.IsFavorite)
	}
	q += ` ORDER BY start_time DESC`
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	q += ` LIMIT ` + arg(f.Limit)
	if f.Offset > 0 {
		q += ` OFFSET ` + arg(f.Offset)
	}
	return r.queryMany(ctx, q, args...)
}

// ListBySchedule returns every recording for a schedule, for retention
// evaluation.
func (r *Repository) ListBySchedule(ctx context.Context, scheduleID uuid.UUID) ([]models.Recording, error) {
	return r.queryMany(ctx,
		`SELECT `+recordingColumns+` FROM recordings WHERE schedule_id = $1 ORDER BY start_time DESC`,
		scheduleID)
}

// FindActiveBySchedule returns the in-flight recording for a schedule, nil
// when none is running.
func (r *Repository) FindActiveBySchedule(ctx context.Context, scheduleID uuid.UUID) (*models.Recording, error) {
	rec, err := scanRecording(r.pool.QueryRow(ctx,
		`SELECT `+recordingColumns+` FROM recordings WHERE schedule_id = $1 AND status = $2`,
		scheduleID, models.RecordingStatusRecording))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

// ListActive returns every recording still marked in-flight.
func (r *Repository) ListActive(ctx context.Context) ([]models.Recording, error) {
	return r.queryMany(ctx,
		`SELECT `+recordingColumns+` FROM recordings WHERE status = $1 ORDER BY start_time`,
		models.RecordingStatusRecording)
}

// UpdateFileSize bumps the observed size of an in-flight capture. The size
// only ever grows; a smaller reading is a stale poll and is ignored.
func (r *Repository) UpdateFileSize(ctx context.Context, id uuid.UUID, size int64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE recordings SET file_size = $1, updated_at = NOW()
		 WHERE id = $2 AND status = $3 AND file_size < $1`,
		size, id, models.RecordingStatusRecording)
	return err
}

// MarkTerminal moves a recording from "recording" to a terminal status.
// The guard on the current status makes the transition first-writer-wins:
// a second signal for the same recording is a no-op and returns false.
func (r *Repository) MarkTerminal(ctx context.Context, id uuid.UUID, status string,
	endTime time.Time, fileSize int64, errorMessage string) (bool, error) {
	if !models.IsTerminalStatus(status) {
		return false, fmt.Errorf("not a terminal status: %q", status)
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE recordings
		 SET status = $1, end_time = $2,
		     file_size = GREATEST(file_size, $3),
		     duration = GREATEST(0, EXTRACT(EPOCH FROM ($2 - start_time))::int),
		     error_message = NULLIF($4, ''),
		     updated_at = NOW()
		 WHERE id = $5 AND status = $6`,
		status, endTime, fileSize, errorMessage, id, models.RecordingStatusRecording)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// SetFavorite sets the favorite flag, returning the updated row or nil.
func (r *Repository) SetFavorite(ctx context.Context, id uuid.UUID, fav bool) (*models.Recording, error) {
	rec, err := scanRecording(r.pool.QueryRow(ctx,
		`UPDATE recordings SET is_favorite = $1, updated_at = NOW()
		 WHERE id = $2 RETURNING `+recordingColumns, fav, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

// SetArchive records where a recording was archived.
func (r *Repository) SetArchive(ctx context.Context, id uuid.UUID, url, key string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE recordings SET archive_url = $1, archive_key = $2, updated_at = NOW() WHERE id = $3`,
		url, key, id)
	return err
}

// Delete removes a recording row.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM recordings WHERE id = $1`, id)
	return err
}

// StorageUsage aggregates disk usage per schedule.
func (r *Repository) StorageUsage(ctx context.Context) ([]models.StreamerUsage, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT COALESCE(schedule_id, '00000000-0000-0000-0000-000000000000'::uuid),
		        platform, streamer_id, streamer_name, COUNT(*), COALESCE(SUM(file_size),0)
		 FROM recordings
		 GROUP BY schedule_id, platform, streamer_id, streamer_name
		 ORDER BY SUM(file_size) DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.StreamerUsage
	for rows.Next() {
		var u models.StreamerUsage
		if err := rows.Scan(&u.ScheduleID, &u.Platform, &u.StreamerID, &u.StreamerName,
			&u.Count, &u.TotalBytes); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *Repository) queryMany(ctx context.Context, q string, args ...interface{}) ([]models.Recording, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Recording
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *rec)
	}
	return list, rows.Err()
}
