package rotation

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/streamvault/backend/internal/models"
)

// Repository handles global rotation policy persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a rotation policy repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const policyColumns = `id, name, enabled, priority, rotation_type,
	COALESCE(max_age_days,0), COALESCE(max_count,0), COALESCE(max_size_gb,0),
	protect_favorites, delete_empty_files, COALESCE(exclude_patterns,''),
	COALESCE(min_file_size_mb,0), created_at, updated_at`

func scanPolicy(row pgx.Row) (*models.RotationPolicy, error) {
	var p models.RotationPolicy
	err := row.Scan(&p.ID, &p.Name, &p.Enabled, &p.Priority, &p.RotationType,
		&p.MaxAgeDays, &p.MaxCount, &p.MaxSizeGB,
		&p.ProtectFavorites, &p.DeleteEmptyFiles, &p.ExcludePatterns,
		&p.MinFileSizeMB, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Create inserts a new global rotation policy.
func (r *Repository) Create(ctx context.Context, p *models.RotationPolicy) error {
	const q = `INSERT INTO rotation_policies
		(id, name, enabled, priority, rotation_type, max_age_days, max_count, max_size_gb,
		 protect_favorites, delete_empty_files, exclude_patterns, min_file_size_mb)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, p.Name, p.Enabled, p.Priority, p.RotationType,
		p.MaxAgeDays, p.MaxCount, p.MaxSizeGB, p.ProtectFavorites, p.DeleteEmptyFiles,
		p.ExcludePatterns, p.MinFileSizeMB).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

// GetByID returns a policy by ID, nil when absent.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.RotationPolicy, error) {
	p, err := scanPolicy(r.pool.QueryRow(ctx,
		`SELECT `+policyColumns+` FROM rotation_policies WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return p, err
}

// List returns all global policies, highest priority first.
func (r *Repository) List(ctx context.Context) ([]models.RotationPolicy, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+policyColumns+` FROM rotation_policies ORDER BY priority DESC, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.RotationPolicy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *p)
	}
	return list, rows.Err()
}

// ListEnabled returns enabled global policies, highest priority first.
func (r *Repository) ListEnabled(ctx context.Context) ([]models.RotationPolicy, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+policyColumns+` FROM rotation_policies WHERE enabled ORDER BY priority DESC, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.RotationPolicy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *p)
	}
	return list, rows.Err()
}

// Update rewrites a policy. Last write wins.
func (r *Repository) Update(ctx context.Context, p *models.RotationPolicy) error {
	const q = `UPDATE rotation_policies SET name=$1, enabled=$2, priority=$3, rotation_type=$4,
		max_age_days=$5, max_count=$6, max_size_gb=$7, protect_favorites=$8,
		delete_empty_files=$9, exclude_patterns=$10, min_file_size_mb=$11, updated_at=NOW()
		WHERE id=$12`
	_, err := r.pool.Exec(ctx, q, p.Name, p.Enabled, p.Priority, p.RotationType,
		p.MaxAgeDays, p.MaxCount, p.MaxSizeGB, p.ProtectFavorites, p.DeleteEmptyFiles,
		p.ExcludePatterns, p.MinFileSizeMB, p.ID)
	return err
}

// Delete removes a policy.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM rotation_policies WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
