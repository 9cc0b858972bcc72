// Package system exposes runtime configuration and the service clock.
package system

import (
	"context"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const keyMonitoringInterval = "monitoring_interval_seconds"

// Repository reads and writes runtime configuration keys.
type Repository struct {
	pool            *pgxpool.Pool
	defaultInterval int
}

// NewRepository creates a system config repository. defaultInterval is used
// until an operator stores a value.
func NewRepository(pool *pgxpool.Pool, defaultInterval int) *Repository {
	return &Repository{pool: pool, defaultInterval: defaultInterval}
}

// MonitoringIntervalSec returns the configured monitoring interval, falling
// back to the default when unset or unreadable.
func (r *Repository) MonitoringIntervalSec(ctx context.Context) (int, error) {
	var raw string
	err := r.pool.QueryRow(ctx,
		`SELECT config_value FROM system_configs WHERE config_key = $1`,
		keyMonitoringInterval).Scan(&raw)
	if err == pgx.ErrNoRows {
		return r.defaultInterval, nil
	}
	if err != nil {
		return r.defaultInterval, err
	}
	sec, err := strconv.Atoi(raw)
	if err != nil {
		return r.defaultInterval, nil
	}
	return sec, nil
}

// SetMonitoringIntervalSec stores the monitoring interval. The scheduler
// picks it up on its next tick.
func (r *Repository) SetMonitoringIntervalSec(ctx context.Context, sec int) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO system_configs (config_key, config_value, description)
		 VALUES ($1, $2, 'seconds between liveness checks')
		 ON CONFLICT (config_key) DO UPDATE
		 SET config_value = EXCLUDED.config_value, updated_at = NOW()`,
		keyMonitoringInterval, strconv.Itoa(sec))
	return err
}
