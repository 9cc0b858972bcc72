package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Recording RecordingConfig
	Scheduler SchedulerConfig
	Capture   CaptureConfig
	Clock     ClockConfig
	AWS       AWSConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RecordingConfig holds recorded-file storage settings.
type RecordingConfig struct {
	Dir string // directory for recorded files
}

// SchedulerConfig holds control-loop settings. The monitoring interval is a
// default only; the runtime value lives in system_configs and is editable
// through the API (bounded 5-3600 seconds).
type SchedulerConfig struct {
	MonitoringIntervalSec int
	LivenessTimeout       time.Duration
	RotationSweepSpec     string // cron spec for periodic rotation cleanup
}

// CaptureConfig points at the external capture agent.
type CaptureConfig struct {
	AgentURL     string
	PollInterval time.Duration
	StopTimeout  time.Duration
}

// ClockConfig holds time-authority settings.
type ClockConfig struct {
	SourceURL   string // upstream time source; empty = local clock is authoritative
	SyncTimeout time.Duration
}

// AWSConfig holds credentials and the archive bucket. Empty region disables archiving.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	ArchiveBucket        string
	PresignExpireMinutes int
}

// DSN returns the PostgreSQL connection string.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "streamvault"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Recording: RecordingConfig{
			Dir: getEnv("RECORDINGS_DIR", "./recordings"),
		},
		Scheduler: SchedulerConfig{
			MonitoringIntervalSec: getEnvInt("MONITORING_INTERVAL_SEC", 60),
			LivenessTimeout:       getEnvDuration("LIVENESS_TIMEOUT", 10*time.Second),
			RotationSweepSpec:     getEnv("ROTATION_SWEEP_CRON", "@every 10m"),
		},
		Capture: CaptureConfig{
			AgentURL:     getEnv("CAPTURE_AGENT_URL", "http://localhost:9090"),
			PollInterval: getEnvDuration("CAPTURE_POLL_INTERVAL", 5*time.Second),
			StopTimeout:  getEnvDuration("CAPTURE_STOP_TIMEOUT", 30*time.Second),
		},
		Clock: ClockConfig{
			SourceURL:   getEnv("TIME_SOURCE_URL", ""),
			SyncTimeout: getEnvDuration("TIME_SYNC_TIMEOUT", 5*time.Second),
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", ""),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			ArchiveBucket:        getEnv("AWS_S3_ARCHIVE_BUCKET", "streamvault-archive"),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 15),
		},
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
	}
	return fallback
}
