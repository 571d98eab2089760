package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// PostgresConfig holds database configuration.
type PostgresConfig struct {
	URL             string        `yaml:"url"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// DefaultPostgresConfig returns default pool settings.
func DefaultPostgresConfig() PostgresConfig {
	return PostgresConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// Connect opens and pings the posts database.
func Connect(ctx context.Context, cfg PostgresConfig, logger logrus.FieldLogger) (*sql.DB, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	logger.WithFields(logrus.Fields{
		"max_open_conns":    cfg.MaxOpenConns,
		"max_idle_conns":    cfg.MaxIdleConns,
		"conn_max_lifetime": cfg.ConnMaxLifetime,
	}).Info("Database connected")
	return db, nil
}

// PostgresCatalog reads videos from the posts table owned by the upload
// service. video_path doubles as the display name.
type PostgresCatalog struct {
	db *sql.DB
}

func NewPostgresCatalog(db *sql.DB) *PostgresCatalog {
	return &PostgresCatalog{db: db}
}

func (c *PostgresCatalog) Lookup(ctx context.Context, id int64) (Video, error) {
	var v Video
	err := c.db.QueryRowContext(ctx,
		`SELECT id, video_path FROM posts WHERE id = $1`, id,
	).Scan(&v.ID, &v.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return Video{}, fmt.Errorf("video %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return Video{}, fmt.Errorf("lookup video %d: %w", id, err)
	}
	return v, nil
}

// UpdateViewsCount stores an aggregate total on the post row.
func (c *PostgresCatalog) UpdateViewsCount(ctx context.Context, id int64, total uint64) error {
	_, err := c.db.ExecContext(ctx,
		`UPDATE posts SET views_count = $1 WHERE id = $2`, int64(total), id)
	if err != nil {
		return fmt.Errorf("update views_count for %d: %w", id, err)
	}
	return nil
}

func (c *PostgresCatalog) Close() error {
	return c.db.Close()
}
