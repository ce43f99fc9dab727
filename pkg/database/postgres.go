package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gestiohq/gestio/pkg/config"
)

// PostgreSQL represents the control-plane PostgreSQL connection
type PostgreSQL struct {
	pool *pgxpool.Pool
}

// PostgreSQLConfig holds control-plane connection settings
type PostgreSQLConfig struct {
	User              string
	Password          string
	Host              string
	Port              int
	Database          string
	SSLMode           string
	MaxConnections    int32
	ConnectionTimeout time.Duration
}

// New creates a new control-plane PostgreSQL connection
func New(ctx context.Context, cfg PostgreSQLConfig) (*PostgreSQL, error) {
	if cfg.Database == "" {
		return nil, fmt.Errorf("database name is required - must be provided in config or GESTIO_CONTROLPLANE_DATABASE environment variable")
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("database host is required")
	}
	if cfg.User == "" {
		return nil, fmt.Errorf("database user is required")
	}

	// Use pgxpool.ParseConfig to handle special characters in passwords
	poolConfig, err := pgxpool.ParseConfig("")
	if err != nil {
		return nil, fmt.Errorf("failed to create connection config: %w", err)
	}

	// Set connection parameters individually to avoid URL parsing issues
	poolConfig.ConnConfig.Host = cfg.Host
	poolConfig.ConnConfig.Port = uint16(cfg.Port)
	poolConfig.ConnConfig.Database = cfg.Database
	poolConfig.ConnConfig.User = cfg.User
	poolConfig.ConnConfig.Password = cfg.Password
	poolConfig.ConnConfig.ConnectTimeout = cfg.ConnectionTimeout

	switch cfg.SSLMode {
	case "disable":
		poolConfig.ConnConfig.TLSConfig = nil
	case "require", "prefer":
		// pgx handles the TLS negotiation automatically for these modes
	default:
	}

	poolConfig.MaxConns = cfg.MaxConnections
	poolConfig.MaxConnIdleTime = cfg.ConnectionTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgreSQL{pool: pool}, nil
}

// FromEnv builds a control-plane config from the environment, using keyring
// credentials when available.
func FromEnv() PostgreSQLConfig {
	cfg := PostgreSQLConfig{
		User:              config.EnvString("GESTIO_CONTROLPLANE_USER", "gestio"),
		Password:          config.EnvString("GESTIO_CONTROLPLANE_PASSWORD", ""),
		Host:              config.EnvString("GESTIO_CONTROLPLANE_HOST", "localhost"),
		Port:              config.EnvInt("GESTIO_CONTROLPLANE_PORT", 5432),
		Database:          config.EnvString("GESTIO_CONTROLPLANE_DATABASE", "gestio"),
		SSLMode:           config.EnvString("GESTIO_CONTROLPLANE_SSLMODE", "disable"),
		MaxConnections:    int32(config.EnvInt("GESTIO_CONTROLPLANE_POOL_SIZE", 10)),
		ConnectionTimeout: config.EnvDuration("GESTIO_CONTROLPLANE_TIMEOUT", 5*time.Second),
	}

	if cfg.Password == "" {
		if password, err := GetControlPlanePassword(); err == nil {
			cfg.Password = password
		}
	}

	return cfg
}

// Pool returns the underlying connection pool
func (db *PostgreSQL) Pool() *pgxpool.Pool {
	return db.pool
}

// Ping checks if the control-plane connection is alive
func (db *PostgreSQL) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// Close closes the database connection
func (db *PostgreSQL) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}
