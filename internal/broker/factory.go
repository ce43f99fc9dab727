package broker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gestiohq/gestio/pkg/config"
	"github.com/gestiohq/gestio/pkg/logger"
)

// FactoryConfig bounds and instruments the pools the factory builds. It is
// read once from the environment at startup, not per call.
type FactoryConfig struct {
	// PoolSize caps concurrent connections per tenant per kind so a single
	// tenant cannot exhaust server-side connection limits
	PoolSize       int32
	ConnectTimeout time.Duration
	AcquireTimeout time.Duration
	// LogQueries switches the observer from error-only to query-level logging
	LogQueries bool
}

// FactoryConfigFromEnv reads the factory configuration from the environment
func FactoryConfigFromEnv() FactoryConfig {
	return FactoryConfig{
		PoolSize:       int32(config.EnvInt("GESTIO_TENANT_POOL_SIZE", 5)),
		ConnectTimeout: config.EnvDuration("GESTIO_CONNECT_TIMEOUT", 10*time.Second),
		AcquireTimeout: config.EnvDuration("GESTIO_ACQUIRE_TIMEOUT", 5*time.Second),
		LogQueries:     config.EnvBool("GESTIO_LOG_QUERIES", false),
	}
}

// Factory builds connection-pooled clients against tenant databases.
type Factory struct {
	cfg    FactoryConfig
	logger *logger.Logger
}

// NewFactory creates a new client factory
func NewFactory(cfg FactoryConfig, logger *logger.Logger) *Factory {
	return &Factory{
		cfg:    cfg,
		logger: logger,
	}
}

// Build constructs a pooled client from a credential bundle and verifies the
// connection with a ping. The bundle must not outlive this call.
func (f *Factory) Build(ctx context.Context, creds Credentials, tenantID string, kind Kind) (*Client, error) {
	poolConfig, err := buildPoolConfig(creds, f.cfg)
	if err != nil {
		return nil, NewConnectionError(tenantID, kind, creds.Host, creds.Port, err)
	}
	poolConfig.ConnConfig.Tracer = &queryObserver{
		logger:     f.logger,
		logQueries: f.cfg.LogQueries,
		tenantID:   tenantID,
		kind:       kind,
	}

	connectCtx, cancel := context.WithTimeout(ctx, f.cfg.ConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, NewConnectionError(tenantID, kind, creds.Host, creds.Port, err)
	}

	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, NewConnectionError(tenantID, kind, creds.Host, creds.Port, err)
	}

	return &Client{
		pool:           pool,
		tenantID:       tenantID,
		kind:           kind,
		createdAt:      time.Now(),
		acquireTimeout: f.cfg.AcquireTimeout,
	}, nil
}

// buildPoolConfig maps a credential bundle onto a pgxpool configuration.
// Parameters are set individually, never by URL concatenation, so passwords
// with special characters survive intact.
func buildPoolConfig(creds Credentials, cfg FactoryConfig) (*pgxpool.Config, error) {
	poolConfig, err := pgxpool.ParseConfig("")
	if err != nil {
		return nil, fmt.Errorf("failed to create connection config: %w", err)
	}

	poolConfig.ConnConfig.Host = creds.Host
	poolConfig.ConnConfig.Port = uint16(creds.Port)
	poolConfig.ConnConfig.Database = creds.Database
	poolConfig.ConnConfig.User = creds.Username
	poolConfig.ConnConfig.Password = creds.Password
	poolConfig.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	poolConfig.MaxConns = cfg.PoolSize

	return poolConfig, nil
}

// queryObserver logs query failures from tenant pools without propagating
// them as process-level faults. Queries are logged in full only at
// query-level verbosity; credentials never appear in either mode.
type queryObserver struct {
	logger     *logger.Logger
	logQueries bool
	tenantID   string
	kind       Kind
}

func (o *queryObserver) TraceQueryStart(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	if o.logQueries {
		o.logger.Debugf("Tenant %s (%s) query: %s", o.tenantID, o.kind, data.SQL)
	}
	return ctx
}

func (o *queryObserver) TraceQueryEnd(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryEndData) {
	if data.Err != nil {
		o.logger.Errorf("Tenant %s (%s) query failed: %v", o.tenantID, o.kind, data.Err)
	}
}

// Client is a live pooled connection to one tenant database. The registry
// exclusively owns it; callers receive a reference and must never close it
// themselves.
type Client struct {
	pool           *pgxpool.Pool
	tenantID       string
	kind           Kind
	createdAt      time.Time
	acquireTimeout time.Duration
	closed         atomic.Bool
}

// Pool returns the underlying connection pool
func (c *Client) Pool() *pgxpool.Pool {
	return c.pool
}

// TenantID returns the tenant this client belongs to
func (c *Client) TenantID() string {
	return c.tenantID
}

// Kind returns the database kind this client targets
func (c *Client) Kind() Kind {
	return c.kind
}

// CreatedAt returns when the client was built
func (c *Client) CreatedAt() time.Time {
	return c.createdAt
}

// Ping verifies the tenant database is reachable
func (c *Client) Ping(ctx context.Context) error {
	if c.closed.Load() || c.pool == nil {
		return fmt.Errorf("%w: client is closed", ErrConnectionFailed)
	}
	if err := c.pool.Ping(ctx); err != nil {
		return NewConnectionError(c.tenantID, c.kind, "", 0, err)
	}
	return nil
}

// Acquire checks a connection out of the pool, waiting at most the acquire
// timeout. When the per-tenant bound is reached and nothing frees up in time
// the failure surfaces as ErrPoolExhausted rather than queueing forever.
func (c *Client) Acquire(ctx context.Context) (*pgxpool.Conn, error) {
	if c.closed.Load() || c.pool == nil {
		return nil, fmt.Errorf("%w: client is closed", ErrConnectionFailed)
	}

	acquireCtx, cancel := context.WithTimeout(ctx, c.acquireTimeout)
	defer cancel()

	conn, err := c.pool.Acquire(acquireCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: no connection for tenant %s (%s) within %s",
				ErrPoolExhausted, c.tenantID, c.kind, c.acquireTimeout)
		}
		return nil, err
	}
	return conn, nil
}

// close releases the pool asynchronously, letting in-flight queries finish
// before the sockets are torn down. Only the registry calls this.
func (c *Client) close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	if c.pool != nil {
		go c.pool.Close()
	}
}
