package broker

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFactoryConfigFromEnvDefaults(t *testing.T) {
	cfg := FactoryConfigFromEnv()

	if cfg.PoolSize != 5 {
		t.Errorf("PoolSize = %d, want 5", cfg.PoolSize)
	}
	if cfg.ConnectTimeout != 10*time.Second {
		t.Errorf("ConnectTimeout = %v, want 10s", cfg.ConnectTimeout)
	}
	if cfg.AcquireTimeout != 5*time.Second {
		t.Errorf("AcquireTimeout = %v, want 5s", cfg.AcquireTimeout)
	}
	if cfg.LogQueries {
		t.Error("LogQueries should default to false")
	}
}

func TestFactoryConfigFromEnvOverrides(t *testing.T) {
	t.Setenv("GESTIO_TENANT_POOL_SIZE", "12")
	t.Setenv("GESTIO_CONNECT_TIMEOUT", "3s")
	t.Setenv("GESTIO_ACQUIRE_TIMEOUT", "500ms")
	t.Setenv("GESTIO_LOG_QUERIES", "true")

	cfg := FactoryConfigFromEnv()

	if cfg.PoolSize != 12 {
		t.Errorf("PoolSize = %d, want 12", cfg.PoolSize)
	}
	if cfg.ConnectTimeout != 3*time.Second {
		t.Errorf("ConnectTimeout = %v, want 3s", cfg.ConnectTimeout)
	}
	if cfg.AcquireTimeout != 500*time.Millisecond {
		t.Errorf("AcquireTimeout = %v, want 500ms", cfg.AcquireTimeout)
	}
	if !cfg.LogQueries {
		t.Error("LogQueries = false, want true")
	}
}

func TestBuildPoolConfig(t *testing.T) {
	creds := Credentials{
		Host: "db.tenant.example",
		Port: 5433,
		// Special characters must survive; parameters are never URL-encoded
		Username: "tenant user",
		Password: "p@ss:word/with?odd&chars",
		Database: "acme_ops",
	}
	cfg := FactoryConfig{
		PoolSize:       7,
		ConnectTimeout: 4 * time.Second,
	}

	poolConfig, err := buildPoolConfig(creds, cfg)
	if err != nil {
		t.Fatalf("buildPoolConfig failed: %v", err)
	}

	if poolConfig.ConnConfig.Host != "db.tenant.example" {
		t.Errorf("Host = %q", poolConfig.ConnConfig.Host)
	}
	if poolConfig.ConnConfig.Port != 5433 {
		t.Errorf("Port = %d", poolConfig.ConnConfig.Port)
	}
	if poolConfig.ConnConfig.User != "tenant user" {
		t.Errorf("User = %q", poolConfig.ConnConfig.User)
	}
	if poolConfig.ConnConfig.Password != "p@ss:word/with?odd&chars" {
		t.Errorf("Password did not survive: %q", poolConfig.ConnConfig.Password)
	}
	if poolConfig.ConnConfig.Database != "acme_ops" {
		t.Errorf("Database = %q", poolConfig.ConnConfig.Database)
	}
	if poolConfig.MaxConns != 7 {
		t.Errorf("MaxConns = %d, want 7", poolConfig.MaxConns)
	}
	if poolConfig.ConnConfig.ConnectTimeout != 4*time.Second {
		t.Errorf("ConnectTimeout = %v, want 4s", poolConfig.ConnConfig.ConnectTimeout)
	}
}

func TestClientClosedGuards(t *testing.T) {
	client := newTestClient("acme", KindPrimary)
	client.close()
	ctx := context.Background()

	if err := client.Ping(ctx); !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Ping on closed client: got %v, want ErrConnectionFailed", err)
	}
	if _, err := client.Acquire(ctx); !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Acquire on closed client: got %v, want ErrConnectionFailed", err)
	}

	// Double close must not panic
	client.close()
}

func TestClientAccessors(t *testing.T) {
	client := newTestClient("acme", KindSecondary)

	if client.TenantID() != "acme" {
		t.Errorf("TenantID = %q", client.TenantID())
	}
	if client.Kind() != KindSecondary {
		t.Errorf("Kind = %q", client.Kind())
	}
	if client.CreatedAt().IsZero() {
		t.Error("CreatedAt is zero")
	}
}
