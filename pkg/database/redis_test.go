package database

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func TestNewRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	rdb, err := NewRedis(context.Background(), RedisConfig{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("NewRedis failed: %v", err)
	}
	defer rdb.Close()

	if err := rdb.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestNewRedisUnreachable(t *testing.T) {
	if _, err := NewRedis(context.Background(), RedisConfig{Addr: "127.0.0.1:1"}); err == nil {
		t.Fatal("expected connection failure")
	}
}

func TestRedisFromEnv(t *testing.T) {
	t.Setenv("GESTIO_REDIS_ADDR", "cache.internal:6380")
	t.Setenv("GESTIO_REDIS_DB", "3")

	cfg := RedisFromEnv()
	if cfg.Addr != "cache.internal:6380" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if cfg.DB != 3 {
		t.Errorf("DB = %d, want 3", cfg.DB)
	}
	if cfg.PoolSize != 10 {
		t.Errorf("PoolSize = %d, want default 10", cfg.PoolSize)
	}
}
