package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gestiohq/gestio/internal/broker"
	"github.com/gestiohq/gestio/internal/controlplane"
	"github.com/gestiohq/gestio/internal/notifier"
	"github.com/gestiohq/gestio/pkg/config"
	"github.com/gestiohq/gestio/pkg/database"
	"github.com/gestiohq/gestio/pkg/encryption"
	"github.com/gestiohq/gestio/pkg/health"
	"github.com/gestiohq/gestio/pkg/logger"
)

var (
	healthInterval = flag.Duration("health-interval", 30*time.Second, "Interval between tenant client health checks")
	withNotifier   = flag.Bool("notifier", true, "Enable credential-rotation broadcasts over Redis")
	configPath     = flag.String("config", "", "Optional key=value settings file, re-read on SIGHUP")
	serviceVersion = "1.0.0"
)

// runtimeSettings seeds the settings store from the environment. A settings
// file, when given, overlays these.
func runtimeSettings() map[string]string {
	return map[string]string{
		"controlplane.host":     config.EnvString("GESTIO_CONTROLPLANE_HOST", "localhost"),
		"controlplane.port":     config.EnvString("GESTIO_CONTROLPLANE_PORT", "5432"),
		"controlplane.database": config.EnvString("GESTIO_CONTROLPLANE_DATABASE", "gestio"),
		"redis.addr":            config.EnvString("GESTIO_REDIS_ADDR", "localhost:6379"),
		"health.interval":       (*healthInterval).String(),
	}
}

func loadSettings(cfg *config.Config, log *logger.Logger) bool {
	values := runtimeSettings()
	if *configPath != "" {
		fileValues, err := config.LoadFile(*configPath)
		if err != nil {
			log.Errorf("Failed to read settings file %s: %v", *configPath, err)
			return false
		}
		for k, v := range fileValues {
			values[k] = v
		}
	}
	return cfg.Reload(values)
}

func main() {
	flag.Parse()

	log := logger.New("tenant-broker", serviceVersion)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.New()
	loadSettings(cfg, log)

	cipher, err := encryption.NewCipherFromEnv()
	if err != nil {
		log.Fatalf("Failed to initialize credential cipher: %v", err)
	}
	if err := cipher.SelfTest(); err != nil {
		log.Fatalf("Credential cipher self test failed: %v", err)
	}

	cp, err := database.New(ctx, database.FromEnv())
	if err != nil {
		log.Fatalf("Failed to connect to control-plane database: %v", err)
	}
	defer cp.Close()

	store := controlplane.NewPGStore(cp)

	var rotation *notifier.Notifier
	if *withNotifier {
		rdb, err := database.NewRedis(ctx, database.RedisFromEnv())
		if err != nil {
			log.Warnf("Redis unavailable, rotation broadcasts disabled: %v", err)
		} else {
			defer rdb.Close()
			rotation = notifier.New(rdb, log.Named("notifier"))
		}
	}

	var publisher broker.RotationPublisher
	if rotation != nil {
		publisher = rotation
	}

	b := broker.New(store, cipher, broker.FactoryConfigFromEnv(), log.Named("broker"), publisher)
	defer b.Shutdown(context.Background())

	if rotation != nil {
		go func() {
			if err := rotation.Listen(ctx, b); err != nil && ctx.Err() == nil {
				log.Errorf("Rotation listener stopped: %v", err)
			}
		}()
	}

	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGHUP)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-reload:
				if loadSettings(cfg, log) {
					log.Warn("Settings changed in a way that requires a restart")
				} else {
					log.Info("Settings reloaded")
				}
			}
		}
	}()

	interval := *healthInterval
	if d, err := time.ParseDuration(cfg.Get("health.interval")); err == nil && d > 0 {
		interval = d
	}

	checker := health.NewChecker()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				checker.RunCheck("controlplane", func() error { return cp.Ping(ctx) })
				b.HealthCheck(ctx, checker)
				log.Debugf("Health: %s (%d tenant clients)", checker.GetOverallStatus(), len(b.ActiveClients()))
			}
		}
	}()

	log.Info("Tenant database broker started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("Shutting down")
	cancel()
}
