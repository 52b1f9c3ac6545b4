package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	natsadapter "github.com/heinnell/ordertrack/internal/adapters/nats"
	"github.com/heinnell/ordertrack/internal/adapters/postgres"
	"github.com/heinnell/ordertrack/internal/adapters/routing"
	"github.com/heinnell/ordertrack/internal/adapters/valkey"
	"github.com/heinnell/ordertrack/internal/core/ports"
	"github.com/heinnell/ordertrack/internal/core/usecases"
	"github.com/heinnell/ordertrack/internal/pkg/config"
	"github.com/heinnell/ordertrack/internal/pkg/logging"
	"github.com/heinnell/ordertrack/internal/pkg/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logging.Setup("ordertrack-tracker", cfg.Logging.Level, cfg.Logging.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database (optional; the engine runs in-memory without it)
	var snapshots ports.SnapshotRepository
	var db *postgres.DB
	if cfg.Database.Enabled {
		db, err = postgres.New(ctx, cfg.Database.DSN())
		if err != nil {
			log.Fatalf("database: %v", err)
		}
		defer db.Close()
		snapshots = postgres.NewSnapshotRepo(db)
	}

	// Cache (optional)
	var cache ports.CacheService
	var vk *valkey.Cache
	if cfg.Valkey.Enabled {
		vk, err = valkey.New(cfg.Valkey.Addr)
		if err != nil {
			slog.Warn("valkey unavailable, latest-state cache disabled", "error", err)
		} else {
			defer vk.Close()
			cache = vk
		}
	}

	// NATS
	publisher, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats publisher: %v", err)
	}
	defer publisher.Close()

	subscriber, err := natsadapter.NewSubscriber(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats subscriber: %v", err)
	}
	defer subscriber.Close()

	// Routing providers
	gateway, err := buildGateway(cfg.Providers)
	if err != nil {
		log.Fatalf("routing providers: %v", err)
	}

	tracker := usecases.NewTrackerService(engineConfig(cfg), gateway, publisher, snapshots, cache)

	if err := subscriber.SubscribeTrackingCommands(ctx, tracker.HandleCommand); err != nil {
		log.Fatalf("subscribe commands: %v", err)
	}
	if err := subscriber.SubscribePositions(ctx, tracker.ProcessPosition); err != nil {
		log.Fatalf("subscribe positions: %v", err)
	}

	// Operational endpoints
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		AppName:      "OrderTrack Tracker",
	})
	app.Use(recover.New())
	app.Use(metrics.Middleware())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":          "ok",
			"active_sessions": tracker.ActiveSessions(),
		})
	})
	app.Get("/ready", func(c *fiber.Ctx) error {
		if !publisher.Conn().IsConnected() {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "nats disconnected"})
		}
		if db != nil {
			if err := db.Pool.Ping(c.Context()); err != nil {
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "database unreachable"})
			}
		}
		return c.JSON(fiber.Map{"status": "ready"})
	})
	app.Get("/metrics", metrics.Handler())

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("tracker starting", "addr", addr, "primary_provider", cfg.Providers.Primary)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received", "signal", sig.String())
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Warn("http shutdown", "error", err)
	}
}

// buildGateway assembles the provider chain in primary-then-fallback order.
func buildGateway(pc config.ProvidersConfig) (*routing.Gateway, error) {
	timeout := time.Duration(pc.TimeoutSeconds) * time.Second

	build := func(name string) (ports.RouteProvider, error) {
		switch name {
		case "osrm":
			return routing.NewOSRMProvider(pc.OSRMBaseURL, timeout), nil
		case "ors":
			return routing.NewORSProvider(pc.ORSAPIKey, pc.ORSBaseURL, timeout)
		default:
			return nil, fmt.Errorf("unknown provider %q", name)
		}
	}

	var providers []ports.RouteProvider
	primary, err := build(pc.Primary)
	if err != nil {
		return nil, err
	}
	providers = append(providers, primary)

	if pc.Fallback != "" && pc.Fallback != pc.Primary {
		fallback, err := build(pc.Fallback)
		if err != nil {
			slog.Warn("fallback provider unavailable", "provider", pc.Fallback, "error", err)
		} else {
			providers = append(providers, fallback)
		}
	}

	return routing.NewGateway(providers...), nil
}

// engineConfig applies deployment overrides on top of the calibrated defaults.
func engineConfig(cfg *config.Config) usecases.EngineConfig {
	ec := usecases.DefaultEngineConfig()
	if cfg.Engine.CorridorToleranceM > 0 {
		ec.CorridorToleranceM = cfg.Engine.CorridorToleranceM
	}
	if cfg.Engine.StrictToleranceM > 0 {
		ec.StrictToleranceM = cfg.Engine.StrictToleranceM
	}
	if cfg.Engine.TrendThresholdKMH > 0 {
		ec.TrendThreshold = cfg.Engine.TrendThresholdKMH
	}
	if cfg.Engine.AssumedCruiseKMH > 0 {
		ec.AssumedCruiseKMH = cfg.Engine.AssumedCruiseKMH
	}
	if cfg.Engine.HistorySize > 0 {
		ec.HistorySize = cfg.Engine.HistorySize
	}
	ec.TrafficAware = cfg.Engine.TrafficAware
	if cfg.Providers.TimeoutSeconds > 0 {
		ec.ProviderTimeout = time.Duration(cfg.Providers.TimeoutSeconds) * time.Second
	}
	return ec
}
