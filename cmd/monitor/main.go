// Command monitor tails the backplane's worker channel, logging membership
// changes. Running it once at startup also performs the registry validation
// pass, evicting worker entries that no longer parse.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dyluth/drey/internal/config"
	"github.com/dyluth/drey/pkg/backplane"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/redis/go-redis/v9"
)

func setupLogger() {
	logger := slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if err, ok := a.Value.Any().(error); ok {
					aErr := tint.Err(err)
					aErr.Key = a.Key
					return aErr
				}
				return a
			},
		}),
	)
	slog.SetDefault(logger)
}

func main() {
	setupLogger()
	_ = godotenv.Load()

	cfgPath := os.Getenv("DREY_CONFIG")
	if cfgPath == "" {
		cfgPath = "drey.yml"
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load configuration", "path", cfgPath, "error", err)
		os.Exit(1)
	}
	if url := os.Getenv("REDIS_URL"); url != "" {
		cfg.RedisURL = url
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("monitor exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	opts, err := cfg.RedisOptions()
	if err != nil {
		return err
	}
	client := redis.NewClient(opts)
	defer client.Close()

	bp, err := backplane.New(cfg.Backplane, cfg.Source, nil, nil, func() (redis.UniversalClient, error) {
		return client, nil
	})
	if err != nil {
		return err
	}

	if err := bp.Ping(ctx); err != nil {
		return fmt.Errorf("redis not accessible: %w", err)
	}

	hostname, _ := os.Hostname()
	identity := fmt.Sprintf("%d/%s:%d", time.Now().Unix(), hostname, os.Getpid())
	if err := bp.Start(ctx, identity); err != nil {
		return fmt.Errorf("failed to start backplane: %w", err)
	}

	workers := bp.GetWorkers()
	slog.Info("backplane started", "identity", bp.Identity(), "workers", len(workers))
	for _, w := range workers {
		slog.Info("registered worker", "name", w.Name, "slots", w.ExecSlots)
	}

	sub, err := bp.SubscribeWorkerEvents(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to worker channel: %w", err)
	}
	defer sub.Close()

	slog.Info("watching worker channel", "channel", cfg.Backplane.WorkerChannel)

	for {
		select {
		case <-ctx.Done():
			slog.Info("shutting down")
			return nil
		case err, ok := <-sub.Errors():
			if !ok {
				return nil
			}
			slog.Warn("skipped event", "error", err)
		case event, ok := <-sub.Events():
			if !ok {
				slog.Info("subscription closed")
				return nil
			}
			logEvent(event)
		}
	}
}

func logEvent(event *backplane.ChangeEvent) {
	switch event.Type {
	case backplane.ChangeTypeRemove:
		slog.Warn("worker removed",
			"name", event.Remove.Name,
			"reason", event.Remove.Reason,
			"source", event.Source)
	case backplane.ChangeTypeReset:
		slog.Info("worker reset", "name", event.Reset.Job.Name, "source", event.Source)
	}
}
