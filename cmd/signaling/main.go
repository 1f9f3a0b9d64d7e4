// signaling runs the WebRTC signaling relay.
// Usage: go run ./cmd/signaling --config configs/signaling.example.yaml
package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/mist-signaling/internal/config"
	"github.com/rickgao/mist-signaling/internal/database"
	"github.com/rickgao/mist-signaling/internal/evaluation"
	"github.com/rickgao/mist-signaling/internal/framelog"
	"github.com/rickgao/mist-signaling/internal/metrics"
	"github.com/rickgao/mist-signaling/internal/router"
	"github.com/rickgao/mist-signaling/internal/server"
	"github.com/rickgao/mist-signaling/internal/version"
)

const (
	shutdownTimeout   = 10 * time.Second
	healthPingTimeout = 2 * time.Second
)

func main() {
	configPath := pflag.StringP("config", "c", "configs/signaling.example.yaml", "path to config file")
	showVersion := pflag.Bool("version", false, "print version and exit")
	pflag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	level, err := config.ParseLevel(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	logger.Info("starting signaling relay",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("relay failed", "error", err)
		os.Exit(1)
	}
	logger.Info("signaling relay stopped")
}

func run(cfg *config.RelayConfig, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Frame log
	var frames router.Recorder
	var recorder *framelog.Recorder
	if cfg.Logging.Frames {
		rec, err := framelog.Open(cfg.Logging.Dir, time.Now(), logger)
		if err != nil {
			return fmt.Errorf("open frame log: %w", err)
		}
		recorder = rec
		frames = rec
		logger.Info("recording frames", "path", rec.Path())
	}

	// Evaluation log and sinks
	evals := evaluation.NewLog(evaluation.LogConfig{
		MaxBuckets: cfg.Evaluation.MaxBuckets,
		Retention:  cfg.Evaluation.Retention,
	})

	pools, err := database.NewPools(ctx, cfg.Evaluation)
	if err != nil {
		return fmt.Errorf("connect storage: %w", err)
	}

	sinks, err := buildSinks(ctx, cfg.Evaluation, pools)
	if err != nil {
		pools.Close(ctx)
		return err
	}

	flusher, err := evaluation.NewFlusher(evals, cfg.Evaluation.FlushInterval, sinks, logger)
	if err != nil {
		pools.Close(ctx)
		return fmt.Errorf("create flusher: %w", err)
	}
	if err := flusher.Start(ctx); err != nil {
		pools.Close(ctx)
		return fmt.Errorf("start flusher: %w", err)
	}

	// Router and WebSocket server
	rt := router.New(router.Config{
		RemoveMatched:       cfg.Matching.RemoveMatched,
		NotifyUnknownTarget: cfg.Relay.NotifyUnknownTarget,
		Rand:                rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}, evals, frames, logger)

	srv := server.New(cfg.Server, rt, logger)
	if err := srv.Start(ctx); err != nil {
		shutdown(logger, srv, flusher, recorder, pools)
		return fmt.Errorf("start server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Metrics.Enabled {
		ms := metrics.NewServer(
			fmt.Sprintf(":%d", cfg.Metrics.Port),
			cfg.Metrics.Path,
			func() any {
				return map[string]any{
					"router":  rt.Stats(),
					"server":  srv.Stats(),
					"flusher": flusher.Stats(),
					"storage": storageHealth(pools),
					"version": version.Get(),
				}
			},
			logger,
		)
		g.Go(func() error {
			return ms.Run(gctx)
		})
	}

	logger.Info("signaling relay running",
		"addr", srv.Addr(),
		"path", cfg.Server.Path,
		"sinks", len(sinks),
	)

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	runErr := g.Wait()

	logger.Info("shutting down...")
	shutdown(logger, srv, flusher, recorder, pools)
	return runErr
}

// storageHealth pings the enabled database sinks.
func storageHealth(pools *database.Pools) string {
	ctx, cancel := context.WithTimeout(context.Background(), healthPingTimeout)
	defer cancel()
	if err := pools.Ping(ctx); err != nil {
		return err.Error()
	}
	return "ok"
}

// buildSinks returns the file sink plus any database sinks with open pools.
func buildSinks(ctx context.Context, cfg config.EvaluationConfig, pools *database.Pools) ([]evaluation.Sink, error) {
	sinks := []evaluation.Sink{evaluation.NewFileSink(cfg.Path)}

	if pools.Postgres != nil {
		pg := evaluation.NewPostgresSink(pools.Postgres, cfg.Postgres.Table)
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("prepare postgres sink: %w", err)
		}
		sinks = append(sinks, pg)
	}

	if pools.Mongo != nil {
		coll := pools.Mongo.Database(cfg.Mongo.Database).Collection(cfg.Mongo.Collection)
		sinks = append(sinks, evaluation.NewMongoSink(coll, cfg.Mongo.OperationTimeout))
	}

	return sinks, nil
}

// shutdown stops components in dependency order: no new frames, then the
// final evaluation flush, then the frame log and storage.
func shutdown(logger *slog.Logger, srv *server.Server, flusher *evaluation.Flusher, recorder *framelog.Recorder, pools *database.Pools) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Stop(ctx); err != nil {
		logger.Warn("server stop", "error", err)
	}
	if err := flusher.Stop(ctx); err != nil {
		logger.Warn("final evaluation flush", "error", err)
	}
	if recorder != nil {
		if err := recorder.Close(); err != nil {
			logger.Warn("close frame log", "error", err)
		}
	}
	pools.Close(ctx)
}
