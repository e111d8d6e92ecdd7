// streamwatch maintains an authenticated session against the exchange
// gateway, watches the configured candle streams, and logs every candle
// rollover. With the archive enabled, closed candles are also persisted
// to Postgres.
//
// Usage: streamwatch -config configs/streamwatch.local.yaml
//
// The session id is read from the EXSTREAM_SSID environment variable.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tradewire/exstream/internal/archive"
	"github.com/tradewire/exstream/internal/client"
	"github.com/tradewire/exstream/internal/config"
	"github.com/tradewire/exstream/internal/database"
	"github.com/tradewire/exstream/internal/model"
	"github.com/tradewire/exstream/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/streamwatch.local.yaml", "path to config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	logger.Info("starting streamwatch",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ssid := os.Getenv("EXSTREAM_SSID")
	if ssid == "" {
		logger.Error("EXSTREAM_SSID environment variable is required")
		os.Exit(1)
	}

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

	cli := client.New(*cfg, client.WithLogger(logger))

	// Optional archive path: pool, writer, and the observer hook.
	var arch *archive.Writer
	if cfg.Archive.Enabled {
		logger.Info("connecting to archive database",
			"host", cfg.Archive.Database.Host,
			"port", cfg.Archive.Database.Port,
			"database", cfg.Archive.Database.Name,
		)

		pool, err := database.Connect(ctx, cfg.Archive.Database)
		if err != nil {
			logger.Error("failed to connect to archive database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		arch = archive.NewWriter(cfg.Archive, pool, logger)
		if err := arch.Start(ctx); err != nil {
			logger.Error("failed to start archive writer", "error", err)
			os.Exit(1)
		}
	}

	cli.SetCandleObserver(func(c model.Candle) {
		logger.Info("candle closed",
			"active_id", c.ActiveID,
			"size", c.Size,
			"from", c.From,
			"open", c.Open,
			"high", c.High,
			"low", c.Low,
			"close", c.Close,
			"volume", c.Volume,
		)
		if arch != nil {
			arch.Offer(c)
		}
	})

	logger.Info("connecting", "url", cfg.Gateway.URL)
	if err := cli.EnsureConnection(ctx, ssid); err != nil {
		logger.Error("failed to establish session", "error", err)
		os.Exit(1)
	}

	for _, w := range cfg.Watch {
		if err := cli.SubscribeCandles(w.ActiveID, w.Sizes...); err != nil {
			logger.Error("failed to subscribe", "active_id", w.ActiveID, "error", err)
			os.Exit(1)
		}
		logger.Info("watching", "active_id", w.ActiveID, "sizes", w.Sizes)
	}

	// Stats printer; also notices a terminal session and shuts down.
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				st := cli.Status()
				logger.Info("stats",
					"connected", st.Connected,
					"auth", st.AuthState,
					"subscriptions", len(st.Subscriptions),
					"pending", st.PendingRequests,
					"balances", st.BalanceCount,
					"ticks", st.Candles.Ticks,
					"closed", st.Candles.Closed,
					"routed", st.Routing.Routed,
					"parse_errors", st.Routing.ParseErrors,
				)
				if st.Err != nil {
					cancel()
					return
				}
			}
		}
	}()

	logger.Info("streamwatch running - press Ctrl+C to stop")

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	cli.Disconnect()
	if arch != nil {
		arch.Stop(shutdownCtx)
	}

	if err := cli.Status().Err; err != nil {
		logger.Error("session ended with terminal error", "error", err)
		os.Exit(1)
	}

	logger.Info("streamwatch stopped")
}
