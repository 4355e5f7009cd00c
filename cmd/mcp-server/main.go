// mcp-server runs the message bus server with its market and document
// connectors.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/rickgao/mcpbus/internal/config"
	"github.com/rickgao/mcpbus/internal/database"
	"github.com/rickgao/mcpbus/internal/document"
	"github.com/rickgao/mcpbus/internal/market"
	"github.com/rickgao/mcpbus/internal/poller"
	"github.com/rickgao/mcpbus/internal/server"
	"github.com/rickgao/mcpbus/internal/version"
	"github.com/rickgao/mcpbus/internal/workerpool"
	"github.com/rickgao/mcpbus/internal/yahoo"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flags := pflag.NewFlagSet("mcp-server", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "", "path to config file (defaults apply when empty)")
	host := flags.String("host", "", "override server.host")
	port := flags.IntP("port", "p", 0, "override server.port")
	provider := flags.String("provider", "", "override market.provider (yahoo or timescale)")
	showVersion := flags.Bool("version", false, "print version and exit")

	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if *showVersion {
		fmt.Println("mcp-server", version.String())
		return nil
	}

	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		return err
	}
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *provider != "" {
		cfg.Market.Provider = *provider
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	logger := cfg.Logging.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	logger.Info("starting mcp-server",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	marketProvider, closeProvider, err := newProvider(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeProvider()

	pool := workerpool.New(workerpool.Config{
		Workers:      cfg.Market.Workers,
		QueueTimeout: cfg.Market.QueueTimeout,
	}, logger)
	markets := market.NewConnector(marketProvider, pool, logger)

	documents := document.NewConnector(document.Config{
		Timeout:  cfg.Document.Timeout,
		MaxBytes: cfg.Document.MaxBytes,
	}, nil, logger)

	srv := server.New(server.Config{
		ReadLimit:        cfg.Server.ReadLimit,
		WriteTimeout:     cfg.Server.WriteTimeout,
		PingInterval:     cfg.Server.PingInterval,
		SubscriberBuffer: cfg.Server.SubscriberBuffer,
	}, markets, documents, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe(cfg.Server.Addr())
	}()

	var ticks *poller.Poller
	if len(cfg.Market.Stream.Symbols) > 0 {
		ticks = poller.New(poller.Config{
			Symbols:     cfg.Market.Stream.Symbols,
			Channel:     server.ChannelMarket,
			Interval:    cfg.Market.Stream.Interval,
			Range:       cfg.Market.Stream.Range,
			BarInterval: cfg.Market.Stream.BarInterval,
			Concurrency: cfg.Market.Workers,
		}, markets, srv.Hub(), logger)
		if err := ticks.Start(ctx); err != nil {
			return fmt.Errorf("start tick poller: %w", err)
		}
	}

	logger.Info("mcp-server running",
		"addr", cfg.Server.Addr(),
		"provider", markets.Source(),
		"workers", cfg.Market.Workers,
	)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if ticks != nil {
		if err := ticks.Stop(shutdownCtx); err != nil {
			logger.Warn("tick poller did not stop", "error", err)
		}
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown incomplete", "error", err)
	}

	stats := pool.Stats()
	logger.Info("mcp-server stopped", "rejected_jobs", stats.Rejected)
	return nil
}

// newProvider builds the configured market data provider and a cleanup func.
func newProvider(ctx context.Context, cfg *config.Config, logger *slog.Logger) (market.Provider, func(), error) {
	switch cfg.Market.Provider {
	case config.ProviderTimescale:
		dbPool, err := database.Connect(ctx, cfg.Database.Timescale)
		if err != nil {
			return nil, nil, fmt.Errorf("connect timescale: %w", err)
		}
		logger.Info("connected to timescaledb",
			"host", cfg.Database.Timescale.Host,
			"database", cfg.Database.Timescale.Name,
		)
		return database.NewBarStore(dbPool, logger), dbPool.Close, nil
	default:
		client := yahoo.NewClient(cfg.Market.Yahoo.BaseURL,
			yahoo.WithTimeout(cfg.Market.Yahoo.Timeout),
			yahoo.WithRetries(cfg.Market.Yahoo.MaxRetries, yahoo.DefaultRetryBackoff),
			yahoo.WithLogger(logger),
		)
		return client, func() {}, nil
	}
}
