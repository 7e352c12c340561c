package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/omochice/relaychat/internal/config"
	"github.com/omochice/relaychat/internal/relay"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath, listen, token string

	cmd := &cobra.Command{
		Use:           "relaychat-server",
		Short:         "Development chat relay serving /ws, /metrics and /healthz",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cmd.Flags().Changed("listen") {
				cfg.Relay.ListenAddr = listen
			}
			if cmd.Flags().Changed("token") {
				cfg.Relay.Token = token
			}
			return run(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", config.DefaultPath(), "config file path")
	flags.StringVar(&listen, "listen", "", "listen address (default from config, :8080)")
	flags.StringVar(&token, "token", "", "token clients must present; empty accepts any")
	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()}))
	slog.SetDefault(logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	hub := relay.NewHub(
		relay.WithToken(cfg.Relay.Token),
		relay.WithLogger(logger),
		relay.WithRegisterer(reg),
	)
	srv := relay.NewServer(cfg.Relay.ListenAddr, hub, reg)
	if err := srv.Listen(); err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Relay.ListenAddr, err)
	}
	if cfg.Relay.Token == "" {
		logger.Warn("no relay token configured, accepting any token")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down relay")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Stop(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("relay stopped")
	return nil
}
