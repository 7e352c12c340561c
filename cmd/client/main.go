package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/omochice/relaychat/internal/config"
	"github.com/omochice/relaychat/internal/console"
	"github.com/omochice/relaychat/internal/session"
	"github.com/omochice/relaychat/internal/transport/ws"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	var override config.Session

	cmd := &cobra.Command{
		Use:           "relaychat",
		Short:         "Interactive client for a chat relay",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			flags := cmd.Flags()
			if flags.Changed("url") {
				cfg.WSURL = override.WSURL
			}
			if flags.Changed("token") {
				cfg.Token = override.Token
			}
			if flags.Changed("user-id") {
				cfg.UserID = override.UserID
			}
			if flags.Changed("nickname") {
				cfg.Nickname = override.Nickname
			}
			return run(cmd.Context(), cfg, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", config.DefaultPath(), "config file path")
	flags.StringVar(&override.WSURL, "url", "", "relay WebSocket URL")
	flags.StringVar(&override.Token, "token", "", "access token")
	flags.StringVar(&override.UserID, "user-id", "", "user id")
	flags.StringVar(&override.Nickname, "nickname", "", "nickname")
	return cmd
}

func setupLogging(cfg *config.Config) *slog.Logger {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()}))
	slog.SetDefault(logger)
	return logger
}

func run(ctx context.Context, cfg *config.Config, in io.Reader, out io.Writer) error {
	logger := setupLogging(cfg)

	interval, err := cfg.Heartbeat()
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	printer := console.New(out)
	sess := session.New(
		&ws.Dialer{Logger: logger},
		session.WithSink(printer),
		session.WithLogger(logger),
		session.WithHeartbeatInterval(interval),
		session.WithRegisterer(reg),
	)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// A failed first attempt has already been reported through the printer.
	// The prompt stays up so the user can /connect again.
	if err := sess.Connect(cfg.Session()); err != nil {
		logger.Debug("initial connect failed", "error", err)
	}
	defer sess.Disconnect()

	g, ctx := errgroup.WithContext(ctx)

	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		}
		g.Go(func() error {
			logger.Info("serving metrics", "addr", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			return srv.Shutdown(context.Background())
		})
	}

	lines := scanLines(in)
	repl := &repl{sess: sess, cfg: cfg.Session(), printer: printer}
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case line, ok := <-lines:
				if !ok || repl.handle(line) {
					return errQuit
				}
			}
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errQuit) {
		return err
	}
	return nil
}
