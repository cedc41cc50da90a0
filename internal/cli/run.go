package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/HerbHall/campusnet/internal/notify"
	"github.com/HerbHall/campusnet/internal/server"
	"github.com/HerbHall/campusnet/internal/store"
	"github.com/HerbHall/campusnet/internal/version"
	"github.com/HerbHall/campusnet/internal/ws"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func newRunCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the keep-alive daemon until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := opts.load(cmd)
			if err != nil {
				return err
			}
			defer rt.logger.Sync() //nolint:errcheck // best-effort flush

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runDaemon(ctx, rt, opts.buildApp(rt.settings, rt.logger))
		},
	}
}

// runDaemon attaches the optional outputs to a and runs the loop until ctx
// is cancelled.
func runDaemon(ctx context.Context, rt *runtime, a *app) error {
	s, logger := rt.settings, rt.logger

	logger.Info("campusnet starting",
		zap.String("version", version.Short()),
		zap.String("username", s.Username),
		zap.String("login_url", s.LoginURL),
		zap.Strings("dns_servers", s.DNSServers),
		zap.String("http_check_url", s.HTTPCheckURL),
		zap.Duration("check_interval", s.CheckIntervalDuration()),
		zap.Int("max_retry", s.MaxRetry),
	)

	if s.History.Path != "" {
		closeHistory, err := attachHistory(ctx, rt, a)
		if err != nil {
			return err
		}
		defer closeHistory()
	}

	if s.Webhook.URL != "" {
		d := notify.NewDispatcher(notify.NewWebhook(notify.WebhookConfig{
			URL:       s.Webhook.URL,
			Secret:    s.Webhook.Secret,
			Timeout:   s.Webhook.Timeout,
			UserAgent: "campusnet/" + version.Short(),
		}), notify.DefaultQueueSize, logger.Named("notify"))
		d.Subscribe(a.bus)
		go d.Run(ctx)
		logger.Info("webhook notifications enabled", zap.String("url", s.Webhook.URL))
	}

	if s.Status.Addr != "" {
		hub := ws.NewHub(logger.Named("ws"))
		hub.Subscribe(a.bus)
		srv := server.New(
			server.Config{Addr: s.Status.Addr, Token: s.Status.Token},
			server.Deps{
				Status:   a.daemon,
				Ready:    a.daemon.Ready,
				Registry: a.metrics.Registry(),
				Events:   ws.NewHandler(hub, logger.Named("ws")),
			},
			logger.Named("server"),
		)
		go func() {
			if err := srv.Start(); err != nil {
				logger.Error("status server stopped", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("status server shutdown error", zap.Error(err))
			}
		}()
	}

	return a.daemon.Run(ctx)
}

// attachHistory opens the store, prunes expired rows and subscribes the
// recorder to the bus. The returned func closes the database.
func attachHistory(ctx context.Context, rt *runtime, a *app) (func(), error) {
	s, logger := rt.settings, rt.logger

	db, err := store.Open(ctx, s.History.Path)
	if err != nil {
		return nil, err
	}
	if err := db.CheckVersion(ctx, version.Short()); err != nil {
		db.Close()
		return nil, err
	}
	h, err := store.NewHistory(ctx, db, logger.Named("history"))
	if err != nil {
		db.Close()
		return nil, err
	}

	if s.History.Retention > 0 {
		n, err := h.Prune(ctx, time.Now().Add(-s.History.Retention))
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("pruning history: %w", err)
		}
		logger.Info("history pruned", zap.Int64("rows", n), zap.Duration("retention", s.History.Retention))
	}

	unsubscribe := h.Subscribe(a.bus)
	logger.Info("history enabled", zap.String("path", s.History.Path))

	return func() {
		unsubscribe()
		if err := db.Close(); err != nil {
			logger.Warn("closing history database", zap.Error(err))
		}
	}, nil
}
