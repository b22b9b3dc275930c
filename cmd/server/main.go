package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/DoyleJ11/weatherboard/internal/config"
	"github.com/DoyleJ11/weatherboard/internal/httpapi"
	"github.com/DoyleJ11/weatherboard/internal/hub"
	"github.com/DoyleJ11/weatherboard/internal/logging"
	"github.com/DoyleJ11/weatherboard/internal/room"
	"github.com/DoyleJ11/weatherboard/internal/scheduler"
	"github.com/DoyleJ11/weatherboard/internal/store"
	"github.com/DoyleJ11/weatherboard/internal/weather"
)

const releaseVersion = "0.1.0"

func main() {
	cobra.CheckErr(config.LoadEnvFiles())
	cobra.CheckErr(newCmd().Execute())
}

func newCmd() *cobra.Command {
	cfg := &config.Server{}

	cmd := &cobra.Command{
		Use:           "weatherboard-server",
		Short:         "Live weather leaderboards, one room per id.",
		Args:          cobra.ExactArgs(0),
		Version:       releaseVersion,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}

	config.ServerFlags(cmd.Flags(), cfg)
	_, err := config.Bind(cmd.Flags())
	cobra.CheckErr(err)

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("weatherboard-server v{{.Version}}\n")
	return cmd
}

func serve(ctx context.Context, cfg *config.Server) error {
	logger, err := logging.New(cfg.Verbose)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	st, closeStore, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	lookup := weather.NewWeatherAPIClient(
		&http.Client{Timeout: cfg.LookupTimeout},
		cfg.WeatherAPIKey,
		weather.WithBaseURL(cfg.WeatherAPIURL),
		weather.WithBackoff(weather.BackoffConfig{
			MaxRetries:      cfg.LookupRetries,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     5 * time.Second,
		}),
		weather.WithLogger(logger),
	)

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	h := hub.NewHub(hubCtx, room.Config{
		Store:          st,
		Lookup:         lookup,
		Logger:         logger,
		LookupTimeout:  cfg.LookupTimeout,
		PartialRefresh: cfg.PartialRefresh,
	})

	sched := scheduler.New(cfg.RefreshInterval, h, st, logger)
	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           httpapi.SetupRoutes(h, st, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	// Rooms go first so every websocket session sees its outbox close.
	h.Inbox() <- hub.ShutdownHub{}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStore(cfg *config.Server, logger *zap.Logger) (store.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Info("using in-memory store; leaderboards are lost on restart")
		return store.NewMemoryStore(), func() {}, nil
	}

	pg, err := store.OpenPostgres(cfg.DatabaseURL, logger)
	if err != nil {
		return nil, nil, err
	}
	return pg, func() {
		if err := pg.Close(); err != nil {
			logger.Warn("close store", zap.Error(err))
		}
	}, nil
}
