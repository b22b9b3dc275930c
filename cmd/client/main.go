package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/DoyleJ11/weatherboard/internal/client"
	"github.com/DoyleJ11/weatherboard/internal/config"
	"github.com/DoyleJ11/weatherboard/internal/logging"
	"github.com/DoyleJ11/weatherboard/internal/onboarding"
)

const releaseVersion = "0.1.0"

func main() {
	cobra.CheckErr(config.LoadEnvFiles())
	cobra.CheckErr(newCmd().Execute())
}

func newCmd() *cobra.Command {
	cfg := &config.Client{}

	cmd := &cobra.Command{
		Use:           "weatherboard",
		Short:         "Join a weather leaderboard room from the terminal.",
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
			return run(ctx, cfg)
		},
	}

	config.ClientFlags(cmd.Flags(), cfg)
	_, err := config.Bind(cmd.Flags())
	cobra.CheckErr(err)

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("weatherboard v{{.Version}}\n")
	return cmd
}

func run(ctx context.Context, cfg *config.Client) error {
	logger, err := logging.New(cfg.Verbose)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	state, err := client.OpenState(cfg.StateFile)
	if err != nil {
		return err
	}
	id, err := state.ClientID(cfg.ID)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	conn, err := client.Dial(ctx, cfg.Server, cfg.Room, id, logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	lines := client.Lines(os.Stdin)
	var locator onboarding.Locator = client.PromptLocator{Lines: lines, Out: os.Stdout}
	if cfg.Location != "" {
		locator = client.StaticLocator(cfg.Location)
	}

	m := onboarding.NewMachine(onboarding.Config{
		ClientID: id,
		Sender:   conn,
		Locator:  locator,
		Flags:    state,
		Logger:   logger,
	})
	updates := m.Subscribe()
	go func() { _ = m.Run(ctx) }()

	go func() {
		defer cancel()
		if err := conn.Listen(ctx, m); err != nil {
			logger.Error("connection lost", zap.Error(err))
		}
	}()

	client.Drive(ctx, m, updates, client.Prompt{Lines: lines, Out: os.Stdout, Name: cfg.Name})
	return nil
}
