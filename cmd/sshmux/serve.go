package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/websoft9/sshmux/internal/app"
	"github.com/websoft9/sshmux/internal/config"
	"github.com/websoft9/sshmux/internal/errs"
	"github.com/websoft9/sshmux/internal/protocol"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the line-protocol service over stdin/stdout until stdin closes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return err
	}

	setupLogger(cfg)
	log.Info().Str("known_hosts_policy", cfg.KnownHostsPolicy).Int("per_host_max_connections", cfg.PerHostMaxConnections).Msg("starting sshmux")

	ctx, err := app.New(cfg, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build app context")
	}

	handler := func(c context.Context, tool string, args map[string]any) (any, *errs.Error) {
		return ctx.Dispatcher.Dispatch(c, tool, args)
	}

	srv := protocol.NewServer(os.Stdin, os.Stdout, handler, log.Logger)

	serveCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info().Msg("received shutdown signal")
		cancel()
	}()

	serveErr := srv.Serve(serveCtx)

	log.Info().Msg("stdin closed, shutting down")
	ctx.Shutdown(30 * time.Second)

	return serveErr
}

func setupLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}
