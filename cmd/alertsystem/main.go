// Package main provides the entry point for the alert system server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/khlayyel/alertsystem/internal/app"
)

// Version information set by goreleaser
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cmd := &cli.Command{
		Name:    "alertsystem",
		Usage:   "Multi-channel alert dispatch service with cancellation windows and reminders",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file",
				Value:   "config.toml",
				Sources: cli.EnvVars("ALERTSYSTEM_CONFIG"),
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			versionCommand(),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return serve(ctx, cmd)
		},
	}

	if err := cmd.Run(ctx, os.Args); err != nil {
		log.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "start the alert system server",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return serve(ctx, cmd)
		},
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "show version information",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			fmt.Printf("alertsystem version %s\n", version)
			fmt.Printf("  commit: %s\n", commit)
			fmt.Printf("  built:  %s\n", date)
			return nil
		},
	}
}

func serve(ctx context.Context, cmd *cli.Command) error {
	a, err := app.New(app.Options{
		ConfigPath: cmd.String("config"),
		BuildInfo:  fmt.Sprintf("%s (%s)", commit, date),
		Version:    version,
	})
	if err != nil {
		return err
	}

	if err := a.Initialize(ctx); err != nil {
		return err
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- a.Start()
	}()

	shutdown := func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return a.Shutdown(shutdownCtx)
	}

	select {
	case err := <-serverErr:
		shutdownErr := shutdown()
		if err != nil {
			return err
		}
		return shutdownErr
	case <-ctx.Done():
		return shutdown()
	}
}
