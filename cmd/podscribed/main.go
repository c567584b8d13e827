// Command podscribed runs the podcast processing daemon: it owns the episode
// queue, processes one episode at a time, and serves a control socket for the
// podscribe CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"podscribe/internal/config"
	"podscribe/internal/daemon"
	"podscribe/internal/ipc"
	"podscribe/internal/logging"
	"podscribe/internal/notifications"
	"podscribe/internal/queue"
	"podscribe/internal/workflow"
)

func main() {
	var configPath string

	cmd := &cobra.Command{
		Use:           "podscribed",
		Short:         "Podcast transcription daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to config file")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "podscribed:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, resolvedPath, found, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return err
	}
	if found {
		logger.Info("loaded config", logging.String("path", resolvedPath))
	} else {
		logger.Info("no config file found, using defaults", logging.String("expected", resolvedPath))
	}

	store, err := queue.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	notifier := notifications.NewService(cfg)
	manager := workflow.NewManager(cfg, store, logger, notifier)

	d, err := daemon.New(cfg, store, manager, notifier, logger)
	if err != nil {
		return err
	}
	defer d.Close()

	server, err := ipc.NewServer(d, logger)
	if err != nil {
		return err
	}
	socketPath := filepath.Join(cfg.Paths.LogDir, ipc.SocketName)
	if err := server.Listen(socketPath); err != nil {
		return err
	}
	go server.Serve()
	defer server.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := d.Start(ctx); err != nil {
		return err
	}
	logger.Info("control socket ready", logging.String("socket", socketPath))

	<-ctx.Done()
	logger.Info("shutting down")
	d.Stop()
	return nil
}
