package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	cc := &commandContext{}

	root := &cobra.Command{
		Use:           "podscribe",
		Short:         "Manage the podcast transcription queue",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cc.configPath, "config", "", "path to config file")
	root.PersistentFlags().StringVar(&cc.socketPath, "socket", "", "daemon control socket (defaults to the log directory)")

	root.AddCommand(
		newStatusCommand(cc),
		newAddCommand(cc),
		newEpisodesCommand(cc),
		newQueueCommand(cc),
		newRequeueCommand(cc),
		newCancelCommand(cc),
		newWorkerCommand(cc),
		newConfigCommand(cc),
		newNotifyCommand(cc),
	)
	return root
}
