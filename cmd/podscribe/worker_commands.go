package main

import (
	"github.com/spf13/cobra"

	"podscribe/internal/ipc"
)

// newWorkerCommand controls the background worker inside a running daemon
// without restarting the process.
func newWorkerCommand(cc *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Pause or resume the background worker",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "stop",
			Short: "Stop processing after the current episode finishes",
			Args:  cobra.NoArgs,
			RunE: func(c *cobra.Command, args []string) error {
				return cc.withClient(func(client *ipc.Client) error {
					if err := client.StopWorker(); err != nil {
						return err
					}
					c.Println("Worker stopped.")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "start",
			Short: "Resume processing",
			Args:  cobra.NoArgs,
			RunE: func(c *cobra.Command, args []string) error {
				return cc.withClient(func(client *ipc.Client) error {
					if err := client.StartWorker(); err != nil {
						return err
					}
					c.Println("Worker started.")
					return nil
				})
			},
		},
	)
	return cmd
}
