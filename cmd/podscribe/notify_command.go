package main

import (
	"github.com/spf13/cobra"

	"podscribe/internal/ipc"
)

func newNotifyCommand(cc *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Notification helpers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "test",
		Short: "Send a test notification through the daemon",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			return cc.withClient(func(client *ipc.Client) error {
				if err := client.TestNotification(); err != nil {
					return err
				}
				c.Println("Test notification sent.")
				return nil
			})
		},
	})
	return cmd
}
