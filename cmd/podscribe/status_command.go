package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"podscribe/internal/ipc"
	"podscribe/internal/queue"
	"podscribe/internal/workflow"
)

var stageTitler = cases.Title(language.English)

func newStatusCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and worker status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := cc.withClient(func(client *ipc.Client) error {
				status, err := client.Status()
				if err != nil {
					return err
				}
				printStatus(cmd, status.Worker, status.Queue, status.UptimeSeconds)
				return nil
			})
			if err == nil {
				return nil
			}

			// Daemon down: fall back to reading the queue directly.
			return cc.withStore(func(store *queue.Store) error {
				health, healthErr := store.Health(cmd.Context())
				if healthErr != nil {
					return healthErr
				}
				cmd.Println("Daemon: not running")
				printQueueHealth(cmd, health)
				return nil
			})
		},
	}
}

func printStatus(cmd *cobra.Command, worker workflow.Status, health queue.HealthSummary, uptimeSeconds int64) {
	cmd.Println("Daemon: running")
	if uptimeSeconds > 0 {
		cmd.Printf("Uptime: %s\n", (time.Duration(uptimeSeconds) * time.Second).String())
	}
	cmd.Printf("Processed today: %d\n", worker.ProcessedToday)

	if worker.StartedAt == nil {
		cmd.Println("Worker: idle")
	} else {
		cmd.Printf("Worker: %s %q (episode %d)\n",
			stageTitler.String(worker.Stage), worker.EpisodeTitle, worker.EpisodeID)
		if worker.Progress != nil {
			line := fmt.Sprintf("Progress: %.0f%%", *worker.Progress)
			if worker.ETASeconds != nil {
				line += fmt.Sprintf(" (about %s left)",
					(time.Duration(*worker.ETASeconds) * time.Second).String())
			}
			cmd.Println(line)
		}
		cmd.Printf("Started: %s\n", humanize.Time(*worker.StartedAt))
		if worker.CancelRequested {
			cmd.Println("Cancellation requested")
		}
	}
	if worker.LastError != "" {
		cmd.Printf("Last error: %s\n", worker.LastError)
	}
	printQueueHealth(cmd, health)
}

func printQueueHealth(cmd *cobra.Command, health queue.HealthSummary) {
	cmd.Printf("Queue: %d pending, %d processing, %d completed, %d failed\n",
		health.Pending, health.Processing, health.Completed, health.Failed)
}
