package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"podscribe/internal/ipc"
	"podscribe/internal/queue"
)

func newQueueCommand(cc *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the processing queue",
	}
	cmd.AddCommand(
		newQueueListCommand(cc),
		newQueueRetryCommand(cc),
		newQueueRemoveCommand(cc),
		newQueueClearCommand(cc),
	)
	return cmd
}

func newQueueRemoveCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <item-id>",
		Short: "Remove a queue item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid item id %q", args[0])
			}
			return cc.withClient(func(client *ipc.Client) error {
				if err := client.Remove(id); err != nil {
					return err
				}
				cmd.Printf("Removed item %d.\n", id)
				return nil
			})
		},
	}
}

func newQueueListCommand(cc *commandContext) *cobra.Command {
	var statuses []string

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List queue items",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := fetchQueueItems(cc, cmd, statuses)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				cmd.Println("Queue is empty.")
				return nil
			}

			tbl := newTable(cmd.OutOrStdout())
			tbl.AppendHeader(table.Row{"ID", "Episode", "Title", "Status", "Type", "Pri", "Added", "Error"})
			for _, item := range items {
				tbl.AppendRow(table.Row{
					item.ID,
					item.EpisodeID,
					text.Trim(item.Title, 40),
					item.Status,
					item.QueueType,
					item.Priority,
					humanize.Time(item.AddedAt),
					text.Trim(item.ErrorMessage, 48),
				})
			}
			tbl.Render()
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "filter by status (pending, processing, completed, failed)")
	return cmd
}

// fetchQueueItems prefers the daemon but degrades to direct database reads so
// the queue stays inspectable while podscribed is down.
func fetchQueueItems(cc *commandContext, cmd *cobra.Command, rawStatuses []string) ([]ipc.QueueItem, error) {
	var items []ipc.QueueItem
	err := cc.withClient(func(client *ipc.Client) error {
		var err error
		items, err = client.ListQueue(rawStatuses...)
		return err
	})
	if err == nil {
		return items, nil
	}

	statuses := make([]queue.Status, 0, len(rawStatuses))
	for _, raw := range rawStatuses {
		status, ok := queue.ParseStatus(raw)
		if !ok {
			return nil, fmt.Errorf("unknown status %q", raw)
		}
		statuses = append(statuses, status)
	}

	storeErr := cc.withStore(func(store *queue.Store) error {
		rows, err := store.List(cmd.Context(), statuses...)
		if err != nil {
			return err
		}
		for _, row := range rows {
			title := ""
			if ep, err := store.GetEpisode(cmd.Context(), row.EpisodeID); err == nil && ep != nil {
				title = ep.Title
			}
			items = append(items, ipc.QueueItem{
				ID:           row.ID,
				EpisodeID:    row.EpisodeID,
				Title:        title,
				Priority:     row.Priority,
				RetryCount:   row.RetryCount,
				Status:       string(row.Status),
				QueueType:    string(row.Type),
				AddedAt:      row.AddedAt,
				StartedAt:    row.StartedAt,
				CompletedAt:  row.CompletedAt,
				ErrorMessage: row.ErrorMessage,
			})
		}
		return nil
	})
	if storeErr != nil {
		return nil, storeErr
	}
	return items, nil
}

func newQueueRetryCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [item-id...]",
		Short: "Return failed items to pending (all failed items when no IDs given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid item id %q", arg)
				}
				ids = append(ids, id)
			}
			return cc.withClient(func(client *ipc.Client) error {
				count, err := client.RetryFailed(ids...)
				if err != nil {
					return err
				}
				cmd.Printf("Requeued %d item(s).\n", count)
				return nil
			})
		},
	}
}

func newQueueClearCommand(cc *commandContext) *cobra.Command {
	var clearCompleted, clearFailed, clearAll bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove finished items from the queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			scope := ""
			switch {
			case clearAll:
				scope = "all"
			case clearCompleted && clearFailed:
				return errors.New("pass --completed or --failed, not both (use --all)")
			case clearCompleted:
				scope = "completed"
			case clearFailed:
				scope = "failed"
			default:
				return errors.New("pass one of --completed, --failed, or --all")
			}
			return cc.withClient(func(client *ipc.Client) error {
				count, err := client.Clear(scope)
				if err != nil {
					return err
				}
				cmd.Printf("Removed %d item(s).\n", count)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&clearCompleted, "completed", false, "remove completed items")
	cmd.Flags().BoolVar(&clearFailed, "failed", false, "remove failed items")
	cmd.Flags().BoolVar(&clearAll, "all", false, "remove every item")
	return cmd
}

func newCancelCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel",
		Short: "Abort the episode currently being processed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cc.withClient(func(client *ipc.Client) error {
				if err := client.Cancel(); err != nil {
					return err
				}
				cmd.Println("Cancellation requested.")
				return nil
			})
		},
	}
}
