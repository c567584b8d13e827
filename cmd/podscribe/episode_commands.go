package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"podscribe/internal/ipc"
)

func newAddCommand(cc *commandContext) *cobra.Command {
	var (
		title     string
		audioURL  string
		number    int
		published string
		priority  int
		noEnqueue bool
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register an episode and queue it for processing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if title == "" || audioURL == "" {
				return errors.New("--title and --url are required")
			}
			var publishedAt *time.Time
			if published != "" {
				parsed, err := time.Parse("2006-01-02", published)
				if err != nil {
					return fmt.Errorf("invalid --published date %q (want YYYY-MM-DD)", published)
				}
				publishedAt = &parsed
			}

			return cc.withClient(func(client *ipc.Client) error {
				reply, err := client.AddEpisode(ipc.AddEpisodeArgs{
					Title:         title,
					AudioURL:      audioURL,
					EpisodeNumber: number,
					PublishedAt:   publishedAt,
					Priority:      priority,
					Enqueue:       !noEnqueue,
				})
				if err != nil {
					return err
				}
				if reply.Existing {
					cmd.Printf("Episode already known (id %d).\n", reply.EpisodeID)
				} else {
					cmd.Printf("Added episode %d.\n", reply.EpisodeID)
				}
				if reply.Queued {
					cmd.Println("Queued for processing.")
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "episode title")
	cmd.Flags().StringVar(&audioURL, "url", "", "audio file URL")
	cmd.Flags().IntVar(&number, "number", 0, "episode number")
	cmd.Flags().StringVar(&published, "published", "", "publish date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&priority, "priority", 0, "queue priority (higher runs first)")
	cmd.Flags().BoolVar(&noEnqueue, "no-enqueue", false, "register without queueing")
	return cmd
}

func newEpisodesCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "episodes",
		Short: "List known episodes and their processing state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cc.withClient(func(client *ipc.Client) error {
				episodes, err := client.ListEpisodes()
				if err != nil {
					return err
				}
				if len(episodes) == 0 {
					cmd.Println("No episodes yet.")
					return nil
				}

				tbl := newTable(cmd.OutOrStdout())
				tbl.AppendHeader(table.Row{"ID", "Title", "Published", "Downloaded", "Transcribed", "Speakers"})
				for _, ep := range episodes {
					published := ""
					if ep.PublishedAt != nil {
						published = humanize.Time(*ep.PublishedAt)
					}
					speakers := ""
					if ep.HasDiarization {
						speakers = strconv.Itoa(ep.NumSpeakers)
					}
					tbl.AppendRow(table.Row{
						ep.ID,
						text.Trim(ep.Title, 48),
						published,
						yesNo(ep.Downloaded),
						yesNo(ep.Transcribed),
						speakers,
					})
				}
				tbl.Render()
				return nil
			})
		},
	}
}

func newRequeueCommand(cc *commandContext) *cobra.Command {
	var priority int

	cmd := &cobra.Command{
		Use:   "requeue <episode-id>",
		Short: "Re-run diarization for a transcribed episode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			episodeID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid episode id %q", args[0])
			}
			return cc.withClient(func(client *ipc.Client) error {
				if err := client.RequeueDiarization(episodeID, priority); err != nil {
					return err
				}
				cmd.Printf("Episode %d queued for diarization.\n", episodeID)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&priority, "priority", 0, "queue priority (higher runs first)")
	return cmd
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
