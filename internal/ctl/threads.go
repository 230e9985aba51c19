package ctl

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ridewire/dispatchsync/internal/models"
)

type threadSummary struct {
	ThreadID models.ThreadID `json:"thread_id"`
	Unread   int             `json:"unread"`
	Messages int             `json:"messages"`
	Focused  bool            `json:"focused"`
}

type historyResult struct {
	ThreadID models.ThreadID  `json:"thread_id"`
	Messages []models.Message `json:"messages"`
}

func newThreadsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "threads",
		Short: "List known conversation threads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newDaemonClient(cmd)
			if err != nil {
				return err
			}

			result, err := client.roundTrip(request{Cmd: "threads"})
			if err != nil {
				return err
			}

			if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
				return printRawJSON(cmd, result)
			}

			var threads []threadSummary
			if err := json.Unmarshal(result, &threads); err != nil {
				return fmt.Errorf("decode threads: %w", err)
			}
			if len(threads) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no threads")
				return nil
			}

			for _, t := range threads {
				marker := " "
				if t.Focused {
					marker = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %-20s %3d unread / %d messages\n",
					marker, t.ThreadID, t.Unread, t.Messages)
			}
			return nil
		},
	}
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [thread]",
		Short: "Show a thread's messages",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			threadID, err := resolveThread(cmd, args)
			if err != nil {
				return err
			}

			client, err := newDaemonClient(cmd)
			if err != nil {
				return err
			}

			seed, _ := cmd.Flags().GetBool("seed")
			scope, _ := cmd.Flags().GetString("scope")
			limit, _ := cmd.Flags().GetInt("limit")

			wire := request{Cmd: "history", ThreadID: threadID, Limit: limit}
			if seed {
				wire = request{Cmd: "seed", ThreadID: threadID, Scope: scope}
			}

			result, err := client.roundTrip(wire)
			if err != nil {
				return err
			}

			if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
				return printRawJSON(cmd, result)
			}

			var history historyResult
			if err := json.Unmarshal(result, &history); err != nil {
				return fmt.Errorf("decode history: %w", err)
			}
			if len(history.Messages) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no messages")
				return nil
			}

			for _, msg := range history.Messages {
				printMessage(cmd, msg)
			}
			return nil
		},
	}

	cmd.Flags().Bool("seed", false, "Backfill from conversation history first")
	cmd.Flags().String("scope", "today", "History depth when seeding (today, all)")
	cmd.Flags().Int("limit", 0, "Show at most N newest messages")
	return cmd
}

func printMessage(cmd *cobra.Command, msg models.Message) {
	who := "driver"
	switch msg.Direction {
	case models.DirectionFromDispatcher:
		who = "dispatcher"
	case models.DirectionBroadcast:
		who = "broadcast"
	}

	flags := ""
	if msg.Unread() {
		flags = " [unread]"
	}
	switch msg.DeliveryState {
	case models.DeliveryStatePending:
		flags += " [sending]"
	case models.DeliveryStateFailed:
		flags += " [failed]"
	}
	if msg.ReadByDriver {
		flags += " [seen]"
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s  %-10s  %s%s\n",
		msg.CreatedAt.Local().Format(time.Stamp), who, msg.Body, flags)
}
