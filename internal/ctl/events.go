package ctl

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ridewire/dispatchsync/internal/models"
)

type eventsResult struct {
	Events []*models.Event `json:"events"`
}

type pruneResult struct {
	Deleted   int64 `json:"deleted"`
	Remaining int64 `json:"remaining"`
}

func newEventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events [thread]",
		Short: "Show the persisted event journal",
		Long:  "Show recent entries from the daemon's event journal, newest last. With a thread argument only that thread's entries are shown.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var threadID models.ThreadID
			if len(args) > 0 {
				threadID = models.ThreadID(args[0])
			}
			limit, _ := cmd.Flags().GetInt("limit")

			client, err := newDaemonClient(cmd)
			if err != nil {
				return err
			}

			result, err := client.roundTrip(request{Cmd: "events", ThreadID: threadID, Limit: limit})
			if err != nil {
				return err
			}

			if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
				return printRawJSON(cmd, result)
			}

			var journal eventsResult
			if err := json.Unmarshal(result, &journal); err != nil {
				return fmt.Errorf("decode events: %w", err)
			}
			if len(journal.Events) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no journal entries")
				return nil
			}
			for _, event := range journal.Events {
				printEvent(cmd, event)
			}
			return nil
		},
	}

	cmd.Flags().Int("limit", 50, "Maximum entries to show")
	cmd.AddCommand(newEventsPruneCmd())
	return cmd
}

func newEventsPruneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete journal entries older than a retention age",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			olderThan, _ := cmd.Flags().GetString("older-than")
			limit, _ := cmd.Flags().GetInt("limit")

			client, err := newDaemonClient(cmd)
			if err != nil {
				return err
			}

			result, err := client.roundTrip(request{Cmd: "prune", OlderThan: olderThan, Limit: limit})
			if err != nil {
				return err
			}

			if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
				return printRawJSON(cmd, result)
			}

			var pruned pruneResult
			if err := json.Unmarshal(result, &pruned); err != nil {
				return fmt.Errorf("decode prune result: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d journal entries, %d remaining\n", pruned.Deleted, pruned.Remaining)
			return nil
		},
	}

	cmd.Flags().String("older-than", "720h", "Retention age as a Go duration (e.g. 72h)")
	cmd.Flags().Int("limit", 0, "Maximum entries to delete per call (0 = server default)")
	return cmd
}
