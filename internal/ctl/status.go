package ctl

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ridewire/dispatchsync/internal/models"
)

type statusResult struct {
	Online           bool `json:"online"`
	Threads          int  `json:"threads"`
	GlobalUnread     int  `json:"global_unread"`
	PendingMarkReads int  `json:"pending_mark_reads"`
}

type countsResult struct {
	Global    int                     `json:"global"`
	PerThread map[models.ThreadID]int `json:"per_thread"`
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon connectivity and unread summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newDaemonClient(cmd)
			if err != nil {
				return err
			}

			result, err := client.roundTrip(request{Cmd: "status"})
			if err != nil {
				return err
			}

			if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
				return printRawJSON(cmd, result)
			}

			var status statusResult
			if err := json.Unmarshal(result, &status); err != nil {
				return fmt.Errorf("decode status: %w", err)
			}

			state := "offline (polling)"
			if status.Online {
				state = "online"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "channel:            %s\n", state)
			fmt.Fprintf(cmd.OutOrStdout(), "threads:            %d\n", status.Threads)
			fmt.Fprintf(cmd.OutOrStdout(), "global unread:      %d\n", status.GlobalUnread)
			fmt.Fprintf(cmd.OutOrStdout(), "pending mark-reads: %d\n", status.PendingMarkReads)
			return nil
		},
	}
}

func newCountsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "counts",
		Short: "Show unread counts per thread",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newDaemonClient(cmd)
			if err != nil {
				return err
			}

			result, err := client.roundTrip(request{Cmd: "counts"})
			if err != nil {
				return err
			}

			if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
				return printRawJSON(cmd, result)
			}

			var counts countsResult
			if err := json.Unmarshal(result, &counts); err != nil {
				return fmt.Errorf("decode counts: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "global: %d\n", counts.Global)
			for threadID, count := range counts.PerThread {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d\n", threadID, count)
			}
			return nil
		},
	}
}

func printRawJSON(cmd *cobra.Command, raw json.RawMessage) error {
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return err
	}
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
